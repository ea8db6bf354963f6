package foundation

import (
	"context"
	"runtime"

	"github.com/javanstorm/vzkit/pkg/native"
)

// DispatchQueue is a native serial queue. Work submitted to one queue runs
// one block at a time in submission order, on a thread the native runtime
// picks.
type DispatchQueue struct {
	noCopy noCopy
	rt     native.Runtime
	obj    *native.Object
	label  string
}

// NewDispatchQueue creates a serial queue. The label is copied into a NUL
// terminated buffer owned by this call; a NUL inside label ends it early.
func NewDispatchQueue(rt native.Runtime, label string) *DispatchQueue {
	buf := make([]byte, len(label)+1)
	copy(buf, label)
	h := rt.NewQueue(buf)
	runtime.KeepAlive(buf)
	return &DispatchQueue{rt: rt, obj: native.Own(rt, h), label: label}
}

func (q *DispatchQueue) Label() string { return q.label }

// Sync runs fn on the queue and blocks the calling goroutine, and its OS
// thread, until fn returns. Calling Sync from a block already running on q
// deadlocks.
func (q *DispatchQueue) Sync(fn func()) {
	q.rt.DispatchSync(q.obj.Handle(), fn)
}

// Async hands fn to the queue and returns as soon as the submission was
// accepted. fn runs later; whether it runs before the process exits is up
// to the runtime. The context only guards the submission itself.
func (q *DispatchQueue) Async(ctx context.Context, fn func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.rt.DispatchAsync(q.obj.Handle(), fn)
	return nil
}

func (q *DispatchQueue) Handle() native.Handle { return q.obj.Handle() }

func (q *DispatchQueue) Release() { q.obj.Release() }
