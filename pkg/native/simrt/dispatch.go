package simrt

import (
	"bytes"

	infinity "github.com/Code-Hex/go-infinity-channel"

	"github.com/javanstorm/vzkit/pkg/native"
)

// queue is a serial queue: one goroutine draining an unbounded channel, so
// submission never waits for earlier work to finish.
type queue struct {
	label string
	work  *infinity.Channel[func()]
	done  chan struct{}
}

func newQueue(label string) *queue {
	q := &queue{
		label: label,
		work:  infinity.NewChannel[func()](),
		done:  make(chan struct{}),
	}
	go q.loop()
	return q
}

func (q *queue) loop() {
	defer close(q.done)
	for fn := range q.work.Out() {
		fn()
	}
}

func (q *queue) submit(fn func()) {
	q.work.In() <- fn
}

// close stops accepting work; anything already submitted still runs.
func (q *queue) close() {
	q.work.Close()
}

func (r *Runtime) NewQueue(label []byte) native.Handle {
	if i := bytes.IndexByte(label, 0); i >= 0 {
		label = label[:i]
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.allocLocked(&object{class: classQueue, queue: newQueue(string(label))})
}

// QueueLabel returns the label a queue was created with.
func (r *Runtime) QueueLabel(h native.Handle) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getLocked(h, classQueue).queue.label
}

func (r *Runtime) queue(h native.Handle) *queue {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getLocked(h, classQueue).queue
}

func (r *Runtime) DispatchAsync(h native.Handle, fn func()) {
	r.queue(h).submit(fn)
}

// DispatchSync deadlocks when called from a block already running on the
// same queue, like the real thing.
func (r *Runtime) DispatchSync(h native.Handle, fn func()) {
	done := make(chan struct{})
	r.queue(h).submit(func() {
		defer close(done)
		fn()
	})
	<-done
}
