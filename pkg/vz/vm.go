package vz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/javanstorm/vzkit/pkg/foundation"
	"github.com/javanstorm/vzkit/pkg/native"
)

var (
	// ErrInvalidState is returned by Start while a start is in flight or
	// after the machine started.
	ErrInvalidState = errors.New("vz: invalid virtual machine state")

	// ErrClosed is returned when a closed machine is used.
	ErrClosed = errors.New("vz: virtual machine closed")
)

// State of the start protocol.
type State int32

const (
	StateConstructed State = iota
	StateStarting
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConstructed:
		return "constructed"
	case StateStarting:
		return "starting"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// StartError is delivered when the native completion handler reports a
// failure.
type StartError struct {
	Native *foundation.NativeError
}

func (e *StartError) Error() string {
	return "vz: start virtual machine: " + e.Native.Error()
}

func (e *StartError) Unwrap() error { return e.Native }

// StartPhase identifies a StartEvent.
type StartPhase int

const (
	// PhaseSubmitted fires on the machine queue just before the native start.
	PhaseSubmitted StartPhase = iota
	// PhaseCompleted fires from the completion handler.
	PhaseCompleted
)

// StartEvent is passed to start observers.
type StartEvent struct {
	Phase      StartPhase
	QueueLabel string
	// Elapsed is measured from the Start call.
	Elapsed time.Duration
	// Err is the completion outcome; only set for PhaseCompleted.
	Err error
}

type options struct {
	logger    *slog.Logger
	label     string
	observers []func(StartEvent)
}

// Option configures a VirtualMachine.
type Option func(*options)

// WithLogger sets the logger used for start outcomes. The default is
// slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithQueueLabel overrides the dispatch queue label. The default is
// "vzkit.vm." followed by a random UUID.
func WithQueueLabel(label string) Option {
	return func(o *options) { o.label = label }
}

// WithStartObserver registers fn for start events. Submitted events are
// delivered on the machine queue and completion events on the native
// completion thread, in that order; fn must not block.
func WithStartObserver(fn func(StartEvent)) Option {
	return func(o *options) { o.observers = append(o.observers, fn) }
}

// VirtualMachine owns a native machine and the serial queue it runs on.
//
// Close must not race with Start. A start that is already in flight keeps
// its own reference to the native machine, so Close never frees it under
// the completion handler.
type VirtualMachine struct {
	noCopy    noCopy
	rt        native.Runtime
	obj       *native.Object
	queue     *foundation.DispatchQueue
	log       *slog.Logger
	observers []func(StartEvent)
	state     atomic.Int32
	closed    atomic.Bool
}

// NewVirtualMachine validates cfg, takes it over and creates the machine on a
// dedicated queue. cfg is consumed even when an error is returned.
func NewVirtualMachine(rt native.Runtime, cfg *VirtualMachineConfiguration, opts ...Option) (*VirtualMachine, error) {
	o := options{logger: slog.Default(), label: "vzkit.vm." + uuid.NewString()}
	for _, opt := range opts {
		opt(&o)
	}

	config := take(&cfg.obj)
	defer config.Release()

	if h := rt.ValidateConfiguration(config.Handle()); !h.IsNil() {
		e := foundation.ErrorFromHandle(rt, h)
		defer e.Release()
		return nil, fmt.Errorf("vz: invalid configuration: %w", e.Capture())
	}

	q := foundation.NewDispatchQueue(rt, o.label)
	h := rt.NewVirtualMachine(config.Handle(), q.Handle())
	if h.IsNil() {
		q.Release()
		return nil, errors.New("vz: virtual machine initialization failed")
	}

	vm := &VirtualMachine{
		rt:        rt,
		obj:       native.Own(rt, h),
		queue:     q,
		log:       o.logger,
		observers: o.observers,
	}
	vm.log.Debug("virtual machine created", "queue", o.label)
	return vm, nil
}

// State returns the current start state.
func (vm *VirtualMachine) State() State {
	return State(vm.state.Load())
}

// QueueLabel returns the label of the machine's dispatch queue.
func (vm *VirtualMachine) QueueLabel() string {
	return vm.queue.Label()
}

// Start submits the native start to the machine queue and returns as soon as
// the submission is accepted, long before the guest boots.
//
// The returned channel receives exactly one value once the framework calls
// the completion handler: nil on success or a *StartError. The outcome is
// also logged, so callers that only want fire-and-forget behaviour can drop
// the channel. ctx only bounds the submission.
//
// A machine that failed to start may be started again.
func (vm *VirtualMachine) Start(ctx context.Context) (<-chan error, error) {
	if vm.closed.Load() {
		return nil, ErrClosed
	}

	prev := vm.State()
	if prev == StateStarting || prev == StateSucceeded ||
		!vm.state.CompareAndSwap(int32(prev), int32(StateStarting)) {
		return nil, fmt.Errorf("%w: cannot start while %s", ErrInvalidState, vm.State())
	}

	began := time.Now()
	done := make(chan error, 1)
	h := vm.rt.Retain(vm.obj.Handle())

	err := vm.queue.Async(ctx, func() {
		// Runs before the native start, so observers always see Submitted
		// ahead of Completed.
		vm.notify(StartEvent{Phase: PhaseSubmitted, QueueLabel: vm.queue.Label(), Elapsed: time.Since(began)})
		vm.rt.StartVirtualMachine(h, func(errH native.Handle) {
			defer vm.rt.Release(h)
			vm.complete(native.Borrow(vm.rt, errH), began, done)
		})
	})
	if err != nil {
		vm.rt.Release(h)
		vm.state.Store(int32(prev))
		return nil, fmt.Errorf("vz: submit start: %w", err)
	}

	vm.log.Debug("virtual machine start submitted", "queue", vm.queue.Label())
	return done, nil
}

// complete runs on the native completion thread. errB is only valid for the
// duration of the call, so it is captured into Go memory before returning.
func (vm *VirtualMachine) complete(errB native.Borrowed, began time.Time, done chan<- error) {
	elapsed := time.Since(began)

	var result error
	if errB.IsNil() {
		vm.state.Store(int32(StateSucceeded))
		vm.log.Info("virtual machine started", "queue", vm.queue.Label(), "elapsed", elapsed)
	} else {
		e := foundation.ErrorFromBorrowed(errB)
		ne := e.Capture()
		e.Release()

		result = &StartError{Native: ne}
		vm.state.Store(int32(StateFailed))
		vm.log.Error("virtual machine failed to start",
			"queue", vm.queue.Label(),
			"domain", ne.Domain,
			"code", ne.Code,
			"error", ne.Rendered,
		)
	}

	vm.notify(StartEvent{Phase: PhaseCompleted, QueueLabel: vm.queue.Label(), Elapsed: elapsed, Err: result})
	done <- result
	close(done)
}

func (vm *VirtualMachine) notify(ev StartEvent) {
	for _, fn := range vm.observers {
		fn(ev)
	}
}

// Close releases the machine and its queue. It is safe to call more than
// once.
func (vm *VirtualMachine) Close() error {
	if vm.closed.Swap(true) {
		return nil
	}
	vm.obj.Release()
	vm.queue.Release()
	return nil
}
