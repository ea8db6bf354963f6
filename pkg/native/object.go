package native

import (
	"fmt"
	"runtime"
)

// Object owns exactly one reference to a native object.
//
// Release drops the reference, Detach hands it to someone else. Both leave
// the Object empty, so a second Release is a no-op. An Object that becomes
// unreachable while still owning its handle releases it from a finalizer;
// callers should not rely on that.
type Object struct {
	rt Objects
	h  Handle
}

// Own takes ownership of an already retained (+1) handle. It returns nil for
// a Nil handle.
func Own(rt Objects, h Handle) *Object {
	if h.IsNil() {
		return nil
	}
	o := &Object{rt: rt, h: h}
	runtime.SetFinalizer(o, (*Object).Release)
	return o
}

// Retained retains a borrowed (+0) handle and owns the new reference.
func Retained(rt Objects, h Handle) *Object {
	if h.IsNil() {
		return nil
	}
	return Own(rt, rt.Retain(h))
}

// Handle returns the owned handle without transferring ownership. It panics
// if the object was released or detached.
func (o *Object) Handle() Handle {
	if o == nil || o.h.IsNil() {
		panic(ErrReleased)
	}
	return o.h
}

// Valid reports whether o still owns a handle.
func (o *Object) Valid() bool {
	return o != nil && !o.h.IsNil()
}

// Detach transfers the reference to the caller.
func (o *Object) Detach() Handle {
	h := o.Handle()
	o.h = Nil
	runtime.SetFinalizer(o, nil)
	return h
}

// Release drops the reference. It is safe to call more than once.
func (o *Object) Release() {
	if o == nil || o.h.IsNil() {
		return
	}
	h := o.h
	o.h = Nil
	runtime.SetFinalizer(o, nil)
	o.rt.Release(h)
}

// Borrowed is a handle that is not owned by its holder. It is only valid
// while the object it was obtained from is alive and must never be released.
type Borrowed struct {
	rt Runtime
	h  Handle
}

// Borrow wraps h without taking a reference.
func Borrow(rt Runtime, h Handle) Borrowed {
	return Borrowed{rt: rt, h: h}
}

func (b Borrowed) Handle() Handle   { return b.h }
func (b Borrowed) IsNil() bool      { return b.h.IsNil() }
func (b Borrowed) Runtime() Runtime { return b.rt }

// ClassName returns the runtime class name, or "nil".
func (b Borrowed) ClassName() string {
	if b.h.IsNil() {
		return "nil"
	}
	return b.rt.ClassName(b.h)
}

// IsKind reports whether the object belongs to the class family k.
func (b Borrowed) IsKind(k Kind) bool {
	return !b.h.IsNil() && b.rt.IsKind(b.h, k)
}

// Retain takes a reference so the value can outlive its owner.
func (b Borrowed) Retain() *Object {
	return Retained(b.rt, b.h)
}

// Placeholder renders the handle the way unknown values are shown in debug
// output.
func (b Borrowed) Placeholder() string {
	return fmt.Sprintf("<%#x (%s)>", uintptr(b.h), b.ClassName())
}
