// Package vz configures and starts a Linux virtual machine through the
// Virtualization framework object model.
//
// Boot loaders and configurations are built with consuming builder calls:
// every With method takes over the receiver and returns a new wrapper, and
// using the old one afterwards panics with ErrConsumed. The virtual machine
// takes ownership of its configuration and owns a dedicated serial dispatch
// queue; Start submits the native start on that queue and reports the
// outcome on a channel.
package vz

import (
	"errors"

	"github.com/javanstorm/vzkit/pkg/foundation"
	"github.com/javanstorm/vzkit/pkg/native"
)

// ErrConsumed is the panic value used when a builder is reused after a
// consuming call.
var ErrConsumed = errors.New("vz: builder already consumed")

type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// take moves the owned object out of a builder.
func take(obj **native.Object) *native.Object {
	o := *obj
	if !o.Valid() {
		panic(ErrConsumed)
	}
	*obj = nil
	return o
}

func live(obj *native.Object) native.Handle {
	if !obj.Valid() {
		panic(ErrConsumed)
	}
	return obj.Handle()
}

// LinuxBootLoader boots a Linux kernel image with an optional command line
// and initial ramdisk.
//
// Release only frees the last value of a With chain; a deferred Release on
// an earlier value is a no-op once that value was consumed.
type LinuxBootLoader struct {
	noCopy noCopy
	rt     native.Runtime
	obj    *native.Object
}

// NewLinuxBootLoader creates a boot loader for the kernel at kernelPath.
func NewLinuxBootLoader(rt native.Runtime, kernelPath string) *LinuxBootLoader {
	u := foundation.NewFileURL(rt, kernelPath)
	defer u.Release()
	return &LinuxBootLoader{rt: rt, obj: native.Own(rt, rt.NewLinuxBootLoader(u.Handle()))}
}

func (b *LinuxBootLoader) next() *LinuxBootLoader {
	return &LinuxBootLoader{rt: b.rt, obj: take(&b.obj)}
}

// WithKernelPath replaces the kernel image.
func (b *LinuxBootLoader) WithKernelPath(path string) *LinuxBootLoader {
	n := b.next()
	u := foundation.NewFileURL(n.rt, path)
	defer u.Release()
	n.rt.SetKernelURL(n.obj.Handle(), u.Handle())
	return n
}

// WithCommandLine sets the kernel command line.
func (b *LinuxBootLoader) WithCommandLine(cmdline string) *LinuxBootLoader {
	n := b.next()
	s := foundation.NewString(n.rt, cmdline)
	defer s.Release()
	n.rt.SetCommandLine(n.obj.Handle(), s.Handle())
	return n
}

// WithInitialRamdiskPath sets the initial ramdisk image.
func (b *LinuxBootLoader) WithInitialRamdiskPath(path string) *LinuxBootLoader {
	n := b.next()
	u := foundation.NewFileURL(n.rt, path)
	defer u.Release()
	n.rt.SetInitialRamdiskURL(n.obj.Handle(), u.Handle())
	return n
}

// BootLoader converts b into the generic boot loader a configuration
// accepts. b cannot be used afterwards.
func (b *LinuxBootLoader) BootLoader() *BootLoader {
	return &BootLoader{rt: b.rt, obj: take(&b.obj)}
}

func (b *LinuxBootLoader) KernelPath() string {
	return urlPath(b.rt, b.rt.KernelURL(live(b.obj)))
}

func (b *LinuxBootLoader) CommandLine() string {
	s := foundation.StringFromHandle(b.rt, b.rt.CommandLine(live(b.obj)))
	defer s.Release()
	return s.String()
}

// InitialRamdiskPath returns "" when no ramdisk is set.
func (b *LinuxBootLoader) InitialRamdiskPath() string {
	return urlPath(b.rt, b.rt.InitialRamdiskURL(live(b.obj)))
}

// Release drops the boot loader. It is a no-op after a consuming call.
func (b *LinuxBootLoader) Release() { b.obj.Release() }

func urlPath(rt native.Runtime, h native.Handle) string {
	if h.IsNil() {
		return ""
	}
	u := foundation.URLFromHandle(rt, h)
	defer u.Release()
	return u.Path()
}

// BootLoader is any boot loader, ready to be put into a configuration.
type BootLoader struct {
	noCopy noCopy
	rt     native.Runtime
	obj    *native.Object
}

func (b *BootLoader) Handle() native.Handle { return live(b.obj) }

func (b *BootLoader) Release() { b.obj.Release() }
