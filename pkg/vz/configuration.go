package vz

import (
	"github.com/javanstorm/vzkit/pkg/foundation"
	"github.com/javanstorm/vzkit/pkg/native"
)

// VirtualMachineConfiguration accumulates CPU count, memory size and boot
// loader.
type VirtualMachineConfiguration struct {
	noCopy noCopy
	rt     native.Runtime
	obj    *native.Object
}

// NewVirtualMachineConfiguration returns an empty configuration.
func NewVirtualMachineConfiguration(rt native.Runtime) *VirtualMachineConfiguration {
	return &VirtualMachineConfiguration{rt: rt, obj: native.Own(rt, rt.NewVirtualMachineConfiguration())}
}

func (c *VirtualMachineConfiguration) next() *VirtualMachineConfiguration {
	return &VirtualMachineConfiguration{rt: c.rt, obj: take(&c.obj)}
}

// WithBootLoader consumes both c and bl.
func (c *VirtualMachineConfiguration) WithBootLoader(bl *BootLoader) *VirtualMachineConfiguration {
	loader := take(&bl.obj)
	defer loader.Release()
	n := c.next()
	n.rt.SetBootLoader(n.obj.Handle(), loader.Handle())
	return n
}

func (c *VirtualMachineConfiguration) WithCPUCount(count uint64) *VirtualMachineConfiguration {
	n := c.next()
	n.rt.SetCPUCount(n.obj.Handle(), count)
	return n
}

// WithMemorySize sets the guest memory in bytes.
func (c *VirtualMachineConfiguration) WithMemorySize(size uint64) *VirtualMachineConfiguration {
	n := c.next()
	n.rt.SetMemorySize(n.obj.Handle(), size)
	return n
}

func (c *VirtualMachineConfiguration) CPUCount() uint64 {
	return c.rt.CPUCount(live(c.obj))
}

func (c *VirtualMachineConfiguration) MemorySize() uint64 {
	return c.rt.MemorySize(live(c.obj))
}

// Validate asks the framework whether the configuration can be used. The
// error is a *foundation.NativeError.
func (c *VirtualMachineConfiguration) Validate() error {
	h := c.rt.ValidateConfiguration(live(c.obj))
	if h.IsNil() {
		return nil
	}
	e := foundation.ErrorFromHandle(c.rt, h)
	defer e.Release()
	return e.Capture()
}

func (c *VirtualMachineConfiguration) Release() { c.obj.Release() }

// MinimumAllowedCPUCount and the functions below report the bounds the
// framework enforces on this host.
func MinimumAllowedCPUCount(rt native.Runtime) uint64 { return rt.Limits().MinCPUCount }

func MaximumAllowedCPUCount(rt native.Runtime) uint64 { return rt.Limits().MaxCPUCount }

func MinimumAllowedMemorySize(rt native.Runtime) uint64 { return rt.Limits().MinMemorySize }

func MaximumAllowedMemorySize(rt native.Runtime) uint64 { return rt.Limits().MaxMemorySize }

// Supported reports whether the host can run virtual machines. The answer
// does not change during the life of the process.
func Supported(rt native.Runtime) bool {
	return rt.Supported()
}
