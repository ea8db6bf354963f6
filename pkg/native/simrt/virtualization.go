package simrt

import (
	"fmt"
	"os"
	"time"

	"github.com/javanstorm/vzkit/pkg/native"
)

// Error domain and codes used by simulated Virtualization.framework failures.
const (
	VZErrorDomain    = "VZErrorDomain"
	POSIXErrorDomain = "NSPOSIXErrorDomain"

	VZErrorInternal                             = 1
	VZErrorInvalidVirtualMachineConfiguration   = 2
	VZErrorInvalidVirtualMachineState           = 3
	VZErrorInvalidVirtualMachineStateTransition = 4
)

// StartRequest is what a simulated start sees of the machine.
type StartRequest struct {
	KernelPath         string
	CommandLine        string
	InitialRamdiskPath string
	CPUCount           uint64
	MemorySize         uint64
}

func (r *Runtime) Supported() bool {
	return r.supported
}

func (r *Runtime) Limits() native.Limits {
	return r.limits
}

func (r *Runtime) NewLinuxBootLoader(kernelURL native.Handle) native.Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.getLocked(kernelURL, classURL)
	return r.allocLocked(&object{class: classBootLoader, kernel: r.retainLocked(kernelURL)})
}

// replaceLocked stores a retained v into *slot and releases the old value.
func (r *Runtime) replaceLocked(slot *native.Handle, v native.Handle) {
	old := *slot
	*slot = r.retainLocked(v)
	if !old.IsNil() {
		r.releaseLocked(old)
	}
}

func (r *Runtime) SetKernelURL(loader, url native.Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replaceLocked(&r.getLocked(loader, classBootLoader).kernel, url)
}

func (r *Runtime) SetCommandLine(loader, cmdline native.Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replaceLocked(&r.getLocked(loader, classBootLoader).cmdline, cmdline)
}

func (r *Runtime) SetInitialRamdiskURL(loader, url native.Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replaceLocked(&r.getLocked(loader, classBootLoader).initrd, url)
}

func (r *Runtime) KernelURL(loader native.Handle) native.Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.retainLocked(r.getLocked(loader, classBootLoader).kernel)
}

func (r *Runtime) CommandLine(loader native.Handle) native.Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	bl := r.getLocked(loader, classBootLoader)
	if bl.cmdline.IsNil() {
		return r.newStringLocked(nil)
	}
	return r.retainLocked(bl.cmdline)
}

func (r *Runtime) InitialRamdiskURL(loader native.Handle) native.Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.retainLocked(r.getLocked(loader, classBootLoader).initrd)
}

func (r *Runtime) NewVirtualMachineConfiguration() native.Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.allocLocked(&object{class: classConfiguration, cpus: 1})
}

func (r *Runtime) SetBootLoader(config, loader native.Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.getLocked(loader, classBootLoader)
	r.replaceLocked(&r.getLocked(config, classConfiguration).loader, loader)
}

func (r *Runtime) SetCPUCount(config native.Handle, n uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.getLocked(config, classConfiguration).cpus = n
}

func (r *Runtime) SetMemorySize(config native.Handle, size uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.getLocked(config, classConfiguration).memory = size
}

func (r *Runtime) CPUCount(config native.Handle) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getLocked(config, classConfiguration).cpus
}

func (r *Runtime) MemorySize(config native.Handle) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getLocked(config, classConfiguration).memory
}

func (r *Runtime) ValidateConfiguration(config native.Handle) native.Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.getLocked(config, classConfiguration)

	var reason string
	switch {
	case c.loader.IsNil():
		reason = "A boot loader must be specified."
	case c.cpus < r.limits.MinCPUCount:
		reason = fmt.Sprintf("The number of CPUs must be at least %d.", r.limits.MinCPUCount)
	case c.cpus > r.limits.MaxCPUCount:
		reason = fmt.Sprintf("The number of CPUs must not exceed %d.", r.limits.MaxCPUCount)
	case c.memory < r.limits.MinMemorySize:
		reason = fmt.Sprintf("The memory size must be at least %d bytes.", r.limits.MinMemorySize)
	case c.memory > r.limits.MaxMemorySize:
		reason = fmt.Sprintf("The memory size must not exceed %d bytes.", r.limits.MaxMemorySize)
	default:
		return native.Nil
	}
	return r.newErrorLocked(&Failure{
		Domain:      VZErrorDomain,
		Code:        VZErrorInvalidVirtualMachineConfiguration,
		Description: "Invalid virtual machine configuration.",
		Reason:      reason,
	})
}

func (r *Runtime) NewVirtualMachine(config, q native.Handle) native.Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.getLocked(config, classConfiguration)
	r.getLocked(q, classQueue)
	return r.allocLocked(&object{
		class:   classVirtualMachine,
		config:  r.retainLocked(config),
		vmQueue: r.retainLocked(q),
	})
}

// MachineState returns the simulated state of vm.
func (r *Runtime) MachineState(vm native.Handle) VMState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getLocked(vm, classVirtualMachine).vmState
}

func (r *Runtime) requestLocked(vm *object) StartRequest {
	c := r.objects[vm.config]
	req := StartRequest{CPUCount: c.cpus, MemorySize: c.memory}
	if bl, ok := r.objects[c.loader]; ok {
		req.KernelPath = r.textLocked(bl.kernel)
		req.CommandLine = r.textLocked(bl.cmdline)
		req.InitialRamdiskPath = r.textLocked(bl.initrd)
	}
	return req
}

// StartVirtualMachine resolves the outcome immediately but delivers it
// later, on the machine's own queue. The machine is retained until then.
func (r *Runtime) StartVirtualMachine(vm native.Handle, done func(err native.Handle)) {
	r.mu.Lock()
	o := r.getLocked(vm, classVirtualMachine)
	var fail *Failure
	if o.vmState == VMStarting || o.vmState == VMRunning {
		fail = &Failure{
			Domain:      VZErrorDomain,
			Code:        VZErrorInvalidVirtualMachineStateTransition,
			Description: "Invalid virtual machine state transition.",
			Reason:      "The virtual machine is already starting or running.",
		}
	} else {
		o.vmState = VMStarting
	}
	req := r.requestLocked(o)
	q := r.objects[o.vmQueue].queue
	r.retainLocked(vm)
	r.mu.Unlock()

	transition := fail == nil
	if transition {
		fail = r.outcome(req)
	}

	r.starts.Add(1)
	deliver := func() {
		defer r.starts.Done()
		var errH native.Handle
		r.mu.Lock()
		switch {
		case fail != nil:
			errH = r.newErrorLocked(fail)
			if transition {
				o.vmState = VMError
			}
		case transition:
			o.vmState = VMRunning
		}
		r.mu.Unlock()

		done(errH)

		r.mu.Lock()
		if !errH.IsNil() {
			r.releaseLocked(errH)
		}
		r.releaseLocked(vm)
		r.mu.Unlock()
	}
	if r.delay > 0 {
		time.AfterFunc(r.delay, func() { q.submit(deliver) })
		return
	}
	q.submit(deliver)
}

// defaultOutcome mimics the checks the framework performs when booting a
// Linux guest: host support and readable kernel and ramdisk images.
func (r *Runtime) defaultOutcome(req StartRequest) *Failure {
	if !r.supported {
		return &Failure{
			Domain:      VZErrorDomain,
			Code:        VZErrorInternal,
			Description: "Virtualization is not available on this hardware.",
		}
	}
	for _, p := range []string{req.KernelPath, req.InitialRamdiskPath} {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			return &Failure{
				Domain:      VZErrorDomain,
				Code:        VZErrorInternal,
				Description: "The virtual machine failed to start.",
				Failure:     "Internal Virtualization error.",
				Reason:      "The boot image could not be loaded.",
				URL:         p,
				Underlying: &Failure{
					Domain:      POSIXErrorDomain,
					Code:        2,
					Description: "No such file or directory",
				},
			}
		}
	}
	return nil
}
