package hypervisor

import "runtime"

// Host describes the machine vzkit runs on.
type Host struct {
	OS   string
	Arch string
	CPUs int
	// MemoryBytes is the physical memory, 0 if unknown.
	MemoryBytes uint64
	// HypervisorSupport reports whether the kernel exposes hardware
	// virtualization to user space.
	HypervisorSupport bool
}

// ProbeHost inspects the current machine. It has no side effects and may be
// called before any other component is set up.
func ProbeHost() Host {
	h := Host{OS: runtime.GOOS, Arch: runtime.GOARCH, CPUs: runtime.NumCPU()}
	detect(&h)
	return h
}
