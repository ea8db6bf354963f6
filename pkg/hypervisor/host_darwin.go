//go:build darwin

package hypervisor

import "golang.org/x/sys/unix"

func detect(h *Host) {
	if mem, err := unix.SysctlUint64("hw.memsize"); err == nil {
		h.MemoryBytes = mem
	}
	// kern.hv_support is 1 when Hypervisor.framework can be used.
	if v, err := unix.SysctlUint32("kern.hv_support"); err == nil {
		h.HypervisorSupport = v == 1
	}
}
