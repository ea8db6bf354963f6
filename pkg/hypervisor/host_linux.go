//go:build linux

package hypervisor

import "golang.org/x/sys/unix"

func detect(h *Host) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err == nil {
		h.MemoryBytes = uint64(info.Totalram) * uint64(info.Unit)
	}
	h.HypervisorSupport = unix.Access("/dev/kvm", unix.R_OK|unix.W_OK) == nil
}
