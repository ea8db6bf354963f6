package hypervisor

// VMConfig holds VM configuration parameters.
type VMConfig struct {
	// CPUs is the number of virtual CPUs.
	CPUs int

	// MemoryMB is the amount of memory in megabytes.
	MemoryMB int

	// Kernel is the path to the Linux kernel image.
	Kernel string

	// Initrd is the path to the initial ramdisk (optional).
	Initrd string

	// Cmdline is the kernel command line.
	Cmdline string
}

// Validate performs basic validation of the configuration. Backends apply
// the framework limits on top of this.
func (c *VMConfig) Validate() error {
	if c.CPUs < 1 {
		return ErrInvalidCPUCount
	}
	if c.MemoryMB < 128 {
		return ErrInsufficientMemory
	}
	if c.Kernel == "" {
		return ErrMissingKernel
	}
	return nil
}

// MemoryBytes returns the memory size in bytes.
func (c *VMConfig) MemoryBytes() uint64 {
	return uint64(c.MemoryMB) * 1024 * 1024
}
