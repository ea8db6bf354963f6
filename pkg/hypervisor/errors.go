package hypervisor

import "errors"

// Configuration errors
var (
	ErrInvalidCPUCount    = errors.New("hypervisor: CPU count must be at least 1")
	ErrInsufficientMemory = errors.New("hypervisor: memory must be at least 128MB")
	ErrMissingKernel      = errors.New("hypervisor: kernel path is required")

	ErrInvalidConfiguration = errors.New("hypervisor: configuration rejected by the framework")
)

// Runtime errors
var (
	ErrNotCreated     = errors.New("hypervisor: VM not created")
	ErrAlreadyCreated = errors.New("hypervisor: VM already created")
	ErrAlreadyRunning = errors.New("hypervisor: VM is already starting or running")
)

// Platform errors
var (
	ErrUnsupportedPlatform = errors.New("hypervisor: platform not supported")
	ErrUnknownBackend      = errors.New("hypervisor: unknown backend")
)
