// Package hypervisor provides a backend-neutral interface for configuring and
// starting one Linux virtual machine.
//
// Three backends exist: "bridge" drives Virtualization.framework through the
// vzkit object bridge, "sim" runs the same bridge against an in-memory
// runtime, and "codehex" (macOS only) uses github.com/Code-Hex/vz.
package hypervisor

import "context"

// Driver is the main interface for hypervisor operations.
type Driver interface {
	Lifecycle
	Info() Info
	// Capabilities returns what the backend supports.
	Capabilities() Capabilities
}

// Capabilities describes backend feature support.
type Capabilities struct {
	Native      bool // drives the real Virtualization framework
	QueueLabels bool // exposes the dispatch queue of the machine
	Restart     bool // a failed start may be retried on the same machine
}

// Lifecycle defines VM lifecycle operations.
type Lifecycle interface {
	// Validate checks if the configuration is valid for this driver.
	Validate(ctx context.Context, cfg *VMConfig) error

	// Create builds the machine without starting it.
	Create(ctx context.Context, cfg *VMConfig) error

	// Start submits the start and returns once it was accepted. The
	// channel receives the boot outcome: nil once the machine runs, or the
	// error reported by the framework.
	Start(ctx context.Context) (<-chan error, error)

	// Close releases the machine. Safe to call more than once.
	Close() error
}

// Info contains driver metadata.
type Info struct {
	Name      string // backend name
	Version   string // driver version
	Arch      string // "arm64" or "amd64"
	Supported bool   // host can run virtual machines with this backend
}

// QueueLabeler is implemented by drivers that run the machine on a named
// dispatch queue.
type QueueLabeler interface {
	QueueLabel() string
}
