// Package native describes the boundary between vzkit and the Objective-C
// object runtime that backs Virtualization.framework.
//
// Everything on the far side of a Handle is opaque: allocation, reference
// counting, dispatch queues and the hypervisor itself belong to the runtime.
// Two runtimes implement the boundary: objcrt talks to the real frameworks
// through purego, simrt is an in-memory stand-in used by tests and by the
// simulated backend.
package native

import "errors"

// Handle is an opaque reference to an object owned by the native runtime.
type Handle uintptr

// Nil is the null object.
const Nil Handle = 0

// IsNil reports whether h is the null object.
func (h Handle) IsNil() bool { return h == Nil }

var (
	// ErrUnsupported is returned when the native runtime cannot be loaded on
	// this platform.
	ErrUnsupported = errors.New("native: Objective-C runtime not available on this platform")

	// ErrReleased is the panic value used when a released wrapper is used.
	ErrReleased = errors.New("native: object already released or detached")
)

// Kind classifies a native object for pretty-printing. It is a best-effort
// classification, not a type system.
type Kind int

const (
	KindUnknown Kind = iota
	KindString
	KindError
	KindDictionary
	KindURL
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindError:
		return "error"
	case KindDictionary:
		return "dictionary"
	case KindURL:
		return "url"
	default:
		return "unknown"
	}
}

// Objects is the object lifecycle part of the runtime.
type Objects interface {
	// Retain adds a reference to h and returns it.
	Retain(h Handle) Handle
	// Release drops one reference to h.
	Release(h Handle)
	// ClassName returns the runtime class name of h.
	ClassName(h Handle) string
	// IsKind reports whether h is an instance of the class family k.
	IsKind(h Handle, k Kind) bool
}

// Strings converts between UTF-8 byte buffers and native strings.
type Strings interface {
	// NewString creates a string from exactly len(b) bytes, UTF-8 encoding.
	NewString(b []byte) Handle
	// UTF8Length returns the length of h in UTF-8 bytes.
	UTF8Length(h Handle) int
	// UTF8Bytes copies n bytes of the UTF-8 representation of h.
	UTF8Bytes(h Handle, n int) []byte
}

// URLs builds file URLs.
type URLs interface {
	// FileURL returns a file URL for the path string.
	FileURL(path Handle) Handle
	// URLPath returns the file-system path of url as a string.
	URLPath(url Handle) Handle
}

// Collections is the dictionary interchange.
type Collections interface {
	NewDictionary() Handle
	Count(dict Handle) int
	// KeyEnumerator returns a new cursor over the keys of dict. The order is
	// fixed when the enumerator is created.
	KeyEnumerator(dict Handle) Handle
	// NextObject advances the enumerator. It returns Nil at the end. The
	// result is borrowed.
	NextObject(enum Handle) Handle
	// ObjectForKey looks key up in dict. The result is borrowed.
	ObjectForKey(dict, key Handle) Handle
}

// Errors is the error interchange.
type Errors interface {
	ErrorCode(h Handle) int
	ErrorDomain(h Handle) Handle
	LocalizedDescription(h Handle) Handle
	UserInfo(h Handle) Handle
}

// Dispatch is the serial queue interchange.
type Dispatch interface {
	// NewQueue creates a serial queue. label must be NUL terminated and
	// must stay valid for the duration of the call.
	NewQueue(label []byte) Handle
	// DispatchAsync submits fn and returns once the submission is accepted.
	DispatchAsync(queue Handle, fn func())
	// DispatchSync runs fn on queue and blocks until it returns.
	DispatchSync(queue Handle, fn func())
}

// Limits are the configuration bounds reported by the framework.
type Limits struct {
	MinCPUCount   uint64
	MaxCPUCount   uint64
	MinMemorySize uint64
	MaxMemorySize uint64
}

// Virtualization is the Virtualization.framework interchange.
type Virtualization interface {
	// Supported reports whether the host can run virtual machines at all.
	Supported() bool
	Limits() Limits

	NewLinuxBootLoader(kernelURL Handle) Handle
	SetKernelURL(loader, url Handle)
	SetCommandLine(loader, cmdline Handle)
	SetInitialRamdiskURL(loader, url Handle)
	KernelURL(loader Handle) Handle
	CommandLine(loader Handle) Handle
	InitialRamdiskURL(loader Handle) Handle

	NewVirtualMachineConfiguration() Handle
	SetBootLoader(config, loader Handle)
	SetCPUCount(config Handle, n uint64)
	SetMemorySize(config Handle, size uint64)
	CPUCount(config Handle) uint64
	MemorySize(config Handle) uint64
	// ValidateConfiguration returns Nil when config is valid, otherwise an
	// owned error object.
	ValidateConfiguration(config Handle) Handle

	NewVirtualMachine(config, queue Handle) Handle
	// StartVirtualMachine must be called on the machine's queue. done is
	// called exactly once, on a runtime thread, with Nil on success or a
	// borrowed error object.
	StartVirtualMachine(vm Handle, done func(err Handle))
}

// Runtime is the full native boundary.
//
// Unless documented otherwise every Handle returned by a Runtime is owned by
// the caller (+1) and must be released exactly once.
type Runtime interface {
	Objects
	Strings
	URLs
	Collections
	Errors
	Dispatch
	Virtualization
}
