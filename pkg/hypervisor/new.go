package hypervisor

import (
	"fmt"
	"log/slog"
	"runtime"
	"slices"

	"github.com/javanstorm/vzkit/pkg/native/simrt"
	"github.com/javanstorm/vzkit/pkg/vz"
)

// Backend names.
const (
	BackendBridge  = "bridge"
	BackendSim     = "sim"
	BackendCodeHex = "codehex"
)

const driverVersion = "1.0.0"

type options struct {
	logger    *slog.Logger
	observers []func(vz.StartEvent)
	sim       []simrt.Option
}

// Option configures a driver.
type Option func(*options)

// WithLogger sets the logger passed down to the machine.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithStartObserver registers fn for start events of the created machine.
// Every backend reports PhaseSubmitted before PhaseCompleted.
func WithStartObserver(fn func(vz.StartEvent)) Option {
	return func(o *options) { o.observers = append(o.observers, fn) }
}

func (o options) notify(ev vz.StartEvent) {
	for _, fn := range o.observers {
		fn(ev)
	}
}

// WithSimOptions configures the runtime behind the sim backend.
func WithSimOptions(opts ...simrt.Option) Option {
	return func(o *options) { o.sim = append(o.sim, opts...) }
}

type factory func(options) (Driver, error)

var factories = map[string]factory{
	BackendBridge: newBridgeDriver,
	BackendSim:    newSimDriver,
}

// Backends lists the backends available on this platform.
func Backends() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// DefaultBackend is the backend used when none is configured.
func DefaultBackend() string {
	if SupportedPlatform() {
		return BackendBridge
	}
	return BackendSim
}

// SupportedPlatform returns true if the current platform can run a real
// virtual machine.
func SupportedPlatform() bool {
	return runtime.GOOS == "darwin"
}

// New creates a driver for the named backend. An empty name selects
// DefaultBackend.
func New(backend string, opts ...Option) (Driver, error) {
	if backend == "" {
		backend = DefaultBackend()
	}
	f, ok := factories[backend]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrUnknownBackend, backend, Backends())
	}
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return f(o)
}
