package hypervisor

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/javanstorm/vzkit/pkg/native"
	"github.com/javanstorm/vzkit/pkg/native/objcrt"
	"github.com/javanstorm/vzkit/pkg/native/simrt"
	"github.com/javanstorm/vzkit/pkg/vz"
)

// bridgeDriver implements Driver on top of pkg/vz and any native runtime.
type bridgeDriver struct {
	mu   sync.Mutex
	name string
	rt   native.Runtime
	opts options
	vm   *vz.VirtualMachine
}

func newBridgeDriver(o options) (Driver, error) {
	rt, err := objcrt.Open()
	if err != nil {
		if errors.Is(err, native.ErrUnsupported) {
			return nil, fmt.Errorf("%w: %w", ErrUnsupportedPlatform, err)
		}
		return nil, err
	}
	return &bridgeDriver{name: BackendBridge, rt: rt, opts: o}, nil
}

func newSimDriver(o options) (Driver, error) {
	return &bridgeDriver{name: BackendSim, rt: simrt.New(o.sim...), opts: o}, nil
}

// Runtime exposes the native runtime of a bridge or sim driver.
func Runtime(d Driver) (native.Runtime, bool) {
	if b, ok := d.(*bridgeDriver); ok {
		return b.rt, true
	}
	return nil, false
}

func (d *bridgeDriver) Info() Info {
	return Info{
		Name:      d.name,
		Version:   driverVersion,
		Arch:      runtime.GOARCH,
		Supported: vz.Supported(d.rt),
	}
}

func (d *bridgeDriver) Capabilities() Capabilities {
	return Capabilities{
		Native:      d.name == BackendBridge,
		QueueLabels: true,
		Restart:     true,
	}
}

func (d *bridgeDriver) Validate(ctx context.Context, cfg *VMConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	c := d.configuration(cfg)
	defer c.Release()
	if err := c.Validate(); err != nil {
		return fmt.Errorf("%s: %w", d.name, err)
	}
	return nil
}

func (d *bridgeDriver) configuration(cfg *VMConfig) *vz.VirtualMachineConfiguration {
	bl := vz.NewLinuxBootLoader(d.rt, cfg.Kernel)
	if cfg.Cmdline != "" {
		bl = bl.WithCommandLine(cfg.Cmdline)
	}
	if cfg.Initrd != "" {
		bl = bl.WithInitialRamdiskPath(cfg.Initrd)
	}
	return vz.NewVirtualMachineConfiguration(d.rt).
		WithCPUCount(uint64(cfg.CPUs)).
		WithMemorySize(cfg.MemoryBytes()).
		WithBootLoader(bl.BootLoader())
}

func (d *bridgeDriver) Create(ctx context.Context, cfg *VMConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.vm != nil {
		return ErrAlreadyCreated
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	opts := []vz.Option{vz.WithLogger(d.opts.logger)}
	for _, fn := range d.opts.observers {
		opts = append(opts, vz.WithStartObserver(fn))
	}
	vm, err := vz.NewVirtualMachine(d.rt, d.configuration(cfg), opts...)
	if err != nil {
		return fmt.Errorf("%s: create VM: %w", d.name, err)
	}
	d.vm = vm
	return nil
}

// QueueLabel returns the dispatch queue label of the created machine.
func (d *bridgeDriver) QueueLabel() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.vm == nil {
		return ""
	}
	return d.vm.QueueLabel()
}

func (d *bridgeDriver) Start(ctx context.Context) (<-chan error, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.vm == nil {
		return nil, ErrNotCreated
	}
	done, err := d.vm.Start(ctx)
	if errors.Is(err, vz.ErrInvalidState) {
		return nil, fmt.Errorf("%w: %w", ErrAlreadyRunning, err)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: start VM: %w", d.name, err)
	}
	return done, nil
}

func (d *bridgeDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.vm == nil {
		return nil
	}
	err := d.vm.Close()
	d.vm = nil
	return err
}
