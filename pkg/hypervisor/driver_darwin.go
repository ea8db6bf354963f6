//go:build darwin

package hypervisor

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/Code-Hex/vz/v3"

	vzkit "github.com/javanstorm/vzkit/pkg/vz"
)

func init() {
	factories[BackendCodeHex] = newCodeHexDriver
}

// codeHexDriver implements Driver using github.com/Code-Hex/vz, which wraps
// Virtualization.framework with cgo.
type codeHexDriver struct {
	mu    sync.Mutex
	opts  options
	vm    *vz.VirtualMachine
	vmCfg *vz.VirtualMachineConfiguration
	life  lifecycle
}

func newCodeHexDriver(o options) (Driver, error) {
	return &codeHexDriver{opts: o}, nil
}

func (d *codeHexDriver) Info() Info {
	return Info{
		Name:      BackendCodeHex,
		Version:   driverVersion,
		Arch:      runtime.GOARCH,
		Supported: ProbeHost().HypervisorSupport,
	}
}

func (d *codeHexDriver) Capabilities() Capabilities {
	return Capabilities{Native: true, Restart: true}
}

func (d *codeHexDriver) Validate(ctx context.Context, cfg *VMConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	vmCfg, err := d.configuration(cfg)
	if err != nil {
		return err
	}
	ok, err := vmCfg.Validate()
	return validationResult(BackendCodeHex, ok, err)
}

func (d *codeHexDriver) configuration(cfg *VMConfig) (*vz.VirtualMachineConfiguration, error) {
	opts := []vz.LinuxBootLoaderOption{vz.WithCommandLine(cfg.Cmdline)}
	if cfg.Initrd != "" {
		opts = append(opts, vz.WithInitrd(cfg.Initrd))
	}
	bootLoader, err := vz.NewLinuxBootLoader(cfg.Kernel, opts...)
	if err != nil {
		return nil, fmt.Errorf("codehex: create boot loader: %w", err)
	}

	vmCfg, err := vz.NewVirtualMachineConfiguration(bootLoader, uint(cfg.CPUs), cfg.MemoryBytes())
	if err != nil {
		return nil, fmt.Errorf("codehex: create VM config: %w", err)
	}

	platform, err := vz.NewGenericPlatformConfiguration()
	if err != nil {
		return nil, fmt.Errorf("codehex: create platform config: %w", err)
	}
	vmCfg.SetPlatformVirtualMachineConfiguration(platform)
	return vmCfg, nil
}

func (d *codeHexDriver) Create(ctx context.Context, cfg *VMConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.life.state != stateNew {
		return ErrAlreadyCreated
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	vmCfg, err := d.configuration(cfg)
	if err != nil {
		return err
	}
	ok, err := vmCfg.Validate()
	if err := validationResult(BackendCodeHex, ok, err); err != nil {
		return err
	}

	vm, err := vz.NewVirtualMachine(vmCfg)
	if err != nil {
		return fmt.Errorf("codehex: create VM: %w", err)
	}

	d.vmCfg = vmCfg
	d.vm = vm
	return d.life.create()
}

// Start runs the blocking vz start on its own goroutine so the caller only
// waits for the submission.
func (d *codeHexDriver) Start(ctx context.Context) (<-chan error, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	gen, err := d.life.begin()
	if err != nil {
		return nil, err
	}

	vm := d.vm
	begin := time.Now()
	errCh := make(chan error, 1)
	go func() {
		d.opts.notify(vzkit.StartEvent{Phase: vzkit.PhaseSubmitted, Elapsed: time.Since(begin)})
		err := vm.Start()
		if err != nil {
			err = fmt.Errorf("codehex: start VM: %w", err)
		}

		d.mu.Lock()
		current := d.life.finish(gen, err)
		d.mu.Unlock()
		switch {
		case !current:
			d.opts.logger.Warn("start completed after close", "backend", BackendCodeHex, "error", err)
		case err != nil:
			d.opts.logger.Error("virtual machine failed to start", "backend", BackendCodeHex, "error", err)
		default:
			d.opts.logger.Info("virtual machine started", "backend", BackendCodeHex)
		}

		d.opts.notify(vzkit.StartEvent{Phase: vzkit.PhaseCompleted, Elapsed: time.Since(begin), Err: err})
		errCh <- err
		close(errCh)
	}()
	return errCh, nil
}

func (d *codeHexDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.vm = nil
	d.vmCfg = nil
	d.life.reset()
	return nil
}
