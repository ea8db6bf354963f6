package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/javanstorm/vzkit/internal/bootstate"
	"github.com/javanstorm/vzkit/internal/config"
	"github.com/javanstorm/vzkit/internal/metrics"
	"github.com/javanstorm/vzkit/internal/timing"
	"github.com/javanstorm/vzkit/internal/version"
	"github.com/javanstorm/vzkit/pkg/foundation"
	"github.com/javanstorm/vzkit/pkg/hypervisor"
	"github.com/javanstorm/vzkit/pkg/vz"
)

type runOptions struct {
	wait    bool
	detach  bool
	timeout time.Duration
	timing  bool
}

func newRunCmd(a *app) *cobra.Command {
	var o runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a Linux virtual machine",
		Long: `Build the boot loader and machine configuration, validate them and
start the machine on its dispatch queue.

Start returns as soon as the request is queued. With --wait (the default)
vzkit then waits for the completion handler and reports its outcome. After
a successful start the machine keeps running until vzkit receives SIGINT or
SIGTERM, unless --detach is given.

Set VZKIT_TIMING=1 or pass --timing to print a phase breakdown.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runRun(ctx, cmd, a, o)
		},
	}

	f := cmd.Flags()
	f.Int("cpus", 0, "number of virtual CPUs")
	f.Int("memory-mb", 0, "memory size in MB")
	f.String("kernel", "", "path to the Linux kernel image")
	f.String("initrd", "", "path to the initial ramdisk")
	f.String("cmdline", "", "kernel command line")
	f.String("backend", "", "hypervisor backend (bridge, sim, codehex)")
	f.String("metrics-addr", "", "serve Prometheus metrics on this address")
	f.String("data-dir", "", "directory for the boot state file")
	f.BoolVar(&o.wait, "wait", true, "wait for the completion handler")
	f.BoolVar(&o.detach, "detach", false, "exit after the start completes instead of holding the machine")
	f.DurationVar(&o.timeout, "timeout", 30*time.Second, "how long to wait for the completion handler")
	f.BoolVar(&o.timing, "timing", os.Getenv("VZKIT_TIMING") == "1", "print a timing report")
	return cmd
}

func runRun(ctx context.Context, cmd *cobra.Command, a *app, o runOptions) error {
	timer := timing.New()
	cfg := a.cfg.Config
	out := cmd.OutOrStdout()
	if o.timing {
		defer timer.Report(cmd.ErrOrStderr())
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		fmt.Fprint(cmd.ErrOrStderr(), config.FormatValidationErrors(errs))
		if config.HasFatal(errs) {
			return errors.New("invalid configuration")
		}
	}
	timer.Mark("config")

	recorder := metrics.NewRecorder(version.Version)
	if cfg.MetricsAddr != "" {
		srv, err := metrics.Listen(cfg.MetricsAddr, recorder, a.log)
		if err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.log.Error("metrics server shutdown", "error", err)
			}
		}()
		fmt.Fprintf(out, "Metrics: http://%s/metrics\n", srv.Addr())
	}

	state := bootstate.Open(cfg.DataDir)
	backend := cfg.Backend
	submitted := make(chan struct{})
	record := func(ev vz.StartEvent) {
		switch ev.Phase {
		case vz.PhaseSubmitted:
			timer.Mark("submit")
			if err := state.RecordSubmitted(backend, ev.QueueLabel); err != nil {
				warn(cmd, "could not record start: %v", err)
			}
			close(submitted)
		case vz.PhaseCompleted:
			timer.Mark("boot")
			if err := state.RecordCompletion(failureOf(ev.Err)); err != nil {
				warn(cmd, "could not record completion: %v", err)
			}
		}
	}

	d, err := hypervisor.New(cfg.Backend,
		hypervisor.WithLogger(a.log),
		hypervisor.WithStartObserver(recorder.Observe),
		hypervisor.WithStartObserver(record),
	)
	if err != nil {
		return fmt.Errorf("create driver: %w", err)
	}
	defer d.Close()

	info := d.Info()
	backend = info.Name
	fmt.Fprintf(out, "Hypervisor: %s v%s (%s)\n", info.Name, info.Version, info.Arch)
	if !info.Supported {
		warn(cmd, "virtualization is not supported on this host; the start will fail")
	}

	vmCfg := cfg.VMConfig()
	if err := d.Validate(ctx, vmCfg); err != nil {
		return fmt.Errorf("validate: %w", err)
	}
	timer.Mark("validate")

	if err := d.Create(ctx, vmCfg); err != nil {
		return fmt.Errorf("create VM: %w", err)
	}
	timer.Mark("create")

	done, err := d.Start(ctx)
	if err != nil {
		return fmt.Errorf("start VM: %w", err)
	}
	select {
	case <-submitted:
	case <-ctx.Done():
		return ctx.Err()
	}
	fmt.Fprintf(out, "Start submitted (%d CPUs, %d MB)\n", vmCfg.CPUs, vmCfg.MemoryMB)
	if ql, ok := d.(hypervisor.QueueLabeler); ok {
		fmt.Fprintf(out, "Queue: %s\n", ql.QueueLabel())
	}

	if !o.wait {
		return nil
	}

	var startErr error
	select {
	case startErr = <-done:
	case <-time.After(o.timeout):
		return fmt.Errorf("no completion after %s", o.timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
	if startErr != nil {
		var ne *foundation.NativeError
		if errors.As(startErr, &ne) {
			fmt.Fprintln(cmd.ErrOrStderr(), ne.Rendered)
		}
		return startErr
	}
	fmt.Fprintln(out, "VM started")

	if o.detach {
		return nil
	}
	fmt.Fprintln(out, "Press Ctrl-C to stop")
	<-ctx.Done()
	return nil
}

// failureOf converts a completion outcome for the boot state file.
func failureOf(err error) *bootstate.Failure {
	if err == nil {
		return nil
	}
	var ne *foundation.NativeError
	if errors.As(err, &ne) {
		return &bootstate.Failure{Domain: ne.Domain, Code: ne.Code, Text: ne.Rendered}
	}
	return &bootstate.Failure{Text: err.Error()}
}
