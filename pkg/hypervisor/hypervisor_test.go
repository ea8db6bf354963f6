package hypervisor

import (
	"context"
	"errors"
	"runtime"
	"slices"
	"testing"
	"time"

	"github.com/javanstorm/vzkit/internal/testutil"
	"github.com/javanstorm/vzkit/pkg/native"
	"github.com/javanstorm/vzkit/pkg/native/simrt"
	"github.com/javanstorm/vzkit/pkg/vz"
)

func TestVMConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  VMConfig
		want error
	}{
		{"valid", VMConfig{CPUs: 2, MemoryMB: 2048, Kernel: "/a/vmlinuz"}, nil},
		{"no cpus", VMConfig{CPUs: 0, MemoryMB: 2048, Kernel: "/a/vmlinuz"}, ErrInvalidCPUCount},
		{"little memory", VMConfig{CPUs: 1, MemoryMB: 64, Kernel: "/a/vmlinuz"}, ErrInsufficientMemory},
		{"no kernel", VMConfig{CPUs: 1, MemoryMB: 512}, ErrMissingKernel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestMemoryBytes(t *testing.T) {
	cfg := VMConfig{MemoryMB: 2048}
	if got := cfg.MemoryBytes(); got != 2<<30 {
		t.Errorf("MemoryBytes() = %d", got)
	}
}

func TestBackends(t *testing.T) {
	names := Backends()
	for _, want := range []string{BackendBridge, BackendSim} {
		if !slices.Contains(names, want) {
			t.Errorf("Backends() = %v, missing %q", names, want)
		}
	}
	if runtime.GOOS == "darwin" && !slices.Contains(names, BackendCodeHex) {
		t.Errorf("Backends() = %v, missing %q on darwin", names, BackendCodeHex)
	}
	if !slices.IsSorted(names) {
		t.Errorf("Backends() not sorted: %v", names)
	}
}

func TestUnknownBackend(t *testing.T) {
	if _, err := New("qemu"); !errors.Is(err, ErrUnknownBackend) {
		t.Fatalf("New(qemu) = %v, want ErrUnknownBackend", err)
	}
}

func TestBridgeUnavailableOffDarwin(t *testing.T) {
	if runtime.GOOS == "darwin" {
		t.Skip("bridge is available on darwin")
	}
	if _, err := New(BackendBridge); !errors.Is(err, ErrUnsupportedPlatform) {
		t.Fatalf("New(bridge) = %v, want ErrUnsupportedPlatform", err)
	}
}

func TestSimLifecycle(t *testing.T) {
	var events []vz.StartEvent
	d, err := New(BackendSim, WithStartObserver(func(ev vz.StartEvent) {
		if ev.Phase == vz.PhaseCompleted {
			events = append(events, ev)
		}
	}))
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	info := d.Info()
	if info.Name != BackendSim || !info.Supported {
		t.Errorf("Info() = %+v", info)
	}
	if d.Capabilities().Native {
		t.Error("sim backend claims to be native")
	}

	ctx := context.Background()
	if _, err := d.Start(ctx); !errors.Is(err, ErrNotCreated) {
		t.Fatalf("Start() before Create = %v", err)
	}

	kernel, initrd := testutil.BootImages(t)
	cfg := &VMConfig{CPUs: 2, MemoryMB: 2048, Kernel: kernel, Initrd: initrd, Cmdline: "console=hvc0"}
	if err := d.Validate(ctx, cfg); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
	if err := d.Create(ctx, cfg); err != nil {
		t.Fatalf("Create() = %v", err)
	}
	if err := d.Create(ctx, cfg); !errors.Is(err, ErrAlreadyCreated) {
		t.Fatalf("second Create() = %v", err)
	}

	if ql, ok := d.(QueueLabeler); !ok || ql.QueueLabel() == "" {
		t.Error("sim driver should expose its queue label")
	}

	done, err := d.Start(ctx)
	if err != nil {
		t.Fatalf("Start() = %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("boot outcome = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no boot outcome")
	}
	if _, err := d.Start(ctx); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("Start() after success = %v", err)
	}
	// The observer ran before the outcome was sent.
	if len(events) != 1 {
		t.Errorf("completion events = %d", len(events))
	}
}

func TestSimValidateAppliesLimits(t *testing.T) {
	d, err := New(BackendSim, WithSimOptions(simrt.WithLimits(native.Limits{
		MinCPUCount:   1,
		MaxCPUCount:   4,
		MinMemorySize: 128 << 20,
		MaxMemorySize: 64 << 30,
	})))
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	cfg := &VMConfig{CPUs: 8, MemoryMB: 2048, Kernel: "/a/vmlinuz"}
	if err := d.Validate(context.Background(), cfg); err == nil {
		t.Fatal("Validate() accepted more CPUs than the framework allows")
	}
	if err := d.Create(context.Background(), cfg); err == nil {
		t.Fatal("Create() accepted more CPUs than the framework allows")
	}
}

func TestSimStartFailure(t *testing.T) {
	d, err := New(BackendSim, WithSimOptions(simrt.WithSupported(false)))
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()
	if d.Info().Supported {
		t.Error("Info().Supported = true on an unsupported host")
	}

	ctx := context.Background()
	if err := d.Create(ctx, &VMConfig{CPUs: 2, MemoryMB: 2048, Kernel: "/a/vmlinuz"}); err != nil {
		t.Fatal(err)
	}
	done, err := d.Start(ctx)
	if err != nil {
		t.Fatalf("Start() should still submit: %v", err)
	}
	var se *vz.StartError
	if err := <-done; !errors.As(err, &se) {
		t.Fatalf("outcome = %v, want *vz.StartError", err)
	}
}

func TestRuntimeAccessor(t *testing.T) {
	d, err := New(BackendSim)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()
	rt, ok := Runtime(d)
	if !ok || rt == nil {
		t.Fatal("Runtime() should expose the sim runtime")
	}
	if _, ok := rt.(*simrt.Runtime); !ok {
		t.Errorf("runtime is %T", rt)
	}
}

func TestProbeHost(t *testing.T) {
	h := ProbeHost()
	if h.OS != runtime.GOOS || h.Arch != runtime.GOARCH {
		t.Errorf("ProbeHost() = %+v", h)
	}
	if h.CPUs < 1 {
		t.Errorf("CPUs = %d", h.CPUs)
	}
	if again := ProbeHost(); again.HypervisorSupport != h.HypervisorSupport {
		t.Error("HypervisorSupport changed between calls")
	}
}
