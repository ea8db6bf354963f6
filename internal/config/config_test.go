package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/javanstorm/vzkit/pkg/hypervisor"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg == nil {
		t.Fatal("DefaultConfig should not return nil")
	}
	if cfg.CPUs <= 0 || cfg.CPUs > 2 {
		t.Errorf("CPUs should be 1 or 2, got %d", cfg.CPUs)
	}
	if cfg.MemoryMB != 2048 {
		t.Errorf("MemoryMB should be 2048, got %d", cfg.MemoryMB)
	}
	if cfg.Cmdline != "console=hvc0" {
		t.Errorf("Cmdline should be 'console=hvc0', got %q", cfg.Cmdline)
	}
	if cfg.Backend != hypervisor.DefaultBackend() {
		t.Errorf("Backend should be %q, got %q", hypervisor.DefaultBackend(), cfg.Backend)
	}
	if cfg.MetricsAddr != "" {
		t.Errorf("metrics should be disabled by default, got %q", cfg.MetricsAddr)
	}
}

func TestGetPaths(t *testing.T) {
	paths, err := GetPaths()
	if err != nil {
		t.Fatalf("GetPaths failed: %v", err)
	}
	if paths.DataDir == "" || paths.ConfigDir == "" || paths.ConfigFile == "" {
		t.Errorf("incomplete paths: %+v", paths)
	}
	if !filepath.IsAbs(paths.DataDir) {
		t.Error("DataDir should be absolute path")
	}
	if filepath.Base(paths.DataDir) != ".vzkit" {
		t.Errorf("DataDir should end in .vzkit, got %q", paths.DataDir)
	}
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	p := &Paths{ConfigDir: filepath.Join(dir, "config"), DataDir: filepath.Join(dir, "data")}
	if err := p.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}
	for _, d := range []string{p.ConfigDir, p.DataDir} {
		if fi, err := os.Stat(d); err != nil || !fi.IsDir() {
			t.Errorf("%s was not created", d)
		}
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, "cpus: 4\nmemory_mb: 4096\nkernel: /a/vmlinuz\nbackend: sim\n")

	l, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if l.File != path {
		t.Errorf("File = %q, want %q", l.File, path)
	}
	if l.CPUs != 4 || l.MemoryMB != 4096 || l.Kernel != "/a/vmlinuz" || l.Backend != "sim" {
		t.Errorf("unexpected config: %+v", *l.Config)
	}
	if l.Cmdline != "console=hvc0" {
		t.Errorf("default cmdline lost: %q", l.Cmdline)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil); err == nil {
		t.Fatal("Load should fail for an explicit file that does not exist")
	}
}

func TestLoadPrecedence(t *testing.T) {
	path := writeConfig(t, "cpus: 4\nmemory_mb: 4096\ninitrd: /a/initrd.img\n")
	t.Setenv("VZKIT_MEMORY_MB", "1024")
	t.Setenv("VZKIT_METRICS_ADDR", "127.0.0.1:9200")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("cpus", 1, "")
	flags.String("kernel", "", "")
	if err := flags.Parse([]string{"--cpus=8"}); err != nil {
		t.Fatal(err)
	}

	l, err := Load(path, flags)
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name string
		got  any
		want any
	}{
		{"flag beats file", l.CPUs, 8},
		{"env beats file", l.MemoryMB, 1024},
		{"env only", l.MetricsAddr, "127.0.0.1:9200"},
		{"file only", l.Initrd, "/a/initrd.img"},
		{"unset flag keeps default", l.Kernel, ""},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestYAML(t *testing.T) {
	cfg := &Config{CPUs: 2, MemoryMB: 2048, Kernel: "/a/vmlinuz", Cmdline: "console=hvc0", Backend: "sim"}
	data, err := cfg.YAML()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "memory_mb: 2048") {
		t.Errorf("unexpected YAML:\n%s", data)
	}

	var back Config
	if err := yaml.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if back != *cfg {
		t.Errorf("YAML output does not load back: %+v", back)
	}
}

func TestVMConfig(t *testing.T) {
	cfg := &Config{CPUs: 2, MemoryMB: 2048, Kernel: "/a/vmlinuz", Initrd: "/a/initrd.img", Cmdline: "console=hvc0"}
	vc := cfg.VMConfig()
	if vc.CPUs != 2 || vc.MemoryBytes() != 2<<30 || vc.Kernel != cfg.Kernel || vc.Initrd != cfg.Initrd || vc.Cmdline != cfg.Cmdline {
		t.Errorf("VMConfig() = %+v", vc)
	}
}

func TestValidate(t *testing.T) {
	kernel := filepath.Join(t.TempDir(), "vmlinuz")
	if err := os.WriteFile(kernel, []byte("k"), 0644); err != nil {
		t.Fatal(err)
	}
	valid := Config{CPUs: 2, MemoryMB: 2048, Kernel: kernel, Backend: hypervisor.BackendSim}

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
		fatal  bool
	}{
		{"valid", func(*Config) {}, "", false},
		{"no cpus", func(c *Config) { c.CPUs = 0 }, "cpus", true},
		{"little memory", func(c *Config) { c.MemoryMB = 64 }, "memory_mb", true},
		{"no kernel", func(c *Config) { c.Kernel = "" }, "kernel", true},
		{"kernel missing on disk", func(c *Config) { c.Kernel = kernel + ".gone" }, "kernel", false},
		{"initrd missing on disk", func(c *Config) { c.Initrd = kernel + ".initrd" }, "initrd", false},
		{"unknown backend", func(c *Config) { c.Backend = "qemu" }, "backend", true},
		{"bad metrics addr", func(c *Config) { c.MetricsAddr = "9200" }, "metrics_addr", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			errs := cfg.Validate()
			if tt.field == "" {
				if len(errs) != 0 {
					t.Fatalf("unexpected errors: %v", errs)
				}
				return
			}
			if len(errs) != 1 || errs[0].Field != tt.field {
				t.Fatalf("errors = %v, want one for %s", errs, tt.field)
			}
			if HasFatal(errs) != tt.fatal {
				t.Errorf("HasFatal = %v, want %v", HasFatal(errs), tt.fatal)
			}
		})
	}
}

func TestFormatValidationErrors(t *testing.T) {
	if FormatValidationErrors(nil) != "" {
		t.Error("no errors should format as empty")
	}
	out := FormatValidationErrors([]ValidationError{
		{Field: "kernel", Message: "missing", Fatal: true},
		{Field: "initrd", Message: "not found"},
	})
	for _, want := range []string{"Error [kernel]: missing", "Warning [initrd]: not found"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
