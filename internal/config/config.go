package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/javanstorm/vzkit/pkg/hypervisor"
)

// Config holds all vzkit configuration.
type Config struct {
	// CPUs is the number of virtual CPUs allocated to the VM.
	CPUs int `mapstructure:"cpus" yaml:"cpus"`

	// MemoryMB is the amount of RAM in megabytes allocated to the VM.
	MemoryMB int `mapstructure:"memory_mb" yaml:"memory_mb"`

	// Kernel is the path to the Linux kernel image.
	Kernel string `mapstructure:"kernel" yaml:"kernel"`

	// Initrd is the optional initial ramdisk.
	Initrd string `mapstructure:"initrd" yaml:"initrd"`

	// Cmdline is the kernel command line.
	Cmdline string `mapstructure:"cmdline" yaml:"cmdline"`

	// Backend selects the hypervisor driver (bridge, sim, codehex).
	Backend string `mapstructure:"backend" yaml:"backend"`

	// MetricsAddr is the listen address of the metrics server. Empty disables it.
	MetricsAddr string `mapstructure:"metrics_addr" yaml:"metrics_addr"`

	// DataDir holds bootstate.json.
	DataDir string `mapstructure:"data_dir" yaml:"data_dir"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	paths, err := GetPaths()
	if err != nil {
		paths = &Paths{DataDir: "/tmp/vzkit"}
	}

	return &Config{
		CPUs:     min(runtime.NumCPU(), 2),
		MemoryMB: 2048,
		Cmdline:  "console=hvc0",
		Backend:  hypervisor.DefaultBackend(),
		DataDir:  paths.DataDir,
	}
}

// Keys lists the configuration keys in file order.
var Keys = []string{
	"cpus", "memory_mb", "kernel", "initrd", "cmdline",
	"backend", "metrics_addr", "data_dir",
}

// Loaded is a configuration together with where it came from.
type Loaded struct {
	*Config

	// File is the config file that was read, empty if none was found.
	File string
}

// Load reads configuration from defaults, config.yaml, VZKIT_* environment
// variables and flags, in increasing precedence. file overrides the config
// file search. flags may be nil; a flag is bound when its name matches a key
// with underscores replaced by dashes.
func Load(file string, flags *pflag.FlagSet) (*Loaded, error) {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("cpus", defaults.CPUs)
	v.SetDefault("memory_mb", defaults.MemoryMB)
	v.SetDefault("kernel", defaults.Kernel)
	v.SetDefault("initrd", defaults.Initrd)
	v.SetDefault("cmdline", defaults.Cmdline)
	v.SetDefault("backend", defaults.Backend)
	v.SetDefault("metrics_addr", defaults.MetricsAddr)
	v.SetDefault("data_dir", defaults.DataDir)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		paths, err := GetPaths()
		if err != nil {
			return nil, fmt.Errorf("failed to determine paths: %w", err)
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(paths.DataDir)
		v.AddConfigPath(paths.ConfigDir)
	}

	// VZKIT_CPUS, VZKIT_MEMORY_MB, VZKIT_METRICS_ADDR, ...
	v.SetEnvPrefix("VZKIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for _, key := range Keys {
			if f := flags.Lookup(strings.ReplaceAll(key, "_", "-")); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", f.Name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &Loaded{Config: cfg, File: v.ConfigFileUsed()}, nil
}

// VMConfig converts the configuration into driver parameters.
func (c *Config) VMConfig() *hypervisor.VMConfig {
	return &hypervisor.VMConfig{
		CPUs:     c.CPUs,
		MemoryMB: c.MemoryMB,
		Kernel:   c.Kernel,
		Initrd:   c.Initrd,
		Cmdline:  c.Cmdline,
	}
}

// YAML renders the configuration as a config.yaml document.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
