package config

import (
	"fmt"
	"net"
	"os"
	"slices"
	"strings"

	"github.com/javanstorm/vzkit/pkg/hypervisor"
)

// ValidationError represents a configuration issue.
type ValidationError struct {
	Field   string
	Message string
	Fatal   bool // true = can't proceed, false = warning only
}

// Validate checks the configuration before a driver is created. Framework
// limits are checked later by the driver itself.
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError
	fatal := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...), Fatal: true})
	}

	if c.CPUs < 1 {
		fatal("cpus", "must be at least 1, got %d", c.CPUs)
	}
	if c.MemoryMB < 128 {
		fatal("memory_mb", "must be at least 128, got %d", c.MemoryMB)
	}
	if c.Kernel == "" {
		fatal("kernel", "no kernel image configured (set --kernel or VZKIT_KERNEL)")
	} else if _, err := os.Stat(c.Kernel); err != nil {
		// The framework reports this on start; warn early.
		errs = append(errs, ValidationError{Field: "kernel", Message: err.Error()})
	}
	if c.Initrd != "" {
		if _, err := os.Stat(c.Initrd); err != nil {
			errs = append(errs, ValidationError{Field: "initrd", Message: err.Error()})
		}
	}
	if backends := hypervisor.Backends(); !slices.Contains(backends, c.Backend) {
		fatal("backend", "unknown backend %q (available: %s)", c.Backend, strings.Join(backends, ", "))
	}
	if c.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(c.MetricsAddr); err != nil {
			fatal("metrics_addr", "%v", err)
		}
	}
	return errs
}

// HasFatal reports whether any error prevents a start.
func HasFatal(errs []ValidationError) bool {
	return slices.ContainsFunc(errs, func(e ValidationError) bool { return e.Fatal })
}

// FormatValidationErrors returns human-readable error summary.
func FormatValidationErrors(errors []ValidationError) string {
	if len(errors) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Configuration warnings:\n")
	for _, e := range errors {
		prefix := "Warning"
		if e.Fatal {
			prefix = "Error"
		}
		fmt.Fprintf(&b, "  %s [%s]: %s\n", prefix, e.Field, e.Message)
	}
	return b.String()
}
