package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/javanstorm/vzkit/pkg/hypervisor"
	"github.com/javanstorm/vzkit/pkg/vz"
)

// ErrNotSupported is returned by `supported --check` on hosts that cannot
// run virtual machines.
var ErrNotSupported = errors.New("virtualization is not supported on this host")

func newSupportedCmd(a *app) *cobra.Command {
	var check bool
	cmd := &cobra.Command{
		Use:   "supported",
		Short: "Report whether this host can run virtual machines",
		Long: `Ask the configured backend whether the host supports virtualization
and print the CPU and memory limits the framework accepts.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := hypervisor.New(a.cfg.Backend, hypervisor.WithLogger(a.log))
			if err != nil {
				return fmt.Errorf("create driver: %w", err)
			}
			defer d.Close()

			out := cmd.OutOrStdout()
			info := d.Info()
			fmt.Fprintf(out, "Backend: %s v%s (%s)\n", info.Name, info.Version, info.Arch)
			fmt.Fprintf(out, "Supported: %s\n", formatBool(info.Supported))

			if rt, ok := hypervisor.Runtime(d); ok {
				fmt.Fprintf(out, "CPU count: %d - %d\n", vz.MinimumAllowedCPUCount(rt), vz.MaximumAllowedCPUCount(rt))
				fmt.Fprintf(out, "Memory size: %s - %s\n",
					formatBytes(vz.MinimumAllowedMemorySize(rt)), formatBytes(vz.MaximumAllowedMemorySize(rt)))
			}

			if check && !info.Supported {
				return ErrNotSupported
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "exit with an error when unsupported")
	cmd.Flags().String("backend", "", "hypervisor backend (bridge, sim, codehex)")
	return cmd
}

func formatBool(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func formatBytes(n uint64) string {
	switch {
	case n >= 1<<30 && n%(1<<30) == 0:
		return fmt.Sprintf("%d GiB", n>>30)
	case n >= 1<<20:
		return fmt.Sprintf("%d MiB", n>>20)
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}
