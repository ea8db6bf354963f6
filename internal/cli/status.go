package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/javanstorm/vzkit/internal/bootstate"
	"github.com/javanstorm/vzkit/pkg/hypervisor"
)

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show host, backend and start history",
		Long:  `Display host virtualization support, the configured backend and the outcome of the last start.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, a)
		},
	}
}

func runStatus(cmd *cobra.Command, a *app) error {
	cfg := a.cfg
	host := hypervisor.ProbeHost()

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.Header("Property", "Value")
	table.Append([]string{"Host", host.OS + "/" + host.Arch})
	table.Append([]string{"Host CPUs", strconv.Itoa(host.CPUs)})
	if host.MemoryBytes > 0 {
		table.Append([]string{"Host memory", formatBytes(host.MemoryBytes)})
	}
	table.Append([]string{"Hardware virtualization", formatBool(host.HypervisorSupport)})

	d, err := hypervisor.New(cfg.Backend, hypervisor.WithLogger(a.log))
	if err != nil {
		table.Append([]string{"Backend", fmt.Sprintf("%s (unavailable: %v)", cfg.Backend, err)})
	} else {
		info := d.Info()
		table.Append([]string{"Backend", fmt.Sprintf("%s v%s", info.Name, info.Version)})
		table.Append([]string{"Backend supported", formatBool(info.Supported)})
		d.Close()
	}

	configFile := cfg.File
	if configFile == "" {
		configFile = "none"
	}
	table.Append([]string{"Config file", configFile})

	state := bootstate.Open(cfg.DataDir)
	rec, err := state.Load()
	switch {
	case err != nil:
		table.Append([]string{"State", fmt.Sprintf("error loading (%v)", err)})
	case rec.StartCount == 0:
		table.Append([]string{"State", "never started"})
	default:
		table.Append([]string{"Start count", strconv.Itoa(rec.StartCount)})
		table.Append([]string{"Failures", strconv.Itoa(rec.FailureCount)})
		table.Append([]string{"Last start", rec.LastStart.Format(time.DateTime)})
		table.Append([]string{"Last backend", rec.Backend})
		if rec.QueueLabel != "" {
			table.Append([]string{"Last queue", rec.QueueLabel})
		}
		table.Append([]string{"Last outcome", string(rec.LastOutcome)})
		if rec.LastOutcome == bootstate.OutcomeFailed {
			table.Append([]string{"Last error", fmt.Sprintf("%s code %d", rec.LastErrorDomain, rec.LastErrorCode)})
		}
	}
	if err := table.Render(); err != nil {
		return err
	}

	if rec != nil && rec.LastOutcome == bootstate.OutcomeFailed && rec.LastError != "" {
		fmt.Fprintln(cmd.OutOrStdout())
		fmt.Fprintln(cmd.OutOrStdout(), strings.TrimRight(rec.LastError, "\n"))
	}
	return nil
}
