// Package cli provides the command-line interface for vzkit.
package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/javanstorm/vzkit/internal/config"
)

// app carries state shared by the commands of one invocation.
type app struct {
	configFile string
	debug      bool

	cfg *config.Loaded
	log *slog.Logger
}

// NewRootCmd builds the vzkit command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}
	rootCmd := &cobra.Command{
		Use:   "vzkit",
		Short: "vzkit - boot Linux guests through Virtualization.framework",
		Long: `vzkit builds a Linux boot loader and virtual machine configuration,
validates them against the framework limits and starts the machine on its
own dispatch queue.

Configuration comes from config.yaml, VZKIT_* environment variables and
flags, in increasing precedence.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelInfo
			if a.debug {
				level = slog.LevelDebug
			}
			a.log = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

			// Skip config loading for commands that don't need it
			switch cmd.Name() {
			case "version", "completion", "help":
				return nil
			}
			l, err := config.Load(a.configFile, cmd.Flags())
			if err != nil {
				return err
			}
			a.cfg = l
			a.log.Debug("configuration loaded", "file", l.File, "backend", l.Backend)
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.configFile, "config", "", "config file (default is ~/.vzkit/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&a.debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newRunCmd(a))
	rootCmd.AddCommand(newSupportedCmd(a))
	rootCmd.AddCommand(newStatusCmd(a))
	rootCmd.AddCommand(newConfigCmd(a))
	return rootCmd
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		return fmt.Errorf("command failed: %w", err)
	}
	return nil
}

// warn prints a non-fatal problem the way the other commands report them.
func warn(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.ErrOrStderr(), "Warning: "+format+"\n", args...)
}
