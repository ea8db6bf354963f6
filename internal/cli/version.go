package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/javanstorm/vzkit/internal/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  "Print the version, commit hash, and build date of vzkit.",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "vzkit %s\n", version.Version)
			fmt.Fprintf(out, "  Commit:     %s\n", version.Commit)
			fmt.Fprintf(out, "  Build Date: %s\n", version.BuildDate)
		},
	}
}
