package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/javanstorm/vzkit/internal/config"
)

func newConfigCmd(a *app) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}
	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		Long: `Print the configuration after defaults, config.yaml and VZKIT_*
environment variables are applied. The output is a valid config.yaml.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := a.cfg.YAML()
			if err != nil {
				return fmt.Errorf("render config: %w", err)
			}
			out := cmd.OutOrStdout()
			if a.cfg.File != "" {
				fmt.Fprintf(out, "# %s\n", a.cfg.File)
			} else {
				fmt.Fprintln(out, "# no config file found, showing defaults and environment")
			}
			_, err = out.Write(data)
			return err
		},
	})
	configCmd.AddCommand(newConfigInitCmd(a))
	return configCmd
}

func newConfigInitCmd(a *app) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the effective configuration to config.yaml",
		Long: `Create the vzkit directories and write the effective configuration to
~/.vzkit/config.yaml (or the --config path). An existing file is kept
unless --force is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := config.GetPaths()
			if err != nil {
				return fmt.Errorf("failed to determine paths: %w", err)
			}
			if err := paths.EnsureDirectories(); err != nil {
				return fmt.Errorf("create directories: %w", err)
			}
			target := paths.ConfigFile
			if a.configFile != "" {
				target = a.configFile
			}

			if _, err := os.Stat(target); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", target)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}

			data, err := a.cfg.YAML()
			if err != nil {
				return fmt.Errorf("render config: %w", err)
			}
			if err := os.WriteFile(target, data, 0644); err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", target)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}
