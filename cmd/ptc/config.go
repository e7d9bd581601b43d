// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ptcrun/ptc/internal/config"
)

// newConfigCommand creates the `ptc config` command tree.
func newConfigCommand(root *rootOptions) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect ptc configuration",
		Long: `Inspect ptc configuration.

Configuration is read from config.cue, or config.toml when no CUE file
exists, in:
  - Linux/macOS: $XDG_CONFIG_HOME/ptc (default ~/.config/ptc)
  - Windows: %APPDATA%\ptc

Every key can be overridden from the environment with a PTC_ prefix,
e.g. PTC_PROCESS_RUNTIME=virtual or PTC_LOG_LEVEL=debug.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as CUE",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(cmd, root)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), config.GenerateCUE(cfg))
			return err
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return showConfigPath(cmd, root)
		},
	})

	return cfgCmd
}

func showConfigPath(cmd *cobra.Command, root *rootOptions) error {
	path, exists, err := config.FilePath(config.LoadOptions{ConfigFilePath: root.cfgFile})
	if err != nil {
		return fmt.Errorf("failed to resolve config path: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	if !exists {
		fmt.Fprintln(cmd.ErrOrStderr(), SubtitleStyle.Render("(file does not exist, using defaults)"))
	}
	return nil
}
