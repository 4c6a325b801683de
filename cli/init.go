package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/akolk/loki-nexus2/config"
)

func newInitCommand(opts *Options) *cobra.Command {
	var resolved bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default settings file",
		Long: "init writes the commented settings template. With --resolved it writes the " +
			"effective settings instead, after .env and LOKI_* overrides are applied.",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.ConfigPath
			if path == "" {
				path = config.GetSettingsFilePath()
			}
			if config.FileExists(path) {
				fmt.Fprintf(cmd.OutOrStdout(), "Settings already exist at %s\n", path)
				return nil
			}

			if resolved {
				cfg, err := config.Load(path)
				if err != nil {
					return err
				}
				if err := config.Save(cfg, path); err != nil {
					return err
				}
			} else if _, err := config.CreateDefaultConfig(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote default settings to %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&resolved, "resolved", false, "Write the effective settings rather than the template")
	return cmd
}
