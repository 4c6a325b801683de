package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newModelsCommand(env *environment) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List models offered by the configured provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			return env.withApp(cmd, func(app *App) error {
				if err := app.Provider.Ping(cmd.Context()); err != nil {
					return fmt.Errorf("provider unreachable: %w", err)
				}
				models, err := app.Provider.ListModels(cmd.Context())
				if err != nil {
					return err
				}
				current := app.Provider.GetModel()
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				for _, m := range models {
					marker := " "
					if m.Name == current {
						marker = "*"
					}
					fmt.Fprintf(tw, "%s %s\t%s\n", marker, m.Name, m.Provider)
				}
				return tw.Flush()
			})
		},
	}
}
