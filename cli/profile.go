package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newProfileCommand(env *environment) *cobra.Command {
	profileCmd := &cobra.Command{
		Use:   "profile",
		Short: "Show or change how the agent addresses a user",
	}
	profileCmd.AddCommand(newProfileShowCommand(env), newProfileSetCommand(env))
	return profileCmd
}

func newProfileShowCommand(env *environment) *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the stored profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			return env.withApp(cmd, func(app *App) error {
				u, err := app.Store.EnsureUser(cmd.Context(), user)
				if err != nil {
					return err
				}
				data, err := json.MarshalIndent(u.Profile, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n%s\n", u.Username, u.ID, data)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&user, "user", defaultUser, "Username")
	return cmd
}

func newProfileSetCommand(env *environment) *cobra.Command {
	var (
		user  string
		style string
		prefs map[string]string
	)

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Update the communication style or preferences",
		RunE: func(cmd *cobra.Command, args []string) error {
			if style == "" && len(prefs) == 0 {
				return fmt.Errorf("nothing to change: pass --style or --pref")
			}
			return env.withApp(cmd, func(app *App) error {
				u, err := app.Store.EnsureUser(cmd.Context(), user)
				if err != nil {
					return err
				}
				p := u.Profile
				if style != "" {
					p.Style = style
				}
				for k, v := range prefs {
					p.Preferences[k] = v
				}
				if err := app.Store.UpdateProfile(cmd.Context(), u.ID, p); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Profile of %s updated.\n", u.Username)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&user, "user", defaultUser, "Username")
	cmd.Flags().StringVar(&style, "style", "", "Communication style, e.g. concise or detailed")
	cmd.Flags().StringToStringVar(&prefs, "pref", nil, "Preference as key=value (repeatable)")
	return cmd
}
