// Package cli exposes the research agent as the loki command.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const Version = "v0.2.0"

// Options holds flags shared by every command.
type Options struct {
	ConfigPath string
	Debug      bool
}

// environment opens the App on demand so commands like init and version run
// without a database or provider.
type environment struct {
	opts  *Options
	build func(ctx context.Context, configPath string, debug bool) (*App, error)
}

func (e *environment) withApp(cmd *cobra.Command, fn func(app *App) error) error {
	app, err := e.build(cmd.Context(), e.opts.ConfigPath, e.opts.Debug)
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(app)
}

// NewRootCmd wires the cobra root command.
func NewRootCmd() *cobra.Command {
	return newRootCmd(buildApp)
}

func newRootCmd(build func(ctx context.Context, configPath string, debug bool) (*App, error)) *cobra.Command {
	opts := &Options{}
	env := &environment{opts: opts, build: build}

	root := &cobra.Command{
		Use:           "loki",
		Short:         "loki - conversational geospatial research agent",
		Long:          "loki answers data questions by letting a model plan with tools, then running the code it writes.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "Settings file (default ~/.config/loki/settings.toml)")
	root.PersistentFlags().BoolVar(&opts.Debug, "debug", false, "Enable debug logging")

	root.AddCommand(
		newInitCommand(opts),
		newVersionCommand(),
		newChatCommand(env),
		newResearchCommand(env),
		newHistoryCommand(env),
		newProfileCommand(env),
		newScheduleCommand(env),
		newServeCommand(env),
		newModelsCommand(env),
	)
	return root
}

// Execute runs the root command and reports a failure on stderr.
func Execute(ctx context.Context) int {
	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "loki", Version)
		},
	}
}
