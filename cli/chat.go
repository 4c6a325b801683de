package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/akolk/loki-nexus2/agent"
	"github.com/akolk/loki-nexus2/evaluator"
	"github.com/akolk/loki-nexus2/mcp"
)

const defaultUser = "local"

// runFlags are the per-run tool sources shared by chat and research.
type runFlags struct {
	user         string
	mcpURL       string
	mcpTransport string
	skillsPath   string
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.user, "user", defaultUser, "Username the conversation belongs to")
	cmd.Flags().StringVar(&f.mcpURL, "mcp-url", "", "Remote toolset address (URL, or a command line for stream-socket)")
	cmd.Flags().StringVar(&f.mcpTransport, "mcp-transport", string(mcp.TransportStreamableHTTP),
		"Remote toolset transport: event-stream, streamable-http or stream-socket")
	cmd.Flags().StringVar(&f.skillsPath, "skills", "", "Zip archive of skills to offer the model")
}

func (f *runFlags) endpoint() (*mcp.Endpoint, error) {
	if f.mcpURL == "" {
		return nil, nil
	}
	t := mcp.Transport(f.mcpTransport)
	switch t {
	case mcp.TransportEventStream, mcp.TransportStreamableHTTP, mcp.TransportStreamSocket:
	default:
		return nil, fmt.Errorf("unknown transport %q", f.mcpTransport)
	}
	return &mcp.Endpoint{Address: f.mcpURL, Transport: t}, nil
}

func (f *runFlags) skillArchive() ([]byte, error) {
	if f.skillsPath == "" {
		return nil, nil
	}
	data, err := os.ReadFile(f.skillsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read skills archive: %w", err)
	}
	return data, nil
}

func newChatCommand(env *environment) *cobra.Command {
	var (
		flags    runFlags
		viewport string
	)

	cmd := &cobra.Command{
		Use:   "chat [question]",
		Short: "Ask a question and run the code the agent writes for it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ep, err := flags.endpoint()
			if err != nil {
				return err
			}
			archive, err := flags.skillArchive()
			if err != nil {
				return err
			}
			return env.withApp(cmd, func(app *App) error {
				res, err := app.Orchestrator.Chat(cmd.Context(), agent.ChatRequest{
					Username:     flags.user,
					Query:        strings.Join(args, " "),
					Viewport:     viewport,
					Endpoint:     ep,
					SkillArchive: archive,
				})
				if err != nil {
					return err
				}
				printResult(cmd.OutOrStdout(), res)
				return nil
			})
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&viewport, "viewport", "", "Map viewport appended to the question, e.g. a bbox")
	return cmd
}

func newResearchCommand(env *environment) *cobra.Command {
	var (
		flags  runFlags
		format string
	)

	cmd := &cobra.Command{
		Use:   "research [task]",
		Short: "Run a deep research task that writes a report",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ep, err := flags.endpoint()
			if err != nil {
				return err
			}
			archive, err := flags.skillArchive()
			if err != nil {
				return err
			}
			return env.withApp(cmd, func(app *App) error {
				user, err := app.Store.EnsureUser(cmd.Context(), flags.user)
				if err != nil {
					return err
				}
				res, err := app.Orchestrator.RunReport(cmd.Context(), agent.ReportRequest{
					Query:        strings.Join(args, " "),
					Format:       format,
					Caller:       agent.Caller{ID: user.ID, Username: user.Username},
					Profile:      user.Profile,
					Endpoint:     ep,
					SkillArchive: archive,
				})
				if err != nil {
					return err
				}
				printResult(cmd.OutOrStdout(), res)
				return nil
			})
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&format, "format", "markdown", "Report format the agent should write")
	return cmd
}

func printResult(w io.Writer, res *agent.Result) {
	fmt.Fprintln(w, res.Response)
	fmt.Fprintln(w)
	switch res.Outcome.Kind {
	case evaluator.KindError:
		fmt.Fprintf(w, "Execution failed: %s\n", res.Outcome.Content)
	case "":
	default:
		fmt.Fprintf(w, "[%s]\n%s\n", res.Outcome.Kind, res.Outcome.Content)
	}
}
