package cli

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/akolk/loki-nexus2/storage"
)

const (
	defaultHistoryLimit = 20
	msgNoHistory        = "No history recorded yet."
)

func newHistoryCommand(env *environment) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect stored conversations and runs",
	}
	historyCmd.AddCommand(
		newHistoryListCommand(env),
		newHistorySearchCommand(env),
		newHistoryRunsCommand(env),
	)
	return historyCmd
}

func newHistoryListCommand(env *environment) *cobra.Command {
	var (
		user  string
		limit int
		all   bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent chat turns",
		RunE: func(cmd *cobra.Command, args []string) error {
			return env.withApp(cmd, func(app *App) error {
				u, err := app.Store.GetUserByName(cmd.Context(), user)
				if err != nil {
					return err
				}
				var msgs []storage.Message
				if all {
					msgs, err = app.Store.Messages(cmd.Context(), u.ID)
				} else {
					msgs, err = app.Store.RecentMessages(cmd.Context(), u.ID, limit)
					slices.Reverse(msgs)
				}
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(msgs) == 0 {
					fmt.Fprintln(out, msgNoHistory)
					return nil
				}
				for _, m := range msgs {
					printMessage(out, m, "")
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&user, "user", defaultUser, "Username to inspect")
	cmd.Flags().IntVar(&limit, "limit", defaultHistoryLimit, "Max entries to show")
	cmd.Flags().BoolVar(&all, "all", false, "Show the whole conversation")
	return cmd
}

func newHistorySearchCommand(env *environment) *cobra.Command {
	var (
		user  string
		query string
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search chat turns containing a term",
		RunE: func(cmd *cobra.Command, args []string) error {
			if query == "" && len(args) > 0 {
				query = strings.Join(args, " ")
			}
			if query == "" {
				return fmt.Errorf("a search term is required")
			}
			return env.withApp(cmd, func(app *App) error {
				u, err := app.Store.GetUserByName(cmd.Context(), user)
				if err != nil {
					return err
				}
				matches, err := app.Store.SearchMessages(cmd.Context(), u.ID, query)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(matches) == 0 {
					fmt.Fprintf(out, "No messages match %q.\n", query)
					return nil
				}
				for _, m := range matches {
					printMessage(out, m.Message, m.Preview)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&user, "user", defaultUser, "Username to inspect")
	cmd.Flags().StringVar(&query, "query", "", "Search term")
	return cmd
}

func newHistoryRunsCommand(env *environment) *cobra.Command {
	var (
		user    string
		limit   int
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded agent runs with their code and outcome",
		RunE: func(cmd *cobra.Command, args []string) error {
			return env.withApp(cmd, func(app *App) error {
				u, err := app.Store.GetUserByName(cmd.Context(), user)
				if err != nil {
					return err
				}
				recs, err := app.Store.Provenance(cmd.Context(), u.ID, limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(recs) == 0 {
					fmt.Fprintln(out, "No runs recorded yet.")
					return nil
				}
				for _, r := range recs {
					printRun(out, r, verbose)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&user, "user", defaultUser, "Username to inspect")
	cmd.Flags().IntVar(&limit, "limit", defaultHistoryLimit, "Max runs to show")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Include generated code and output")
	return cmd
}

func printMessage(w io.Writer, m storage.Message, preview string) {
	text := m.Content
	if preview != "" {
		text = preview
	}
	fmt.Fprintf(w, "%s  %-5s  %s\n", m.Timestamp.Local().Format("2006-01-02 15:04"), m.Role, text)
}

func printRun(w io.Writer, r storage.ProvenanceRecord, verbose bool) {
	fmt.Fprintf(w, "#%d  %s  %s  (%s)\n", r.ID, r.Timestamp.Local().Format("2006-01-02 15:04"), r.Query, r.Metadata["model"])
	if !verbose {
		return
	}
	fmt.Fprintf(w, "  %s\n", r.Narrative)
	if r.Code != "" {
		fmt.Fprintf(w, "  code:\n%s\n", indent(r.Code, "    "))
	}
	fmt.Fprintf(w, "  output: %s\n", r.OutputSummary)
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
