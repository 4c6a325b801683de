package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/akolk/loki-nexus2/scheduler"
)

const defaultMetricsListen = ":9090"

// jobSpec is a question to re-run for a username.
type jobSpec struct {
	user  string
	query string
}

// parseJobSpec splits "user:question". The question may contain colons.
func parseJobSpec(s string) (jobSpec, error) {
	user, query, ok := strings.Cut(s, ":")
	user, query = strings.TrimSpace(user), strings.TrimSpace(query)
	if !ok || user == "" || query == "" {
		return jobSpec{}, fmt.Errorf("invalid job %q: want user:question", s)
	}
	return jobSpec{user: user, query: query}, nil
}

func newScheduleCommand(env *environment) *cobra.Command {
	var (
		user     string
		interval time.Duration
		noServe  bool
	)

	cmd := &cobra.Command{
		Use:   "schedule [question]",
		Short: "Re-run a question on an interval until interrupted",
		Long: "schedule keeps the process in the foreground, running the question every interval. " +
			"When [metrics] listen is set it also serves /metrics.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return env.withApp(cmd, func(app *App) error {
				listen := app.Config.Metrics.Listen
				if noServe {
					listen = ""
				}
				jobs := []jobSpec{{user: user, query: strings.Join(args, " ")}}
				return runScheduler(cmd.Context(), cmd.OutOrStdout(), app, jobs, interval, listen)
			})
		},
	}

	cmd.Flags().StringVar(&user, "user", defaultUser, "Username the runs belong to")
	cmd.Flags().DurationVar(&interval, "interval", scheduler.DefaultInterval, "Time between runs")
	cmd.Flags().BoolVar(&noServe, "no-metrics", false, "Do not serve /metrics")
	return cmd
}

func newServeCommand(env *environment) *cobra.Command {
	var (
		specs    []string
		interval time.Duration
		listen   string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve /metrics and run recurring jobs until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			jobs := make([]jobSpec, 0, len(specs))
			for _, s := range specs {
				j, err := parseJobSpec(s)
				if err != nil {
					return err
				}
				jobs = append(jobs, j)
			}
			return env.withApp(cmd, func(app *App) error {
				addr := listen
				if addr == "" {
					addr = app.Config.Metrics.Listen
				}
				if addr == "" {
					addr = defaultMetricsListen
				}
				return runScheduler(cmd.Context(), cmd.OutOrStdout(), app, jobs, interval, addr)
			})
		},
	}

	cmd.Flags().StringArrayVar(&specs, "job", nil, "Recurring job as user:question (repeatable)")
	cmd.Flags().DurationVar(&interval, "interval", scheduler.DefaultInterval, "Time between runs of every job")
	cmd.Flags().StringVar(&listen, "listen", "", "Metrics address (default [metrics] listen or :9090)")
	return cmd
}

// runScheduler registers jobs, starts the scheduler and blocks until ctx is
// done. A non-empty listen also serves /metrics.
func runScheduler(ctx context.Context, out io.Writer, app *App, jobs []jobSpec, interval time.Duration, listen string) error {
	opts := []scheduler.Option{
		scheduler.WithLogger(app.Log),
		scheduler.WithMetrics(app.Metrics),
	}
	if url := app.Config.Scheduler.RedisURL; url != "" {
		lease, err := scheduler.NewRedisLease(ctx, url)
		if err != nil {
			return err
		}
		defer lease.Close()
		ttl := time.Duration(app.Config.Scheduler.LeaseTTLSeconds) * time.Second
		opts = append(opts, scheduler.WithLease(lease, ttl))
	}

	s := scheduler.New(app.Orchestrator, opts...)
	for _, j := range jobs {
		u, err := app.Store.EnsureUser(ctx, j.user)
		if err != nil {
			return err
		}
		job, err := s.Schedule(u.ID, j.query, interval)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Scheduled %s for %s every %s.\n", job.ID, j.user, job.Interval)
	}

	if err := s.Start(ctx); err != nil {
		return err
	}
	defer s.Stop()
	fmt.Fprintln(out, "Press Ctrl+C to stop.")

	if listen != "" {
		return serveMetrics(ctx, listen, app.Metrics.Handler())
	}
	<-ctx.Done()
	return nil
}

// serveMetrics blocks until ctx is cancelled, then shuts the server down.
func serveMetrics(ctx context.Context, addr string, h http.Handler) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
