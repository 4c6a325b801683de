package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/akolk/loki-nexus2/agent"
	"github.com/akolk/loki-nexus2/config"
	"github.com/akolk/loki-nexus2/logging"
	"github.com/akolk/loki-nexus2/metrics"
	"github.com/akolk/loki-nexus2/model"
	"github.com/akolk/loki-nexus2/provider"
	"github.com/akolk/loki-nexus2/query"
	"github.com/akolk/loki-nexus2/storage"
	"github.com/akolk/loki-nexus2/tools"
	"github.com/akolk/loki-nexus2/workspace"
)

// App holds the long-lived services one command invocation needs.
type App struct {
	Config       *config.Config
	Log          *logging.Logger
	Metrics      *metrics.Metrics
	Engine       *query.Engine
	Files        *workspace.Guard
	Store        *storage.DB
	Provider     model.Provider
	Orchestrator *agent.Orchestrator
}

// buildApp loads the configuration and opens every backing service. The
// caller must Close the result.
func buildApp(ctx context.Context, configPath string, debug bool) (*App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if debug || config.CheckDebug() {
		cfg.Log.Level = "debug"
	}

	app := &App{
		Config:  cfg,
		Log:     logging.New(cfg.Log),
		Metrics: metrics.New("loki"),
	}

	app.Engine, err = query.Open(ctx, query.Options{
		Path:         config.ExpandPath(cfg.Data.QueryStore),
		DataRoot:     cfg.DataRoot(),
		DefaultLimit: cfg.Data.DefaultLimit,
		Logger:       app.Log,
		Metrics:      app.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open query engine: %w", err)
	}
	if cfg.Data.SeedSample {
		if err := app.Engine.SeedSample(ctx); err != nil {
			app.Close()
			return nil, fmt.Errorf("failed to seed sample data: %w", err)
		}
	}

	if app.Files, err = workspace.New(cfg.WorkspaceRoot()); err != nil {
		app.Close()
		return nil, err
	}

	if app.Store, err = storage.Open(ctx, cfg.Database.URL, cfg.DataDir()); err != nil {
		app.Close()
		return nil, err
	}

	if app.Provider, err = provider.FromConfig(cfg.Provider, app.Log); err != nil {
		app.Close()
		return nil, err
	}

	assembler := tools.NewAssembler(app.Engine, app.Files,
		tools.WithLogger(app.Log),
		tools.WithMetrics(app.Metrics),
	)

	app.Orchestrator, err = agent.New(agent.Options{
		Provider:          app.Provider,
		Assembler:         assembler,
		Store:             app.Store,
		Querier:           app.Engine,
		Files:             app.Files,
		ModelID:           cfg.ModelIdentifier(),
		MaxSteps:          cfg.Agent.MaxSteps,
		HistoryWindow:     cfg.Agent.HistoryWindow,
		MaxExecutionSteps: cfg.Agent.MaxExecutionSteps,
		Logger:            app.Log,
		Metrics:           app.Metrics,
	})
	if err != nil {
		app.Close()
		return nil, err
	}

	app.Log.Debug("services ready", "database", app.Store.Dialect(), "model", cfg.ModelIdentifier())
	return app, nil
}

func (a *App) Close() error {
	var errs []error
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	if a.Engine != nil {
		errs = append(errs, a.Engine.Close())
	}
	return errors.Join(errs...)
}
