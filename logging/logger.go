// Package logging provides the structured logger shared by every component.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// ContextKey is the type for values the logger lifts out of a context.
type ContextKey string

const (
	RunIDKey  ContextKey = "run_id"
	CallerKey ContextKey = "caller"
	JobIDKey  ContextKey = "job_id"
)

// Logger wraps slog with a component name.
type Logger struct {
	*slog.Logger
	component string
}

// Config selects level, format and destination.
type Config struct {
	Level     string `toml:"level"`
	Format    string `toml:"format"` // text or json
	Output    string `toml:"output"` // stdout, stderr, or a file path
	Component string `toml:"-"`
}

// New builds a logger from cfg. Unknown levels fall back to info.
func New(cfg Config) *Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var output io.Writer
	switch cfg.Output {
	case "stderr", "":
		output = os.Stderr
	case "stdout":
		output = os.Stdout
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			output = os.Stderr
		} else {
			output = f
		}
	}

	return newWithWriter(output, level, cfg.Format, cfg.Component)
}

func newWithWriter(w io.Writer, level slog.Level, format, component string) *Logger {
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	l := slog.New(handler)
	if component != "" {
		l = l.With(slog.String("component", component))
	}
	return &Logger{Logger: l, component: component}
}

// Default reads LOKI_LOG_LEVEL and LOKI_LOG_FORMAT. LOKI_DEBUG=1 forces debug.
func Default(component string) *Logger {
	level := os.Getenv("LOKI_LOG_LEVEL")
	if d := os.Getenv("LOKI_DEBUG"); d == "1" || d == "true" {
		level = "debug"
	}
	return New(Config{
		Level:     level,
		Format:    os.Getenv("LOKI_LOG_FORMAT"),
		Output:    "stderr",
		Component: component,
	})
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *Logger {
	return newWithWriter(io.Discard, slog.LevelError+1, "text", "")
}

// Named returns a logger for a sub-component sharing the same handler.
func (l *Logger) Named(component string) *Logger {
	return &Logger{
		Logger:    l.Logger.With(slog.String("component", component)),
		component: component,
	}
}

// Component returns the component name the logger was created with.
func (l *Logger) Component() string {
	return l.component
}

// WithContext attaches the run, caller and job ids carried by ctx.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	var attrs []any
	if v, ok := ctx.Value(RunIDKey).(string); ok && v != "" {
		attrs = append(attrs, slog.String("run_id", v))
	}
	if v, ok := ctx.Value(CallerKey).(string); ok && v != "" {
		attrs = append(attrs, slog.String("caller", v))
	}
	if v, ok := ctx.Value(JobIDKey).(string); ok && v != "" {
		attrs = append(attrs, slog.String("job_id", v))
	}
	if len(attrs) == 0 {
		return l
	}
	return &Logger{Logger: l.Logger.With(attrs...), component: l.component}
}

func (l *Logger) WithRunID(runID string) *Logger {
	return &Logger{Logger: l.Logger.With(slog.String("run_id", runID)), component: l.component}
}

func (l *Logger) WithCaller(caller string) *Logger {
	return &Logger{Logger: l.Logger.With(slog.String("caller", caller)), component: l.component}
}

func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return &Logger{Logger: l.Logger.With(slog.String("error", err.Error())), component: l.component}
}

func (l *Logger) WithDuration(d time.Duration) *Logger {
	return &Logger{
		Logger:    l.Logger.With(slog.Float64("duration_ms", float64(d.Microseconds())/1000)),
		component: l.component,
	}
}
