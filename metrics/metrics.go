// Package metrics holds the Prometheus collectors for agent runs, tool calls,
// queries and scheduler ticks. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	RunsTotal      *prometheus.CounterVec
	RunDuration    *prometheus.HistogramVec
	ToolCallsTotal *prometheus.CounterVec
	QueryErrors    prometheus.Counter
	SchedulerTicks *prometheus.CounterVec
	ScheduledJobs  prometheus.Gauge
}

// New registers every collector on a private registry under namespace.
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "agent_runs_total",
				Help:      "Agent runs by mode and final state or outcome kind",
			},
			[]string{"mode", "result"},
		),
		RunDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "agent_run_duration_seconds",
				Help:      "Agent run duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"mode"},
		),
		ToolCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_calls_total",
				Help:      "Tool invocations by tool name and status",
			},
			[]string{"tool", "status"},
		),
		QueryErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "query_errors_total",
				Help:      "Queries that returned an error row",
			},
		),
		SchedulerTicks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scheduler_ticks_total",
				Help:      "Scheduled job ticks by result",
			},
			[]string{"result"},
		),
		ScheduledJobs: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "scheduled_jobs",
				Help:      "Currently registered recurring jobs",
			},
		),
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) RunFinished(mode, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(mode, result).Inc()
	m.RunDuration.WithLabelValues(mode).Observe(d.Seconds())
}

func (m *Metrics) ToolCalled(tool string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.ToolCallsTotal.WithLabelValues(tool, status).Inc()
}

func (m *Metrics) QueryFailed() {
	if m == nil {
		return
	}
	m.QueryErrors.Inc()
}

func (m *Metrics) Tick(result string) {
	if m == nil {
		return
	}
	m.SchedulerTicks.WithLabelValues(result).Inc()
}

func (m *Metrics) SetJobs(n int) {
	if m == nil {
		return
	}
	m.ScheduledJobs.Set(float64(n))
}
