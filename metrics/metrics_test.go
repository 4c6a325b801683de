package metrics

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RunFinished("chat", "html", time.Second)
		m.ToolCalled("data_query", nil)
		m.QueryFailed()
		m.Tick("ok")
		m.SetJobs(3)
	})
}

func TestCounters(t *testing.T) {
	m := New("loki")

	m.ToolCalled("data_query", nil)
	m.ToolCalled("data_query", errors.New("boom"))
	m.ToolCalled("data_query", nil)
	m.QueryFailed()
	m.Tick("error")
	m.SetJobs(2)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ToolCallsTotal.WithLabelValues("data_query", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ToolCallsTotal.WithLabelValues("data_query", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueryErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SchedulerTicks.WithLabelValues("error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ScheduledJobs))
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New("loki")
	m.RunFinished("chat", "dataframe", 2*time.Second)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), `loki_agent_runs_total{mode="chat",result="dataframe"} 1`)
}
