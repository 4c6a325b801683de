package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoggerAttributes(t *testing.T) {
	var buf bytes.Buffer
	l := newWithWriter(&buf, slog.LevelInfo, "json", "query")

	ctx := context.WithValue(context.Background(), RunIDKey, "run-1")
	ctx = context.WithValue(ctx, CallerKey, "alice")

	l.WithContext(ctx).WithError(errors.New("boom")).WithDuration(1500 * time.Microsecond).Info("done")

	out := buf.String()
	assert.Contains(t, out, `"component":"query"`)
	assert.Contains(t, out, `"run_id":"run-1"`)
	assert.Contains(t, out, `"caller":"alice"`)
	assert.Contains(t, out, `"error":"boom"`)
	assert.Contains(t, out, `"duration_ms":1.5`)
}

func TestLoggerLevels(t *testing.T) {
	tests := []struct {
		level   slog.Level
		logInfo bool
	}{
		{slog.LevelDebug, true},
		{slog.LevelInfo, true},
		{slog.LevelWarn, false},
	}

	for _, tt := range tests {
		var buf bytes.Buffer
		l := newWithWriter(&buf, tt.level, "text", "")
		l.Info("hello")
		assert.Equal(t, tt.logInfo, buf.Len() > 0, "level %s", tt.level)
	}
}

func TestWithErrorNil(t *testing.T) {
	l := Discard()
	assert.Same(t, l, l.WithError(nil))
}
