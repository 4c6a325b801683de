package evaluator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akolk/loki-nexus2/query"
	"github.com/akolk/loki-nexus2/workspace"
)

type stubQuerier struct{ caller string }

func (q *stubQuerier) Execute(_ context.Context, caller, _ string) []query.Row {
	q.caller = caller
	return []query.Row{
		{"id": int64(1), "value": 10.5, "name": []byte("a"), "wgs84_lon": nil},
		{"id": int64(2), "value": 2.5, "name": []byte("b"), "wgs84_lon": nil},
	}
}

func newEvaluator(t *testing.T, steps uint64) (*Evaluator, *stubQuerier) {
	t.Helper()
	guard, err := workspace.New(t.TempDir())
	require.NoError(t, err)
	q := &stubQuerier{}
	return New(Environment{Caller: "u1", Query: q, Files: guard}, steps, nil), q
}

func TestEvaluateOutcomes(t *testing.T) {
	tests := []struct {
		name string
		code string
		want Outcome
	}{
		{
			name: "html string",
			code: `result = {"type": "html", "content": "<b>hi</b>"}`,
			want: Outcome{Kind: KindHTML, Content: "<b>hi</b>"},
		},
		{
			name: "dataframe from query",
			code: `
rows = query("SELECT * FROM test_data")
total = 0
for r in rows:
    total += r["value"]
result = {"type": "dataframe", "content": [{"total": total, "n": len(rows)}]}
`,
			want: Outcome{Kind: KindDataFrame, Content: `[{"n":2,"total":13.0}]`},
		},
		{
			name: "bare list",
			code: `result = [1, 2]`,
			want: Outcome{Kind: KindDataFrame, Content: `[1,2]`},
		},
		{
			name: "plotly dict content",
			code: `result = {"type": "plotly", "content": {"data": [], "layout": {"title": "t"}}}`,
			want: Outcome{Kind: KindPlotly, Content: `{"data":[],"layout":{"title":"t"}}`},
		},
		{
			name: "math and json modules",
			code: `result = {"type": "html", "content": json.encode({"r": math.floor(math.sqrt(16))})}`,
			want: Outcome{Kind: KindHTML, Content: `{"r":4}`},
		},
		{
			name: "workspace round trip",
			code: `
write_file("out/report.md", "# done")
result = {"type": "html", "content": read_file("out/report.md")}
`,
			want: Outcome{Kind: KindHTML, Content: "# done"},
		},
		{
			name: "top level control flow",
			code: `
n = 0
while n < 3:
    n += 1
if n == 3:
    result = {"type": "folium", "content": "<div>map</div>"}
`,
			want: Outcome{Kind: KindFolium, Content: "<div>map</div>"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, _ := newEvaluator(t, 0)
			got, err := ev.Evaluate(context.Background(), tt.code, "result")
			require.NoError(t, err)
			assert.Equal(t, tt.want.Kind, got.Kind)
			if tt.want.Kind == KindDataFrame || tt.want.Kind == KindPlotly {
				assert.JSONEq(t, tt.want.Content, got.Content)
			} else {
				assert.Equal(t, tt.want.Content, got.Content)
			}
		})
	}
}

func TestEvaluateQueryUsesCaller(t *testing.T) {
	ev, q := newEvaluator(t, 0)
	_, err := ev.Evaluate(context.Background(), `rows = query("SELECT 1")`+"\n"+`result = rows`, "result")
	require.NoError(t, err)
	assert.Equal(t, "u1", q.caller)
}

func TestEvaluateMissingBinding(t *testing.T) {
	for _, code := range []string{`x = 1`, `result = None`, `result = {}`} {
		ev, _ := newEvaluator(t, 0)
		_, err := ev.Evaluate(context.Background(), code, "result")
		assert.ErrorIs(t, err, ErrMissingBinding, code)
	}
}

func TestEvaluateExecutionErrors(t *testing.T) {
	tests := []struct {
		name, code, contains string
	}{
		{"runtime", `result = 1 // 0`, "floored division by zero"},
		{"syntax", `result = (`, "want primary expression"},
		{"undefined", `result = missing_fn()`, "undefined: missing_fn"},
		{"bad type", `result = {"type": "video", "content": ""}`, "not one of"},
		{"no type", `result = {"content": "x"}`, "no 'type' key"},
		{"scalar", `result = 42`, "must be a dict"},
		{"bad builtin args", `result = query()`, "missing argument for sql"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, _ := newEvaluator(t, 0)
			_, err := ev.Evaluate(context.Background(), tt.code, "result")
			var execErr *ExecutionError
			require.True(t, errors.As(err, &execErr), "got %v", err)
			assert.Contains(t, execErr.Msg, tt.contains)
		})
	}
}

func TestEvaluateStepLimit(t *testing.T) {
	ev, _ := newEvaluator(t, 1000)
	_, err := ev.Evaluate(context.Background(), "n = 0\nwhile True:\n    n += 1\n", "result")
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Contains(t, execErr.Msg, "too many steps")
}

func TestEvaluateCancelled(t *testing.T) {
	ev, _ := newEvaluator(t, 1<<62)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := ev.Evaluate(ctx, "n = 0\nwhile True:\n    n += 1\n", "result")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, `{"type":"error","content":"boom"}`, ErrorOutcome("boom").String())
}
