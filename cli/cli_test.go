package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akolk/loki-nexus2/agent"
	"github.com/akolk/loki-nexus2/config"
	"github.com/akolk/loki-nexus2/logging"
	"github.com/akolk/loki-nexus2/metrics"
	"github.com/akolk/loki-nexus2/model"
	"github.com/akolk/loki-nexus2/provider/testutil"
	"github.com/akolk/loki-nexus2/query"
	"github.com/akolk/loki-nexus2/storage"
	"github.com/akolk/loki-nexus2/tools"
	"github.com/akolk/loki-nexus2/workspace"
)

// testBuilder opens real stores under a temp dir and a scripted provider.
// The database survives across invocations so commands can observe each
// other's writes.
func testBuilder(t *testing.T, turns ...testutil.Turn) func(ctx context.Context, configPath string, debug bool) (*App, error) {
	t.Helper()
	return testBuilderWith(t, testutil.NewScriptedProvider("test-model", turns...))
}

func testBuilderWith(t *testing.T, p model.Provider) func(ctx context.Context, configPath string, debug bool) (*App, error) {
	t.Helper()
	dataDir := t.TempDir()

	return func(ctx context.Context, configPath string, debug bool) (*App, error) {
		cfg := config.Default()
		cfg.DataDirectory = dataDir
		app := &App{Config: cfg, Log: logging.Discard(), Metrics: metrics.New("loki_test"), Provider: p}

		var err error
		if app.Engine, err = query.Open(ctx, query.Options{DataRoot: cfg.DataRoot()}); err != nil {
			return nil, err
		}
		if err := app.Engine.SeedSample(ctx); err != nil {
			return nil, err
		}
		if app.Files, err = workspace.New(filepath.Join(dataDir, "workspace")); err != nil {
			return nil, err
		}
		if app.Store, err = storage.Open(ctx, "", dataDir); err != nil {
			return nil, err
		}
		app.Orchestrator, err = agent.New(agent.Options{
			Provider:  p,
			Assembler: tools.NewAssembler(app.Engine, app.Files),
			Store:     app.Store,
			Querier:   app.Engine,
			Files:     app.Files,
			ModelID:   "openai:test-model",
		})
		return app, err
	}
}

func run(t *testing.T, build func(context.Context, string, bool) (*App, error), args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(build)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootRegistersCommands(t *testing.T) {
	root := NewRootCmd()
	names := make(map[string]bool)
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"init", "version", "chat", "research", "history", "profile", "schedule", "serve", "models"} {
		assert.True(t, names[want], "missing command %s", want)
	}
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
	assert.NotNil(t, root.PersistentFlags().Lookup("debug"))
}

func TestInitWritesSettingsOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")

	out, err := run(t, nil, "init", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote default settings")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[provider]")

	out, err = run(t, nil, "init", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "already exist")
}

func TestInitResolvedWritesEffectiveSettings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.toml")
	t.Setenv("LOKI_DATA_DIR", filepath.Join(dir, "data"))
	t.Setenv("LOKI_MODEL", "gpt-4o-mini")
	t.Setenv("LOKI_API_KEY", "sk-secret")

	_, err := run(t, nil, "init", "--resolved", "--config", path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "gpt-4o-mini")
	assert.NotContains(t, string(data), "sk-secret")
}

func TestChatPrintsResponseAndOutcome(t *testing.T) {
	build := testBuilder(t, testutil.Turn{
		Text: testutil.AnswerJSON(`result = query("SELECT value FROM test_data LIMIT 1")`, "Sample only.", "Map it"),
	})

	out, err := run(t, build, "chat", "--user", "bob", "--viewport", "bbox=1,2,3,4", "which", "regions?")
	require.NoError(t, err)
	assert.Contains(t, out, "Disclaimer: Sample only.")
	assert.Contains(t, out, "Followups: Map it")
	assert.Contains(t, out, "[dataframe]")

	out, err = run(t, build, "history", "list", "--user", "bob")
	require.NoError(t, err)
	assert.Contains(t, out, "which regions?")
	assert.Contains(t, out, "model")

	out, err = run(t, build, "history", "search", "--user", "bob", "REGIONS")
	require.NoError(t, err)
	assert.Contains(t, out, "which regions?")

	out, err = run(t, build, "history", "runs", "--user", "bob", "-v")
	require.NoError(t, err)
	assert.Contains(t, out, "which regions?")
	assert.Contains(t, out, "(openai:test-model)")
	assert.Contains(t, out, "SELECT value FROM test_data")
}

func TestChatRejectsUnknownTransport(t *testing.T) {
	_, err := run(t, testBuilder(t), "chat", "--mcp-url", "http://localhost:1", "--mcp-transport", "carrier-pigeon", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "carrier-pigeon")
}

func TestChatMissingSkillsArchive(t *testing.T) {
	_, err := run(t, testBuilder(t), "chat", "--skills", filepath.Join(t.TempDir(), "nope.zip"), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read skills archive")
}

func TestResearchWritesReport(t *testing.T) {
	build := testBuilder(t, testutil.Turn{Text: `{"summary": "Two regions.", "report_path": "reports/r.md"}`})

	out, err := run(t, build, "research", "--user", "carol", "compare", "regions")
	require.NoError(t, err)
	assert.Contains(t, out, "Deep Research completed.")
	assert.Contains(t, out, "reports/r.md")
}

func TestProfileSetAndShow(t *testing.T) {
	build := testBuilder(t)

	_, err := run(t, build, "profile", "set", "--user", "dave")
	require.Error(t, err)

	out, err := run(t, build, "profile", "set", "--user", "dave", "--style", "detailed", "--pref", "units=metric")
	require.NoError(t, err)
	assert.Contains(t, out, "Profile of dave updated.")

	out, err = run(t, build, "profile", "show", "--user", "dave")
	require.NoError(t, err)
	assert.Contains(t, out, `"style": "detailed"`)
	assert.Contains(t, out, `"units": "metric"`)
}

func TestHistoryUnknownUser(t *testing.T) {
	_, err := run(t, testBuilder(t), "history", "list", "--user", "nobody")
	assert.ErrorIs(t, err, storage.ErrUserNotFound)
}

func TestModelsMarksCurrent(t *testing.T) {
	out, err := run(t, testBuilder(t), "models")
	require.NoError(t, err)
	assert.Contains(t, out, "* test-model")
}

func TestModelsUnreachableProvider(t *testing.T) {
	p := testutil.NewMockProvider("test-model")
	p.PingFunc = func(context.Context) error { return errors.New("connection refused") }

	_, err := run(t, testBuilderWith(t, p), "models")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider unreachable")
}

func TestChatWithMockProvider(t *testing.T) {
	p := testutil.NewMockProvider("test-model")

	out, err := run(t, testBuilderWith(t, p), "chat", "anything")
	require.NoError(t, err)
	assert.Contains(t, out, "Disclaimer: Mock answer.")
	assert.Contains(t, out, "[dataframe]")
	assert.Equal(t, 1, p.Calls())
}

func TestScheduleStopsOnCancel(t *testing.T) {
	build := testBuilder(t)
	root := newRootCmd(build)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"schedule", "--user", "erin", "--interval", "1h", "--no-metrics", "daily", "check"})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	require.NoError(t, root.ExecuteContext(ctx))
	assert.Contains(t, out.String(), "Scheduled research_")
	assert.Contains(t, out.String(), "for erin every 1h0m0s")
}

func TestParseJobSpec(t *testing.T) {
	tests := []struct {
		in      string
		want    jobSpec
		wantErr bool
	}{
		{in: "alice:average value", want: jobSpec{user: "alice", query: "average value"}},
		{in: " bob : ratio 1:2 ", want: jobSpec{user: "bob", query: "ratio 1:2"}},
		{in: "no-separator", wantErr: true},
		{in: ":question", wantErr: true},
		{in: "alice:", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseJobSpec(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestServeRejectsBadJob(t *testing.T) {
	_, err := run(t, testBuilder(t), "serve", "--job", "nouser")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "want user:question")
}

func TestServeShutsDownOnCancel(t *testing.T) {
	root := newRootCmd(testBuilder(t))
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"serve", "--listen", "127.0.0.1:0", "--job", "frank:daily check", "--job", "gina:weekly check"})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	require.NoError(t, root.ExecuteContext(ctx))
	assert.Contains(t, out.String(), "for frank")
	assert.Contains(t, out.String(), "for gina")
}

func TestHistoryListAll(t *testing.T) {
	build := testBuilder(t,
		testutil.Turn{Text: testutil.AnswerJSON(`result = {"type": "html", "content": "one"}`, "d")},
		testutil.Turn{Text: testutil.AnswerJSON(`result = {"type": "html", "content": "two"}`, "d")},
	)
	_, err := run(t, build, "chat", "--user", "hank", "first question")
	require.NoError(t, err)
	_, err = run(t, build, "chat", "--user", "hank", "second question")
	require.NoError(t, err)

	out, err := run(t, build, "history", "list", "--user", "hank", "--limit", "1")
	require.NoError(t, err)
	assert.NotContains(t, out, "first question")

	out, err = run(t, build, "history", "list", "--user", "hank", "--all")
	require.NoError(t, err)
	first := bytes.Index([]byte(out), []byte("first question"))
	second := bytes.Index([]byte(out), []byte("second question"))
	require.True(t, first >= 0 && second > first, out)
}
