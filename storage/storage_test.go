package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), "", t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "custom.db")

	db, err := Open(context.Background(), "sqlite://"+path, "")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", db.Dialect())
	assert.FileExists(t, path)
	require.NoError(t, db.Close())

	// Reopening runs the schema and migrations again without error.
	db, err = Open(context.Background(), "sqlite://"+path, "")
	require.NoError(t, err)
	ok, err := db.columnExists(context.Background(), "research_steps", "output_metadata")
	require.NoError(t, err)
	assert.True(t, ok)
	db.Close()

	_, err = Open(context.Background(), "mysql://nope", "")
	assert.ErrorContains(t, err, "unsupported database url")
}

func TestMigrateAddsMissingColumn(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, err := db.db.ExecContext(ctx, `DROP TABLE research_steps`)
	require.NoError(t, err)
	_, err = db.db.ExecContext(ctx, `CREATE TABLE research_steps (
		id INTEGER PRIMARY KEY AUTOINCREMENT, user_id TEXT NOT NULL, timestamp DATETIME NOT NULL,
		query TEXT NOT NULL, thought_process TEXT NOT NULL, code_generated TEXT NOT NULL DEFAULT '',
		output_summary TEXT NOT NULL)`)
	require.NoError(t, err)

	ok, err := db.columnExists(ctx, "research_steps", "output_metadata")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, db.migrateSchema(ctx))
	ok, err = db.columnExists(ctx, "research_steps", "output_metadata")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRebind(t *testing.T) {
	sqlite := &DB{dialect: dialectSQLite}
	pg := &DB{dialect: dialectPostgres}
	q := `SELECT * FROM t WHERE a = ? AND b = ?`
	assert.Equal(t, q, sqlite.rebind(q))
	assert.Equal(t, `SELECT * FROM t WHERE a = $1 AND b = $2`, pg.rebind(q))
}

func TestUsers(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, err := db.GetUserByName(ctx, "alice")
	assert.ErrorIs(t, err, ErrUserNotFound)

	u, err := db.EnsureUser(ctx, "alice")
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, DefaultStyle, u.Profile.Style)

	again, err := db.EnsureUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, u.ID, again.ID)

	require.NoError(t, db.UpdateProfile(ctx, u.ID, Profile{Style: "technical", Preferences: map[string]any{"units": "metric"}}))
	got, err := db.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "technical", got.Profile.Style)
	assert.Equal(t, "metric", got.Profile.Preferences["units"])

	assert.ErrorIs(t, db.UpdateProfile(ctx, "missing", Profile{}), ErrUserNotFound)
	_, err = db.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestEnsureUserConcurrent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u, err := db.EnsureUser(ctx, "bob")
			if assert.NoError(t, err) {
				ids[i] = u.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestMessages(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleModel
		}
		require.NoError(t, db.AppendMessage(ctx, "u1", role, fmt.Sprintf("msg %d", i)))
	}
	require.NoError(t, db.AppendMessage(ctx, "u2", RoleUser, "other user"))

	recent, err := db.RecentMessages(ctx, "u1", 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "msg 4", recent[0].Content)
	assert.Equal(t, "msg 2", recent[2].Content)
	assert.False(t, recent[0].Timestamp.IsZero())

	all, err := db.Messages(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "msg 0", all[0].Content)
	assert.Equal(t, RoleModel, all[1].Role)

	matches, err := db.SearchMessages(ctx, "u1", "MSG 3")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "msg 3", matches[0].Preview)

	matches, err = db.SearchMessages(ctx, "u1", "")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestSearchPreviewKeepsRunesWhole(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	long := strings.Repeat("a", 99) + "€uro area rainfall"
	require.NoError(t, db.AppendMessage(ctx, "u1", RoleUser, long))

	matches, err := db.SearchMessages(ctx, "u1", "rainfall")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.True(t, utf8.ValidString(matches[0].Preview))
	assert.Equal(t, strings.Repeat("a", 99)+"€...", matches[0].Preview)
}

func TestPreview(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly", 7, "exactly"},
		{"héllo wörld", 5, "héllo..."},
		{"日本語テキスト", 3, "日本語..."},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, preview(tt.in, tt.n))
	}
}

func TestProvenance(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.AppendProvenance(ctx, ProvenanceRecord{
		CallerID:      "u1",
		Query:         "average value",
		Narrative:     "[Agent Execution]",
		Code:          "result = 1",
		OutputSummary: "text: 1",
		Metadata:      map[string]string{"model": "openai:gpt-4o-mini", "run_id": "r1"},
	}))
	require.NoError(t, db.AppendProvenance(ctx, ProvenanceRecord{CallerID: "u1", Query: "second", Narrative: "n", OutputSummary: "s"}))

	recs, err := db.Provenance(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "second", recs[0].Query)
	assert.Empty(t, recs[0].Metadata)
	assert.Equal(t, "result = 1", recs[1].Code)
	assert.Equal(t, "r1", recs[1].Metadata["run_id"])

	recs, err = db.Provenance(ctx, "nobody", 10)
	require.NoError(t, err)
	assert.Empty(t, recs)
}
