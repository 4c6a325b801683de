// Package storage persists users, chat history and research provenance in
// sqlite or Postgres.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const DefaultFile = "loki.db"

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

func (d dialect) String() string {
	if d == dialectPostgres {
		return "postgres"
	}
	return "sqlite"
}

// DB wraps the connection pool and the SQL dialect it speaks.
type DB struct {
	db      *sql.DB
	dialect dialect
}

// Open connects to url. postgres:// and postgresql:// use pgx; sqlite://path
// or an empty url use a sqlite file (dataDir/loki.db by default).
func Open(ctx context.Context, url, dataDir string) (*DB, error) {
	var (
		db  *sql.DB
		d   dialect
		err error
	)

	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		d = dialectPostgres
		db, err = sql.Open("pgx", url)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

	case url == "" || strings.HasPrefix(url, "sqlite://"):
		path := strings.TrimPrefix(url, "sqlite://")
		if path == "" {
			path = filepath.Join(dataDir, DefaultFile)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		db, err = sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported database url %q", url)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &DB{db: db, dialect: d}
	if err := s.initialize(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return s, nil
}

func (s *DB) Close() error {
	return s.db.Close()
}

// Dialect returns "sqlite" or "postgres".
func (s *DB) Dialect() string {
	return s.dialect.String()
}

func (s *DB) schema() []string {
	serial := "INTEGER PRIMARY KEY AUTOINCREMENT"
	stamp := "DATETIME"
	if s.dialect == dialectPostgres {
		serial = "BIGSERIAL PRIMARY KEY"
		stamp = "TIMESTAMPTZ"
	}

	return []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			soul_data TEXT NOT NULL DEFAULT '{}',
			created_at ` + stamp + ` NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS chat_history (
			id ` + serial + `,
			user_id TEXT NOT NULL,
			timestamp ` + stamp + ` NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_history_user ON chat_history(user_id, id)`,
		`CREATE TABLE IF NOT EXISTS research_steps (
			id ` + serial + `,
			user_id TEXT NOT NULL,
			timestamp ` + stamp + ` NOT NULL,
			query TEXT NOT NULL,
			thought_process TEXT NOT NULL,
			code_generated TEXT NOT NULL DEFAULT '',
			output_summary TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_research_steps_user ON research_steps(user_id, id)`,
	}
}

// migrations add columns that older databases lack.
var migrations = []struct {
	table, column, ddl string
}{
	{"research_steps", "output_metadata", `ALTER TABLE research_steps ADD COLUMN output_metadata TEXT NOT NULL DEFAULT '{}'`},
}

func (s *DB) initialize(ctx context.Context) error {
	for _, stmt := range s.schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return s.migrateSchema(ctx)
}

func (s *DB) migrateSchema(ctx context.Context) error {
	for _, m := range migrations {
		exists, err := s.columnExists(ctx, m.table, m.column)
		if err != nil {
			return fmt.Errorf("failed to check for %s.%s column: %w", m.table, m.column, err)
		}
		switch {
		case !exists:
			if _, err := s.db.ExecContext(ctx, m.ddl); err != nil {
				return fmt.Errorf("failed to add %s.%s column: %w", m.table, m.column, err)
			}
		}
	}
	return nil
}

func (s *DB) columnExists(ctx context.Context, table, column string) (bool, error) {
	if s.dialect == dialectPostgres {
		var n int
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM information_schema.columns WHERE table_name = $1 AND column_name = $2`,
			table, column).Scan(&n)
		return n > 0, err
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid          int
			name         string
			dataType     string
			notNull      int
			defaultValue any
			pk           int
		)
		if err := rows.Scan(&cid, &name, &dataType, &notNull, &defaultValue, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// rebind rewrites ? placeholders to $1, $2... for Postgres.
func (s *DB) rebind(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *DB) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(query), args...)
}

func (s *DB) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.rebind(query), args...)
}

func (s *DB) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.rebind(query), args...)
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
