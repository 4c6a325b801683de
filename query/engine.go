// Package query runs ad-hoc analytical SQL against the tabular store used by
// the agent. Errors never escape Execute: they come back as a single row
// carrying an "error" field so the model can read and react to them.
package query

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/akolk/loki-nexus2/logging"
	"github.com/akolk/loki-nexus2/metrics"
)

// DataDirPlaceholder is replaced with the caller's private data directory.
const DataDirPlaceholder = "__DATA_DIR__"

const (
	LonField = "wgs84_lon"
	LatField = "wgs84_lat"
)

var limitPattern = regexp.MustCompile(`(?i)\blimit\b`)

// Row is one materialized result row keyed by column name.
type Row map[string]any

type Options struct {
	// Path of a sqlite file. Empty opens a private shared-cache in-memory store.
	Path         string
	DataRoot     string
	DefaultLimit int
	Logger       *logging.Logger
	Metrics      *metrics.Metrics
}

// Engine owns the store connection pool for the lifetime of the process.
type Engine struct {
	db       *sql.DB
	pin      *sql.Conn
	dataRoot string
	limit    int
	log      *logging.Logger
	metrics  *metrics.Metrics
}

// Open connects to the store once. The returned engine is safe for
// concurrent use; callers share the pool, not a single connection.
func Open(ctx context.Context, opts Options) (*Engine, error) {
	dsn := "file:loki-" + uuid.NewString() + "?mode=memory&cache=shared"
	if opts.Path != "" {
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
		dsn = "file:" + opts.Path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open query store: %w", err)
	}

	// An in-memory shared-cache database lives only while a connection is open.
	pin, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect query store: %w", err)
	}

	limit := opts.DefaultLimit
	if limit <= 0 {
		limit = 100
	}
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}

	return &Engine{
		db:       db,
		pin:      pin,
		dataRoot: opts.DataRoot,
		limit:    limit,
		log:      log,
		metrics:  opts.Metrics,
	}, nil
}

func (e *Engine) Close() error {
	e.pin.Close()
	return e.db.Close()
}

// DB exposes the pool for seeding and tests.
func (e *Engine) DB() *sql.DB {
	return e.db
}

// Execute runs sqlText on behalf of caller and returns the materialized rows.
func (e *Engine) Execute(ctx context.Context, caller, sqlText string) []Row {
	start := time.Now()

	sqlText, err := e.rewrite(caller, sqlText)
	if err != nil {
		return e.fail(sqlText, err)
	}

	rows, err := e.db.QueryContext(ctx, sqlText)
	if err != nil {
		return e.fail(sqlText, err)
	}
	defer rows.Close()

	result, columns, err := materialize(rows)
	if err != nil {
		return e.fail(sqlText, err)
	}

	if hasColumns(columns, "x", "y") {
		transformCoordinates(result)
	}

	e.log.Debug("query executed",
		"rows", len(result),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result
}

func (e *Engine) fail(sqlText string, err error) []Row {
	e.log.Warn("query failed", "sql", sqlText, "error", err)
	e.metrics.QueryFailed()
	return []Row{{"error": err.Error()}}
}

// rewrite substitutes the caller's data directory and appends the default cap.
func (e *Engine) rewrite(caller, sqlText string) (string, error) {
	if caller != "" && e.dataRoot != "" && strings.Contains(sqlText, DataDirPlaceholder) {
		dir, err := e.callerDir(caller)
		if err != nil {
			return sqlText, err
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return sqlText, fmt.Errorf("failed to create data directory: %w", err)
		}
		sqlText = strings.ReplaceAll(sqlText, DataDirPlaceholder, dir)
	}

	return ApplyLimit(sqlText, e.limit), nil
}

// callerDir is <dataRoot>/<caller>/. Callers that would resolve outside
// dataRoot, or to dataRoot itself, are rejected.
func (e *Engine) callerDir(caller string) (string, error) {
	root := filepath.Clean(e.dataRoot)
	dir := filepath.Join(root, caller)
	rel, err := filepath.Rel(root, dir)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid data scope %q", caller)
	}
	return dir + string(filepath.Separator), nil
}

func materialize(rows *sql.Rows) ([]Row, []string, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	result := []Row{}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}

		row := make(Row, len(columns))
		for i, col := range columns {
			row[col] = normalize(values[i])
		}
		result = append(result, row)
	}

	return result, columns, rows.Err()
}

func normalize(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	default:
		return t
	}
}

func hasColumns(columns []string, names ...string) bool {
	for _, name := range names {
		found := false
		for _, c := range columns {
			if c == name {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// transformCoordinates adds wgs84_lon/wgs84_lat to every row, nil when the
// row's x/y are not numeric or fall outside the RD New box.
func transformCoordinates(rows []Row) {
	for _, row := range rows {
		row[LonField] = nil
		row[LatField] = nil

		x, okX := toFloat(row["x"])
		y, okY := toFloat(row["y"])
		if !okX || !okY || !InRDBounds(x, y) {
			continue
		}

		lon, lat := RDToWGS84(x, y)
		row[LonField] = lon
		row[LatField] = lat
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int64:
		return float64(t), true
	case int:
		return float64(t), true
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
