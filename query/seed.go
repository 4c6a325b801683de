package query

import (
	"context"
	"fmt"
)

// SeedSample creates test_data with the Amersfoort reference point (RD origin).
// Running it twice leaves a single row.
func (e *Engine) SeedSample(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS test_data (id INTEGER PRIMARY KEY, x INTEGER, y INTEGER, value TEXT)`,
		`INSERT OR IGNORE INTO test_data (id, x, y, value) VALUES (1, 155000, 463000, 'Test Point')`,
	}
	for _, stmt := range stmts {
		if _, err := e.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to seed sample data: %w", err)
		}
	}
	return nil
}
