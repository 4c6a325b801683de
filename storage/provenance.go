package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// ProvenanceRecord describes one completed agent run.
type ProvenanceRecord struct {
	ID            int64
	CallerID      string
	Timestamp     time.Time
	Query         string
	Narrative     string
	Code          string
	OutputSummary string
	Metadata      map[string]string
}

func (s *DB) AppendProvenance(ctx context.Context, rec ProvenanceRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return err
	}
	if rec.Metadata == nil {
		meta = []byte("{}")
	}

	_, err = s.exec(ctx, `INSERT INTO research_steps
		(user_id, timestamp, query, thought_process, code_generated, output_summary, output_metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.CallerID, rec.Timestamp, rec.Query, rec.Narrative, rec.Code, rec.OutputSummary, string(meta))
	if err != nil {
		return fmt.Errorf("failed to record provenance: %w", err)
	}
	return nil
}

// Provenance returns up to limit records for userID, newest first.
func (s *DB) Provenance(ctx context.Context, userID string, limit int) ([]ProvenanceRecord, error) {
	rows, err := s.query(ctx, `SELECT id, user_id, timestamp, query, thought_process, code_generated, output_summary, output_metadata
		FROM research_steps WHERE user_id = ? ORDER BY id DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load provenance: %w", err)
	}
	defer rows.Close()

	var out []ProvenanceRecord
	for rows.Next() {
		var (
			rec  ProvenanceRecord
			meta string
		)
		if err := rows.Scan(&rec.ID, &rec.CallerID, &rec.Timestamp, &rec.Query, &rec.Narrative,
			&rec.Code, &rec.OutputSummary, &meta); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(meta), &rec.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode provenance metadata: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
