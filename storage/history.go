package storage

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Message is one stored chat turn. Role is "user" or "model".
type Message struct {
	ID        int64
	UserID    string
	Role      string
	Content   string
	Timestamp time.Time
}

type MessageMatch struct {
	Message
	Preview string
}

func (s *DB) AppendMessage(ctx context.Context, userID, role, content string) error {
	_, err := s.exec(ctx, `INSERT INTO chat_history (user_id, timestamp, role, content) VALUES (?, ?, ?, ?)`,
		userID, time.Now().UTC(), role, content)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

// RecentMessages returns up to limit messages, newest first.
func (s *DB) RecentMessages(ctx context.Context, userID string, limit int) ([]Message, error) {
	return s.messages(ctx,
		`SELECT id, user_id, timestamp, role, content FROM chat_history WHERE user_id = ? ORDER BY id DESC LIMIT ?`,
		userID, limit)
}

// Messages returns the whole conversation in chronological order.
func (s *DB) Messages(ctx context.Context, userID string) ([]Message, error) {
	return s.messages(ctx,
		`SELECT id, user_id, timestamp, role, content FROM chat_history WHERE user_id = ? ORDER BY id ASC`,
		userID)
}

// SearchMessages finds messages containing term, case-insensitively.
func (s *DB) SearchMessages(ctx context.Context, userID, term string) ([]MessageMatch, error) {
	if term == "" {
		return []MessageMatch{}, nil
	}

	all, err := s.Messages(ctx, userID)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(term)
	var matches []MessageMatch
	for _, m := range all {
		if !strings.Contains(strings.ToLower(m.Content), needle) {
			continue
		}
		matches = append(matches, MessageMatch{Message: m, Preview: preview(m.Content, previewRunes)})
	}
	return matches, nil
}

const previewRunes = 100

// preview cuts s to at most n runes, marking the cut with "...".
func preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

func (s *DB) messages(ctx context.Context, query string, args ...any) ([]Message, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.UserID, &m.Timestamp, &m.Role, &m.Content); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
