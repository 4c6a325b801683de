package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var ErrUserNotFound = errors.New("user not found")

const DefaultStyle = "concise"

// Profile is the per-user preference blob stored as soul_data.
type Profile struct {
	Style       string         `json:"style"`
	Preferences map[string]any `json:"preferences"`
}

type User struct {
	ID        string
	Username  string
	Profile   Profile
	CreatedAt time.Time
}

// EnsureUser returns the user named username, creating it with the default
// profile when missing.
func (s *DB) EnsureUser(ctx context.Context, username string) (*User, error) {
	u, err := s.GetUserByName(ctx, username)
	if err == nil || !errors.Is(err, ErrUserNotFound) {
		return u, err
	}

	u = &User{
		ID:        uuid.NewString(),
		Username:  username,
		Profile:   Profile{Style: DefaultStyle, Preferences: map[string]any{}},
		CreatedAt: time.Now().UTC(),
	}
	soul, err := json.Marshal(u.Profile)
	if err != nil {
		return nil, err
	}

	_, err = s.exec(ctx, `INSERT INTO users (id, username, soul_data, created_at) VALUES (?, ?, ?, ?)`,
		u.ID, u.Username, string(soul), u.CreatedAt)
	if err != nil {
		// Lost a race with a concurrent insert of the same name.
		if existing, gerr := s.GetUserByName(ctx, username); gerr == nil {
			return existing, nil
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return u, nil
}

func (s *DB) GetUser(ctx context.Context, id string) (*User, error) {
	return s.scanUser(s.queryRow(ctx, `SELECT id, username, soul_data, created_at FROM users WHERE id = ?`, id), id)
}

func (s *DB) GetUserByName(ctx context.Context, username string) (*User, error) {
	return s.scanUser(s.queryRow(ctx, `SELECT id, username, soul_data, created_at FROM users WHERE username = ?`, username), username)
}

// UpdateProfile replaces the stored profile of user id.
func (s *DB) UpdateProfile(ctx context.Context, id string, p Profile) error {
	soul, err := json.Marshal(p)
	if err != nil {
		return err
	}
	res, err := s.exec(ctx, `UPDATE users SET soul_data = ? WHERE id = ?`, string(soul), id)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", id, ErrUserNotFound)
	}
	return nil
}

func (s *DB) scanUser(row interface{ Scan(...any) error }, key string) (*User, error) {
	var (
		u    User
		soul string
	)
	err := row.Scan(&u.ID, &u.Username, &soul, &u.CreatedAt)
	switch {
	case isNoRows(err):
		return nil, fmt.Errorf("%s: %w", key, ErrUserNotFound)
	case err != nil:
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if err := json.Unmarshal([]byte(soul), &u.Profile); err != nil {
		return nil, fmt.Errorf("failed to decode profile of %s: %w", u.Username, err)
	}
	if u.Profile.Style == "" {
		u.Profile.Style = DefaultStyle
	}
	if u.Profile.Preferences == nil {
		u.Profile.Preferences = map[string]any{}
	}
	return &u, nil
}
