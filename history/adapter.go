// Package history turns stored chat turns into provider messages.
package history

import (
	"context"
	"fmt"

	"github.com/akolk/loki-nexus2/model"
	"github.com/akolk/loki-nexus2/storage"
)

const DefaultWindow = 10

// Store returns up to limit stored messages for a caller, newest first.
type Store interface {
	RecentMessages(ctx context.Context, callerID string, limit int) ([]storage.Message, error)
}

type Adapter struct {
	store  Store
	window int
}

// NewAdapter creates an adapter; window <= 0 uses DefaultWindow.
func NewAdapter(store Store, window int) *Adapter {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Adapter{store: store, window: window}
}

// Load returns the caller's last max messages in chronological order.
// max <= 0 uses the adapter's window.
func (a *Adapter) Load(ctx context.Context, callerID string, max int) ([]model.Message, error) {
	if max <= 0 {
		max = a.window
	}

	stored, err := a.store.RecentMessages(ctx, callerID, max)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	out := make([]model.Message, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		m := stored[i]
		var role string
		switch m.Role {
		case storage.RoleUser:
			role = "user"
		case storage.RoleModel:
			role = "assistant"
		default:
			continue
		}
		out = append(out, model.Message{Role: role, Content: m.Content, Timestamp: m.Timestamp})
	}
	return out, nil
}
