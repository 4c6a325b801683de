package history

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akolk/loki-nexus2/storage"
)

type memStore struct {
	msgs      []storage.Message // chronological
	lastLimit int
	err       error
}

func (s *memStore) RecentMessages(_ context.Context, _ string, limit int) ([]storage.Message, error) {
	s.lastLimit = limit
	if s.err != nil {
		return nil, s.err
	}
	var out []storage.Message
	for i := len(s.msgs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.msgs[i])
	}
	return out, nil
}

func TestLoad(t *testing.T) {
	store := &memStore{}
	for i := 0; i < 12; i++ {
		role := storage.RoleUser
		if i%2 == 1 {
			role = storage.RoleModel
		}
		store.msgs = append(store.msgs, storage.Message{Role: role, Content: fmt.Sprintf("m%d", i)})
	}

	a := NewAdapter(store, 0)
	got, err := a.Load(context.Background(), "u1", 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultWindow, store.lastLimit)
	require.Len(t, got, 10)
	assert.Equal(t, "m2", got[0].Content)
	assert.Equal(t, "user", got[0].Role)
	assert.Equal(t, "m11", got[9].Content)
	assert.Equal(t, "assistant", got[9].Role)

	got, err = a.Load(context.Background(), "u1", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"m9", "m10", "m11"}, []string{got[0].Content, got[1].Content, got[2].Content})
}

func TestLoadSkipsUnknownRoles(t *testing.T) {
	store := &memStore{msgs: []storage.Message{
		{Role: storage.RoleUser, Content: "hi"},
		{Role: "system", Content: "ignored"},
		{Role: storage.RoleModel, Content: "hello"},
	}}
	got, err := NewAdapter(store, 5).Load(context.Background(), "u1", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "hi", got[0].Content)
	assert.Equal(t, "hello", got[1].Content)
}

func TestLoadError(t *testing.T) {
	_, err := NewAdapter(&memStore{err: errors.New("db down")}, 0).Load(context.Background(), "u1", 0)
	assert.ErrorContains(t, err, "db down")
}
