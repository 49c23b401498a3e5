package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryStore_GetSet(t *testing.T) {
	store := NewInMemoryStore()

	_, ok := store.Get(ID("s1"))
	assert.False(t, ok, "expected not found for empty store")

	st := &Session{ID: ID("s1"), Path: "/live/key"}
	store.Set(st)

	got, ok := store.Get(ID("s1"))
	require.True(t, ok)
	assert.Same(t, st, got)
}

func TestInMemoryStore_Set_replaces(t *testing.T) {
	store := NewInMemoryStore()
	st1 := &Session{ID: ID("s1"), Path: "/live/a"}
	st2 := &Session{ID: ID("s1"), Path: "/live/b"}
	store.Set(st1)
	store.Set(st2)

	got, ok := store.Get(ID("s1"))
	require.True(t, ok)
	assert.Same(t, st2, got)
	assert.Len(t, store.List(), 1)
}

func TestInMemoryStore_Delete(t *testing.T) {
	store := NewInMemoryStore()
	store.Set(&Session{ID: ID("s1")})
	store.Delete(ID("s1"))
	store.Delete(ID("missing"))

	assert.Empty(t, store.List())
}

func TestNewRegistryWithStore(t *testing.T) {
	store := NewInMemoryStore()
	reg := NewRegistryWithStore(store)

	reg.Add(Session{ID: ID("s1"), Path: "/live/key"})

	st, ok := store.Get(ID("s1"))
	require.True(t, ok, "injected store should contain the session after Add")
	assert.Equal(t, StateIdle, st.State)
}
