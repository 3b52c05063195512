package kv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBadgerStoreRoundTrip(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	_, ok, err := store.Get("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set("k", []byte("v")))

	got, ok, err := store.Get("k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), got)

	require.NoError(t, store.Delete("k"))
	_, ok, err = store.Get("k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBadgerStoreOverwrite(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Set("k", []byte("old")))
	require.NoError(t, store.Set("k", []byte("new")))

	got, ok, err := store.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("new"), got)
}

func TestAccountKey(t *testing.T) {
	a := AccountKey("my account", "pending")
	b := AccountKey("my account", "pending")
	c := AccountKey("other", "pending")

	assert.Equal(t, a, b, "hashing is stable")
	assert.NotEqual(t, a, c, "accounts are partitioned")
	assert.NotContains(t, a, "my account", "display name never leaks into the keyspace")
}

func TestMemStoreIsolation(t *testing.T) {
	store := NewMemStore()
	require.NoError(t, store.Set("k", []byte("v")))

	got, ok, err := store.Get("k")
	require.NoError(t, err)
	require.True(t, ok)

	got[0] = 'x'
	again, _, _ := store.Get("k")
	assert.Equal(t, []byte("v"), again, "callers cannot mutate stored values")
}
