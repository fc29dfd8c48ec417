package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlobStorePutGetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "blobs.sqlite"))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Put("a", []byte("hello")))
	got, err := s.Get("a")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)
}

func TestBlobStorePurgeRemovesAll(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "blobs.sqlite"))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Put("a", []byte("x")))
	require.NoError(t, s.Purge())
	_, err = s.Get("a")
	assert.Error(t, err)
}

func TestCacheServesFromMemoryAndFallsThrough(t *testing.T) {
	dir := t.TempDir()
	backing, err := Open(filepath.Join(dir, "blobs.sqlite"))
	require.NoError(t, err)
	defer backing.Close()

	c := NewCache(backing, 1)
	require.NoError(t, c.Put("a", []byte("1")))
	require.NoError(t, c.Put("b", []byte("2"))) // evicts "a" from memory

	got, err := c.Get("a") // falls through to backing store
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), got)

	got, err = c.Get("b")
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), got)
}

func TestCachePurgeClearsBackingAndMemory(t *testing.T) {
	dir := t.TempDir()
	backing, err := Open(filepath.Join(dir, "blobs.sqlite"))
	require.NoError(t, err)
	defer backing.Close()

	c := NewCache(backing, 4)
	require.NoError(t, c.Put("a", []byte("1")))
	require.NoError(t, c.Purge())
	_, err = c.Get("a")
	assert.Error(t, err)
}
