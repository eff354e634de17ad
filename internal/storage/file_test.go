package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileBackendReadMissing(t *testing.T) {
	b := NewFileBackend(filepath.Join(t.TempDir(), "config.json"))

	_, err := b.Read(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileBackendWriteThenRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "config.json")
	b := NewFileBackend(path)
	ctx := context.Background()

	require.NoError(t, b.Write(ctx, []byte(`{"forwards":{}}`)))
	require.NoError(t, b.Write(ctx, []byte(`{"forwards":{"a":{"destination":1,"sources":[]}}}`)))

	data, err := b.Read(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"forwards":{"a":{"destination":1,"sources":[]}}}`, string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
	assert.Equal(t, "file:"+path, b.Location())
}

func TestFileBackendReadDirectoryIsUnavailable(t *testing.T) {
	b := NewFileBackend(t.TempDir())

	_, err := b.Read(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestFileBackendWriteUnderFileIsUnavailable(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	b := NewFileBackend(filepath.Join(blocker, "config.json"))
	err := b.Write(context.Background(), []byte(`{}`))
	assert.ErrorIs(t, err, ErrUnavailable)
}
