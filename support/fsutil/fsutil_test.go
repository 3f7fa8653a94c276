package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	exists, err := FileExists(dir)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = FileExists(filepath.Join(dir, "nope"))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestEnsureDir(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "a", "b", "c")
	require.NoError(t, EnsureDir(nested))
	assert.True(t, MustFileExists(nested))

	// Idempotent.
	require.NoError(t, EnsureDir(nested))

	// A regular file in the way is an error.
	filePath := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(filePath, []byte("x"), 0664))
	assert.Error(t, EnsureDir(filePath))
}

func TestAtomicWriteFile(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "marker.txt")

	require.NoError(t, AtomicWriteFile(target, []byte("first\n"), 0664))
	contents, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "first\n", string(contents))

	// Overwrite replaces the whole contents.
	require.NoError(t, AtomicWriteFile(target, []byte("second\n"), 0664))
	contents, err = os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "second\n", string(contents))

	// No temporary files are left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "marker.txt", entries[0].Name())
}
