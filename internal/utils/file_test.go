package utils

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "quotes.json")

	require.NoError(t, WriteFileAtomic(path, []byte("[]\n"), 0o644, nil))
	require.NoError(t, WriteFileAtomic(path, []byte("[{}]\n"), 0o644, nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[{}]\n", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWriteFileAtomicAbortKeepsPreviousContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "quotes.json")
	require.NoError(t, WriteFileAtomic(path, []byte("old"), 0o644, nil))

	var seen string
	err := WriteFileAtomic(path, []byte("new"), 0o644, func(tmp string) error {
		seen = tmp
		data, err := os.ReadFile(tmp)
		require.NoError(t, err)
		assert.Equal(t, "new", string(data))
		return errors.New("crash")
	})
	require.Error(t, err)
	assert.True(t, IsTempFile(filepath.Base(seen)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))

	_, err = os.Stat(seen)
	assert.True(t, os.IsNotExist(err))
}

func TestRemoveStaleTempFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".a.json.1.tmp"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".b.json.2.tmp"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.json"), []byte("[]"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".lock"), nil, 0o600))

	removed, err := RemoveStaleTempFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
