package factory

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultFlags(t *testing.T) {
	flags := DefaultFlags()
	assert.Equal(t, StoreDirectory, flags.StoreType)
	assert.NotNil(t, flags.SQLite)
	assert.NotNil(t, flags.BBolt)
	assert.NotNil(t, flags.Pebble)
}

func TestNewUnknownStore(t *testing.T) {
	flags := DefaultFlags()
	flags.StoreType = "unknown-type"
	_, err := New(FromFlags(flags))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown store type")
}

func TestNewDirectoryStore(t *testing.T) {
	tmpDir := t.TempDir()

	backend, err := New(WithStoreType(StoreDirectory), WithDirectoryPath(tmpDir))
	require.NoError(t, err)
	defer backend.Close()

	loader, err := backend.Open("myapp", "testns")
	require.NoError(t, err)
	require.NoError(t, loader.Write("test-key", []byte("foo")))

	// Files land in DirectoryPath/app/namespace.
	_, err = os.Stat(filepath.Join(tmpDir, "myapp", "testns", "test-key.kv"))
	assert.NoError(t, err)

	data, err := loader.Read("test-key")
	assert.NoError(t, err)
	assert.Equal(t, []byte("foo"), data)
}

func TestNewMemoryStoreSharesNamespaces(t *testing.T) {
	backend, err := New(WithStoreType(StoreMemory))
	require.NoError(t, err)
	defer backend.Close()

	first, err := backend.Open("myapp")
	require.NoError(t, err)
	require.NoError(t, first.Write("key", []byte("value")))

	second, err := backend.Opener()("myapp")
	require.NoError(t, err)
	data, err := second.Read("key")
	assert.NoError(t, err)
	assert.Equal(t, []byte("value"), data)
}

func TestNewFileStores(t *testing.T) {
	for _, storeType := range []string{StoreBolt, StoreSQLite, StorePebble} {
		t.Run(storeType, func(t *testing.T) {
			dir := t.TempDir()
			flags := DefaultFlags()
			flags.StoreType = storeType
			flags.BBolt.Path = filepath.Join(dir, "store.bbolt")
			flags.SQLite.Path = filepath.Join(dir, "store.db")
			flags.Pebble.Path = filepath.Join(dir, "store.pebble")

			backend, err := New(FromFlags(flags))
			require.NoError(t, err)

			loader, err := backend.Open("myapp", "one")
			require.NoError(t, err)
			require.NoError(t, loader.Write("key", []byte("bar")))

			// A second namespace reuses the already open database.
			other, err := backend.Open("myapp", "two")
			require.NoError(t, err)
			_, err = other.Read("key")
			assert.ErrorIs(t, err, os.ErrNotExist)
			assert.Len(t, backend.closers, 1)

			data, err := loader.Read("key")
			assert.NoError(t, err)
			assert.Equal(t, []byte("bar"), data)
			assert.NoError(t, backend.Close())
		})
	}
}
