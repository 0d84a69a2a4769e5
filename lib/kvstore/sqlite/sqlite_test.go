package sqlite

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ccontavalli/nativestore/lib/kvstore/loadertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempPath(t *testing.T) string {
	t.Helper()
	tmp, err := os.CreateTemp("", "kvstore-sqlite-*.db")
	require.NoError(t, err)
	path := tmp.Name()
	require.NoError(t, tmp.Close())
	t.Cleanup(func() {
		os.Remove(path)
		os.Remove(path + "-wal")
		os.Remove(path + "-shm")
	})
	return path
}

func TestSQLiteLoader(t *testing.T) {
	db, err := New(WithPath(tempPath(t)), WithJournalMode("WAL"))
	require.NoError(t, err)
	defer db.Close()

	loadertest.Run(t, db.Open)
}

func TestSQLiteStoresRawBytes(t *testing.T) {
	db, err := New(WithPath(tempPath(t)))
	require.NoError(t, err)
	defer db.Close()

	loader, err := db.Open("myapp", "raw")
	require.NoError(t, err)

	err = loader.Write("bad", []byte("{"))
	assert.NoError(t, err)

	data, err := loader.Read("bad")
	assert.NoError(t, err)
	assert.Equal(t, []byte("{"), data)
}

func TestSQLiteSource(t *testing.T) {
	opts := options{dsn: "/tmp/x.db", busyTimeout: 10, journalMode: "WAL"}
	assert.Equal(t, "/tmp/x.db?_pragma=busy_timeout(10)&_pragma=journal_mode(WAL)", opts.source())

	opts = options{dsn: "file:x.db?mode=rwc", synchronous: "OFF"}
	assert.Equal(t, "file:x.db?mode=rwc&_pragma=synchronous(OFF)", opts.source())

	opts = options{dsn: "plain.db"}
	assert.Equal(t, "plain.db", opts.source())
}

func TestSQLiteFromFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "flags.db")
	flags := DefaultFlags()
	flags.Path = path

	db, err := New(FromFlags(flags, "myapp"))
	require.NoError(t, err)
	defer db.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err)
}
