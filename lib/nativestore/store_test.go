package nativestore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ccontavalli/nativestore/lib/kvstore"
	kvbbolt "github.com/ccontavalli/nativestore/lib/kvstore/bbolt"
	"github.com/ccontavalli/nativestore/lib/kvstore/directory"
	"github.com/ccontavalli/nativestore/lib/kvstore/marshal"
	"github.com/ccontavalli/nativestore/lib/kvstore/memory"
	kvpebble "github.com/ccontavalli/nativestore/lib/kvstore/pebble"
	"github.com/ccontavalli/nativestore/lib/kvstore/sqlite"
	"github.com/ccontavalli/nativestore/lib/logger"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type backend struct {
	name string
	open func(t *testing.T) kvstore.Opener
}

func backends() []backend {
	return []backend{
		{"memory", func(t *testing.T) kvstore.Opener {
			db := memory.NewMemory()
			t.Cleanup(func() { db.Close() })
			return db.Open
		}},
		{"directory", func(t *testing.T) kvstore.Opener {
			return directory.Opener(t.TempDir())
		}},
		{"bbolt", func(t *testing.T) kvstore.Opener {
			db, err := kvbbolt.New(kvbbolt.WithPath(filepath.Join(t.TempDir(), "store.bbolt")), kvbbolt.WithNoSync(true))
			require.NoError(t, err)
			t.Cleanup(func() { db.Close() })
			return db.Open
		}},
		{"sqlite", func(t *testing.T) kvstore.Opener {
			db, err := sqlite.New(sqlite.WithPath(filepath.Join(t.TempDir(), "store.sqlite")))
			require.NoError(t, err)
			t.Cleanup(func() { db.Close() })
			return db.Open
		}},
		{"pebble", func(t *testing.T) kvstore.Opener {
			db, err := kvpebble.New(kvpebble.WithMemory())
			require.NoError(t, err)
			t.Cleanup(func() { db.Close() })
			return db.Open
		}},
	}
}

func newStore(t *testing.T, loader kvstore.Loader, mods ...Modifier) *Store {
	t.Helper()
	store, err := New(loader, append([]Modifier{WithLogger(logger.Nil)}, mods...)...)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func mustGetArray(t *testing.T, store *Store, key string) []string {
	t.Helper()
	items, ok, err := store.GetStringArray(key)
	require.NoError(t, err)
	require.True(t, ok, "array %q should be present", key)
	return items
}

func TestStoreBackends(t *testing.T) {
	for _, b := range backends() {
		b := b
		t.Run(b.name, func(t *testing.T) {
			opener := b.open(t)
			for _, codec := range marshal.Known {
				t.Run(codec.Name(), func(t *testing.T) {
					loader, err := opener("nativestore", t.Name())
					require.NoError(t, err)
					runStoreProperties(t, opener, loader, codec)
				})
			}
		})
	}
}

func runStoreProperties(t *testing.T, opener kvstore.Opener, loader kvstore.Loader, codec marshal.ArrayCodec) {
	store := newStore(t, loader, WithCodec(codec))

	t.Run("RoundTrip", func(t *testing.T) {
		arrays := [][]string{
			{},
			{"a"},
			{"a", "a", "b"},
			{"", "with space", "ünïcödé", `quote " and \ backslash`, "[1,2]"},
		}
		for i, items := range arrays {
			key := fmt.Sprintf("round-%d", i)
			require.NoError(t, store.SetStringArray(key, items))
			got := mustGetArray(t, store, key)
			if diff := cmp.Diff(items, got); diff != "" {
				t.Errorf("cached %q mismatch (-want +got):\n%s", key, diff)
			}

			// A second store has an empty cache, so this goes to disk.
			fresh := newStore(t, loader, WithCodec(codec))
			got = mustGetArray(t, fresh, key)
			if diff := cmp.Diff(items, got); diff != "" {
				t.Errorf("durable %q mismatch (-want +got):\n%s", key, diff)
			}
		}
	})

	t.Run("ScalarVerbatim", func(t *testing.T) {
		for _, value := range []string{"", "plain", `["looks","like","json"]`, "multi\nline"} {
			require.NoError(t, store.SetItem("scalar", value))
			got, ok, err := store.GetItem("scalar")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, value, got)
		}
	})

	t.Run("Append", func(t *testing.T) {
		require.NoError(t, store.SetStringArray("x", []string{"p"}))
		require.NoError(t, store.AppendToStringArray("x", "q"))
		assert.Equal(t, []string{"p", "q"}, mustGetArray(t, store, "x"))

		require.NoError(t, store.AppendToStringArray("append-new", "first"))
		assert.Equal(t, []string{"first"}, mustGetArray(t, store, "append-new"))

		fresh := newStore(t, loader, WithCodec(codec))
		assert.Equal(t, []string{"p", "q"}, mustGetArray(t, fresh, "x"))
	})

	t.Run("OneByOneMatchesBulk", func(t *testing.T) {
		var items []string
		for i := 0; i < 100; i++ {
			value := fmt.Sprintf("test-%d", i)
			items = append(items, value)
			require.NoError(t, store.AppendToStringArray("one-by-one", value))
		}
		require.NoError(t, store.SetStringArrayBulk("bulk", items))

		assert.Equal(t, items, mustGetArray(t, store, "one-by-one"))
		assert.Equal(t, items, mustGetArray(t, store, "bulk"))
	})

	t.Run("Remove", func(t *testing.T) {
		require.NoError(t, store.SetStringArray("w", []string{"a", "b"}))
		assert.Equal(t, []string{"a", "b"}, mustGetArray(t, store, "w"))
		require.NoError(t, store.RemoveItem("w"))

		_, ok, err := store.GetStringArray("w")
		require.NoError(t, err)
		assert.False(t, ok)

		fresh := newStore(t, loader, WithCodec(codec))
		_, ok, err = fresh.GetStringArray("w")
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, store.RemoveItem("never-written"))
	})

	t.Run("Clear", func(t *testing.T) {
		require.NoError(t, store.SetStringArray("array", []string{"a"}))
		require.NoError(t, store.SetItem("item", "value"))
		require.NoError(t, store.Clear())

		_, ok, err := store.GetStringArray("array")
		require.NoError(t, err)
		assert.False(t, ok)
		_, ok, err = store.GetItem("item")
		require.NoError(t, err)
		assert.False(t, ok)

		names, err := loader.List()
		require.NoError(t, err)
		assert.Empty(t, names)
	})

	t.Run("EmptyKey", func(t *testing.T) {
		require.NoError(t, store.SetStringArray("", []string{"a"}))
		require.NoError(t, store.AppendToStringArray("", "b"))
		fresh := newStore(t, loader, WithCodec(codec))
		assert.Equal(t, []string{"a", "b"}, mustGetArray(t, fresh, ""))

		require.NoError(t, store.SetItem("", "scalar"))
		value, ok, err := store.GetItem("")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "scalar", value)

		require.NoError(t, store.RemoveItem(""))
		_, ok, err = store.GetItem("")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("EmptyIsNotAbsent", func(t *testing.T) {
		require.NoError(t, store.SetStringArray("empty", nil))
		items, ok, err := store.GetStringArray("empty")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.NotNil(t, items)
		assert.Empty(t, items)

		fresh := newStore(t, loader, WithCodec(codec))
		items, ok, err = fresh.GetStringArray("empty")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Empty(t, items)
	})

	t.Run("Restart", func(t *testing.T) {
		require.NoError(t, store.SetStringArray("persisted", []string{"a", "b"}))
		require.NoError(t, store.AppendToStringArray("persisted", "c"))

		reopened, err := opener("nativestore", filepath.Dir(t.Name()))
		require.NoError(t, err)
		fresh := newStore(t, reopened, WithCodec(codec))
		assert.Equal(t, []string{"a", "b", "c"}, mustGetArray(t, fresh, "persisted"))
	})
}

// countingLoader counts calls, and fails them on demand.
type countingLoader struct {
	kvstore.Loader

	reads, writes, deletes, clears atomic.Int32
	fail                           atomic.Bool
}

var errInjected = errors.New("injected failure")

func (c *countingLoader) Read(name string) ([]byte, error) {
	c.reads.Add(1)
	if c.fail.Load() {
		return nil, errInjected
	}
	return c.Loader.Read(name)
}

func (c *countingLoader) Write(name string, data []byte) error {
	c.writes.Add(1)
	if c.fail.Load() {
		return errInjected
	}
	return c.Loader.Write(name, data)
}

func (c *countingLoader) Delete(name string) error {
	c.deletes.Add(1)
	if c.fail.Load() {
		return errInjected
	}
	return c.Loader.Delete(name)
}

func (c *countingLoader) Clear() error {
	c.clears.Add(1)
	if c.fail.Load() {
		return errInjected
	}
	return c.Loader.Clear()
}

func TestCacheHitSkipsBackend(t *testing.T) {
	loader := &countingLoader{Loader: memory.New()}
	store := newStore(t, loader)

	require.NoError(t, store.SetStringArray("key", []string{"a"}))
	for i := 0; i < 5; i++ {
		assert.Equal(t, []string{"a"}, mustGetArray(t, store, "key"))
	}
	assert.EqualValues(t, 0, loader.reads.Load())

	fresh := newStore(t, loader)
	for i := 0; i < 5; i++ {
		assert.Equal(t, []string{"a"}, mustGetArray(t, fresh, "key"))
	}
	assert.EqualValues(t, 1, loader.reads.Load())
}

func TestAbsentIsNotCached(t *testing.T) {
	loader := &countingLoader{Loader: memory.New()}
	store := newStore(t, loader)

	for i := 0; i < 3; i++ {
		items, ok, err := store.GetStringArray("missing")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, items)
	}
	assert.EqualValues(t, 3, loader.reads.Load())
	assert.Equal(t, 0, store.cache.Len())

	// Written by someone else after the miss: must be visible.
	data, err := marshal.JSON.Encode([]string{"late"})
	require.NoError(t, err)
	require.NoError(t, loader.Write("missing", data))
	assert.Equal(t, []string{"late"}, mustGetArray(t, store, "missing"))
}

func TestReturnedSlicesAreCopies(t *testing.T) {
	store := newStore(t, memory.New())

	input := []string{"a", "b"}
	require.NoError(t, store.SetStringArray("key", input))
	input[0] = "changed"

	got := mustGetArray(t, store, "key")
	assert.Equal(t, []string{"a", "b"}, got)
	got[1] = "changed"
	_ = append(got[:1], "appended")

	assert.Equal(t, []string{"a", "b"}, mustGetArray(t, store, "key"))
}

func TestGetItemDoesNotTouchCache(t *testing.T) {
	store := newStore(t, memory.New())

	require.NoError(t, store.SetStringArray("key", []string{"a"}))
	value, ok, err := store.GetItem("key")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `["a"]`, value)

	// Overwriting an array with a scalar drops the stale cache entry.
	require.NoError(t, store.SetItem("key", `["b"]`))
	assert.Equal(t, []string{"b"}, mustGetArray(t, store, "key"))
}

func TestWriteFailureLeavesCache(t *testing.T) {
	loader := &countingLoader{Loader: memory.New()}
	store := newStore(t, loader)

	require.NoError(t, store.SetStringArray("key", []string{"a"}))
	loader.fail.Store(true)

	var writeErr *StorageWriteError
	err := store.SetStringArray("key", []string{"b"})
	require.ErrorAs(t, err, &writeErr)
	assert.Equal(t, "key", writeErr.Key)
	assert.Equal(t, "set", writeErr.Op)
	assert.ErrorIs(t, err, errInjected)

	err = store.AppendToStringArray("key", "c")
	assert.ErrorAs(t, err, &writeErr)

	err = store.SetItem("scalar", "value")
	assert.ErrorAs(t, err, &writeErr)

	// The cache still matches the durable record, and serves it.
	assert.Equal(t, []string{"a"}, mustGetArray(t, store, "key"))

	err = store.RemoveItem("key")
	require.ErrorAs(t, err, &writeErr)
	assert.Equal(t, "remove", writeErr.Op)
	assert.Equal(t, 0, store.cache.Len())

	loader.fail.Store(false)
	require.NoError(t, store.SetStringArray("other", nil))
	assert.Equal(t, 1, store.cache.Len())
	loader.fail.Store(true)
	err = store.Clear()
	require.ErrorAs(t, err, &writeErr)
	assert.Equal(t, "clear", writeErr.Op)
	assert.Equal(t, 0, store.cache.Len())

	loader.fail.Store(false)
	assert.Equal(t, []string{"a"}, mustGetArray(t, store, "key"))
	fresh := newStore(t, loader)
	assert.Equal(t, []string{"a"}, mustGetArray(t, fresh, "key"))
}

// partialLoader deletes records, then reports a failure anyway, the way a
// backend removing files one at a time can.
type partialLoader struct {
	kvstore.Loader
}

func (p *partialLoader) Delete(name string) error {
	if err := p.Loader.Delete(name); err != nil {
		return err
	}
	return errInjected
}

func (p *partialLoader) Clear() error {
	if err := p.Loader.Clear(); err != nil {
		return err
	}
	return errInjected
}

// requireCacheMatchesDurable compares the store with a fresh store, whose
// reads all come from the durable record.
func requireCacheMatchesDurable(t *testing.T, store *Store, keys ...string) {
	t.Helper()
	fresh := newStore(t, store.loader)
	for _, key := range keys {
		cached, cachedOK, err := store.GetStringArray(key)
		require.NoError(t, err)
		durable, durableOK, err := fresh.GetStringArray(key)
		require.NoError(t, err)
		assert.Equal(t, durableOK, cachedOK, "key %q", key)
		assert.Equal(t, durable, cached, "key %q", key)
	}
}

func TestFailedClearDropsCache(t *testing.T) {
	store := newStore(t, &partialLoader{Loader: memory.New()})

	require.NoError(t, store.SetStringArray("w", []string{"a"}))
	require.NoError(t, store.SetStringArray("x", []string{"b", "c"}))

	var writeErr *StorageWriteError
	require.ErrorAs(t, store.Clear(), &writeErr)
	assert.Equal(t, "clear", writeErr.Op)

	_, ok, err := store.GetStringArray("w")
	require.NoError(t, err)
	assert.False(t, ok)
	requireCacheMatchesDurable(t, store, "w", "x")
}

func TestFailedRemoveDropsCache(t *testing.T) {
	store := newStore(t, &partialLoader{Loader: memory.New()})

	require.NoError(t, store.SetStringArray("w", []string{"a"}))

	var writeErr *StorageWriteError
	require.ErrorAs(t, store.RemoveItem("w"), &writeErr)
	assert.Equal(t, "remove", writeErr.Op)

	_, ok, err := store.GetStringArray("w")
	require.NoError(t, err)
	assert.False(t, ok)
	requireCacheMatchesDurable(t, store, "w")
}

func TestReadFailure(t *testing.T) {
	loader := &countingLoader{Loader: memory.New()}
	store := newStore(t, loader)
	loader.fail.Store(true)

	var readErr *StorageReadError
	_, ok, err := store.GetStringArray("key")
	require.ErrorAs(t, err, &readErr)
	assert.False(t, ok)
	assert.Equal(t, "key", readErr.Key)

	_, _, err = store.GetItem("key")
	assert.ErrorAs(t, err, &readErr)
	assert.Equal(t, 0, store.cache.Len())
}

func TestDecodingError(t *testing.T) {
	loader := memory.New()
	store := newStore(t, loader)

	for _, corrupt := range []string{"", "not json", "{}", "null", `[1,2]`, `["a"`} {
		require.NoError(t, store.SetItem("corrupt", corrupt))

		var decodeErr *DecodingError
		_, ok, err := store.GetStringArray("corrupt")
		require.ErrorAs(t, err, &decodeErr, "record %q", corrupt)
		assert.False(t, ok)
		assert.Equal(t, "corrupt", decodeErr.Key)
		assert.Equal(t, "json", decodeErr.Codec)
		assert.Equal(t, 0, store.cache.Len())

		// Appending must not replace the unreadable record.
		assert.ErrorAs(t, store.AppendToStringArray("corrupt", "x"), &decodeErr)
		data, err := loader.Read("corrupt")
		require.NoError(t, err)
		assert.Equal(t, corrupt, string(data))
	}

	// Overwriting recovers.
	require.NoError(t, store.SetStringArray("corrupt", []string{"ok"}))
	assert.Equal(t, []string{"ok"}, mustGetArray(t, store, "corrupt"))
}

func TestEncodingError(t *testing.T) {
	loader := &countingLoader{Loader: memory.New()}
	store := newStore(t, loader)

	var encodeErr *EncodingError
	err := store.SetStringArray("key", []string{"\xff"})
	require.ErrorAs(t, err, &encodeErr)
	assert.Equal(t, "key", encodeErr.Key)
	assert.EqualValues(t, 0, loader.writes.Load())
	assert.Equal(t, 0, store.cache.Len())

	cbor := newStore(t, memory.New(), WithCodec(marshal.CBOR))
	require.NoError(t, cbor.SetStringArray("key", []string{"\xff"}))
	assert.Equal(t, []string{"\xff"}, mustGetArray(t, cbor, "key"))
}

func TestConcurrentAppends(t *testing.T) {
	for _, b := range backends() {
		b := b
		t.Run(b.name, func(t *testing.T) {
			loader, err := b.open(t)("nativestore", "concurrent")
			require.NoError(t, err)
			store := newStore(t, loader)

			const writers, perWriter = 8, 25
			var wg sync.WaitGroup
			for w := 0; w < writers; w++ {
				wg.Add(1)
				go func(w int) {
					defer wg.Done()
					for i := 0; i < perWriter; i++ {
						assert.NoError(t, store.AppendToStringArray("shared", fmt.Sprintf("%d-%d", w, i)))
						assert.NoError(t, store.AppendToStringArray(fmt.Sprintf("own-%d", w), "x"))
					}
				}(w)
			}
			wg.Wait()

			assert.Len(t, mustGetArray(t, store, "shared"), writers*perWriter)
			for w := 0; w < writers; w++ {
				assert.Len(t, mustGetArray(t, store, fmt.Sprintf("own-%d", w)), perWriter)
			}
			assert.Equal(t, 0, store.locks.size())
		})
	}
}

func TestClearExcludesWriters(t *testing.T) {
	store := newStore(t, memory.New())

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				assert.NoError(t, store.AppendToStringArray(fmt.Sprintf("key-%d", w), "x"))
			}
		}(w)
	}
	for i := 0; i < 10; i++ {
		assert.NoError(t, store.Clear())
	}
	wg.Wait()

	// Whatever survived the clears, cache and durable store agree.
	requireCacheMatchesDurable(t, store, "key-0", "key-1", "key-2", "key-3")
}

func TestClose(t *testing.T) {
	store, err := New(memory.New(), WithLogger(logger.Nil))
	require.NoError(t, err)
	require.NoError(t, store.SetStringArray("key", []string{"a"}))
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	assert.ErrorIs(t, store.SetItem("key", "v"), ErrStoreClosed)
	_, _, err = store.GetItem("key")
	assert.ErrorIs(t, err, ErrStoreClosed)
	_, _, err = store.GetStringArray("key")
	assert.ErrorIs(t, err, ErrStoreClosed)
	assert.ErrorIs(t, store.SetStringArray("key", nil), ErrStoreClosed)
	assert.ErrorIs(t, store.SetStringArrayBulk("key", nil), ErrStoreClosed)
	assert.ErrorIs(t, store.AppendToStringArray("key", "v"), ErrStoreClosed)
	assert.ErrorIs(t, store.RemoveItem("key"), ErrStoreClosed)
	assert.ErrorIs(t, store.Clear(), ErrStoreClosed)
	assert.Equal(t, 0, store.cache.Len())
}

func TestOptions(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	_, err = New(memory.New(), WithCodec(nil))
	assert.Error(t, err)

	_, err = New(memory.New(), WithCache(nil))
	assert.Error(t, err)

	_, err = New(memory.New(), FromFlags(&Flags{Codec: "yaml"}))
	assert.ErrorContains(t, err, "unknown array codec")

	store := newStore(t, memory.New(), FromFlags(&Flags{Codec: "cbor"}))
	assert.Equal(t, marshal.CBOR, store.codec)

	store = newStore(t, memory.New(), FromFlags(DefaultFlags()))
	assert.Equal(t, marshal.JSON, store.codec)

	cache := NewMapCache()
	store = newStore(t, memory.New(), WithCache(cache))
	require.NoError(t, store.SetStringArray("key", []string{"a"}))
	assert.Equal(t, 1, cache.Len())
}

func TestRemoveMissingOnDisk(t *testing.T) {
	loader, err := directory.OpenDir(t.TempDir())
	require.NoError(t, err)
	store := newStore(t, loader)

	require.NoError(t, store.SetStringArray("key", []string{"a"}))
	require.NoError(t, os.Remove(filepath.Join(loader.Dir(), "key.kv")))
	require.NoError(t, store.RemoveItem("key"))

	_, ok, err := store.GetStringArray("key")
	require.NoError(t, err)
	assert.False(t, ok)
}
