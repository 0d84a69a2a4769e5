// Package loadertest contains the behavior every kvstore.Loader must have,
// as a test suite backends run against themselves.
package loadertest

import (
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/ccontavalli/nativestore/lib/kvstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises the loaders returned by open.
//
// Every subtest opens its own namespace, so backends can share a single
// database across the whole run.
func Run(t *testing.T, open kvstore.Opener) {
	t.Helper()

	loader := func(t *testing.T, namespaces ...string) kvstore.Loader {
		t.Helper()
		l, err := open("loadertest", append([]string{t.Name()}, namespaces...)...)
		require.NoError(t, err)
		return l
	}

	t.Run("ReadMissing", func(t *testing.T) {
		l := loader(t)
		_, err := l.Read("missing")
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("WriteRead", func(t *testing.T) {
		l := loader(t)
		require.NoError(t, l.Write("key", []byte("first")))
		data, err := l.Read("key")
		assert.NoError(t, err)
		assert.Equal(t, []byte("first"), data)

		require.NoError(t, l.Write("key", []byte("second")))
		data, err = l.Read("key")
		assert.NoError(t, err)
		assert.Equal(t, []byte("second"), data)
	})

	t.Run("EmptyValue", func(t *testing.T) {
		l := loader(t)
		require.NoError(t, l.Write("empty", []byte{}))
		data, err := l.Read("empty")
		assert.NoError(t, err)
		assert.Len(t, data, 0)
	})

	t.Run("ReadReturnsCopy", func(t *testing.T) {
		l := loader(t)
		require.NoError(t, l.Write("key", []byte("value")))
		data, err := l.Read("key")
		require.NoError(t, err)
		data[0] = 'X'

		data, err = l.Read("key")
		assert.NoError(t, err)
		assert.Equal(t, []byte("value"), data)
	})

	t.Run("UnusualKeys", func(t *testing.T) {
		l := loader(t)
		keys := []string{"a/b%", "..", "unicode-ключ", "with space", "foo.kv"}
		for i, key := range keys {
			require.NoError(t, l.Write(key, []byte(fmt.Sprint(i))), "key %q", key)
		}
		for i, key := range keys {
			data, err := l.Read(key)
			assert.NoError(t, err, "key %q", key)
			assert.Equal(t, []byte(fmt.Sprint(i)), data, "key %q", key)
		}
		names, err := l.List()
		assert.NoError(t, err)
		assert.ElementsMatch(t, keys, names)
	})

	t.Run("EmptyKey", func(t *testing.T) {
		l := loader(t)
		_, err := l.Read("")
		assert.ErrorIs(t, err, os.ErrNotExist)

		require.NoError(t, l.Write("", []byte("value")))
		require.NoError(t, l.Write("other", []byte("other")))
		data, err := l.Read("")
		assert.NoError(t, err)
		assert.Equal(t, []byte("value"), data)

		names, err := l.List()
		assert.NoError(t, err)
		assert.ElementsMatch(t, []string{"", "other"}, names)

		assert.NoError(t, l.Delete(""))
		_, err = l.Read("")
		assert.ErrorIs(t, err, os.ErrNotExist)
		data, err = l.Read("other")
		assert.NoError(t, err)
		assert.Equal(t, []byte("other"), data)
	})

	t.Run("Delete", func(t *testing.T) {
		l := loader(t)
		assert.ErrorIs(t, l.Delete("missing"), os.ErrNotExist)

		require.NoError(t, l.Write("key", []byte("value")))
		assert.NoError(t, l.Delete("key"))
		_, err := l.Read("key")
		assert.ErrorIs(t, err, os.ErrNotExist)
		assert.ErrorIs(t, l.Delete("key"), os.ErrNotExist)
	})

	t.Run("List", func(t *testing.T) {
		l := loader(t)
		names, err := l.List()
		assert.NoError(t, err)
		assert.Empty(t, names)

		for _, key := range []string{"one", "two", "three"} {
			require.NoError(t, l.Write(key, []byte(key)))
		}
		names, err = l.List()
		assert.NoError(t, err)
		assert.ElementsMatch(t, []string{"one", "two", "three"}, names)
	})

	t.Run("Clear", func(t *testing.T) {
		l := loader(t)
		assert.NoError(t, l.Clear())

		for _, key := range []string{"one", "two"} {
			require.NoError(t, l.Write(key, []byte(key)))
		}
		assert.NoError(t, l.Clear())

		names, err := l.List()
		assert.NoError(t, err)
		assert.Empty(t, names)
		_, err = l.Read("one")
		assert.ErrorIs(t, err, os.ErrNotExist)

		require.NoError(t, l.Write("one", []byte("again")))
		data, err := l.Read("one")
		assert.NoError(t, err)
		assert.Equal(t, []byte("again"), data)
	})

	t.Run("Isolation", func(t *testing.T) {
		first := loader(t, "first")
		second := loader(t, "second")

		require.NoError(t, first.Write("key", []byte("first")))
		require.NoError(t, second.Write("key", []byte("second")))
		require.NoError(t, second.Write("other", []byte("second")))

		assert.NoError(t, second.Clear())
		data, err := first.Read("key")
		assert.NoError(t, err)
		assert.Equal(t, []byte("first"), data)

		names, err := first.List()
		assert.NoError(t, err)
		assert.Equal(t, []string{"key"}, names)
	})

	t.Run("ConcurrentWrites", func(t *testing.T) {
		l := loader(t)
		const writers = 8
		const perWriter = 10

		var wg sync.WaitGroup
		errs := make(chan error, writers*perWriter)
		for w := 0; w < writers; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := 0; i < perWriter; i++ {
					errs <- l.Write(fmt.Sprintf("w%d-%d", w, i), []byte("value"))
				}
			}(w)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			assert.NoError(t, err)
		}

		names, err := l.List()
		assert.NoError(t, err)
		assert.Len(t, names, writers*perWriter)
	})
}
