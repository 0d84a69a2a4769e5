package storebench

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWords(t *testing.T) {
	store := newNativeStore(t)

	words, err := Words(store)
	require.NoError(t, err)
	assert.NotNil(t, words)
	assert.Empty(t, words)

	require.NoError(t, AddWord(store, "  hello "))
	require.NoError(t, AddWord(store, "   "))
	require.NoError(t, AddWord(store, ""))
	require.NoError(t, AddWord(store, "world"))
	require.NoError(t, AddWord(store, "hello"))

	words, err = Words(store)
	require.NoError(t, err)
	assert.Equal(t, []string{"hello", "world", "hello"}, words)

	require.NoError(t, store.SetItem("other", "value"))
	require.NoError(t, ClearAll(store))
	words, err = Words(store)
	require.NoError(t, err)
	assert.Empty(t, words)
	_, ok, err := store.GetItem("other")
	require.NoError(t, err)
	assert.False(t, ok)
}
