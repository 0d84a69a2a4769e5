package storebench

import (
	"strings"

	"github.com/ccontavalli/nativestore/lib/nativestore"
)

// WordsKey is the array holding the words entered by the user.
const WordsKey = "storedWords"

// AddWord appends word, trimmed, to the stored words. Blank words are ignored.
func AddWord(store *nativestore.Store, word string) error {
	word = strings.TrimSpace(word)
	if word == "" {
		return nil
	}
	return store.AppendToStringArray(WordsKey, word)
}

// Words returns the stored words, or an empty list if none was ever added.
func Words(store *nativestore.Store) ([]string, error) {
	words, ok, err := store.GetStringArray(WordsKey)
	if err != nil || !ok {
		return []string{}, err
	}
	return words, nil
}

// ClearAll removes everything in the store, the words included.
func ClearAll(store *nativestore.Store) error {
	return store.Clear()
}
