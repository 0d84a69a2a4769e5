package storebench

import (
	"errors"
	"os"

	"github.com/ccontavalli/nativestore/lib/kvstore"
	"github.com/ccontavalli/nativestore/lib/kvstore/marshal"
	"github.com/ccontavalli/nativestore/lib/nativestore"
)

// Contender is a key-value store measured by the harness.
//
// Absent keys read back as an empty array or an empty string, the way an
// application would treat them.
type Contender interface {
	Name() string

	// AppendToArray adds value at the end of the array under key.
	AppendToArray(key, value string) error
	// SetArray writes the whole array under key at once.
	SetArray(key string, items []string) error
	GetArray(key string) ([]string, error)

	SetItem(key, value string) error
	GetItem(key string) (string, error)

	Remove(key string) error
}

// StoreContender measures a nativestore.Store: cached arrays, with appends
// rewriting the whole array.
type StoreContender struct {
	name  string
	store *nativestore.Store
}

func NewStoreContender(name string, store *nativestore.Store) *StoreContender {
	return &StoreContender{name: name, store: store}
}

func (s *StoreContender) Name() string { return s.name }

func (s *StoreContender) AppendToArray(key, value string) error {
	return s.store.AppendToStringArray(key, value)
}

func (s *StoreContender) SetArray(key string, items []string) error {
	return s.store.SetStringArrayBulk(key, items)
}

func (s *StoreContender) GetArray(key string) ([]string, error) {
	items, _, err := s.store.GetStringArray(key)
	return items, err
}

func (s *StoreContender) SetItem(key, value string) error {
	return s.store.SetItem(key, value)
}

func (s *StoreContender) GetItem(key string) (string, error) {
	value, _, err := s.store.GetItem(key)
	return value, err
}

func (s *StoreContender) Remove(key string) error {
	return s.store.RemoveItem(key)
}

// LoaderContender stores arrays directly in a kvstore.Loader, without any
// cache: every read decodes, and every append reads, decodes, encodes and
// writes the full array.
type LoaderContender struct {
	name   string
	loader kvstore.Loader
	codec  marshal.ArrayCodec
}

func NewLoaderContender(name string, loader kvstore.Loader) *LoaderContender {
	return &LoaderContender{name: name, loader: loader, codec: marshal.JSON}
}

func (l *LoaderContender) Name() string { return l.name }

func (l *LoaderContender) AppendToArray(key, value string) error {
	items, err := l.GetArray(key)
	if err != nil {
		return err
	}
	return l.SetArray(key, append(items, value))
}

func (l *LoaderContender) SetArray(key string, items []string) error {
	data, err := l.codec.Encode(items)
	if err != nil {
		return err
	}
	return l.loader.Write(key, data)
}

func (l *LoaderContender) GetArray(key string) ([]string, error) {
	data, err := l.loader.Read(key)
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	return l.codec.Decode(data)
}

func (l *LoaderContender) SetItem(key, value string) error {
	return l.loader.Write(key, []byte(value))
}

func (l *LoaderContender) GetItem(key string) (string, error) {
	data, err := l.loader.Read(key)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	return string(data), err
}

func (l *LoaderContender) Remove(key string) error {
	err := l.loader.Delete(key)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
