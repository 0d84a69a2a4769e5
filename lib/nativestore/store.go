// Package nativestore implements a key-value store with scalar and array
// values, writing through to a durable kvstore.Loader and keeping decoded
// arrays in an in-process cache.
//
// Scalars are stored verbatim. Arrays are stored encoded by an
// marshal.ArrayCodec, JSON by default, under the same key space: a key should
// be used either for scalars or for arrays, never both.
//
// The cache is only a decode cache: the durable store stays authoritative. An
// array read that hits the cache never touches the durable store, which is
// why every mutation updates or evicts the cache entry before returning, and
// only after the durable store accepted the change.
//
// Appending is a full read-modify-write of the array, so its cost grows with
// the length of the array. SetStringArrayBulk writes a whole array at once.
//
// Operations on the same key are serialized; operations on different keys
// can run in parallel. Clear waits for every other operation to finish.
package nativestore

import (
	"errors"
	"fmt"
	"os"

	"github.com/ccontavalli/nativestore/lib/kflags"
	"github.com/ccontavalli/nativestore/lib/kvstore"
	"github.com/ccontavalli/nativestore/lib/kvstore/marshal"
	"github.com/ccontavalli/nativestore/lib/logger"
	"github.com/prometheus/client_golang/prometheus"
)

// Flags configures a Store from the command line.
type Flags struct {
	Codec string
}

func DefaultFlags() *Flags {
	return &Flags{Codec: marshal.JSON.Name()}
}

// Register registers the store flags with the provided FlagSet.
func (f *Flags) Register(set kflags.FlagSet, prefix string) *Flags {
	set.StringVar(&f.Codec, prefix+"array-codec", f.Codec, "Encoding used to persist arrays (json, cbor)")
	return f
}

type options struct {
	codec      marshal.ArrayCodec
	cache      ArrayCache
	log        logger.Logger
	registerer prometheus.Registerer
	name       string
}

type Modifier func(*options) error

// WithCodec selects the encoding of arrays in the durable store.
func WithCodec(codec marshal.ArrayCodec) Modifier {
	return func(o *options) error {
		if codec == nil {
			return fmt.Errorf("API Usage Error - nil ArrayCodec")
		}
		o.codec = codec
		return nil
	}
}

// WithCache replaces the default MapCache.
func WithCache(cache ArrayCache) Modifier {
	return func(o *options) error {
		if cache == nil {
			return fmt.Errorf("API Usage Error - nil ArrayCache")
		}
		o.cache = cache
		return nil
	}
}

// WithLogger sets the logger used to report cache misses and unreadable records.
func WithLogger(log logger.Logger) Modifier {
	return func(o *options) error {
		o.log = log
		return nil
	}
}

// WithRegisterer exports cache and error metrics to registerer.
//
// If name is not empty, every metric carries a store=name label, so that
// several stores can share a registry.
func WithRegisterer(registerer prometheus.Registerer, name string) Modifier {
	return func(o *options) error {
		o.registerer = registerer
		o.name = name
		return nil
	}
}

// FromFlags applies flags.
func FromFlags(flags *Flags) Modifier {
	return func(o *options) error {
		if flags == nil || flags.Codec == "" {
			return nil
		}
		codec := marshal.ByName(flags.Codec)
		if codec == nil {
			return fmt.Errorf("unknown array codec: %s", flags.Codec)
		}
		o.codec = codec
		return nil
	}
}

// Store is a write-through cached key-value store.
type Store struct {
	loader  kvstore.Loader
	codec   marshal.ArrayCodec
	cache   ArrayCache
	log     logger.Logger
	metrics *metrics
	locks   *keyLocks
	closed  bool
}

// New returns a Store persisting to loader, with an empty cache.
func New(loader kvstore.Loader, mods ...Modifier) (*Store, error) {
	if loader == nil {
		return nil, fmt.Errorf("API Usage Error - nativestore.New needs a non-nil loader")
	}
	opts := options{codec: marshal.JSON, log: logger.Go}
	for _, m := range mods {
		if err := m(&opts); err != nil {
			return nil, err
		}
	}
	if opts.cache == nil {
		opts.cache = NewMapCache()
	}
	if opts.log == nil {
		opts.log = logger.Nil
	}

	metrics := newMetrics(opts.cache)
	if err := metrics.register(opts.registerer, opts.name); err != nil {
		return nil, fmt.Errorf("could not register metrics: %w", err)
	}
	return &Store{
		loader:  loader,
		codec:   opts.codec,
		cache:   opts.cache,
		log:     opts.log,
		metrics: metrics,
		locks:   newKeyLocks(),
	}, nil
}

// Close empties the cache and unregisters metrics. The loader is left open,
// it belongs to the caller.
func (s *Store) Close() error {
	unlock := s.locks.lockAll()
	defer unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.cache.Flush()
	s.metrics.unregister()
	return nil
}

// SetItem stores value verbatim under key.
func (s *Store) SetItem(key, value string) error {
	unlock := s.locks.lockKey(key)
	defer unlock()
	if s.closed {
		return ErrStoreClosed
	}

	if err := s.loader.Write(key, []byte(value)); err != nil {
		s.metrics.writeErrors.Inc()
		return &StorageWriteError{Key: key, Op: "set", Err: err}
	}
	// Only matters if key was previously used for an array.
	s.cache.Evict(key)
	return nil
}

// GetItem returns the value stored under key verbatim. ok is false if
// there is no value.
func (s *Store) GetItem(key string) (value string, ok bool, err error) {
	unlock := s.locks.lockKey(key)
	defer unlock()
	if s.closed {
		return "", false, ErrStoreClosed
	}

	data, err := s.read(key)
	if err != nil || data == nil {
		return "", false, err
	}
	return string(data), true, nil
}

// SetStringArray stores items under key, and caches them.
//
// An empty array is stored as such, and reads back as empty, not absent.
func (s *Store) SetStringArray(key string, items []string) error {
	unlock := s.locks.lockKey(key)
	defer unlock()
	if s.closed {
		return ErrStoreClosed
	}
	return s.setArray(key, items)
}

// SetStringArrayBulk is SetStringArray, for callers writing a whole array at
// once rather than growing it one item at a time.
func (s *Store) SetStringArrayBulk(key string, items []string) error {
	return s.SetStringArray(key, items)
}

// GetStringArray returns a copy of the array stored under key. ok is false
// if there is no value.
//
// A record that cannot be decoded returns a *DecodingError, and is not cached.
func (s *Store) GetStringArray(key string) (items []string, ok bool, err error) {
	unlock := s.locks.lockKey(key)
	defer unlock()
	if s.closed {
		return nil, false, ErrStoreClosed
	}
	return s.getArray(key)
}

// AppendToStringArray adds value at the end of the array stored under key,
// creating the array if absent.
//
// The whole array is read, extended and written back.
func (s *Store) AppendToStringArray(key, value string) error {
	unlock := s.locks.lockKey(key)
	defer unlock()
	if s.closed {
		return ErrStoreClosed
	}

	items, _, err := s.getArray(key)
	if err != nil {
		return err
	}
	return s.setArray(key, append(items, value))
}

// RemoveItem deletes key, whether scalar or array. Removing a missing key
// is not an error.
func (s *Store) RemoveItem(key string) error {
	unlock := s.locks.lockKey(key)
	defer unlock()
	if s.closed {
		return ErrStoreClosed
	}

	// Evicted even on failure: the record may be gone regardless.
	s.cache.Evict(key)
	if err := s.loader.Delete(key); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.metrics.writeErrors.Inc()
		return &StorageWriteError{Key: key, Op: "remove", Err: err}
	}
	return nil
}

// Clear deletes every key in the durable store, scalars included, and
// empties the cache.
func (s *Store) Clear() error {
	unlock := s.locks.lockAll()
	defer unlock()
	if s.closed {
		return ErrStoreClosed
	}

	// A failed clear may still have deleted some of the records.
	s.cache.Flush()
	if err := s.loader.Clear(); err != nil {
		s.metrics.writeErrors.Inc()
		return &StorageWriteError{Op: "clear", Err: err}
	}
	return nil
}

// read returns the durable record for key, or nil if there is none.
func (s *Store) read(key string) ([]byte, error) {
	data, err := s.loader.Read(key)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &StorageReadError{Key: key, Err: err}
	}
	if data == nil {
		data = []byte{}
	}
	return data, nil
}

func (s *Store) getArray(key string) ([]string, bool, error) {
	if items, ok := s.cache.Get(key); ok {
		s.metrics.cacheHits.Inc()
		return clone(items), true, nil
	}
	s.metrics.cacheMisses.Inc()

	data, err := s.read(key)
	if err != nil || data == nil {
		return nil, false, err
	}
	items, err := s.codec.Decode(data)
	if err != nil {
		s.metrics.decodeErrors.Inc()
		s.log.Warnf("record %q is not a valid %s array: %v", key, s.codec.Name(), err)
		return nil, false, &DecodingError{Key: key, Codec: s.codec.Name(), Err: err}
	}

	s.log.Debugf("caching %d items for %q", len(items), key)
	s.cache.Put(key, items)
	return clone(items), true, nil
}

func (s *Store) setArray(key string, items []string) error {
	data, err := s.codec.Encode(items)
	if err != nil {
		return &EncodingError{Key: key, Codec: s.codec.Name(), Err: err}
	}
	if err := s.loader.Write(key, data); err != nil {
		s.metrics.writeErrors.Inc()
		return &StorageWriteError{Key: key, Op: "set", Err: err}
	}
	s.cache.Put(key, clone(items))
	return nil
}

// clone copies items into a new, never nil, slice.
func clone(items []string) []string {
	result := make([]string, len(items))
	copy(result, items)
	return result
}
