// Loader backed by bbolt.
//
// bbolt memory-maps a single B+tree file: reads are served straight from the
// mapping, writes are serialized behind a single writer lock. Each namespace
// is a top level bucket. Keys are stored with a one byte prefix, as bbolt
// rejects empty keys.
package bbolt

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ccontavalli/nativestore/lib/kflags"
	"github.com/ccontavalli/nativestore/lib/kvstore"
	"github.com/ccontavalli/nativestore/lib/kvstore/directory"
	bolt "go.etcd.io/bbolt"
)

var _ kvstore.Loader = (*Loader)(nil)

type Bolt struct {
	db *bolt.DB
}

type Loader struct {
	db    *bolt.DB
	scope []byte
}

// Flags configures a bbolt database from the command line.
type Flags struct {
	Path    string
	Timeout time.Duration
	NoSync  bool
}

// DefaultFlags returns flags selecting the default path with a one second lock timeout.
func DefaultFlags() *Flags {
	return &Flags{Timeout: time.Second}
}

// Register registers the bbolt flags with the provided FlagSet.
func (f *Flags) Register(set kflags.FlagSet, prefix string) *Flags {
	set.StringVar(&f.Path, prefix+"bbolt-path", f.Path, "Path of the bbolt database file (defaults to the user config dir)")
	set.DurationVar(&f.Timeout, prefix+"bbolt-timeout", f.Timeout, "How long to wait for the bbolt file lock")
	set.BoolVar(&f.NoSync, prefix+"bbolt-no-sync", f.NoSync, "Skip fsync after each write - faster, but not crash safe")
	return f
}

type options struct {
	path    string
	timeout time.Duration
	noSync  bool
}

type Modifier func(*options) error

// WithPath specifies the filesystem path for the bbolt database.
func WithPath(path string) Modifier {
	return func(o *options) error {
		o.path = path
		return nil
	}
}

// WithTimeout sets the bbolt file lock timeout.
func WithTimeout(timeout time.Duration) Modifier {
	return func(o *options) error {
		o.timeout = timeout
		return nil
	}
}

// WithNoSync disables fsync after each transaction.
func WithNoSync(noSync bool) Modifier {
	return func(o *options) error {
		o.noSync = noSync
		return nil
	}
}

// FromFlags applies flags, computing the default path for app and namespaces
// if no path was set.
func FromFlags(flags *Flags, app string, namespaces ...string) Modifier {
	return func(o *options) error {
		if flags == nil {
			return nil
		}
		o.path = flags.Path
		if o.path == "" {
			path, err := DefaultPath(app, namespaces...)
			if err != nil {
				return err
			}
			o.path = path
		}
		o.timeout = flags.Timeout
		o.noSync = flags.NoSync
		return nil
	}
}

// DefaultPath returns the default bbolt database path for an app/namespace.
func DefaultPath(app string, namespaces ...string) (string, error) {
	dir, err := directory.GetConfigDir(app, namespaces...)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "store.bbolt"), nil
}

// New opens a bbolt database.
func New(mods ...Modifier) (*Bolt, error) {
	db, err := openDB(mods...)
	if err != nil {
		return nil, err
	}
	return &Bolt{db: db}, nil
}

// Close releases the underlying database resources.
func (b *Bolt) Close() error {
	return b.db.Close()
}

// Open returns a loader scoped to the provided app and namespaces.
func (b *Bolt) Open(app string, namespaces ...string) (kvstore.Loader, error) {
	return newLoader(b.db, kvstore.Scope(app, namespaces...))
}

func (l *Loader) List() ([]string, error) {
	var names []string
	err := l.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(l.scope)
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(key, value []byte) error {
			if value == nil && bucket.Bucket(key) != nil {
				return nil
			}
			if len(key) == 0 || key[0] != keyPrefix {
				return nil
			}
			names = append(names, string(key[1:]))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

const keyPrefix = 'k'

func boltKey(name string) []byte {
	return append([]byte{keyPrefix}, name...)
}

// lookup finds name in bucket. Zero length values are returned as a non-nil
// empty slice, which bucket.Get alone cannot tell apart from a missing key.
func lookup(bucket *bolt.Bucket, name string) ([]byte, bool) {
	if bucket == nil {
		return nil, false
	}
	key := boltKey(name)
	k, v := bucket.Cursor().Seek(key)
	if k == nil || !bytes.Equal(k, key) {
		return nil, false
	}
	if v == nil && bucket.Bucket(key) != nil {
		return nil, false
	}
	return append([]byte{}, v...), true
}

func (l *Loader) Read(name string) ([]byte, error) {
	var result []byte
	err := l.db.View(func(tx *bolt.Tx) error {
		value, ok := lookup(tx.Bucket(l.scope), name)
		if !ok {
			return fmt.Errorf("bbolt read %q: %w", name, os.ErrNotExist)
		}
		result = value
		return nil
	})
	return result, err
}

func (l *Loader) Write(name string, data []byte) error {
	return l.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(l.scope)
		if err != nil {
			return err
		}
		return bucket.Put(boltKey(name), data)
	})
}

func (l *Loader) Delete(name string) error {
	return l.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(l.scope)
		if _, ok := lookup(bucket, name); !ok {
			return fmt.Errorf("bbolt delete %q: %w", name, os.ErrNotExist)
		}
		return bucket.Delete(boltKey(name))
	})
}

func (l *Loader) Clear() error {
	return l.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(l.scope) != nil {
			if err := tx.DeleteBucket(l.scope); err != nil {
				return err
			}
		}
		_, err := tx.CreateBucket(l.scope)
		return err
	})
}

func openDB(mods ...Modifier) (*bolt.DB, error) {
	opts := options{}
	for _, m := range mods {
		if err := m(&opts); err != nil {
			return nil, err
		}
	}
	if opts.path == "" {
		return nil, fmt.Errorf("bbolt path is required")
	}
	if err := os.MkdirAll(filepath.Dir(opts.path), 0770); err != nil {
		return nil, err
	}
	boltOpts := &bolt.Options{}
	if opts.timeout != 0 {
		boltOpts.Timeout = opts.timeout
	}
	db, err := bolt.Open(opts.path, 0660, boltOpts)
	if err != nil {
		return nil, err
	}
	db.NoSync = opts.noSync
	return db, nil
}

func newLoader(db *bolt.DB, scope string) (*Loader, error) {
	scopeBytes := []byte(scope)
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(scopeBytes)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &Loader{db: db, scope: scopeBytes}, nil
}
