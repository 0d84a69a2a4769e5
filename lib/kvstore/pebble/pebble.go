// Package pebble implements kvstore.Loader on top of a pebble LSM tree.
//
// Namespaces share the key space: every key is prefixed by the scope of its
// namespace followed by a NUL byte, so that iterating or range deleting a
// namespace never touches keys of another one.
package pebble

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ccontavalli/nativestore/lib/kflags"
	"github.com/ccontavalli/nativestore/lib/kvstore"
	"github.com/ccontavalli/nativestore/lib/kvstore/directory"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

const separator = 0x00

var _ kvstore.Loader = (*Loader)(nil)

type DB struct {
	pebble *pebble.DB
	write  *pebble.WriteOptions
}

// Flags configures a pebble database from the command line.
type Flags struct {
	Path   string
	NoSync bool
}

func DefaultFlags() *Flags {
	return &Flags{}
}

// Register registers the pebble flags with the provided FlagSet.
func (f *Flags) Register(set kflags.FlagSet, prefix string) *Flags {
	set.StringVar(&f.Path, prefix+"pebble-path", f.Path, "Directory of the pebble database (defaults to the user config dir)")
	set.BoolVar(&f.NoSync, prefix+"pebble-no-sync", f.NoSync, "Do not sync the WAL on every write")
	return f
}

type options struct {
	path   string
	memory bool
	noSync bool
	logger pebble.Logger
}

type Modifier func(*options) error

// WithPath specifies the directory holding the database.
func WithPath(path string) Modifier {
	return func(o *options) error {
		o.path = path
		return nil
	}
}

// WithMemory keeps the whole database in memory.
func WithMemory() Modifier {
	return func(o *options) error {
		o.memory = true
		return nil
	}
}

// WithNoSync skips syncing the WAL after each write.
func WithNoSync(noSync bool) Modifier {
	return func(o *options) error {
		o.noSync = noSync
		return nil
	}
}

// WithLogger routes pebble's internal logging.
func WithLogger(logger pebble.Logger) Modifier {
	return func(o *options) error {
		o.logger = logger
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
		o.noSync = flags.NoSync
		return nil
	}
}

// DefaultPath returns the default pebble directory for an app/namespace.
func DefaultPath(app string, namespaces ...string) (string, error) {
	dir, err := directory.GetConfigDir(app, namespaces...)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "store.pebble"), nil
}

// New opens a pebble database.
func New(mods ...Modifier) (*DB, error) {
	opts := options{}
	for _, m := range mods {
		if err := m(&opts); err != nil {
			return nil, err
		}
	}

	pebbleOpts := &pebble.Options{Logger: opts.logger}
	path := opts.path
	if opts.memory {
		pebbleOpts.FS = vfs.NewMem()
		path = ""
	} else if path == "" {
		return nil, fmt.Errorf("pebble path is required")
	}

	db, err := pebble.Open(path, pebbleOpts)
	if err != nil {
		return nil, err
	}
	write := pebble.Sync
	if opts.noSync {
		write = pebble.NoSync
	}
	return &DB{pebble: db, write: write}, nil
}

// Close releases the underlying database resources.
func (d *DB) Close() error {
	return d.pebble.Close()
}

// Open returns a loader scoped to the provided app and namespaces.
func (d *DB) Open(app string, namespaces ...string) (kvstore.Loader, error) {
	prefix := append([]byte(kvstore.Scope(app, namespaces...)), separator)
	return &Loader{db: d, prefix: prefix}, nil
}

type Loader struct {
	db     *DB
	prefix []byte
}

func (l *Loader) key(name string) []byte {
	key := make([]byte, 0, len(l.prefix)+len(name))
	key = append(key, l.prefix...)
	return append(key, name...)
}

// upperBound is the first key past the namespace: the prefix with its
// trailing separator incremented.
func (l *Loader) upperBound() []byte {
	bound := append([]byte{}, l.prefix...)
	bound[len(bound)-1]++
	return bound
}

func (l *Loader) List() ([]string, error) {
	iter, err := l.db.pebble.NewIter(&pebble.IterOptions{
		LowerBound: l.prefix,
		UpperBound: l.upperBound(),
	})
	if err != nil {
		return nil, err
	}

	var names []string
	for iter.First(); iter.Valid(); iter.Next() {
		names = append(names, string(iter.Key()[len(l.prefix):]))
	}
	if err := iter.Error(); err != nil {
		iter.Close()
		return nil, err
	}
	return names, iter.Close()
}

func (l *Loader) Read(name string) ([]byte, error) {
	value, closer, err := l.db.pebble.Get(l.key(name))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, fmt.Errorf("pebble read %q: %w", name, os.ErrNotExist)
	}
	if err != nil {
		return nil, err
	}
	result := append([]byte{}, value...)
	return result, closer.Close()
}

func (l *Loader) Write(name string, data []byte) error {
	return l.db.pebble.Set(l.key(name), data, l.db.write)
}

func (l *Loader) Delete(name string) error {
	key := l.key(name)
	_, closer, err := l.db.pebble.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return fmt.Errorf("pebble delete %q: %w", name, os.ErrNotExist)
	}
	if err != nil {
		return err
	}
	if err := closer.Close(); err != nil {
		return err
	}
	return l.db.pebble.Delete(key, l.db.write)
}

func (l *Loader) Clear() error {
	return l.db.pebble.DeleteRange(l.prefix, l.upperBound(), l.db.write)
}
