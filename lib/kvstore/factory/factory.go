// Package factory creates a kvstore.Opener based on configuration flags.
//
// It hides the setup of each backend behind a set of standard flags, and keeps
// track of the databases it opened so a single Close releases them all.
//
// Example usage:
//
//	flags := factory.DefaultFlags().Register(flagSet, "")
//	...
//	backend, err := factory.New(factory.FromFlags(flags))
//	if err != nil { ... }
//	defer backend.Close()
//
//	loader, err := backend.Open("my-app", "prefs")
package factory

import (
	"fmt"
	"io"
	"sync"

	"github.com/ccontavalli/nativestore/lib/kflags"
	"github.com/ccontavalli/nativestore/lib/kvstore"
	"github.com/ccontavalli/nativestore/lib/kvstore/bbolt"
	"github.com/ccontavalli/nativestore/lib/kvstore/directory"
	"github.com/ccontavalli/nativestore/lib/kvstore/memory"
	"github.com/ccontavalli/nativestore/lib/kvstore/pebble"
	"github.com/ccontavalli/nativestore/lib/kvstore/sqlite"
	"github.com/ccontavalli/nativestore/lib/multierror"
	"github.com/go-playground/validator/v10"
)

const (
	StoreMemory    = "memory"
	StoreDirectory = "directory"
	StoreBolt      = "bbolt"
	StoreSQLite    = "sqlite"
	StorePebble    = "pebble"
)

// Flags holds the configuration options for creating a store.
// These are typically populated from command-line flags or a config file.
type Flags struct {
	// StoreType determines the backend to use.
	StoreType string `validate:"oneof=memory directory bbolt sqlite pebble"`
	// DirectoryPath specifies a custom root directory for the "directory" backend.
	// If empty, the user's configuration directory (e.g., ~/.config/appname) is used.
	DirectoryPath string

	BBolt  *bbolt.Flags
	SQLite *sqlite.Flags
	Pebble *pebble.Flags
}

// DefaultFlags returns a new Flags struct selecting the "directory" backend,
// the closest to a per application preferences file.
func DefaultFlags() *Flags {
	return &Flags{
		StoreType: StoreDirectory,
		BBolt:     bbolt.DefaultFlags(),
		SQLite:    sqlite.DefaultFlags(),
		Pebble:    pebble.DefaultFlags(),
	}
}

// Register registers the store flags with the provided FlagSet.
//
// The flags will be prefixed with the given string.
// For example, if prefix is "bench-", the flags will be "--bench-store", etc.
func (f *Flags) Register(set kflags.FlagSet, prefix string) *Flags {
	set.StringVar(&f.StoreType, prefix+"store", f.StoreType, "Type of durable store to use (memory, directory, bbolt, sqlite, pebble)")
	set.StringVar(&f.DirectoryPath, prefix+"store-directory-path", f.DirectoryPath, "Custom path for the directory backend (optional, defaults to user config dir)")
	f.BBolt.Register(set, prefix)
	f.SQLite.Register(set, prefix)
	f.Pebble.Register(set, prefix)
	return f
}

// Options holds the internal configuration for the factory.
type Options struct {
	Flags *Flags
}

// Modifier is a function that modifies the factory Options.
type Modifier func(*Options)

// FromFlags returns a Modifier that sets the factory configuration from the provided Flags.
func FromFlags(flags *Flags) Modifier {
	return func(o *Options) {
		o.Flags = flags
	}
}

// WithStoreType overrides the backend selected.
func WithStoreType(storeType string) Modifier {
	return func(o *Options) {
		o.Flags.StoreType = storeType
	}
}

// WithDirectoryPath overrides the root directory of the directory backend.
func WithDirectoryPath(path string) Modifier {
	return func(o *Options) {
		o.Flags.DirectoryPath = path
	}
}

// Backend opens loaders on the configured store.
type Backend struct {
	opener kvstore.Opener

	lock    sync.Mutex
	closers map[string]io.Closer
}

// Open returns the loader for app and namespaces.
func (b *Backend) Open(app string, namespaces ...string) (kvstore.Loader, error) {
	return b.opener(app, namespaces...)
}

// Opener returns Open as a kvstore.Opener.
func (b *Backend) Opener() kvstore.Opener {
	return b.Open
}

// Close releases every database opened so far.
func (b *Backend) Close() error {
	b.lock.Lock()
	defer b.lock.Unlock()

	var errs []error
	for name, closer := range b.closers {
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("could not close %s: %w", name, err))
		}
	}
	b.closers = map[string]io.Closer{}
	return multierror.New(errs)
}

// shared returns the database registered under name, or opens and registers it.
func shared[T io.Closer](b *Backend, name string, open func() (T, error)) (T, error) {
	b.lock.Lock()
	defer b.lock.Unlock()

	if existing, ok := b.closers[name]; ok {
		return existing.(T), nil
	}
	db, err := open()
	if err != nil {
		return db, err
	}
	b.closers[name] = db
	return db, nil
}

// New creates a Backend based on the provided modifiers.
func New(mods ...Modifier) (*Backend, error) {
	opts := &Options{
		Flags: DefaultFlags(),
	}
	for _, m := range mods {
		m(opts)
	}
	flags := opts.Flags
	if flags == nil {
		return nil, fmt.Errorf("API Usage Error - factory.New needs non-nil flags")
	}
	if err := validator.New().Struct(flags); err != nil {
		return nil, fmt.Errorf("unknown store type %q: %w", flags.StoreType, err)
	}

	backend := &Backend{closers: map[string]io.Closer{}}
	switch flags.StoreType {
	case StoreMemory:
		db := memory.NewMemory()
		backend.closers[StoreMemory] = db
		backend.opener = db.Open

	case StoreDirectory:
		backend.opener = directory.Opener(flags.DirectoryPath)

	case StoreBolt:
		backend.opener = func(app string, namespaces ...string) (kvstore.Loader, error) {
			path, err := resolve(flags.BBolt.Path, bbolt.DefaultPath, app, namespaces...)
			if err != nil {
				return nil, err
			}
			db, err := shared(backend, StoreBolt+":"+path, func() (*bbolt.Bolt, error) {
				local := *flags.BBolt
				local.Path = path
				return bbolt.New(bbolt.FromFlags(&local, app, namespaces...))
			})
			if err != nil {
				return nil, err
			}
			return db.Open(app, namespaces...)
		}

	case StoreSQLite:
		backend.opener = func(app string, namespaces ...string) (kvstore.Loader, error) {
			path, err := resolve(flags.SQLite.Path, sqlite.DefaultPath, app, namespaces...)
			if err != nil {
				return nil, err
			}
			db, err := shared(backend, StoreSQLite+":"+path, func() (*sqlite.SQLite, error) {
				local := *flags.SQLite
				local.Path = path
				return sqlite.New(sqlite.FromFlags(&local, app, namespaces...))
			})
			if err != nil {
				return nil, err
			}
			return db.Open(app, namespaces...)
		}

	case StorePebble:
		backend.opener = func(app string, namespaces ...string) (kvstore.Loader, error) {
			path, err := resolve(flags.Pebble.Path, pebble.DefaultPath, app, namespaces...)
			if err != nil {
				return nil, err
			}
			db, err := shared(backend, StorePebble+":"+path, func() (*pebble.DB, error) {
				local := *flags.Pebble
				local.Path = path
				return pebble.New(pebble.FromFlags(&local, app, namespaces...))
			})
			if err != nil {
				return nil, err
			}
			return db.Open(app, namespaces...)
		}
	}
	return backend, nil
}

func resolve(path string, fallback func(string, ...string) (string, error), app string, namespaces ...string) (string, error) {
	if path != "" {
		return path, nil
	}
	return fallback(app, namespaces...)
}
