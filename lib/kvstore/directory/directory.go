// Package directory implements a kvstore.Loader storing one file per key.
//
// Keys are escaped with a kvstore.KeyCodec and suffixed with ".kv", so any
// string is a valid key and unrelated files in the directory are ignored.
// Writes go to a temporary file first and are renamed in place, so readers
// never observe a partially written value.
package directory

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ccontavalli/nativestore/lib/kvstore"
	"github.com/ccontavalli/nativestore/lib/multierror"
	"github.com/kirsle/configdir"
	"github.com/mitchellh/go-homedir"
)

const (
	extension     = ".kv"
	tempPattern   = "*.tmp"
	directoryMode = 0770
	fileMode      = 0660
)

var _ kvstore.Loader = (*Loader)(nil)

type Loader struct {
	dir   string
	codec kvstore.KeyCodec
}

type options struct {
	codec kvstore.KeyCodec
}

type Modifier func(*options)

// WithKeyCodec overrides the codec used to turn keys into file names.
func WithKeyCodec(codec kvstore.KeyCodec) Modifier {
	return func(o *options) {
		if codec == nil {
			panic("nil KeyCodec")
		}
		o.codec = codec
	}
}

// GetConfigDir returns the per user configuration directory for app and namespaces.
func GetConfigDir(app string, namespaces ...string) (string, error) {
	if app == "" {
		return "", fmt.Errorf("an app name is required to compute the config dir")
	}
	dir := configdir.LocalConfig(append([]string{app}, namespaces...)...)
	if dir == "" {
		return "", fmt.Errorf("could not determine the config dir for %s", app)
	}
	return dir, nil
}

// OpenHomeDir opens a loader in the per user configuration directory of app.
func OpenHomeDir(app string, namespaces ...string) (*Loader, error) {
	dir, err := GetConfigDir(app, namespaces...)
	if err != nil {
		return nil, err
	}
	return OpenDir(dir)
}

// OpenDir opens a loader in base joined with sub, creating directories as needed.
//
// A leading ~ in base is expanded to the home directory of the user.
func OpenDir(base string, sub ...string) (*Loader, error) {
	return OpenDirWithOptions(base, sub, nil)
}

// OpenDirWithOptions is OpenDir with modifiers.
func OpenDirWithOptions(base string, sub []string, mods []Modifier) (*Loader, error) {
	opts := options{codec: kvstore.DefaultKeyCodec()}
	for _, m := range mods {
		m(&opts)
	}

	expanded, err := homedir.Expand(base)
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(append([]string{expanded}, sub...)...)
	if err := os.MkdirAll(dir, directoryMode); err != nil {
		return nil, err
	}
	return &Loader{dir: dir, codec: opts.codec}, nil
}

// Dir returns the directory files are stored in.
func (l *Loader) Dir() string {
	return l.dir
}

func (l *Loader) path(name string) string {
	return filepath.Join(l.dir, l.codec.Encode(name)+extension)
}

func (l *Loader) List() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !strings.HasSuffix(entry.Name(), extension) {
			continue
		}
		names = append(names, l.codec.Decode(strings.TrimSuffix(entry.Name(), extension)))
	}
	return names, nil
}

func (l *Loader) Read(name string) ([]byte, error) {
	return os.ReadFile(l.path(name))
}

func (l *Loader) Write(name string, data []byte) error {
	tmp, err := os.CreateTemp(l.dir, tempPattern)
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(fileMode); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), l.path(name))
}

func (l *Loader) Delete(name string) error {
	return os.Remove(l.path(name))
}

func (l *Loader) Clear() error {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return err
	}
	var errs []error
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !strings.HasSuffix(entry.Name(), extension) {
			continue
		}
		if err := os.Remove(filepath.Join(l.dir, entry.Name())); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	return multierror.New(errs)
}

// Opener returns a kvstore.Opener rooted at base, or at the per user
// configuration directory if base is empty.
func Opener(base string, mods ...Modifier) kvstore.Opener {
	return func(app string, namespaces ...string) (kvstore.Loader, error) {
		if base == "" {
			dir, err := GetConfigDir(app, namespaces...)
			if err != nil {
				return nil, err
			}
			return OpenDirWithOptions(dir, nil, mods)
		}
		return OpenDirWithOptions(base, append([]string{app}, namespaces...), mods)
	}
}
