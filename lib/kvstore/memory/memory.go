// Package memory implements kvstore.Loader on top of a map.
//
// It is safe for concurrent use, and keeps data only for the lifetime of the
// process.
package memory

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"

	"github.com/ccontavalli/nativestore/lib/kvstore"
)

var errClosed = errors.New("memory loader closed")

var _ kvstore.Loader = (*Loader)(nil)

// Loader is an in-memory namespace.
type Loader struct {
	lock sync.RWMutex
	data map[string][]byte
}

// New returns an empty, standalone loader.
func New() *Loader {
	return &Loader{data: make(map[string][]byte)}
}

func (l *Loader) List() ([]string, error) {
	l.lock.RLock()
	defer l.lock.RUnlock()

	if l.data == nil {
		return nil, errClosed
	}
	names := make([]string, 0, len(l.data))
	for name := range l.data {
		names = append(names, name)
	}
	return names, nil
}

func (l *Loader) Read(name string) ([]byte, error) {
	l.lock.RLock()
	defer l.lock.RUnlock()

	if l.data == nil {
		return nil, errClosed
	}
	value, ok := l.data[name]
	if !ok {
		return nil, fmt.Errorf("memory read %q: %w", name, os.ErrNotExist)
	}
	return slices.Clone(value), nil
}

func (l *Loader) Write(name string, data []byte) error {
	l.lock.Lock()
	defer l.lock.Unlock()

	if l.data == nil {
		return errClosed
	}
	value := make([]byte, len(data))
	copy(value, data)
	l.data[name] = value
	return nil
}

func (l *Loader) Delete(name string) error {
	l.lock.Lock()
	defer l.lock.Unlock()

	if l.data == nil {
		return errClosed
	}
	if _, ok := l.data[name]; !ok {
		return fmt.Errorf("memory delete %q: %w", name, os.ErrNotExist)
	}
	delete(l.data, name)
	return nil
}

func (l *Loader) Clear() error {
	l.lock.Lock()
	defer l.lock.Unlock()

	if l.data == nil {
		return errClosed
	}
	l.data = make(map[string][]byte)
	return nil
}

// Close drops all data. Any further call returns an error.
func (l *Loader) Close() error {
	l.lock.Lock()
	defer l.lock.Unlock()

	l.data = nil
	return nil
}

// Memory hands out one Loader per scope, so that opening the same app and
// namespaces twice returns a loader over the same data.
type Memory struct {
	lock    sync.Mutex
	loaders map[string]*Loader
}

// NewMemory returns an empty set of namespaces.
func NewMemory() *Memory {
	return &Memory{loaders: make(map[string]*Loader)}
}

// Open returns the loader for the scope, creating it if needed.
func (m *Memory) Open(app string, namespaces ...string) (kvstore.Loader, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.loaders == nil {
		return nil, errClosed
	}
	scope := kvstore.Scope(app, namespaces...)
	loader, ok := m.loaders[scope]
	if !ok {
		loader = New()
		m.loaders[scope] = loader
	}
	return loader, nil
}

// Close closes every loader handed out so far.
func (m *Memory) Close() error {
	m.lock.Lock()
	defer m.lock.Unlock()

	for _, loader := range m.loaders {
		loader.Close()
	}
	m.loaders = nil
	return nil
}
