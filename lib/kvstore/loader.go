package kvstore

import (
	"strings"
)

// Loader reads and writes raw values in a single namespace of a backend.
//
// Implementations must be safe for concurrent use.
type Loader interface {
	// List returns the names of all the keys stored, in no particular order.
	List() ([]string, error)
	// Read returns the value stored for name, or an error wrapping os.ErrNotExist.
	Read(name string) ([]byte, error)
	// Write creates or replaces the value stored for name.
	Write(name string, data []byte) error
	// Delete removes name, returning an error wrapping os.ErrNotExist if
	// it is not there.
	Delete(name string) error
	// Clear removes every key in the namespace.
	Clear() error
}

// Opener returns a Loader for the namespace identified by app and namespaces.
type Opener func(app string, namespaces ...string) (Loader, error)

// Scope joins app and namespaces into the string backends use to partition keys.
func Scope(app string, namespaces ...string) string {
	parts := append([]string{app}, namespaces...)
	return strings.Join(parts, "/")
}
