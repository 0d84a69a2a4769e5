package nativestore

import (
	"sync"
)

// keyLocks serializes operations on the same key, while letting operations
// on different keys proceed in parallel. lockAll excludes every key at once.
//
// Per key mutexes are reference counted and dropped when unused, so the map
// only grows with the number of keys being operated on concurrently.
type keyLocks struct {
	all sync.RWMutex

	lock sync.Mutex
	keys map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{keys: make(map[string]*refMutex)}
}

// lockKey blocks until key is free, and returns the function releasing it.
func (k *keyLocks) lockKey(key string) func() {
	k.all.RLock()

	k.lock.Lock()
	m, ok := k.keys[key]
	if !ok {
		m = &refMutex{}
		k.keys[key] = m
	}
	m.refs++
	k.lock.Unlock()

	m.Lock()
	return func() {
		m.Unlock()

		k.lock.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.keys, key)
		}
		k.lock.Unlock()

		k.all.RUnlock()
	}
}

// lockAll waits for all the keys to be released and holds them until the
// returned function is called.
func (k *keyLocks) lockAll() func() {
	k.all.Lock()
	return k.all.Unlock
}

func (k *keyLocks) size() int {
	k.lock.Lock()
	defer k.lock.Unlock()
	return len(k.keys)
}
