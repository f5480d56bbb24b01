// Package localstore provides the durable key-value slots the composer
// persists drafts and the session token into.
package localstore

import (
	"fmt"
	"strings"
)

// Store is a durable local key-value slot store. Values survive a process
// restart but not a wipe of the backing storage.
type Store interface {
	// Get returns the value stored under key. ok is false when the key is absent.
	Get(key string) (value []byte, ok bool, err error)
	// Put stores value under key, replacing any previous value.
	Put(key string, value []byte) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(key string) error
}

// Backend names accepted by Open.
const (
	BackendFS     = "fs"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Open builds the store for the named backend rooted at path.
func Open(backend, path string) (Store, error) {
	switch backend {
	case BackendFS:
		return NewFS(path)
	case BackendSQLite:
		return OpenSQLite(path)
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("localstore: unknown backend %q", backend)
	}
}

// validKey rejects keys that could not be stored as a single flat slot.
func validKey(key string) error {
	if key == "" {
		return fmt.Errorf("localstore: empty key")
	}
	if strings.ContainsAny(key, `/\`) || strings.Contains(key, "..") {
		return fmt.Errorf("localstore: invalid key %q", key)
	}
	return nil
}
