// Package storage defines the byte-oriented key-value contract the
// persistence and sync engines write through, plus the built-in backends.
// Each manager owns a disjoint key namespace, so a shared backend never
// needs cross-manager locking.
package storage

import "errors"

// Sentinel errors wrapped by every backend so callers can classify
// failures without knowing which backend is in use.
var (
	ErrRead  = errors.New("storage read failed")
	ErrWrite = errors.New("storage write failed")
)

// Adapter is the contract both managers depend on. Get reports absence
// via found=false, never as an error. Implementations must be safe for
// concurrent use.
type Adapter interface {
	Get(key string) (value []byte, found bool, err error)
	Set(key string, value []byte) error
	Remove(key string) error
	Close() error
}
