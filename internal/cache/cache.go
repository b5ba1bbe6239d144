// Package cache defines the store abstraction for viewport payloads.
package cache

import "time"

// Store is a TTL key/value store for serialized alert payloads. The
// TTL is chosen by the caller at write time; Get reports an entry as
// missing once its age exceeds that TTL. Implementations must tolerate
// concurrent use; a lost update on the same key is acceptable (last
// write wins, both values are valid computations of the same query).
type Store interface {
	// Get returns the payload and its age. ok is false when the key is
	// absent or the entry has outlived its TTL.
	Get(key string) (payload []byte, age time.Duration, ok bool, err error)

	// Set overwrites any existing entry.
	Set(key string, payload []byte, ttl time.Duration) error

	// Sweep removes entries whose absolute age exceeds the store's hard
	// ceiling, independent of per-entry TTLs, and returns how many were
	// removed. Bounds memory even if TTL bookkeeping drifts.
	Sweep() (int, error)

	// Purge removes every entry and returns how many were removed.
	Purge() (int, error)
}
