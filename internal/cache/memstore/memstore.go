// Package memstore is the in-process cache.Store implementation.
package memstore

import (
	"sync"
	"time"
)

type entry struct {
	payload    []byte
	insertedAt time.Time
	ttl        time.Duration
}

// Store holds entries behind a single RWMutex. Every operation is pure
// in-memory work, so no lock is ever held across a network call.
type Store struct {
	mu      sync.RWMutex
	items   map[string]entry
	maxAge  time.Duration
	nowFunc func() time.Time
}

// DefaultMaxAge is the absolute-age sweep ceiling.
const DefaultMaxAge = time.Hour

func New(maxAge time.Duration) *Store {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Store{
		items:   make(map[string]entry),
		maxAge:  maxAge,
		nowFunc: time.Now,
	}
}

func (s *Store) Get(key string) ([]byte, time.Duration, bool, error) {
	s.mu.RLock()
	e, ok := s.items[key]
	s.mu.RUnlock()
	if !ok {
		return nil, 0, false, nil
	}
	age := s.nowFunc().Sub(e.insertedAt)
	if e.ttl > 0 && age > e.ttl {
		return nil, 0, false, nil
	}
	return e.payload, age, true, nil
}

func (s *Store) Set(key string, payload []byte, ttl time.Duration) error {
	now := s.nowFunc()
	s.mu.Lock()
	defer s.mu.Unlock()
	// insertedAt is monotonic non-decreasing per key: a newer write
	// always replaces, never merges.
	if prev, ok := s.items[key]; ok && now.Before(prev.insertedAt) {
		now = prev.insertedAt
	}
	s.items[key] = entry{payload: payload, insertedAt: now, ttl: ttl}
	return nil
}

func (s *Store) Sweep() (int, error) {
	now := s.nowFunc()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for k, e := range s.items {
		if now.Sub(e.insertedAt) > s.maxAge {
			delete(s.items, k)
			removed++
		}
	}
	return removed, nil
}

func (s *Store) Purge() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.items)
	s.items = make(map[string]entry)
	return n, nil
}

// Len reports the current entry count.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
