// Package cache holds short-lived snapshots of values that are expensive to
// recompute on every request.
package cache

import (
	"sync"
	"time"
)

// Snapshot caches one value for a fixed TTL. It is safe for concurrent use.
type Snapshot[T any] struct {
	mu      sync.Mutex
	value   T
	loaded  time.Time
	ttl     time.Duration
	now     func() time.Time
	version uint64
}

// NewSnapshot returns an empty snapshot that expires ttl after each load.
func NewSnapshot[T any](ttl time.Duration) *Snapshot[T] {
	return &Snapshot[T]{ttl: ttl, now: time.Now}
}

// Get returns the cached value, calling load when the snapshot is empty or
// stale. A load error is returned as is and nothing is cached. A load that
// raced with Invalidate is returned but not kept.
func (s *Snapshot[T]) Get(load func() (T, error)) (T, error) {
	s.mu.Lock()
	if !s.loaded.IsZero() && s.now().Sub(s.loaded) < s.ttl {
		v := s.value
		s.mu.Unlock()
		return v, nil
	}
	version := s.version
	s.mu.Unlock()

	v, err := load()
	if err != nil {
		return v, err
	}

	s.mu.Lock()
	if s.version == version {
		s.value = v
		s.loaded = s.now()
	}
	s.mu.Unlock()
	return v, nil
}

// Invalidate drops the cached value.
func (s *Snapshot[T]) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	var zero T
	s.value = zero
	s.loaded = time.Time{}
	s.version++
}
