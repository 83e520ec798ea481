// Package cache provides time-bounded snapshot caches for record listings.
//
// A Snapshot holds one immutable value at a time. Readers always see a
// whole value; a reload or Invalidate swaps the pointer and never mutates
// what a reader already holds.
package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Loader produces a fresh value for a Snapshot.
type Loader[T any] func(ctx context.Context) (T, error)

type entry[T any] struct {
	value    T
	loadedAt time.Time
}

// Snapshot caches the result of a Loader for a fixed TTL. Values returned
// by Get must be treated as read-only by callers.
type Snapshot[T any] struct {
	name   string
	ttl    time.Duration
	loader Loader[T]
	now    func() time.Time

	current    atomic.Pointer[entry[T]]
	generation atomic.Uint64
	loadMu     sync.Mutex
}

// NewSnapshot creates a snapshot cache. A ttl of zero or less disables
// caching so every Get calls the loader.
func NewSnapshot[T any](name string, ttl time.Duration, loader Loader[T]) *Snapshot[T] {
	return &Snapshot[T]{
		name:   name,
		ttl:    ttl,
		loader: loader,
		now:    time.Now,
	}
}

// Name returns the cache name used in logs and metrics
func (s *Snapshot[T]) Name() string {
	return s.name
}

// TTL returns the staleness window
func (s *Snapshot[T]) TTL() time.Duration {
	return s.ttl
}

// Get returns the cached value, loading it when absent or expired.
// Concurrent misses share one load.
func (s *Snapshot[T]) Get(ctx context.Context) (T, error) {
	if e := s.fresh(); e != nil {
		return e.value, nil
	}

	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	if e := s.fresh(); e != nil {
		return e.value, nil
	}

	gen := s.generation.Load()
	value, err := s.loader(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	// An Invalidate that raced with this load wins; the caller still gets
	// the value it asked for but it is not kept.
	if s.ttl > 0 && s.generation.Load() == gen {
		s.current.Store(&entry[T]{value: value, loadedAt: s.now()})
	}

	return value, nil
}

// Invalidate drops the cached value. The next Get reloads.
func (s *Snapshot[T]) Invalidate() {
	s.generation.Add(1)
	s.current.Store(nil)
}

// LoadedAt returns when the current value was loaded, or the zero time.
func (s *Snapshot[T]) LoadedAt() time.Time {
	if e := s.current.Load(); e != nil {
		return e.loadedAt
	}
	return time.Time{}
}

func (s *Snapshot[T]) fresh() *entry[T] {
	e := s.current.Load()
	if e == nil || s.ttl <= 0 {
		return nil
	}
	if s.now().Sub(e.loadedAt) >= s.ttl {
		return nil
	}
	return e
}
