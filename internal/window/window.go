// Package window provides bounded, keyed sliding-window stores.
// Each key owns a fixed-capacity ring buffer that evicts its oldest
// entry on overflow. Stores are safe for concurrent use; windows for
// independent keys never contend on the same lock.
package window

import (
	"fmt"
	"sync"
)

// Store holds at most capacity entries per key, oldest evicted first.
// Capacity is fixed at construction. The zero value is not usable;
// create stores with NewStore.
type Store[T any] struct {
	capacity int

	mu      sync.RWMutex
	windows map[string]*ring[T]
}

// NewStore creates a Store whose per-key windows hold at most capacity entries.
func NewStore[T any](capacity int) (*Store[T], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("window capacity must be greater than 0, got %d", capacity)
	}
	return &Store[T]{
		capacity: capacity,
		windows:  make(map[string]*ring[T]),
	}, nil
}

// MustNewStore calls NewStore and panics on error.
func MustNewStore[T any](capacity int) *Store[T] {
	s, err := NewStore[T](capacity)
	if err != nil {
		panic(err)
	}
	return s
}

// Capacity returns the fixed per-key capacity.
func (s *Store[T]) Capacity() int {
	return s.capacity
}

// Append adds entry to the window for key, creating the window on first
// use and evicting the oldest entry when the window is full.
func (s *Store[T]) Append(key string, entry T) {
	w := s.window(key)
	w.mu.Lock()
	defer w.mu.Unlock()
	w.push(entry)
}

// Snapshot returns a copy of the window contents for key, oldest to
// newest. Concurrent appends observe either the before- or after-append
// state, never a torn read. A key with no window yields nil.
func (s *Store[T]) Snapshot(key string) []T {
	s.mu.RLock()
	w, ok := s.windows[key]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.items()
}

// Len reports the number of entries currently held for key.
func (s *Store[T]) Len(key string) int {
	s.mu.RLock()
	w, ok := s.windows[key]
	s.mu.RUnlock()
	if !ok {
		return 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.size
}

// Clear discards the window for key, if any. It reports whether a
// window existed.
func (s *Store[T]) Clear(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.windows[key]; !ok {
		return false
	}
	delete(s.windows, key)
	return true
}

// Keys reports the number of keys with live windows.
func (s *Store[T]) Keys() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.windows)
}

func (s *Store[T]) window(key string) *ring[T] {
	s.mu.RLock()
	w, ok := s.windows[key]
	s.mu.RUnlock()
	if ok {
		return w
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.windows[key]; ok {
		return w
	}
	w = &ring[T]{buf: make([]T, s.capacity)}
	s.windows[key] = w
	return w
}

// ring is a fixed-capacity FIFO buffer. Callers hold mu around push and
// items; the Store never exposes the buffer itself.
type ring[T any] struct {
	mu    sync.Mutex
	buf   []T
	start int
	size  int
}

func (r *ring[T]) push(entry T) {
	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = entry
		r.size++
		return
	}
	r.buf[r.start] = entry
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring[T]) items() []T {
	if r.size == 0 {
		return nil
	}
	out := make([]T, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}
