// Package cache holds resolved flag entries in memory.
//
// Entries live in a Ristretto cache. Ristretto cannot enumerate its keys,
// so the store keeps a key index next to it; scans (stale revalidation,
// garbage collection, snapshots) walk the index and read through the cache.
package cache

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/OrlandoBitencourt/flagcache/internal/domain"
	"github.com/dgraph-io/ristretto"
)

// Store maps cache keys to entries and evicts expired entries on read
type Store struct {
	cache *ristretto.Cache
	now   func() time.Time

	// index tracks live keys; the value is the generation of the last write
	mu     sync.RWMutex
	index  map[string]uint64
	gen    uint64
	closed bool

	hits    atomic.Int64
	misses  atomic.Int64
	expired atomic.Int64
	sets    atomic.Int64
}

// item is what Ristretto stores
type item struct {
	key   string
	gen   uint64
	entry domain.Entry
}

// Stats tracks cache performance
type Stats struct {
	Entries     int
	Hits        int64
	Misses      int64
	Expired     int64
	Sets        int64
	KeysEvicted uint64
}

// New creates a store. now defaults to time.Now.
func New(cfg Config, now func() time.Time) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cache config: %w", err)
	}
	if now == nil {
		now = time.Now
	}

	s := &Store{
		now:   now,
		index: make(map[string]uint64),
	}

	store, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        cfg.NumCounters,
		MaxCost:            cfg.MaxEntries,
		BufferItems:        cfg.BufferItems,
		Metrics:            cfg.Metrics,
		IgnoreInternalCost: true,
		OnEvict:            s.onEvict,
		OnReject:           s.onEvict,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ristretto cache: %w", err)
	}
	s.cache = store

	return s, nil
}

// Get returns the entry for key if present and still valid.
// An expired entry is removed and reported as absent.
func (s *Store) Get(key string) (domain.Entry, bool) {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return domain.Entry{}, false
	}

	// a miss leaves the index alone: a concurrent Set may have indexed the
	// key without the value having landed yet
	val, found := s.cache.Get(key)
	if !found {
		s.misses.Add(1)
		return domain.Entry{}, false
	}

	it, ok := val.(*item)
	if !ok {
		s.misses.Add(1)
		return domain.Entry{}, false
	}

	if !it.entry.Valid(s.now()) {
		s.expired.Add(1)
		s.misses.Add(1)
		s.deleteIfGen(key, it.gen)
		return domain.Entry{}, false
	}

	s.hits.Add(1)
	return it.entry, true
}

// Set replaces the entry for key
func (s *Store) Set(key string, entry domain.Entry) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.gen++
	it := &item{key: key, gen: s.gen, entry: entry}
	s.index[key] = it.gen
	s.mu.Unlock()

	// the write buffer may be full under contention; drain and retry once
	if !s.cache.Set(key, it, 1) {
		s.cache.Wait()
		if !s.cache.Set(key, it, 1) {
			s.forget(key, it.gen)
			return false
		}
	}
	s.cache.Wait()
	s.sets.Add(1)
	return true
}

// Delete removes key
func (s *Store) Delete(key string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	delete(s.index, key)
	s.mu.Unlock()

	s.cache.Del(key)
	s.cache.Wait()
}

// Keys returns the indexed keys in sorted order
func (s *Store) Keys() []string {
	s.mu.RLock()
	keys := make([]string, 0, len(s.index))
	for k := range s.index {
		keys = append(keys, k)
	}
	s.mu.RUnlock()

	sort.Strings(keys)
	return keys
}

// Entries returns a snapshot of all valid entries
func (s *Store) Entries() map[string]domain.Entry {
	out := make(map[string]domain.Entry)
	for _, key := range s.Keys() {
		if entry, ok := s.Get(key); ok {
			out[key] = entry
		}
	}
	return out
}

// Len returns the number of indexed keys, expired ones included until read
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.index)
}

// Clear removes every entry
func (s *Store) Clear() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.index = make(map[string]uint64)
	s.mu.Unlock()

	s.cache.Clear()
}

// Stats returns current cache statistics
func (s *Store) Stats() Stats {
	return Stats{
		Entries:     s.Len(),
		Hits:        s.hits.Load(),
		Misses:      s.misses.Load(),
		Expired:     s.expired.Load(),
		Sets:        s.sets.Load(),
		KeysEvicted: s.cache.Metrics.KeysEvicted(),
	}
}

// Close releases the cache. Further reads miss and writes are ignored.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.index = make(map[string]uint64)
	s.mu.Unlock()

	s.cache.Close()
}

// onEvict runs on Ristretto's goroutine when the admission policy drops
// an item to make room or refuses to admit it. The index only ever loses
// a key here, on Delete/Clear, or on an expired read.
func (s *Store) onEvict(ri *ristretto.Item) {
	it, ok := ri.Value.(*item)
	if !ok {
		return
	}
	s.forget(it.key, it.gen)
}

// forget drops key from the index unless a newer write happened
func (s *Store) forget(key string, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.index[key]; ok && current == gen {
		delete(s.index, key)
	}
}

// deleteIfGen removes an expired item unless it was rewritten meanwhile
func (s *Store) deleteIfGen(key string, gen uint64) {
	s.mu.Lock()
	current, ok := s.index[key]
	if !ok || current != gen || s.closed {
		s.mu.Unlock()
		return
	}
	delete(s.index, key)
	s.mu.Unlock()

	s.cache.Del(key)
	s.cache.Wait()
}
