// Package inflight deduplicates concurrent fetches for the same cache key.
package inflight

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Registry coalesces concurrent calls for a key into one execution.
// All callers of Do for the same key receive the result of that execution.
//
// The shared call runs on a context that ignores the first caller's
// cancellation, so a caller that gives up does not fail the others.
type Registry[T any] struct {
	group singleflight.Group

	mu   sync.Mutex
	refs map[string]int
}

// New creates an empty registry
func New[T any]() *Registry[T] {
	return &Registry[T]{refs: make(map[string]int)}
}

// Do joins the call in progress for key or starts one with fn.
// It returns when the call completes or ctx is done, whichever is first.
func (r *Registry[T]) Do(ctx context.Context, key string, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	r.acquire(key)
	defer r.release(key)

	detached := context.WithoutCancel(ctx)
	ch := r.group.DoChan(key, func() (interface{}, error) {
		r.acquire(key)
		defer r.release(key)
		return fn(detached)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		val, ok := res.Val.(T)
		if !ok {
			return zero, fmt.Errorf("inflight: unexpected result type %T for key %q", res.Val, key)
		}
		return val, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Pending reports whether a call for key is running or awaited
func (r *Registry[T]) Pending(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refs[key] > 0
}

// Keys returns the pending keys in sorted order
func (r *Registry[T]) Keys() []string {
	r.mu.Lock()
	keys := make([]string, 0, len(r.refs))
	for k := range r.refs {
		keys = append(keys, k)
	}
	r.mu.Unlock()

	sort.Strings(keys)
	return keys
}

// Len returns the number of pending keys
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.refs)
}

// Reset forgets every pending key. Calls already running complete, but
// their results are no longer shared with callers arriving after Reset.
func (r *Registry[T]) Reset() {
	r.mu.Lock()
	keys := make([]string, 0, len(r.refs))
	for k := range r.refs {
		keys = append(keys, k)
	}
	r.refs = make(map[string]int)
	r.mu.Unlock()

	for _, k := range keys {
		r.group.Forget(k)
	}
}

func (r *Registry[T]) acquire(key string) {
	r.mu.Lock()
	r.refs[key]++
	r.mu.Unlock()
}

func (r *Registry[T]) release(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.refs[key]
	if !ok {
		return
	}
	if n <= 1 {
		delete(r.refs, key)
		return
	}
	r.refs[key] = n - 1
}
