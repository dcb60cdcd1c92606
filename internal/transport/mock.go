package transport

import (
	"context"
	"sync"

	"github.com/OrlandoBitencourt/flagcache/internal/domain"
)

// Mock is an in-memory Transport for tests
type Mock struct {
	mu sync.RWMutex

	flags map[string]domain.FlagResult
	err   error

	// FetchFunc overrides the default behavior when set
	FetchFunc func(ctx context.Context, req Request) (map[string]domain.FlagResult, error)

	requests []Request
}

// NewMock creates an empty mock transport
func NewMock() *Mock {
	return &Mock{flags: make(map[string]domain.FlagResult)}
}

// SetFlag stores the result returned for key
func (m *Mock) SetFlag(key string, result domain.FlagResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flags[key] = result
}

// RemoveFlag makes key absent from later responses
func (m *Mock) RemoveFlag(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.flags, key)
}

// SetError makes every later fetch fail with err; nil restores success
func (m *Mock) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Fetch implements Transport
func (m *Mock) Fetch(ctx context.Context, req Request) (map[string]domain.FlagResult, error) {
	m.mu.Lock()
	m.requests = append(m.requests, cloneRequest(req))
	fn, err := m.FetchFunc, m.err
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if err != nil {
		return nil, domain.NewTransportError("mock fetch", req.Keys, err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]domain.FlagResult)
	if req.All() {
		for k, v := range m.flags {
			out[k] = v
		}
		return out, nil
	}

	for _, k := range req.Keys {
		if v, ok := m.flags[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

// Calls returns the number of fetches
func (m *Mock) Calls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.requests)
}

// Requests returns a copy of every recorded request
func (m *Mock) Requests() []Request {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Reset clears recorded requests and the injected error
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
	m.err = nil
}

// AssertCalls asserts the number of fetches
func (m *Mock) AssertCalls(t interface{ Errorf(string, ...interface{}) }, expected int) {
	if actual := m.Calls(); actual != expected {
		t.Errorf("Fetch called %d times, expected %d", actual, expected)
	}
}

func cloneRequest(req Request) Request {
	if req.Keys != nil {
		keys := make([]string, len(req.Keys))
		copy(keys, req.Keys)
		req.Keys = keys
	}
	req.Params.User = req.Params.User.Clone()
	return req
}
