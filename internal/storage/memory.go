package storage

import (
	"context"
	"sync"
)

// MemoryStorage keeps the snapshot in process memory.
// It is the default when no storage is configured and doubles as a test
// double through its Func overrides and call counters.
type MemoryStorage struct {
	mu       sync.RWMutex
	snapshot Snapshot

	// Mock behaviors
	GetAllFunc func(ctx context.Context) (Snapshot, error)
	SetAllFunc func(ctx context.Context, snapshot Snapshot) error
	ClearFunc  func(ctx context.Context) error

	// Call tracking
	GetAllCalls int
	SetAllCalls int
	ClearCalls  int
}

// NewMemoryStorage creates an empty memory storage
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{snapshot: make(Snapshot)}
}

// GetAll implements Storage
func (m *MemoryStorage) GetAll(ctx context.Context) (Snapshot, error) {
	m.mu.Lock()
	m.GetAllCalls++
	fn := m.GetAllFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot.Clone(), nil
}

// SetAll implements Storage
func (m *MemoryStorage) SetAll(ctx context.Context, snapshot Snapshot) error {
	m.mu.Lock()
	m.SetAllCalls++
	fn := m.SetAllFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, snapshot)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot = snapshot.Clone()
	return nil
}

// Clear implements Storage
func (m *MemoryStorage) Clear(ctx context.Context) error {
	m.mu.Lock()
	m.ClearCalls++
	fn := m.ClearFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot = make(Snapshot)
	return nil
}

// Calls returns the GetAll, SetAll and Clear call counts
func (m *MemoryStorage) Calls() (getAll, setAll, clears int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.GetAllCalls, m.SetAllCalls, m.ClearCalls
}

// Len returns the number of stored entries
func (m *MemoryStorage) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.snapshot)
}
