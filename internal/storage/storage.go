// Package storage persists resolved flags across process restarts.
//
// Snapshots map cache keys (flag key plus user fingerprint) to results,
// so hydration restores per-user scoping.
package storage

import (
	"context"

	"github.com/OrlandoBitencourt/flagcache/internal/domain"
)

// Snapshot maps cache keys to resolved flags
type Snapshot map[string]domain.FlagResult

// Storage defines the interface for persistent flag storage.
// Implementations replace the whole snapshot on every write.
type Storage interface {
	// GetAll returns the last written snapshot; empty when none exists
	GetAll(ctx context.Context) (Snapshot, error)

	// SetAll replaces the stored snapshot
	SetAll(ctx context.Context, snapshot Snapshot) error

	// Clear removes the stored snapshot
	Clear(ctx context.Context) error
}

// Clone returns a copy safe to hand to another goroutine
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}
