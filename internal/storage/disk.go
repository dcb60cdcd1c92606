package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// DefaultSnapshotFile is the file name used inside the storage directory
const DefaultSnapshotFile = "flags.json"

// DiskStorage keeps the snapshot in one JSON file.
// Writes go to a temp file in the same directory and are renamed into place.
type DiskStorage struct {
	path string
	mu   sync.RWMutex
}

// NewDiskStorage creates dir if needed and stores the snapshot inside it
func NewDiskStorage(dir string) (*DiskStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage dir: %w", err)
	}

	return &DiskStorage{path: filepath.Join(dir, DefaultSnapshotFile)}, nil
}

// Path returns the snapshot file path
func (d *DiskStorage) Path() string {
	return d.path
}

// GetAll implements Storage. A missing file is an empty snapshot.
func (d *DiskStorage) GetAll(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	data, err := os.ReadFile(d.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return make(Snapshot), nil
		}
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	snapshot := make(Snapshot)
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}

	return snapshot, nil
}

// SetAll implements Storage
func (d *DiskStorage) SetAll(ctx context.Context, snapshot Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(d.path), ".flags-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close snapshot: %w", err)
	}

	if err := os.Rename(tmpName, d.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}

	return nil
}

// Clear implements Storage
func (d *DiskStorage) Clear(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := os.Remove(d.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove snapshot: %w", err)
	}
	return nil
}
