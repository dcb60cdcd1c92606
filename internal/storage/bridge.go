package storage

import (
	"context"
	"sync"

	"github.com/OrlandoBitencourt/flagcache/internal/domain"
	"github.com/OrlandoBitencourt/flagcache/internal/telemetry"
	"go.uber.org/zap"
)

// Bridge mirrors the cache into a Storage on a best-effort basis.
// Errors are logged and counted, never returned.
type Bridge struct {
	storage   Storage
	logger    *zap.Logger
	telemetry telemetry.Provider

	// serializes writes so a slow write cannot overwrite a newer one
	writeMu sync.Mutex
}

// NewBridge creates a bridge; nil logger and telemetry fall back to no-ops
func NewBridge(s Storage, logger *zap.Logger, tel telemetry.Provider) *Bridge {
	if s == nil {
		s = NewMemoryStorage()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if tel == nil {
		tel = telemetry.NewNoOp()
	}
	return &Bridge{storage: s, logger: logger, telemetry: tel}
}

// Storage returns the wrapped storage
func (b *Bridge) Storage() Storage {
	return b.storage
}

// Hydrate reads the stored snapshot; failures yield an empty snapshot
func (b *Bridge) Hydrate(ctx context.Context) Snapshot {
	snapshot, err := b.storage.GetAll(ctx)
	if err != nil {
		b.fail(ctx, "get_all", err)
		return make(Snapshot)
	}
	if snapshot == nil {
		snapshot = make(Snapshot)
	}

	b.logger.Debug("storage hydrated", zap.Int("entries", len(snapshot)))
	return snapshot
}

// Persist writes the snapshot built by build. build runs under the write
// lock so the last completed write reflects the latest cache state.
func (b *Bridge) Persist(ctx context.Context, build func() Snapshot) {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	snapshot := build()
	if err := b.storage.SetAll(ctx, snapshot); err != nil {
		b.fail(ctx, "set_all", err)
		return
	}

	b.logger.Debug("storage persisted", zap.Int("entries", len(snapshot)))
}

// Clear removes the stored snapshot
func (b *Bridge) Clear(ctx context.Context) {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	if err := b.storage.Clear(ctx); err != nil {
		b.fail(ctx, "clear", err)
	}
}

func (b *Bridge) fail(ctx context.Context, op string, err error) {
	b.telemetry.RecordStorageFailure(ctx, op)
	b.logger.Warn("storage operation failed",
		zap.String("op", op),
		zap.Error(domain.NewStorageError(op, err)),
	)
}
