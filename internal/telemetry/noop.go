package telemetry

import (
	"context"
	"time"
)

// NoOpProvider is a telemetry provider that does nothing.
// It is the default when no provider is configured.
type NoOpProvider struct{}

// NewNoOp creates a new no-op telemetry provider
func NewNoOp() *NoOpProvider {
	return &NoOpProvider{}
}

func (n *NoOpProvider) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, Span) {
	return ctx, NoOpSpan{}
}

func (n *NoOpProvider) RecordCacheHit(ctx context.Context, flagKey string, stale bool) {}

func (n *NoOpProvider) RecordCacheMiss(ctx context.Context, flagKey string) {}

func (n *NoOpProvider) RecordCacheSize(ctx context.Context, size int) {}

func (n *NoOpProvider) RecordBatchFlush(ctx context.Context, size int, success bool, duration time.Duration) {
}

func (n *NoOpProvider) RecordFetch(ctx context.Context, kind string, success bool, duration time.Duration, flagCount int) {
}

func (n *NoOpProvider) RecordRevalidation(ctx context.Context, trigger string, count int) {}

func (n *NoOpProvider) RecordStorageFailure(ctx context.Context, op string) {}

func (n *NoOpProvider) Shutdown(ctx context.Context) error {
	return nil
}

// NoOpSpan is a span that does nothing
type NoOpSpan struct{}

func (NoOpSpan) End() {}

func (NoOpSpan) SetAttributes(attrs ...Attribute) {}

func (NoOpSpan) RecordError(err error) {}

func (NoOpSpan) AddEvent(name string, attrs ...Attribute) {}
