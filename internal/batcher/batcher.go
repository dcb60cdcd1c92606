// Package batcher coalesces single-flag lookups into bulk transport calls.
//
// The first request opens a window and arms a timer. Every request issued
// before the timer fires joins that window, and the window's keys go out in
// one transport call. Each window is flushed exactly once.
package batcher

import (
	"context"
	"sync"
	"time"

	"github.com/OrlandoBitencourt/flagcache/internal/domain"
	"github.com/OrlandoBitencourt/flagcache/internal/telemetry"
	"github.com/OrlandoBitencourt/flagcache/internal/transport"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultWindow is the coalescing delay when none is configured
const DefaultWindow = 10 * time.Millisecond

// Batcher batches requests for one (transport, params) pair
type Batcher struct {
	transport transport.Transport
	params    transport.Params
	window    time.Duration
	maxKeys   int
	logger    *zap.Logger
	telemetry telemetry.Provider

	mu      sync.Mutex
	current *batch
	closed  bool

	flushes sync.WaitGroup
}

type batch struct {
	id      string
	keys    []string
	waiters map[string][]chan response
	timer   *time.Timer
}

type response struct {
	result domain.FlagResult
	err    error
}

// Option configures a Batcher
type Option func(*Batcher)

// WithWindow sets the coalescing window
func WithWindow(d time.Duration) Option {
	return func(b *Batcher) {
		if d > 0 {
			b.window = d
		}
	}
}

// WithMaxKeys flushes a window early once it holds n distinct keys
func WithMaxKeys(n int) Option {
	return func(b *Batcher) {
		if n > 0 {
			b.maxKeys = n
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(b *Batcher) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithTelemetry sets the telemetry provider
func WithTelemetry(p telemetry.Provider) Option {
	return func(b *Batcher) {
		if p != nil {
			b.telemetry = p
		}
	}
}

// New creates a batcher
func New(t transport.Transport, params transport.Params, opts ...Option) *Batcher {
	b := &Batcher{
		transport: t,
		params:    params,
		window:    DefaultWindow,
		logger:    zap.NewNop(),
		telemetry: telemetry.NewNoOp(),
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Params returns the parameters every flush is sent with
func (b *Batcher) Params() transport.Params {
	return b.params
}

// Request adds key to the open window and waits for the window's result.
// A key absent from the response resolves to domain.DefaultResult.
func (b *Batcher) Request(ctx context.Context, key string) (domain.FlagResult, error) {
	ch := make(chan response, 1)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return domain.FlagResult{}, domain.ErrBatcherClosed
	}

	w := b.current
	if w == nil {
		w = &batch{
			id:      uuid.NewString(),
			waiters: make(map[string][]chan response),
		}
		b.current = w
		w.timer = time.AfterFunc(b.window, func() { b.flush(w) })
	}

	if _, seen := w.waiters[key]; !seen {
		w.keys = append(w.keys, key)
	}
	w.waiters[key] = append(w.waiters[key], ch)

	full := b.maxKeys > 0 && len(w.keys) >= b.maxKeys
	b.mu.Unlock()

	if full {
		w.timer.Stop()
		b.flush(w)
	}

	select {
	case res := <-ch:
		return res.result, res.err
	case <-ctx.Done():
		return domain.FlagResult{}, ctx.Err()
	}
}

// Pending returns the number of distinct keys in the open window
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current == nil {
		return 0
	}
	return len(b.current.keys)
}

// Close rejects the open window with ErrBatcherClosed; later requests fail
// the same way. A flush already running still delivers its results.
func (b *Batcher) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	w := b.current
	b.current = nil
	b.mu.Unlock()

	if w == nil {
		return
	}

	w.timer.Stop()
	w.deliver(func(string) response {
		return response{err: domain.ErrBatcherClosed}
	})

	b.logger.Debug("batch window rejected on close",
		zap.String("batch_id", w.id),
		zap.Strings("flag_keys", w.keys),
	)
}

// Wait blocks until every started flush has delivered its results
func (b *Batcher) Wait() {
	b.flushes.Wait()
}

// flush detaches w and sends it unless another path already did
func (b *Batcher) flush(w *batch) {
	b.mu.Lock()
	if b.current != w {
		b.mu.Unlock()
		return
	}
	b.current = nil
	b.flushes.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.flushes.Done()
		b.send(w)
	}()
}

func (b *Batcher) send(w *batch) {
	ctx, span := b.telemetry.StartSpan(context.Background(), "batcher.flush",
		telemetry.WithAttributes(
			telemetry.String("batch.id", w.id),
			telemetry.Int("batch.size", len(w.keys)),
			telemetry.Strings("flag.keys", w.keys),
		))
	defer span.End()

	start := time.Now()
	flags, err := b.transport.Fetch(ctx, transport.Request{Keys: w.keys, Params: b.params})
	duration := time.Since(start)

	b.telemetry.RecordBatchFlush(ctx, len(w.keys), err == nil, duration)

	if err != nil {
		span.RecordError(err)
		b.logger.Warn("batch fetch failed",
			zap.String("batch_id", w.id),
			zap.Strings("flag_keys", w.keys),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		w.deliver(func(string) response { return response{err: err} })
		return
	}

	b.logger.Debug("batch flushed",
		zap.String("batch_id", w.id),
		zap.Int("batch_size", len(w.keys)),
		zap.Int("returned", len(flags)),
		zap.Duration("duration", duration),
	)

	w.deliver(func(key string) response {
		if result, ok := flags[key]; ok {
			return response{result: result}
		}
		return response{result: domain.DefaultResult}
	})
}

// deliver resolves every waiter; channels are buffered so this never blocks
func (w *batch) deliver(resolve func(key string) response) {
	for key, chans := range w.waiters {
		res := resolve(key)
		for _, ch := range chans {
			ch <- res
		}
	}
}
