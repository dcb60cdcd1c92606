// Package flagcache resolves feature flags against a remote evaluation
// service and serves them from memory with stale-while-revalidate.
//
// A Manager never blocks its synchronous API (IsEnabled, GetValue) on the
// network. Concurrent lookups for the same flag share one fetch, lookups
// issued within a short window share one transport call, and results are
// mirrored to pluggable storage so a restarted process answers immediately.
package flagcache

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/OrlandoBitencourt/flagcache/internal/batcher"
	"github.com/OrlandoBitencourt/flagcache/internal/cache"
	"github.com/OrlandoBitencourt/flagcache/internal/circuit"
	"github.com/OrlandoBitencourt/flagcache/internal/domain"
	"github.com/OrlandoBitencourt/flagcache/internal/inflight"
	"github.com/OrlandoBitencourt/flagcache/internal/logging"
	"github.com/OrlandoBitencourt/flagcache/internal/storage"
	"github.com/OrlandoBitencourt/flagcache/internal/telemetry"
	"github.com/OrlandoBitencourt/flagcache/internal/transport"
	"github.com/OrlandoBitencourt/flagcache/internal/visibility"
	"go.uber.org/zap"
)

// Manager is the main entry point. It is safe for concurrent use.
type Manager struct {
	mu          sync.RWMutex
	cfg         Config
	fingerprint string

	store   *cache.Store
	flights *inflight.Registry[domain.FlagResult]
	bulk    *inflight.Registry[map[string]domain.FlagResult]

	// batcher is created lazily for the fingerprint it was built with
	batcherMu sync.Mutex
	batcher   *batcher.Batcher
	batcherFP string

	transport    transport.Transport
	breaker      *transport.Breaker
	maxBatchKeys int

	bridge    *storage.Bridge
	monitor   *visibility.Monitor
	logger    *zap.Logger
	telemetry telemetry.Provider
	now       func() time.Time

	// failures maps cache keys of failed cold fetches to their retry time
	failMu   sync.Mutex
	failures map[string]time.Time

	flagSubs   *observers[map[string]FlagResult]
	configSubs *observers[Config]
	readySubs  *observers[struct{}]

	readyMu sync.Mutex
	isReady bool
	ready   chan struct{}

	// life is held for reading by every cache and storage write, and for
	// writing by Destroy, so nothing is written once Destroy has begun
	life      sync.RWMutex
	destroyed atomic.Bool
	bg        sync.WaitGroup
}

// New creates a Manager, hydrates it from storage and, when AutoFetch is
// set and the manager is active, starts the initial bulk fetch in the
// background.
//
// Example:
//
//	cfg := flagcache.DefaultConfig()
//	cfg.ClientID = "my-project"
//	m, err := flagcache.New(cfg, flagcache.WithStorage(disk))
func New(cfg Config, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}

	cfg = cfg.normalize()

	logger := o.logger
	if logger == nil {
		logger = logging.Default(cfg.Debug)
	}
	tel := o.telemetry
	if tel == nil {
		tel = telemetry.NewNoOp()
	}
	now := o.now
	if now == nil {
		now = time.Now
	}

	store, err := cache.New(o.cacheConfig, now)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:          cfg,
		fingerprint:  domain.Fingerprint(cfg.User),
		store:        store,
		flights:      inflight.New[domain.FlagResult](),
		bulk:         inflight.New[map[string]domain.FlagResult](),
		maxBatchKeys: o.maxBatchKeys,
		logger:       logger,
		telemetry:    tel,
		now:          now,
		failures:     make(map[string]time.Time),
		flagSubs:     newObservers[map[string]FlagResult]("flags", logger),
		configSubs:   newObservers[Config]("config", logger),
		readySubs:    newObservers[struct{}]("ready", logger),
		ready:        make(chan struct{}),
	}

	m.transport = m.buildTransport(cfg, o)
	m.bridge = storage.NewBridge(o.storage, logging.Component(logger, "storage"), tel)
	m.monitor = visibility.NewMonitor(o.visibility, m.revalidateStale, logging.Component(logger, "visibility"))

	if !cfg.SkipStorage {
		m.hydrate(context.Background())
	}

	m.monitor.Start()

	if cfg.AutoFetch && cfg.active() {
		m.spawn(func() {
			defer m.markReady()
			m.FetchAllFlags(context.Background(), nil)
		})
	} else {
		m.markReady()
	}

	logger.Debug("flag manager created",
		zap.String("client_id", cfg.ClientID),
		zap.String("fingerprint", m.fingerprint),
		zap.Bool("auto_fetch", cfg.AutoFetch),
		zap.Bool("disabled", cfg.Disabled),
		zap.Bool("pending", cfg.IsPending),
	)

	return m, nil
}

func (m *Manager) buildTransport(cfg Config, o *options) transport.Transport {
	t := o.transport
	if t == nil {
		httpCfg := transport.DefaultHTTPConfig(cfg.APIURL)
		if o.httpRetries >= 0 {
			httpCfg.MaxRetries = o.httpRetries
		}
		httpOpts := []transport.HTTPOption{transport.WithTelemetry(m.telemetry)}
		if o.httpClient != nil {
			httpOpts = append(httpOpts, transport.WithHTTPClient(o.httpClient))
		}
		t = transport.NewHTTP(httpCfg, httpOpts...)
	}

	if o.breakerConfig != nil {
		bc := *o.breakerConfig
		if bc.IsFailure == nil {
			bc.IsFailure = transport.CountsAsFailure
		}
		logger := logging.Component(m.logger, "circuit")
		bc.OnStateChange = func(from, to circuit.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		}
		m.breaker = transport.WithBreaker(t, circuit.New(bc))
		t = m.breaker
	}

	return t
}

// hydrate seeds the store from storage. Entries get the current TTLs since
// persisted results carry no expiry.
func (m *Manager) hydrate(ctx context.Context) {
	snapshot := m.bridge.Hydrate(ctx)
	if len(snapshot) == 0 {
		return
	}

	cfg, fp := m.snapshot()
	now := m.now()
	for key, result := range snapshot {
		// snapshots written before keys carried a fingerprint belong to
		// whoever is active now
		if _, entryFP := domain.SplitCacheKey(key); entryFP == "" {
			key = domain.CacheKey(key, fp)
		}
		m.store.Set(key, domain.NewEntry(result, now, cfg.CacheTTL, cfg.StaleTime))
	}
	m.telemetry.RecordCacheSize(ctx, m.store.Len())

	m.logger.Debug("cache hydrated from storage", zap.Int("entries", len(snapshot)))
}

// snapshot returns the config and active fingerprint together
func (m *Manager) snapshot() (Config, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg, m.fingerprint
}

// Config returns a copy of the current normalized configuration.
func (m *Manager) Config() Config {
	cfg, _ := m.snapshot()
	cfg.User = cfg.User.Clone()
	return cfg
}

// GetFlag resolves key authoritatively. A valid cached result is returned
// at once, and revalidated in the background if stale. On a miss the call
// joins any fetch in progress for the same key, otherwise it goes out
// through the batch window.
//
// A non-nil user that differs from the active user is resolved with a
// direct single-key call and cached under that user's fingerprint.
func (m *Manager) GetFlag(ctx context.Context, key string, user *User) (FlagResult, error) {
	if m.destroyed.Load() {
		return FlagResult{}, ErrDestroyed
	}

	cfg, fp := m.snapshot()
	switch {
	case cfg.Disabled:
		return domain.DefaultResult, nil
	case cfg.IsPending:
		return domain.SessionPendingResult, nil
	}

	if user != nil {
		if ufp := domain.Fingerprint(user); ufp != fp {
			return m.getForUser(ctx, cfg, key, user.Clone(), ufp)
		}
	}

	cacheKey := domain.CacheKey(key, fp)
	if entry, ok := m.store.Get(cacheKey); ok {
		stale := entry.Stale(m.now())
		m.telemetry.RecordCacheHit(ctx, key, stale)
		if stale {
			m.revalidate(key, fp, "stale")
		}
		return entry.Result, nil
	}

	m.telemetry.RecordCacheMiss(ctx, key)
	return m.resolve(ctx, key, fp)
}

// IsEnabled reports the cached state of key without blocking.
//
// A stale hit schedules a background revalidation. A miss starts a
// background fetch unless one is running or a recent one failed, and
// reports a loading state meanwhile.
func (m *Manager) IsEnabled(key string) FlagState {
	state, _ := m.state(key)
	return state
}

// state reports key's observable state and whether a resolved value is
// being served
func (m *Manager) state(key string) (FlagState, bool) {
	if m.destroyed.Load() {
		return stateFromResult(domain.DefaultResult), false
	}

	cfg, fp := m.snapshot()
	switch {
	case cfg.Disabled:
		return stateFromResult(domain.DefaultResult), false
	case cfg.IsPending:
		return pendingState(), false
	}

	ctx := context.Background()
	cacheKey := domain.CacheKey(key, fp)
	now := m.now()

	if entry, ok := m.store.Get(cacheKey); ok {
		stale := entry.Stale(now)
		m.telemetry.RecordCacheHit(ctx, key, stale)
		if stale {
			m.revalidate(key, fp, "stale")
		}
		return stateFromResult(entry.Result), true
	}

	m.telemetry.RecordCacheMiss(ctx, key)

	if m.flights.Pending(cacheKey) {
		return loadingState(), false
	}
	if m.recentlyFailed(cacheKey, now) {
		return errorState(), false
	}

	m.revalidate(key, fp, "cold")
	return loadingState(), false
}

// GetBool returns key's boolean value, or def when unresolved or not a bool.
func (m *Manager) GetBool(key string, def bool) bool {
	return GetValue(m, key, def)
}

// GetString returns key's string value, or def when unresolved or not a string.
func (m *Manager) GetString(key string, def string) string {
	return GetValue(m, key, def)
}

// GetNumber returns key's numeric value, or def when unresolved or not a number.
func (m *Manager) GetNumber(key string, def float64) float64 {
	return GetValue(m, key, def)
}

// GetValue returns key's value as T with the same cache semantics as
// IsEnabled. def is returned while the flag is loading, failed, disabled,
// pending, or holds a value of another kind.
//
// Example:
//
//	limit := flagcache.GetValue(m, "upload-limit-mb", 10.0)
func GetValue[T bool | string | float64](m *Manager, key string, def T) T {
	state, served := m.state(key)
	if !served {
		return def
	}
	v, ok := state.Value.Interface().(T)
	if !ok {
		return def
	}
	return v
}

// resolve fetches key for fingerprint fp through the batch window, sharing
// the call with concurrent resolutions of the same cache key
func (m *Manager) resolve(ctx context.Context, key, fp string) (FlagResult, error) {
	cacheKey := domain.CacheKey(key, fp)

	return m.flights.Do(ctx, cacheKey, func(ctx context.Context) (FlagResult, error) {
		// a call that finished just before this one started already has it
		if entry, ok := m.store.Get(cacheKey); ok && entry.Fresh(m.now()) {
			return entry.Result, nil
		}

		b, err := m.batcherFor(fp)
		if err != nil {
			return FlagResult{}, err
		}

		ctx, span := m.telemetry.StartSpan(ctx, "manager.fetch_one",
			telemetry.WithAttributes(
				telemetry.String("flag.key", key),
				telemetry.String("cache.key", cacheKey),
			))
		defer span.End()

		start := time.Now()
		result, err := b.Request(ctx, key)
		m.telemetry.RecordFetch(ctx, "single", err == nil, time.Since(start), 1)

		if err != nil {
			span.RecordError(err)
			m.fetchFailed(key, cacheKey, err)
			return FlagResult{}, err
		}

		m.commit(ctx, fp, map[string]domain.FlagResult{key: result}, false)
		return result, nil
	})
}

// getForUser resolves key for a user other than the active one
func (m *Manager) getForUser(ctx context.Context, cfg Config, key string, user *User, fp string) (FlagResult, error) {
	cacheKey := domain.CacheKey(key, fp)
	if entry, ok := m.store.Get(cacheKey); ok && entry.Fresh(m.now()) {
		m.telemetry.RecordCacheHit(ctx, key, false)
		return entry.Result, nil
	}
	m.telemetry.RecordCacheMiss(ctx, key)

	return m.flights.Do(ctx, cacheKey, func(ctx context.Context) (FlagResult, error) {
		ctx, span := m.telemetry.StartSpan(ctx, "manager.fetch_one",
			telemetry.WithAttributes(
				telemetry.String("flag.key", key),
				telemetry.String("cache.key", cacheKey),
				telemetry.Bool("user.override", true),
			))
		defer span.End()

		req := transport.Request{
			Keys: []string{key},
			Params: transport.Params{
				ClientID:    cfg.ClientID,
				Environment: cfg.Environment,
				User:        user,
			},
		}

		start := time.Now()
		flags, err := m.transport.Fetch(ctx, req)
		m.telemetry.RecordFetch(ctx, "single", err == nil, time.Since(start), 1)

		if err != nil {
			span.RecordError(err)
			m.fetchFailed(key, cacheKey, err)
			return FlagResult{}, err
		}

		result, ok := flags[key]
		if !ok {
			result = domain.DefaultResult
		}
		m.commit(ctx, fp, map[string]domain.FlagResult{key: result}, false)
		return result, nil
	})
}

// revalidate resolves key in the background
func (m *Manager) revalidate(key, fp, trigger string) {
	if trigger == "stale" {
		m.telemetry.RecordRevalidation(context.Background(), trigger, 1)
	}

	m.spawn(func() {
		if _, err := m.resolve(context.Background(), key, fp); err != nil {
			m.logger.Debug("background fetch abandoned",
				zap.String("flag_key", key),
				zap.String("trigger", trigger),
				zap.Error(err),
			)
		}
	})
}

// revalidateStale runs when the host returns to the foreground. Every stale
// entry of the active user is revalidated; the batch window merges them
// into one transport call.
func (m *Manager) revalidateStale() {
	if m.destroyed.Load() {
		return
	}
	cfg, fp := m.snapshot()
	if !cfg.active() {
		return
	}

	now := m.now()
	var keys []string
	for cacheKey, entry := range m.store.Entries() {
		key, entryFP := domain.SplitCacheKey(cacheKey)
		if entryFP == fp && entry.Stale(now) {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return
	}
	sort.Strings(keys)

	m.telemetry.RecordRevalidation(context.Background(), "foreground", len(keys))
	m.logger.Debug("revalidating stale flags", zap.Strings("flag_keys", keys))

	for _, key := range keys {
		m.revalidate(key, fp, "foreground")
	}
}

// FetchAllFlags resolves every flag for user (the active user when nil) in
// one transport call. A successful fetch for the active user replaces the
// cache: keys absent from the response are removed. Failures are logged and
// leave the cache untouched.
//
// While the host is in the background and the cache already holds flags
// for the target user the call is skipped.
func (m *Manager) FetchAllFlags(ctx context.Context, user *User) {
	if m.destroyed.Load() {
		return
	}

	cfg, fp := m.snapshot()
	if !cfg.active() {
		m.logger.Debug("bulk fetch skipped",
			zap.Bool("disabled", cfg.Disabled),
			zap.Bool("pending", cfg.IsPending),
		)
		return
	}

	target, targetFP := cfg.User, fp
	if user != nil {
		target, targetFP = user.Clone(), domain.Fingerprint(user)
	}

	if !m.monitor.Visible() && m.hasFlagsFor(targetFP) {
		m.logger.Debug("bulk fetch skipped while hidden", zap.String("fingerprint", targetFP))
		return
	}

	_, _ = m.bulk.Do(ctx, targetFP, func(ctx context.Context) (map[string]domain.FlagResult, error) {
		return m.fetchAll(ctx, cfg, target, targetFP, targetFP == fp)
	})
}

func (m *Manager) fetchAll(ctx context.Context, cfg Config, user *User, fp string, active bool) (map[string]domain.FlagResult, error) {
	ctx, span := m.telemetry.StartSpan(ctx, "manager.fetch_all",
		telemetry.WithAttributes(
			telemetry.String("fingerprint", fp),
			telemetry.Bool("active_user", active),
		))
	defer span.End()

	req := transport.Request{
		Params: transport.Params{
			ClientID:    cfg.ClientID,
			Environment: cfg.Environment,
			User:        user,
		},
	}

	start := time.Now()
	flags, err := m.transport.Fetch(ctx, req)
	duration := time.Since(start)
	m.telemetry.RecordFetch(ctx, "bulk", err == nil, duration, len(flags))

	if err != nil {
		span.RecordError(err)
		m.logger.Warn("bulk fetch failed",
			zap.String("fingerprint", fp),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return nil, err
	}

	span.SetAttributes(telemetry.Int("flag.count", len(flags)))
	m.commit(ctx, fp, flags, active)

	m.logger.Debug("bulk fetch completed",
		zap.String("fingerprint", fp),
		zap.Int("flags", len(flags)),
		zap.Duration("duration", duration),
	)
	return flags, nil
}

// commit caches results under fp, optionally dropping every other key,
// then persists and notifies. Nothing is written once destroyed.
func (m *Manager) commit(ctx context.Context, fp string, results map[string]domain.FlagResult, collect bool) {
	if !m.write(ctx, fp, results, collect) {
		return
	}
	m.flagSubs.notify(m.GetMemoryFlags())
}

// write applies a commit under the lifecycle read lock and reports whether
// anything was written
func (m *Manager) write(ctx context.Context, fp string, results map[string]domain.FlagResult, collect bool) bool {
	m.life.RLock()
	defer m.life.RUnlock()

	if m.destroyed.Load() {
		return false
	}

	cfg := m.Config()
	now := m.now()

	written := make(map[string]struct{}, len(results))
	for key, result := range results {
		cacheKey := domain.CacheKey(key, fp)
		m.store.Set(cacheKey, domain.NewEntry(result, now, cfg.CacheTTL, cfg.StaleTime))
		m.clearFailure(cacheKey)
		written[cacheKey] = struct{}{}
	}

	if collect {
		m.collect(fp, written)
	}

	m.telemetry.RecordCacheSize(ctx, m.store.Len())

	if !cfg.SkipStorage {
		m.bridge.Persist(ctx, m.storageSnapshot)
	}
	return true
}

// collect drops every key not written by a bulk fetch for fp. A response
// that lands after the user switched away from fp collects nothing; the
// user lock is held so the switch cannot happen mid-sweep.
func (m *Manager) collect(fp string, written map[string]struct{}) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.fingerprint != fp {
		m.logger.Debug("skipped garbage collection for previous user", zap.String("fingerprint", fp))
		return
	}

	var removed []string
	for _, cacheKey := range m.store.Keys() {
		if _, ok := written[cacheKey]; !ok {
			m.store.Delete(cacheKey)
			removed = append(removed, cacheKey)
		}
	}
	if len(removed) > 0 {
		m.logger.Debug("removed flags absent from bulk response", zap.Strings("cache_keys", removed))
	}
}

// storageSnapshot maps every valid cache key to its result
func (m *Manager) storageSnapshot() storage.Snapshot {
	entries := m.store.Entries()
	out := make(storage.Snapshot, len(entries))
	for key, entry := range entries {
		out[key] = entry.Result
	}
	return out
}

// fetchFailed logs err and remembers the failure for cold lookups
func (m *Manager) fetchFailed(key, cacheKey string, err error) {
	if errors.Is(err, domain.ErrBatcherClosed) || errors.Is(err, domain.ErrDestroyed) || errors.Is(err, context.Canceled) {
		return
	}

	cfg := m.Config()

	m.failMu.Lock()
	m.failures[cacheKey] = m.now().Add(cfg.StaleTime)
	m.failMu.Unlock()

	m.logger.Warn("flag fetch failed",
		zap.String("flag_key", key),
		zap.String("cache_key", cacheKey),
		zap.Error(err),
	)
}

func (m *Manager) recentlyFailed(cacheKey string, now time.Time) bool {
	m.failMu.Lock()
	defer m.failMu.Unlock()

	retryAt, ok := m.failures[cacheKey]
	if !ok {
		return false
	}
	if !now.Before(retryAt) {
		delete(m.failures, cacheKey)
		return false
	}
	return true
}

func (m *Manager) clearFailure(cacheKey string) {
	m.failMu.Lock()
	delete(m.failures, cacheKey)
	m.failMu.Unlock()
}

func (m *Manager) clearFailures() {
	m.failMu.Lock()
	m.failures = make(map[string]time.Time)
	m.failMu.Unlock()
}

// batcherFor returns the batcher for fp, creating it on first use.
// A request for a fingerprint that is no longer active fails with
// ErrBatcherClosed.
func (m *Manager) batcherFor(fp string) (*batcher.Batcher, error) {
	if m.destroyed.Load() {
		return nil, domain.ErrDestroyed
	}

	cfg, active := m.snapshot()
	if fp != active {
		return nil, domain.ErrBatcherClosed
	}

	m.batcherMu.Lock()
	defer m.batcherMu.Unlock()

	if m.batcher != nil && m.batcherFP == fp {
		return m.batcher, nil
	}
	if m.batcher != nil {
		m.batcher.Close()
	}

	opts := []batcher.Option{
		batcher.WithWindow(cfg.BatchWindow),
		batcher.WithLogger(logging.Component(m.logger, "batcher")),
		batcher.WithTelemetry(m.telemetry),
	}
	if m.maxBatchKeys > 0 {
		opts = append(opts, batcher.WithMaxKeys(m.maxBatchKeys))
	}

	m.batcher = batcher.New(m.transport, transport.Params{
		ClientID:    cfg.ClientID,
		Environment: cfg.Environment,
		User:        cfg.User.Clone(),
	}, opts...)
	m.batcherFP = fp

	return m.batcher, nil
}

// resetBatcher closes the current batcher; the next lookup builds a new one
func (m *Manager) resetBatcher() {
	m.batcherMu.Lock()
	b := m.batcher
	m.batcher = nil
	m.batcherFP = ""
	m.batcherMu.Unlock()

	if b != nil {
		b.Close()
	}
}

// UpdateUser replaces the active user and refreshes in the background.
// Entries cached for the previous user stay until a bulk fetch removes them.
func (m *Manager) UpdateUser(user *User) {
	if m.destroyed.Load() {
		return
	}

	m.mu.Lock()
	m.cfg.User = user.Clone()
	m.fingerprint = domain.Fingerprint(user)
	fp := m.fingerprint
	m.mu.Unlock()

	m.resetBatcher()

	m.logger.Debug("user updated", zap.String("fingerprint", fp))
	m.configSubs.notify(m.Config())

	m.spawn(func() {
		m.Refresh(context.Background(), false)
	})
}

// Refresh re-fetches every flag. With forceClear the cache and storage are
// emptied first.
func (m *Manager) Refresh(ctx context.Context, forceClear bool) {
	if m.destroyed.Load() {
		return
	}

	if forceClear && m.clear(ctx) {
		m.flagSubs.notify(map[string]FlagResult{})
	}

	m.FetchAllFlags(ctx, nil)
}

// clear empties the cache and storage unless the manager is destroyed
func (m *Manager) clear(ctx context.Context) bool {
	m.life.RLock()
	defer m.life.RUnlock()

	if m.destroyed.Load() {
		return false
	}

	m.store.Clear()
	m.clearFailures()
	if cfg := m.Config(); !cfg.SkipStorage {
		m.bridge.Clear(ctx)
	}
	m.telemetry.RecordCacheSize(ctx, 0)
	return true
}

// UpdateConfig replaces the configuration. The batch window is rebuilt
// lazily. Leaving the disabled or pending state, or switching user while
// active, starts a bulk fetch in the background.
func (m *Manager) UpdateConfig(cfg Config) error {
	if m.destroyed.Load() {
		return ErrDestroyed
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	cfg = cfg.normalize()
	fp := domain.Fingerprint(cfg.User)

	m.mu.Lock()
	prev, prevFP := m.cfg, m.fingerprint
	m.cfg = cfg
	m.fingerprint = fp
	m.mu.Unlock()

	m.resetBatcher()

	m.logger.Debug("config updated",
		zap.String("fingerprint", fp),
		zap.Bool("disabled", cfg.Disabled),
		zap.Bool("pending", cfg.IsPending),
	)
	m.configSubs.notify(m.Config())

	activated := !prev.active() && cfg.active()
	switched := prev.active() && cfg.active() && prevFP != fp
	if activated || switched {
		m.spawn(func() {
			m.FetchAllFlags(context.Background(), nil)
		})
	}

	return nil
}

// GetMemoryFlags returns the active user's valid cached flags keyed by
// plain flag key.
func (m *Manager) GetMemoryFlags() map[string]FlagResult {
	out := make(map[string]FlagResult)
	if m.destroyed.Load() {
		return out
	}

	_, fp := m.snapshot()
	for cacheKey, entry := range m.store.Entries() {
		if key, entryFP := domain.SplitCacheKey(cacheKey); entryFP == fp {
			out[key] = entry.Result
		}
	}
	return out
}

// hasFlagsFor reports whether any live entry is cached under fp
func (m *Manager) hasFlagsFor(fp string) bool {
	for cacheKey := range m.store.Entries() {
		if _, entryFP := domain.SplitCacheKey(cacheKey); entryFP == fp {
			return true
		}
	}
	return false
}

// IsReady reports whether hydration and the initial fetch attempt are done.
func (m *Manager) IsReady() bool {
	m.readyMu.Lock()
	defer m.readyMu.Unlock()
	return m.isReady
}

// Ready is closed once the manager is ready.
func (m *Manager) Ready() <-chan struct{} {
	return m.ready
}

func (m *Manager) markReady() {
	m.readyMu.Lock()
	if m.isReady {
		m.readyMu.Unlock()
		return
	}
	m.isReady = true
	close(m.ready)
	m.readyMu.Unlock()

	m.logger.Debug("flag manager ready")
	m.readySubs.notify(struct{}{})
	m.readySubs.clear()
}

// Stats returns a snapshot of internal counters.
func (m *Manager) Stats() Stats {
	cs := m.store.Stats()
	_, fp := m.snapshot()

	m.batcherMu.Lock()
	pending := 0
	if m.batcher != nil {
		pending = m.batcher.Pending()
	}
	m.batcherMu.Unlock()

	m.failMu.Lock()
	failed := len(m.failures)
	m.failMu.Unlock()

	stats := Stats{
		CacheEntries: cs.Entries,
		CacheHits:    cs.Hits,
		CacheMisses:  cs.Misses,
		InFlight:     m.flights.Len() + m.bulk.Len(),
		BatchPending: pending,
		Fingerprint:  fp,
		Ready:        m.IsReady(),
		Destroyed:    m.destroyed.Load(),
		FailedKeys:   failed,
	}
	if m.breaker != nil {
		stats.CircuitState = m.breaker.CircuitStats().State.String()
	}
	return stats
}

// Wait blocks until background fetches started so far have finished.
func (m *Manager) Wait() {
	m.bg.Wait()
}

// Destroy detaches the visibility monitor, closes the batch window and
// clears all cached state. Fetches already issued run to completion and
// their results are discarded. Calling it again is a no-op.
func (m *Manager) Destroy() {
	if !m.destroyed.CompareAndSwap(false, true) {
		return
	}

	m.monitor.Stop()
	m.resetBatcher()

	// waits for writes that passed the liveness check to finish
	m.life.Lock()
	m.store.Clear()
	m.store.Close()
	m.life.Unlock()

	m.flights.Reset()
	m.bulk.Reset()
	m.clearFailures()

	m.flagSubs.clear()
	m.configSubs.clear()
	m.readySubs.clear()

	m.logger.Debug("flag manager destroyed")
}

// spawn runs fn on a tracked goroutine unless the manager is destroyed
func (m *Manager) spawn(fn func()) {
	if m.destroyed.Load() {
		return
	}
	m.bg.Add(1)
	go func() {
		defer m.bg.Done()
		fn()
	}()
}
