package flagcache

import (
	"sync"
	"testing"
	"time"

	"github.com/OrlandoBitencourt/flagcache/internal/domain"
	"github.com/OrlandoBitencourt/flagcache/internal/transport"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var (
	onResult  = FlagResult{Enabled: true, Value: BoolValue(true), Reason: ReasonMatch}
	offResult = FlagResult{Enabled: false, Value: BoolValue(false), Reason: ReasonMatch}
)

// fakeClock is a manually advanced clock
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// testConfig returns a config that does not fetch on construction
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ClientID = "test-client"
	cfg.AutoFetch = false
	cfg.BatchWindow = 5 * time.Millisecond
	return cfg
}

// testEnv bundles a manager with its collaborators
type testEnv struct {
	m      *Manager
	mock   *transport.Mock
	clock  *fakeClock
	logs   *observer.ObservedLogs
	config Config
}

func newTestEnv(t testing.TB, cfg Config, opts ...Option) *testEnv {
	t.Helper()

	mock := transport.NewMock()
	clock := newFakeClock()
	core, logs := observer.New(zapcore.DebugLevel)

	base := []Option{
		WithTransport(mock),
		WithClock(clock.Now),
		WithLogger(zap.New(core)),
	}

	m, err := New(cfg, append(base, opts...)...)
	require.NoError(t, err)

	t.Cleanup(func() {
		m.Destroy()
		m.Wait()
	})

	return &testEnv{m: m, mock: mock, clock: clock, logs: logs, config: cfg}
}

// seed fetches every flag the mock knows and resets the call log
func (e *testEnv) seed(t testing.TB, flags map[string]FlagResult) {
	t.Helper()
	for k, v := range flags {
		e.mock.SetFlag(k, v)
	}
	e.m.Refresh(t.Context(), false)
	e.m.Wait()
	e.mock.Reset()
}

// waitForFlag waits until key resolves from the cache
func (e *testEnv) waitForFlag(t *testing.T, key string) FlagState {
	t.Helper()
	var state FlagState
	require.Eventually(t, func() bool {
		state = e.m.IsEnabled(key)
		return state.Status == StatusReady
	}, time.Second, time.Millisecond)
	return state
}

func requestedKeys(reqs []transport.Request) [][]string {
	out := make([][]string, len(reqs))
	for i, r := range reqs {
		out[i] = r.Keys
	}
	return out
}

func cacheKey(flagKey string, user *User) string {
	return domain.CacheKey(flagKey, domain.Fingerprint(user))
}
