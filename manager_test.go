package flagcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/OrlandoBitencourt/flagcache/internal/domain"
	"github.com/OrlandoBitencourt/flagcache/internal/storage"
	"github.com/OrlandoBitencourt/flagcache/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RequiresClientID(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestNew_OptionError(t *testing.T) {
	_, err := New(testConfig(), WithTransport(nil))
	assert.Error(t, err)
}

func TestNew_ReadyWithoutAutoFetch(t *testing.T) {
	env := newTestEnv(t, testConfig())

	assert.True(t, env.m.IsReady())
	assert.Equal(t, 0, env.mock.Calls())

	select {
	case <-env.m.Ready():
	default:
		t.Fatal("ready channel should be closed")
	}
}

func TestManager_GetFlagDeduplicatesInFlight(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.mock.SetFlag("checkout", onResult)

	release := make(chan struct{})
	env.mock.FetchFunc = func(ctx context.Context, req transport.Request) (map[string]domain.FlagResult, error) {
		<-release
		return map[string]domain.FlagResult{"checkout": onResult}, nil
	}

	results := make(chan FlagResult, 2)
	get := func() {
		res, err := env.m.GetFlag(context.Background(), "checkout", nil)
		assert.NoError(t, err)
		results <- res
	}

	go get()
	// the first window has flushed and is blocked in the transport
	require.Eventually(t, func() bool { return env.mock.Calls() == 1 }, time.Second, time.Millisecond)

	go get()
	time.Sleep(20 * time.Millisecond)
	close(release)

	for i := 0; i < 2; i++ {
		select {
		case res := <-results:
			assert.Equal(t, onResult, res)
		case <-time.After(2 * time.Second):
			t.Fatal("GetFlag did not return")
		}
	}
	assert.Equal(t, 1, env.mock.Calls())
}

func TestManager_BurstIsBatched(t *testing.T) {
	cfg := testConfig()
	cfg.BatchWindow = 50 * time.Millisecond
	env := newTestEnv(t, cfg)

	for _, key := range []string{"a", "b", "c"} {
		env.mock.SetFlag(key, onResult)
	}

	for _, key := range []string{"a", "b", "c"} {
		state := env.m.IsEnabled(key)
		assert.True(t, state.Loading)
		assert.Equal(t, StatusLoading, state.Status)
	}
	env.m.Wait()

	require.Equal(t, 1, env.mock.Calls())
	assert.ElementsMatch(t, []string{"a", "b", "c"}, env.mock.Requests()[0].Keys)

	for _, key := range []string{"a", "b", "c"} {
		assert.True(t, env.m.IsEnabled(key).On)
	}
}

func TestManager_Staleness(t *testing.T) {
	t.Run("fresh then stale", func(t *testing.T) {
		env := newTestEnv(t, testConfig())
		env.seed(t, map[string]FlagResult{"banner": onResult})

		env.clock.Advance(20 * time.Second)
		state := env.m.IsEnabled("banner")
		env.m.Wait()
		assert.True(t, state.On)
		assert.Equal(t, StatusReady, state.Status)
		assert.Equal(t, 0, env.mock.Calls())

		env.clock.Advance(20 * time.Second)
		state = env.m.IsEnabled("banner")
		assert.True(t, state.On)
		assert.Equal(t, StatusReady, state.Status)
		env.m.Wait()

		require.Equal(t, 1, env.mock.Calls())
		assert.Equal(t, []string{"banner"}, env.mock.Requests()[0].Keys)
	})

	t.Run("expired", func(t *testing.T) {
		env := newTestEnv(t, testConfig())
		env.seed(t, map[string]FlagResult{"banner": onResult})

		env.clock.Advance(61 * time.Second)
		state := env.m.IsEnabled("banner")
		assert.True(t, state.Loading)
		assert.False(t, state.On)
		env.m.Wait()

		assert.Equal(t, 1, env.mock.Calls())
		assert.True(t, env.m.IsEnabled("banner").On)
	})
}

func TestManager_FetchAllFlagsCollectsGarbage(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seed(t, map[string]FlagResult{"a": onResult, "b": onResult, "c": offResult})
	require.Len(t, env.m.GetMemoryFlags(), 3)

	// an entry cached for another user is dropped too
	other := &User{UserID: "other"}
	_, err := env.m.GetFlag(context.Background(), "a", other)
	require.NoError(t, err)
	require.Equal(t, 4, env.m.Stats().CacheEntries)

	env.mock.RemoveFlag("c")
	env.m.FetchAllFlags(context.Background(), nil)

	flags := env.m.GetMemoryFlags()
	assert.Len(t, flags, 2)
	assert.Contains(t, flags, "a")
	assert.Contains(t, flags, "b")
	assert.Equal(t, 2, env.m.Stats().CacheEntries)
}

func TestManager_FetchAllFlagsForOtherUserKeepsCache(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seed(t, map[string]FlagResult{"a": onResult, "b": onResult})

	env.mock.RemoveFlag("b")
	env.m.FetchAllFlags(context.Background(), &User{UserID: "other"})

	require.Equal(t, 1, env.mock.Calls())
	assert.Equal(t, "other", env.mock.Requests()[0].Params.User.UserID)
	assert.Len(t, env.m.GetMemoryFlags(), 2)
	assert.Equal(t, 3, env.m.Stats().CacheEntries)
}

func TestManager_FetchAllFlagsFailureKeepsCache(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seed(t, map[string]FlagResult{"a": onResult})

	env.mock.SetError(errors.New("service unavailable"))
	env.m.FetchAllFlags(context.Background(), nil)

	assert.Equal(t, map[string]FlagResult{"a": onResult}, env.m.GetMemoryFlags())
	assert.Equal(t, 1, env.logs.FilterMessage("bulk fetch failed").Len())
}

func TestManager_VisibilitySkipsAndRevalidates(t *testing.T) {
	cfg := testConfig()
	cfg.BatchWindow = 50 * time.Millisecond
	signal := NewVisibilitySignal(true)
	env := newTestEnv(t, cfg, WithVisibilitySource(signal))

	env.seed(t, map[string]FlagResult{"a": onResult, "b": onResult})

	// c is fetched later and is still fresh when a and b go stale
	env.clock.Advance(35 * time.Second)
	env.mock.SetFlag("c", onResult)
	_, err := env.m.GetFlag(context.Background(), "c", nil)
	require.NoError(t, err)
	env.mock.Reset()

	signal.SetVisible(false)
	env.m.FetchAllFlags(context.Background(), nil)
	env.m.Wait()
	assert.Equal(t, 0, env.mock.Calls())
	assert.Equal(t, 1, env.logs.FilterMessage("bulk fetch skipped while hidden").Len())

	signal.SetVisible(true)
	env.m.Wait()

	require.Equal(t, 1, env.mock.Calls())
	assert.ElementsMatch(t, []string{"a", "b"}, env.mock.Requests()[0].Keys)
}

func TestManager_HiddenWithEmptyCacheStillFetches(t *testing.T) {
	signal := NewVisibilitySignal(false)
	env := newTestEnv(t, testConfig(), WithVisibilitySource(signal))
	env.mock.SetFlag("a", onResult)

	env.m.FetchAllFlags(context.Background(), nil)

	assert.Equal(t, 1, env.mock.Calls())
	assert.Len(t, env.m.GetMemoryFlags(), 1)
}

func TestManager_HiddenWithOnlyOtherUsersFlagsStillFetches(t *testing.T) {
	signal := NewVisibilitySignal(true)
	env := newTestEnv(t, testConfig(), WithVisibilitySource(signal))
	env.mock.SetFlag("a", onResult)

	env.m.FetchAllFlags(context.Background(), &User{UserID: "someone-else"})
	require.Equal(t, 1, env.mock.Calls())
	require.Empty(t, env.m.GetMemoryFlags())

	signal.SetVisible(false)
	env.m.FetchAllFlags(context.Background(), nil)

	assert.Equal(t, 2, env.mock.Calls())
	assert.Equal(t, map[string]FlagResult{"a": onResult}, env.m.GetMemoryFlags())
}

func TestManager_FailedRevalidationKeepsCachedValue(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seed(t, map[string]FlagResult{"a": onResult})

	env.clock.Advance(40 * time.Second)
	env.mock.SetError(errors.New("connection refused"))

	assert.True(t, env.m.IsEnabled("a").On)
	env.m.Wait()
	require.Equal(t, 1, env.mock.Calls())

	state := env.m.IsEnabled("a")
	assert.True(t, state.On)
	assert.Equal(t, StatusReady, state.Status)
	assert.True(t, env.m.GetBool("a", false))
	env.m.Wait()

	logged := env.logs.FilterMessage("flag fetch failed").All()
	require.NotEmpty(t, logged)
	fields := logged[0].ContextMap()
	assert.Equal(t, "a", fields["flag_key"])
	assert.Equal(t, cacheKey("a", nil), fields["cache_key"])
}

func TestManager_FailedColdFetchIsRetriedAfterStaleTime(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.mock.SetError(errors.New("timeout"))

	assert.True(t, env.m.IsEnabled("a").Loading)
	env.m.Wait()
	require.Equal(t, 1, env.mock.Calls())

	state := env.m.IsEnabled("a")
	assert.Equal(t, StatusError, state.Status)
	assert.False(t, state.On)
	assert.Equal(t, 1, env.m.Stats().FailedKeys)
	env.m.Wait()
	assert.Equal(t, 1, env.mock.Calls())

	env.mock.Reset()
	env.mock.SetFlag("a", onResult)
	env.clock.Advance(31 * time.Second)

	assert.True(t, env.m.IsEnabled("a").Loading)
	env.m.Wait()
	assert.True(t, env.m.IsEnabled("a").On)
	assert.Equal(t, 0, env.m.Stats().FailedKeys)
}

func TestManager_GetFlagReturnsTransportErrors(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.mock.SetError(errors.New("boom"))

	_, err := env.m.GetFlag(context.Background(), "a", nil)
	require.Error(t, err)
	assert.True(t, IsTransportError(err))
}

func TestManager_GetFlagMissingKeyIsDefault(t *testing.T) {
	env := newTestEnv(t, testConfig())

	res, err := env.m.GetFlag(context.Background(), "unknown", nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultResult, res)
}

func TestManager_GetFlagForOverrideUser(t *testing.T) {
	cfg := testConfig()
	cfg.User = &User{UserID: "active"}
	env := newTestEnv(t, cfg)
	env.mock.SetFlag("beta", onResult)

	other := &User{UserID: "guest", Properties: map[string]any{"plan": "free"}}
	res, err := env.m.GetFlag(context.Background(), "beta", other)
	require.NoError(t, err)
	assert.Equal(t, onResult, res)

	require.Equal(t, 1, env.mock.Calls())
	req := env.mock.Requests()[0]
	assert.Equal(t, []string{"beta"}, req.Keys)
	assert.Equal(t, "guest", req.Params.User.UserID)

	// cached for the guest, invisible to the active user
	assert.Empty(t, env.m.GetMemoryFlags())
	_, err = env.m.GetFlag(context.Background(), "beta", other)
	require.NoError(t, err)
	assert.Equal(t, 1, env.mock.Calls())
}

func TestManager_TypedValues(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seed(t, map[string]FlagResult{
		"theme":  {Enabled: true, Value: StringValue("dark"), Reason: ReasonMatch},
		"limit":  {Enabled: true, Value: NumberValue(25), Reason: ReasonMatch},
		"search": onResult,
	})

	assert.Equal(t, "dark", env.m.GetString("theme", "light"))
	assert.Equal(t, 25.0, env.m.GetNumber("limit", 10))
	assert.True(t, env.m.GetBool("search", false))
	assert.Equal(t, 25.0, GetValue(env.m, "limit", 1.0))

	// wrong kind falls back
	assert.Equal(t, 7.0, env.m.GetNumber("theme", 7))
	assert.Equal(t, "fallback", env.m.GetString("limit", "fallback"))

	// loading falls back
	assert.Equal(t, "light", env.m.GetString("unknown", "light"))
	env.m.Wait()
}

func TestManager_StorageRoundTrip(t *testing.T) {
	mem := storage.NewMemoryStorage()
	require.NoError(t, mem.SetAll(context.Background(), Snapshot{
		cacheKey("a", nil): onResult,
		cacheKey("b", nil): offResult,
		cacheKey("c", &User{UserID: "someone"}): onResult,
	}))

	env := newTestEnv(t, testConfig(), WithStorage(mem))

	assert.Equal(t, map[string]FlagResult{"a": onResult, "b": offResult}, env.m.GetMemoryFlags())
	assert.Equal(t, 0, env.mock.Calls())

	// hydrated entries get the current TTLs
	env.clock.Advance(20 * time.Second)
	assert.True(t, env.m.IsEnabled("a").On)
	env.m.Wait()
	assert.Equal(t, 0, env.mock.Calls())
}

func TestManager_HydrateAssignsBareKeysToActiveUser(t *testing.T) {
	mem := storage.NewMemoryStorage()
	require.NoError(t, mem.SetAll(context.Background(), Snapshot{
		"legacy":           onResult,
		cacheKey("b", nil): offResult,
	}))

	cfg := testConfig()
	cfg.User = &User{UserID: "u-1"}
	env := newTestEnv(t, cfg, WithStorage(mem))

	assert.Equal(t, map[string]FlagResult{"legacy": onResult}, env.m.GetMemoryFlags())
	assert.True(t, env.m.IsEnabled("legacy").On)
}

func TestManager_PersistsAfterFetch(t *testing.T) {
	mem := storage.NewMemoryStorage()
	env := newTestEnv(t, testConfig(), WithStorage(mem))

	env.seed(t, map[string]FlagResult{"a": onResult})

	stored, err := mem.GetAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Snapshot{cacheKey("a", nil): onResult}, stored)

	env.m.Refresh(context.Background(), true)
	_, setAll, clears := mem.Calls()
	assert.Equal(t, 1, clears)
	assert.Equal(t, 2, setAll)
}

func TestManager_DestroyDuringCommitKeepsPersistedFlags(t *testing.T) {
	mem := storage.NewMemoryStorage()
	clock := newFakeClock()

	var armed atomic.Bool
	entered, release := make(chan struct{}), make(chan struct{})
	now := func() time.Time {
		if armed.CompareAndSwap(true, false) {
			close(entered)
			<-release
		}
		return clock.Now()
	}

	env := newTestEnv(t, testConfig(), WithStorage(mem), WithClock(now))
	env.mock.SetFlag("a", onResult)

	armed.Store(true)
	fetched := make(chan struct{})
	go func() {
		defer close(fetched)
		env.m.FetchAllFlags(context.Background(), nil)
	}()
	<-entered

	destroyed := make(chan struct{})
	go func() {
		defer close(destroyed)
		env.m.Destroy()
	}()
	require.Eventually(t, env.m.destroyed.Load, time.Second, time.Millisecond)

	close(release)
	<-fetched
	<-destroyed

	stored, err := mem.GetAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Snapshot{cacheKey("a", nil): onResult}, stored)
	assert.Empty(t, env.m.GetMemoryFlags())
}

func TestManager_SkipStorage(t *testing.T) {
	mem := storage.NewMemoryStorage()
	cfg := testConfig()
	cfg.SkipStorage = true
	env := newTestEnv(t, cfg, WithStorage(mem))

	env.seed(t, map[string]FlagResult{"a": onResult})

	getAll, setAll, clears := mem.Calls()
	assert.Zero(t, getAll)
	assert.Zero(t, setAll)
	assert.Zero(t, clears)
}

func TestManager_StorageFailureIsLogged(t *testing.T) {
	mem := storage.NewMemoryStorage()
	mem.SetAllFunc = func(ctx context.Context, snapshot storage.Snapshot) error {
		return errors.New("quota exceeded")
	}
	env := newTestEnv(t, testConfig(), WithStorage(mem))

	env.seed(t, map[string]FlagResult{"a": onResult})

	assert.True(t, env.m.IsEnabled("a").On)
	assert.Equal(t, 1, env.logs.FilterMessage("storage operation failed").Len())
}

func TestManager_RefreshForceClear(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seed(t, map[string]FlagResult{"a": onResult, "b": onResult})

	env.mock.SetError(errors.New("down"))
	env.m.Refresh(context.Background(), true)

	assert.Empty(t, env.m.GetMemoryFlags())
	assert.Equal(t, 1, env.mock.Calls())
}

func TestManager_UpdateUser(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seed(t, map[string]FlagResult{"a": onResult})

	var got []Config
	var mu sync.Mutex
	env.m.OnConfigUpdate(func(cfg Config) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, cfg)
	})

	user := &User{UserID: "u-1", Email: "u1@example.com"}
	env.m.UpdateUser(user)
	env.m.Wait()

	require.Equal(t, 1, env.mock.Calls())
	req := env.mock.Requests()[0]
	assert.True(t, req.All())
	assert.Equal(t, "u-1", req.Params.User.UserID)

	assert.Equal(t, map[string]FlagResult{"a": onResult}, env.m.GetMemoryFlags())
	assert.Equal(t, domain.Fingerprint(user), env.m.Stats().Fingerprint)

	mu.Lock()
	require.Len(t, got, 1)
	assert.Equal(t, "u-1", got[0].User.UserID)
	mu.Unlock()

	// later single lookups carry the new user
	env.mock.Reset()
	env.mock.SetFlag("b", onResult)
	_, err := env.m.GetFlag(context.Background(), "b", nil)
	require.NoError(t, err)
	assert.Equal(t, "u-1", env.mock.Requests()[0].Params.User.UserID)
}

func TestManager_LateBulkFetchForPreviousUserKeepsNewEntries(t *testing.T) {
	cfg := testConfig()
	cfg.User = &User{UserID: "old"}
	env := newTestEnv(t, cfg)

	entered, release := make(chan struct{}), make(chan struct{})
	var once sync.Once
	env.mock.FetchFunc = func(ctx context.Context, req transport.Request) (map[string]domain.FlagResult, error) {
		if req.Params.User != nil && req.Params.User.UserID == "old" {
			once.Do(func() { close(entered) })
			<-release
			return map[string]domain.FlagResult{"legacy": onResult}, nil
		}
		return map[string]domain.FlagResult{"a": onResult, "b": offResult}, nil
	}

	fetched := make(chan struct{})
	go func() {
		defer close(fetched)
		env.m.FetchAllFlags(context.Background(), nil)
	}()
	<-entered

	env.m.UpdateUser(&User{UserID: "new"})
	env.m.Wait()
	require.Equal(t, map[string]FlagResult{"a": onResult, "b": offResult}, env.m.GetMemoryFlags())

	close(release)
	<-fetched

	assert.Equal(t, map[string]FlagResult{"a": onResult, "b": offResult}, env.m.GetMemoryFlags())
	assert.NotEmpty(t, env.logs.FilterMessage("skipped garbage collection for previous user").All())
}

func TestManager_UpdateUserOrphansOldEntries(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seed(t, map[string]FlagResult{"a": onResult})

	env.mock.SetError(errors.New("offline"))
	env.m.UpdateUser(&User{UserID: "u-2"})
	env.m.Wait()

	assert.Empty(t, env.m.GetMemoryFlags())
	assert.Equal(t, 1, env.m.Stats().CacheEntries)
}

func TestManager_PendingAndDisabled(t *testing.T) {
	t.Run("pending", func(t *testing.T) {
		cfg := testConfig()
		cfg.IsPending = true
		cfg.AutoFetch = true
		env := newTestEnv(t, cfg)

		assert.True(t, env.m.IsReady())

		state := env.m.IsEnabled("a")
		assert.Equal(t, StatusPending, state.Status)
		assert.Equal(t, ReasonSessionPending, state.Reason)

		res, err := env.m.GetFlag(context.Background(), "a", nil)
		require.NoError(t, err)
		assert.Equal(t, ReasonSessionPending, res.Reason)

		env.m.Wait()
		assert.Equal(t, 0, env.mock.Calls())
	})

	t.Run("disabled", func(t *testing.T) {
		cfg := testConfig()
		cfg.Disabled = true
		env := newTestEnv(t, cfg)

		state := env.m.IsEnabled("a")
		assert.False(t, state.On)
		assert.Equal(t, ReasonDefault, state.Reason)
		assert.Equal(t, "x", env.m.GetString("a", "x"))

		res, err := env.m.GetFlag(context.Background(), "a", nil)
		require.NoError(t, err)
		assert.Equal(t, DefaultResult, res)

		env.m.FetchAllFlags(context.Background(), nil)
		env.m.Wait()
		assert.Equal(t, 0, env.mock.Calls())
	})
}

func TestManager_UpdateConfigActivates(t *testing.T) {
	cfg := testConfig()
	cfg.IsPending = true
	env := newTestEnv(t, cfg)
	env.mock.SetFlag("a", onResult)

	cfg.IsPending = false
	require.NoError(t, env.m.UpdateConfig(cfg))
	env.m.Wait()

	require.Equal(t, 1, env.mock.Calls())
	assert.True(t, env.mock.Requests()[0].All())
	assert.True(t, env.m.IsEnabled("a").On)
}

func TestManager_UpdateConfigNormalizes(t *testing.T) {
	env := newTestEnv(t, testConfig())

	cfg := testConfig()
	cfg.CacheTTL = 10 * time.Second
	cfg.StaleTime = time.Minute
	require.NoError(t, env.m.UpdateConfig(cfg))
	assert.Equal(t, 10*time.Second, env.m.Config().StaleTime)

	err := env.m.UpdateConfig(Config{})
	assert.True(t, IsValidationError(err))
	env.m.Wait()
	assert.Equal(t, 0, env.mock.Calls())
}

func TestManager_ReadyAfterInitialFetch(t *testing.T) {
	cfg := testConfig()
	cfg.AutoFetch = true

	mock := transport.NewMock()
	release := make(chan struct{})
	mock.FetchFunc = func(ctx context.Context, req transport.Request) (map[string]domain.FlagResult, error) {
		<-release
		return nil, errors.New("unreachable")
	}

	m, err := New(cfg, WithTransport(mock))
	require.NoError(t, err)
	defer m.Destroy()

	var fired atomic.Int32
	m.OnReady(func() { fired.Add(1) })
	assert.False(t, m.IsReady())

	close(release)
	select {
	case <-m.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("manager never became ready")
	}
	m.Wait()

	assert.True(t, m.IsReady())
	assert.Equal(t, int32(1), fired.Load())

	// late subscribers run immediately
	m.OnReady(func() { fired.Add(1) })
	assert.Equal(t, int32(2), fired.Load())
}

func TestManager_Destroy(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.seed(t, map[string]FlagResult{"a": onResult})

	release := make(chan struct{})
	env.mock.FetchFunc = func(ctx context.Context, req transport.Request) (map[string]domain.FlagResult, error) {
		<-release
		return map[string]domain.FlagResult{"late": onResult}, nil
	}

	env.m.IsEnabled("late")
	require.Eventually(t, func() bool { return env.mock.Calls() == 1 }, time.Second, time.Millisecond)

	env.m.Destroy()
	env.m.Destroy()

	close(release)
	env.m.Wait()

	stats := env.m.Stats()
	assert.True(t, stats.Destroyed)
	assert.Zero(t, stats.CacheEntries)
	assert.Zero(t, stats.InFlight)
	assert.Empty(t, env.m.GetMemoryFlags())

	_, err := env.m.GetFlag(context.Background(), "a", nil)
	assert.ErrorIs(t, err, ErrDestroyed)
	assert.Equal(t, StatusReady, env.m.IsEnabled("a").Status)
	assert.False(t, env.m.IsEnabled("a").On)
	assert.ErrorIs(t, env.m.UpdateConfig(testConfig()), ErrDestroyed)
}

func TestManager_CircuitBreaker(t *testing.T) {
	env := newTestEnv(t, testConfig(), WithCircuitBreaker(1, time.Minute))
	env.mock.SetError(errors.New("down"))

	_, err := env.m.GetFlag(context.Background(), "a", nil)
	require.Error(t, err)
	assert.False(t, IsCircuitOpen(err))

	_, err = env.m.GetFlag(context.Background(), "a", nil)
	require.Error(t, err)
	assert.True(t, IsCircuitOpen(err))
	assert.Equal(t, "open", env.m.Stats().CircuitState)
	assert.Equal(t, 1, env.mock.Calls())
}
