package flagcache

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/OrlandoBitencourt/flagcache/internal/domain"
	"github.com/OrlandoBitencourt/flagcache/internal/storage"
	"github.com/OrlandoBitencourt/flagcache/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// flagService is a stand-in for the remote evaluation service
type flagService struct {
	*httptest.Server

	mu       sync.RWMutex
	flags    map[string]FlagResult
	requests atomic.Int32
}

func newFlagService(t *testing.T, flags map[string]FlagResult) *flagService {
	t.Helper()

	svc := &flagService{flags: flags}
	mux := http.NewServeMux()
	mux.HandleFunc("/public/v1/flags/bulk", func(w http.ResponseWriter, r *http.Request) {
		svc.requests.Add(1)

		svc.mu.RLock()
		defer svc.mu.RUnlock()

		out := make(map[string]FlagResult)
		if keys := r.URL.Query().Get("keys"); keys != "" {
			for _, k := range strings.Split(keys, ",") {
				if v, ok := svc.flags[k]; ok {
					out[k] = v
				}
			}
		} else {
			for k, v := range svc.flags {
				out[k] = v
			}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"flags": out})
	})

	svc.Server = httptest.NewServer(mux)
	t.Cleanup(svc.Close)
	return svc
}

func TestIntegration_HTTPAutoFetch(t *testing.T) {
	svc := newFlagService(t, map[string]FlagResult{
		"checkout": onResult,
		"theme":    {Enabled: true, Value: StringValue("dark"), Variant: "b", Reason: ReasonRollout},
	})

	cfg := DefaultConfig()
	cfg.ClientID = "integration"
	cfg.APIURL = svc.URL

	m, err := New(cfg, WithLogger(zap.NewNop()), WithHTTPRetries(0))
	require.NoError(t, err)
	defer m.Destroy()

	select {
	case <-m.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("manager never became ready")
	}

	assert.True(t, m.IsEnabled("checkout").On)
	assert.Equal(t, "dark", m.GetString("theme", "light"))
	assert.Equal(t, "b", m.IsEnabled("theme").Variant)
	assert.Equal(t, int32(1), svc.requests.Load())

	res, err := m.GetFlag(context.Background(), "missing", nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultResult, res)
	assert.Equal(t, int32(2), svc.requests.Load())
}

func TestIntegration_HTTPServerErrorKeepsDefaults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.APIURL = server.URL

	m, err := New(cfg, WithLogger(zap.NewNop()), WithHTTPRetries(0))
	require.NoError(t, err)
	defer m.Destroy()

	_, err = m.GetFlag(context.Background(), "checkout", nil)
	require.Error(t, err)

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusServiceUnavailable, httpErr.StatusCode)

	assert.Equal(t, StatusError, m.IsEnabled("checkout").Status)
}

func TestIntegration_DiskStorageSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	disk, err := storage.NewDiskStorage(dir)
	require.NoError(t, err)

	mock := transport.NewMock()
	mock.SetFlag("checkout", onResult)
	mock.SetFlag("legacy", offResult)

	cfg := testConfig()
	first, err := New(cfg, WithTransport(mock), WithStorage(disk), WithLogger(zap.NewNop()))
	require.NoError(t, err)
	first.FetchAllFlags(context.Background(), nil)
	first.Destroy()

	// the service is down for the second process
	mock.Reset()
	mock.SetError(assert.AnError)

	reopened, err := storage.NewDiskStorage(dir)
	require.NoError(t, err)
	second, err := New(cfg, WithTransport(mock), WithStorage(reopened), WithLogger(zap.NewNop()))
	require.NoError(t, err)
	defer second.Destroy()

	assert.Equal(t, map[string]FlagResult{"checkout": onResult, "legacy": offResult}, second.GetMemoryFlags())
	assert.True(t, second.IsEnabled("checkout").On)
	assert.Equal(t, 0, mock.Calls())
}

func TestIntegration_RulesTransport(t *testing.T) {
	rules, err := transport.ParseRules(strings.NewReader(`
flags:
  beta-dashboard:
    value: false
    rules:
      - when: 'user.organizationId == "acme"'
        value: true
  plan-limit:
    value: 5
    rules:
      - when: 'user.properties.plan == "pro"'
        value: 50
        variant: pro
`))
	require.NoError(t, err)

	cfg := testConfig()
	cfg.AutoFetch = true
	cfg.User = &User{UserID: "u-1", OrganizationID: "acme", Properties: map[string]any{"plan": "pro"}}

	m, err := New(cfg, WithTransport(rules), WithLogger(zap.NewNop()))
	require.NoError(t, err)
	defer m.Destroy()
	<-m.Ready()

	assert.True(t, m.IsEnabled("beta-dashboard").On)
	assert.Equal(t, 50.0, m.GetNumber("plan-limit", 0))
	assert.Equal(t, ReasonMatch, m.IsEnabled("plan-limit").Reason)

	m.UpdateUser(&User{UserID: "u-2", OrganizationID: "globex"})
	m.Wait()

	assert.False(t, m.IsEnabled("beta-dashboard").On)
	assert.Equal(t, 5.0, m.GetNumber("plan-limit", 0))
	assert.Equal(t, domain.ReasonDefault, m.IsEnabled("plan-limit").Reason)
}
