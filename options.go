package flagcache

import (
	"fmt"
	"net/http"
	"time"

	"github.com/OrlandoBitencourt/flagcache/internal/cache"
	"github.com/OrlandoBitencourt/flagcache/internal/circuit"
	"github.com/OrlandoBitencourt/flagcache/internal/storage"
	"github.com/OrlandoBitencourt/flagcache/internal/telemetry"
	"github.com/OrlandoBitencourt/flagcache/internal/transport"
	"github.com/OrlandoBitencourt/flagcache/internal/visibility"
	"go.uber.org/zap"
)

// Option configures a Manager.
type Option func(*options) error

// options holds injected collaborators.
type options struct {
	transport  transport.Transport
	storage    storage.Storage
	visibility visibility.Source
	logger     *zap.Logger
	telemetry  telemetry.Provider
	now        func() time.Time

	httpClient  *http.Client
	httpRetries int

	breakerConfig *circuit.Config

	cacheConfig  cache.Config
	maxBatchKeys int
}

func defaultOptions() *options {
	return &options{
		httpRetries: -1,
		cacheConfig: cache.DefaultConfig(),
	}
}

// Transport is the contract for fetching resolved flags.
type Transport = transport.Transport

// TransportRequest is one outbound fetch.
type TransportRequest = transport.Request

// TransportFunc adapts a function to Transport.
type TransportFunc = transport.Func

// Storage is the persistent storage contract.
type Storage = storage.Storage

// Snapshot maps cache keys to results in persistent storage.
type Snapshot = storage.Snapshot

// VisibilitySource reports foreground/background state.
type VisibilitySource = visibility.Source

// VisibilitySignal is a VisibilitySource driven by the host application.
type VisibilitySignal = visibility.Signal

// NewVisibilitySignal creates a signal in the given initial state.
func NewVisibilitySignal(visible bool) *VisibilitySignal {
	return visibility.NewSignal(visible)
}

// TelemetryProvider records traces and metrics.
type TelemetryProvider = telemetry.Provider

// CacheConfig sizes the in-memory cache.
type CacheConfig = cache.Config

// DefaultCacheConfig returns the default cache sizing.
func DefaultCacheConfig() CacheConfig {
	return cache.DefaultConfig()
}

// WithTransport replaces the HTTP transport.
//
// Example: flagcache.WithTransport(rules)
func WithTransport(t Transport) Option {
	return func(o *options) error {
		if t == nil {
			return fmt.Errorf("transport cannot be nil")
		}
		o.transport = t
		return nil
	}
}

// WithStorage sets the persistent storage. Default: in-memory.
func WithStorage(s Storage) Option {
	return func(o *options) error {
		if s == nil {
			return fmt.Errorf("storage cannot be nil")
		}
		o.storage = s
		return nil
	}
}

// WithVisibilitySource sets the foreground signal. Default: always visible.
func WithVisibilitySource(s VisibilitySource) Option {
	return func(o *options) error {
		if s == nil {
			return fmt.Errorf("visibility source cannot be nil")
		}
		o.visibility = s
		return nil
	}
}

// WithLogger sets the logger. Default: built from Config.Debug.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) error {
		o.logger = l
		return nil
	}
}

// WithTelemetry sets the telemetry provider. Default: no-op.
func WithTelemetry(p TelemetryProvider) Option {
	return func(o *options) error {
		o.telemetry = p
		return nil
	}
}

// WithOpenTelemetry records traces and metrics through the global
// OpenTelemetry providers.
func WithOpenTelemetry() Option {
	return func(o *options) error {
		p, err := telemetry.NewOTel()
		if err != nil {
			return fmt.Errorf("failed to create telemetry provider: %w", err)
		}
		o.telemetry = p
		return nil
	}
}

// WithClock overrides time.Now for cache expiry.
func WithClock(now func() time.Time) Option {
	return func(o *options) error {
		if now == nil {
			return fmt.Errorf("clock cannot be nil")
		}
		o.now = now
		return nil
	}
}

// WithHTTPClient sets the client used by the default HTTP transport.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) error {
		o.httpClient = c
		return nil
	}
}

// WithHTTPRetries sets retries after the first attempt for the HTTP transport.
func WithHTTPRetries(n int) Option {
	return func(o *options) error {
		if n < 0 {
			return fmt.Errorf("retries cannot be negative")
		}
		o.httpRetries = n
		return nil
	}
}

// WithCircuitBreaker wraps the transport in a circuit breaker.
//
// Example: flagcache.WithCircuitBreaker(5, 30*time.Second)
func WithCircuitBreaker(maxFailures int, timeout time.Duration) Option {
	return func(o *options) error {
		if maxFailures < 1 {
			return fmt.Errorf("circuit breaker threshold must be positive")
		}
		cfg := circuit.DefaultConfig()
		cfg.MaxFailures = maxFailures
		if timeout > 0 {
			cfg.Timeout = timeout
		}
		o.breakerConfig = &cfg
		return nil
	}
}

// WithCacheConfig sizes the in-memory cache.
func WithCacheConfig(cfg CacheConfig) Option {
	return func(o *options) error {
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid cache config: %w", err)
		}
		o.cacheConfig = cfg
		return nil
	}
}

// WithMaxBatchKeys flushes a batch window early once it holds n keys.
func WithMaxBatchKeys(n int) Option {
	return func(o *options) error {
		if n < 1 {
			return fmt.Errorf("max batch keys must be positive")
		}
		o.maxBatchKeys = n
		return nil
	}
}
