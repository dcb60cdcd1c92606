package flagcache

import (
	"fmt"
	"time"

	"github.com/OrlandoBitencourt/flagcache/internal/domain"
	"github.com/caarlos0/env/v11"
)

const (
	// DefaultAPIURL is the evaluation service used when APIURL is empty
	DefaultAPIURL = "http://localhost:8080"

	DefaultCacheTTL    = 60 * time.Second
	DefaultStaleTime   = 30 * time.Second
	DefaultBatchWindow = 10 * time.Millisecond
)

// Config holds all configuration for a Manager.
// Start from DefaultConfig; the zero value disables AutoFetch.
type Config struct {
	// ClientID identifies the project on the evaluation service. Required.
	ClientID string `env:"FLAGCACHE_CLIENT_ID"`

	// APIURL is the evaluation service root
	APIURL string `env:"FLAGCACHE_API_URL"`

	// User is the active user context
	User *User `env:"-"`

	// Disabled serves the default result for every flag without fetching
	Disabled bool `env:"FLAGCACHE_DISABLED"`

	// Debug lowers the log level to debug
	Debug bool `env:"FLAGCACHE_DEBUG"`

	// SkipStorage skips hydration and persistence
	SkipStorage bool `env:"FLAGCACHE_SKIP_STORAGE"`

	// IsPending serves SESSION_PENDING results while the host session is unresolved
	IsPending bool `env:"-"`

	// AutoFetch starts a bulk fetch on construction
	AutoFetch bool `env:"FLAGCACHE_AUTO_FETCH" envDefault:"true"`

	// Environment is passed through to the evaluation service
	Environment string `env:"FLAGCACHE_ENVIRONMENT"`

	// CacheTTL is how long a fetched result may be served
	CacheTTL time.Duration `env:"FLAGCACHE_CACHE_TTL" envDefault:"60s"`

	// StaleTime is when a served result starts revalidating; clamped to CacheTTL
	StaleTime time.Duration `env:"FLAGCACHE_STALE_TIME" envDefault:"30s"`

	// BatchWindow is how long single-flag lookups are coalesced
	BatchWindow time.Duration `env:"FLAGCACHE_BATCH_WINDOW" envDefault:"10ms"`
}

// DefaultConfig returns recommended default configuration.
func DefaultConfig() Config {
	return Config{
		APIURL:      DefaultAPIURL,
		AutoFetch:   true,
		CacheTTL:    DefaultCacheTTL,
		StaleTime:   DefaultStaleTime,
		BatchWindow: DefaultBatchWindow,
	}
}

// LoadConfigFromEnv reads FLAGCACHE_* environment variables over DefaultConfig.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse environment: %w", err)
	}
	return cfg.normalize(), nil
}

// Validate reports configuration that cannot be normalized
func (c Config) Validate() error {
	if c.ClientID == "" {
		return domain.NewValidationError("ClientID", "client id is required")
	}
	return nil
}

// normalize fills defaults and clamps durations. It never fails.
func (c Config) normalize() Config {
	if c.APIURL == "" {
		c.APIURL = DefaultAPIURL
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = DefaultCacheTTL
	}
	if c.StaleTime <= 0 {
		c.StaleTime = DefaultStaleTime
	}
	if c.StaleTime > c.CacheTTL {
		c.StaleTime = c.CacheTTL
	}
	if c.BatchWindow <= 0 {
		c.BatchWindow = DefaultBatchWindow
	}
	c.User = c.User.Clone()
	return c
}

// active reports whether flags are fetched at all
func (c Config) active() bool {
	return !c.Disabled && !c.IsPending
}
