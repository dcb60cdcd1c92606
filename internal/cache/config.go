package cache

import "fmt"

// Config holds cache store configuration
type Config struct {
	// MaxEntries bounds the number of cached (flag, user) pairs
	MaxEntries int64

	// NumCounters sizes the admission policy; ~10x MaxEntries
	NumCounters int64

	// BufferItems is the number of keys per Get buffer
	BufferItems int64

	// Metrics enables Ristretto's internal counters
	Metrics bool
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		MaxEntries:  10_000,
		NumCounters: 100_000,
		BufferItems: 64,
		Metrics:     true,
	}
}

// Validate validates the configuration
func (c Config) Validate() error {
	if c.MaxEntries < 1 {
		return fmt.Errorf("max entries must be positive")
	}

	if c.NumCounters < c.MaxEntries {
		return fmt.Errorf("num counters (%d) must be at least max entries (%d)", c.NumCounters, c.MaxEntries)
	}

	if c.BufferItems < 1 {
		return fmt.Errorf("buffer items must be positive")
	}

	return nil
}
