// Package circuit fails transport calls fast during a sustained outage.
//
// A Breaker counts consecutive failures. Once MaxFailures is reached it
// opens and rejects calls until Timeout has passed, then admits up to
// MaxProbes concurrent probe calls. SuccessThreshold probe successes close
// it again; any probe failure reopens it.
package circuit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// State is the breaker position
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config holds circuit breaker configuration
type Config struct {
	// MaxFailures is the number of consecutive failures before opening
	MaxFailures int

	// Timeout is how long the circuit stays open before probing
	Timeout time.Duration

	// SuccessThreshold is the number of probe successes needed to close
	SuccessThreshold int

	// MaxProbes bounds concurrent calls while half-open
	MaxProbes int

	// IsFailure decides whether an error counts against the backend.
	// Defaults to every error except context cancellation.
	IsFailure func(error) bool

	// OnStateChange runs after each transition, outside the breaker lock
	OnStateChange func(from, to State)

	// Now overrides the clock; defaults to time.Now
	Now func() time.Time
}

// DefaultConfig returns default circuit breaker configuration
func DefaultConfig() Config {
	return Config{
		MaxFailures:      5,
		Timeout:          30 * time.Second,
		SuccessThreshold: 2,
		MaxProbes:        1,
	}
}

// counts are the breaker's counters. The consecutive counters reset on
// every transition.
type counts struct {
	requests   int64
	successes  int64
	failures   int64
	rejections int64

	consecutiveFailures  int
	consecutiveSuccesses int
}

type transition struct {
	from, to State
}

// Breaker guards calls to a flaky backend
type Breaker struct {
	cfg Config

	mu          sync.Mutex
	state       State
	changedAt   time.Time
	lastFailure time.Time
	probes      int
	counts      counts
}

// New creates a breaker; zero fields of config take their defaults
func New(config Config) *Breaker {
	defaults := DefaultConfig()
	if config.MaxFailures <= 0 {
		config.MaxFailures = defaults.MaxFailures
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = defaults.SuccessThreshold
	}
	if config.MaxProbes <= 0 {
		config.MaxProbes = defaults.MaxProbes
	}
	if config.IsFailure == nil {
		config.IsFailure = countsAsFailure
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &Breaker{
		cfg:       config,
		state:     StateClosed,
		changedAt: config.Now(),
	}
}

func countsAsFailure(err error) bool {
	return !errors.Is(err, context.Canceled)
}

// Call runs fn unless the circuit is open. A context that is already done
// is returned as is and not counted.
func (b *Breaker) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	probe, err := b.admit()
	if err != nil {
		return err
	}

	err = fn(ctx)
	b.record(probe, err)
	return err
}

// admit reserves a slot for one call. probe reports a half-open call.
func (b *Breaker) admit() (probe bool, err error) {
	var changes []transition
	defer func() { b.notify(changes) }()

	b.mu.Lock()
	defer b.mu.Unlock()

	b.counts.requests++
	now := b.cfg.Now()

	if b.state == StateOpen && now.Sub(b.changedAt) >= b.cfg.Timeout {
		changes = append(changes, b.moveTo(StateHalfOpen, now))
	}

	switch b.state {
	case StateClosed:
		return false, nil
	case StateHalfOpen:
		if b.probes < b.cfg.MaxProbes {
			b.probes++
			return true, nil
		}
	}

	b.counts.rejections++
	return false, &CircuitOpenError{
		State:           b.state,
		Failures:        b.counts.consecutiveFailures,
		LastFailureTime: b.lastFailure,
		RetryAfter:      b.retryAfter(now),
	}
}

// record books the outcome of an admitted call
func (b *Breaker) record(probe bool, err error) {
	var changes []transition
	defer func() { b.notify(changes) }()

	b.mu.Lock()
	defer b.mu.Unlock()

	if probe {
		b.probes--
	}

	now := b.cfg.Now()

	switch {
	case err == nil:
		b.counts.successes++
		b.counts.consecutiveFailures = 0
		b.counts.consecutiveSuccesses++

		switch b.state {
		case StateHalfOpen:
			if b.counts.consecutiveSuccesses >= b.cfg.SuccessThreshold {
				changes = append(changes, b.moveTo(StateClosed, now))
			}
		case StateOpen:
			// admitted before the circuit opened and came back healthy
			changes = append(changes, b.moveTo(StateClosed, now))
		}

	case b.cfg.IsFailure(err):
		b.counts.failures++
		b.counts.consecutiveSuccesses = 0
		b.counts.consecutiveFailures++
		b.lastFailure = now

		switch b.state {
		case StateClosed:
			if b.counts.consecutiveFailures >= b.cfg.MaxFailures {
				changes = append(changes, b.moveTo(StateOpen, now))
			}
		case StateHalfOpen:
			changes = append(changes, b.moveTo(StateOpen, now))
		case StateOpen:
			// late failures push the next probe further out
			b.changedAt = now
		}
	}
}

// moveTo switches state; the caller holds mu
func (b *Breaker) moveTo(to State, now time.Time) transition {
	t := transition{from: b.state, to: to}
	b.state = to
	b.changedAt = now
	b.counts.consecutiveSuccesses = 0
	if to != StateOpen {
		b.counts.consecutiveFailures = 0
	}
	return t
}

func (b *Breaker) notify(changes []transition) {
	if b.cfg.OnStateChange == nil {
		return
	}
	for _, c := range changes {
		if c.from != c.to {
			b.cfg.OnStateChange(c.from, c.to)
		}
	}
}

func (b *Breaker) retryAfter(now time.Time) time.Duration {
	if b.state != StateOpen {
		return 0
	}
	if d := b.cfg.Timeout - now.Sub(b.changedAt); d > 0 {
		return d
	}
	return 0
}

// State returns the current state
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset closes the circuit and clears the consecutive counters
func (b *Breaker) Reset() {
	var changes []transition
	defer func() { b.notify(changes) }()

	b.mu.Lock()
	defer b.mu.Unlock()

	changes = append(changes, b.moveTo(StateClosed, b.cfg.Now()))
	b.counts.consecutiveFailures = 0
}

// Stats is a snapshot of the breaker counters
type Stats struct {
	State           State
	Failures        int
	Successes       int
	TotalRequests   int64
	TotalSuccesses  int64
	TotalFailures   int64
	TotalRejections int64
	LastFailureTime time.Time
	LastStateChange time.Time
}

func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Stats{
		State:           b.state,
		Failures:        b.counts.consecutiveFailures,
		Successes:       b.counts.consecutiveSuccesses,
		TotalRequests:   b.counts.requests,
		TotalSuccesses:  b.counts.successes,
		TotalFailures:   b.counts.failures,
		TotalRejections: b.counts.rejections,
		LastFailureTime: b.lastFailure,
		LastStateChange: b.changedAt,
	}
}

// CircuitOpenError is returned for calls the breaker rejects
type CircuitOpenError struct {
	State           State
	Failures        int
	LastFailureTime time.Time

	// RetryAfter is the time left until the next probe is admitted
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	msg := fmt.Sprintf("circuit breaker is %s (failures: %d", e.State, e.Failures)
	if !e.LastFailureTime.IsZero() {
		msg += ", last failure: " + e.LastFailureTime.Format(time.RFC3339)
	}
	if e.RetryAfter > 0 {
		msg += ", retry in " + e.RetryAfter.String()
	}
	return msg + ")"
}

// IsCircuitOpen checks if err is or wraps a CircuitOpenError
func IsCircuitOpen(err error) bool {
	var coe *CircuitOpenError
	return errors.As(err, &coe)
}
