package transport

import (
	"context"
	"errors"
	"net/http"

	"github.com/OrlandoBitencourt/flagcache/internal/circuit"
	"github.com/OrlandoBitencourt/flagcache/internal/domain"
)

// Breaker guards a transport with a circuit breaker
type Breaker struct {
	next    Transport
	breaker *circuit.Breaker
}

// WithBreaker wraps next; a nil breaker gets the default configuration
func WithBreaker(next Transport, b *circuit.Breaker) *Breaker {
	if b == nil {
		b = circuit.New(circuit.DefaultConfig())
	}
	return &Breaker{next: next, breaker: b}
}

// Fetch implements Transport
func (t *Breaker) Fetch(ctx context.Context, req Request) (map[string]domain.FlagResult, error) {
	var out map[string]domain.FlagResult
	err := t.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		out, err = t.next.Fetch(ctx, req)
		return err
	})
	if err != nil {
		if circuit.IsCircuitOpen(err) {
			return nil, domain.NewTransportError("fetch", req.Keys, err)
		}
		return nil, err
	}
	return out, nil
}

// CircuitStats reports the breaker state
func (t *Breaker) CircuitStats() circuit.Stats {
	return t.breaker.Stats()
}

// CountsAsFailure reports whether err says the backend is unhealthy.
// Client errors other than 429 and caller cancellation do not.
func CountsAsFailure(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode >= http.StatusInternalServerError || he.StatusCode == http.StatusTooManyRequests
	}
	return true
}
