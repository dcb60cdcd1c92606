package flagcache

import (
	"github.com/OrlandoBitencourt/flagcache/internal/circuit"
	"github.com/OrlandoBitencourt/flagcache/internal/domain"
	"github.com/OrlandoBitencourt/flagcache/internal/transport"
)

// Error types that may be returned by Manager operations.

var (
	// ErrBatcherClosed is returned to lookups caught in a batch window when
	// the user or config changes
	ErrBatcherClosed = domain.ErrBatcherClosed

	// ErrDestroyed is returned by GetFlag after Destroy
	ErrDestroyed = domain.ErrDestroyed
)

// TransportError wraps a failed fetch with the requested keys.
type TransportError = domain.TransportError

// StorageError wraps a failed storage operation. Storage errors are logged,
// never returned; the type is exported for log inspection.
type StorageError = domain.StorageError

// ValidationError reports an invalid Config.
type ValidationError = domain.ValidationError

// HTTPError is a non-2xx response from the evaluation service.
type HTTPError = transport.HTTPError

// CircuitOpenError is returned while the circuit breaker fails fast.
type CircuitOpenError = circuit.CircuitOpenError

// IsTransportError checks if err is or wraps a TransportError
func IsTransportError(err error) bool {
	return domain.IsTransportError(err)
}

// IsValidationError checks if err is or wraps a ValidationError
func IsValidationError(err error) bool {
	return domain.IsValidationError(err)
}

// IsCircuitOpen checks if err is or wraps a CircuitOpenError
func IsCircuitOpen(err error) bool {
	return circuit.IsCircuitOpen(err)
}
