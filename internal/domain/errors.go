package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrBatcherClosed is returned for requests on a closed batcher
	ErrBatcherClosed = errors.New("batcher closed")

	// ErrDestroyed is returned by a manager after Destroy
	ErrDestroyed = errors.New("manager destroyed")
)

// -----------------------------
// TransportError
// -----------------------------

type TransportError struct {
	Op   string
	Keys []string
	Err  error
}

func NewTransportError(op string, keys []string, err error) *TransportError {
	return &TransportError{Op: op, Keys: keys, Err: err}
}

func (e *TransportError) Error() string {
	if len(e.Keys) == 0 {
		return fmt.Sprintf("transport %s (all flags): %v", e.Op, e.Err)
	}
	return fmt.Sprintf("transport %s [%s]: %v", e.Op, strings.Join(e.Keys, ","), e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// -----------------------------
// StorageError
// -----------------------------

type StorageError struct {
	Op  string
	Err error
}

func NewStorageError(op string, err error) *StorageError {
	return &StorageError{Op: op, Err: err}
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// -----------------------------
// ValidationError
// -----------------------------

type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation error: %s", e.Message)
	}
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
