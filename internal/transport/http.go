package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/OrlandoBitencourt/flagcache/internal/domain"
	"github.com/OrlandoBitencourt/flagcache/internal/telemetry"
)

const bulkPath = "/public/v1/flags/bulk"

// HTTPConfig configures the HTTP transport
type HTTPConfig struct {
	// BaseURL is the evaluation API root, e.g. https://flags.example.com
	BaseURL string

	// Timeout bounds a single attempt
	Timeout time.Duration

	// MaxRetries is the number of retries after the first attempt
	MaxRetries int

	// RetryBackoff is multiplied by the attempt number between retries
	RetryBackoff time.Duration
}

// DefaultHTTPConfig returns default HTTP transport settings
func DefaultHTTPConfig(baseURL string) HTTPConfig {
	return HTTPConfig{
		BaseURL:      baseURL,
		Timeout:      5 * time.Second,
		MaxRetries:   2,
		RetryBackoff: 500 * time.Millisecond,
	}
}

// HTTPTransport resolves flags through the bulk evaluation endpoint
type HTTPTransport struct {
	baseURL      string
	httpClient   *http.Client
	maxRetries   int
	retryBackoff time.Duration
	telemetry    telemetry.Provider
}

// HTTPOption configures an HTTPTransport
type HTTPOption func(*HTTPTransport)

// WithHTTPClient replaces the underlying client; its Timeout takes precedence
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(t *HTTPTransport) {
		if c != nil {
			t.httpClient = c
		}
	}
}

// WithTelemetry records a span per fetch
func WithTelemetry(p telemetry.Provider) HTTPOption {
	return func(t *HTTPTransport) {
		if p != nil {
			t.telemetry = p
		}
	}
}

// NewHTTP creates an HTTP transport
func NewHTTP(cfg HTTPConfig, opts ...HTTPOption) *HTTPTransport {
	t := &HTTPTransport{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		maxRetries:   cfg.MaxRetries,
		retryBackoff: cfg.RetryBackoff,
		telemetry:    telemetry.NewNoOp(),
	}
	if t.maxRetries < 0 {
		t.maxRetries = 0
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

type bulkResponse struct {
	Flags map[string]domain.FlagResult `json:"flags"`
}

// Fetch implements Transport
func (t *HTTPTransport) Fetch(ctx context.Context, req Request) (map[string]domain.FlagResult, error) {
	ctx, span := t.telemetry.StartSpan(ctx, "transport.http.fetch",
		telemetry.WithAttributes(
			telemetry.Strings("flag.keys", req.Keys),
			telemetry.Bool("fetch.all", req.All()),
		))
	defer span.End()

	endpoint := t.baseURL + bulkPath + "?" + req.Values().Encode()

	var resp bulkResponse
	if err := t.doRequest(ctx, endpoint, &resp); err != nil {
		span.RecordError(err)
		return nil, domain.NewTransportError("http fetch", req.Keys, err)
	}

	if resp.Flags == nil {
		resp.Flags = make(map[string]domain.FlagResult)
	}
	span.SetAttributes(telemetry.Int("flag.count", len(resp.Flags)))

	return resp.Flags, nil
}

// doRequest performs a GET with retries
func (t *HTTPTransport) doRequest(ctx context.Context, url string, result interface{}) error {
	var lastErr error

	for attempt := 0; attempt <= t.maxRetries; attempt++ {
		if attempt > 0 {
			// Linear backoff
			backoff := time.Duration(attempt) * t.retryBackoff
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := t.doSingleRequest(ctx, url, result)
		if err == nil {
			return nil
		}

		lastErr = err

		if !shouldRetry(ctx, err) {
			return lastErr
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// doSingleRequest performs a single HTTP request
func (t *HTTPTransport) doSingleRequest(ctx context.Context, url string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &HTTPError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(respBody)),
		}
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return &DecodeError{Err: err}
	}

	return nil
}

// shouldRetry determines if request should be retried
func shouldRetry(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		// Retry on 5xx and 429 (rate limit)
		return httpErr.StatusCode >= 500 || httpErr.StatusCode == http.StatusTooManyRequests
	}

	var decodeErr *DecodeError
	if errors.As(err, &decodeErr) {
		return false
	}

	// Retry on network errors
	return true
}

// HTTPError represents an HTTP error response
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// DecodeError is returned for a 2xx response with an unreadable body
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode response: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
