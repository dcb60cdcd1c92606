package flagcache

import (
	"github.com/OrlandoBitencourt/flagcache/internal/domain"
)

// FlagResult is the resolved state of one flag for one user.
type FlagResult = domain.FlagResult

// User is the identity and attribute bag flags are resolved for.
type User = domain.User

// Value is a flag value: a bool, a string or a number.
type Value = domain.Value

// ValueKind identifies which member of a Value is set.
type ValueKind = domain.ValueKind

// Reason explains why a result was produced.
type Reason = domain.Reason

const (
	ReasonDefault        = domain.ReasonDefault
	ReasonMatch          = domain.ReasonMatch
	ReasonError          = domain.ReasonError
	ReasonSessionPending = domain.ReasonSessionPending
	ReasonDisabled       = domain.ReasonDisabled
	ReasonRollout        = domain.ReasonRollout

	KindBool   = domain.KindBool
	KindString = domain.KindString
	KindNumber = domain.KindNumber
)

// DefaultResult is served for flags the service did not return.
var DefaultResult = domain.DefaultResult

// BoolValue, StringValue and NumberValue build flag values.
var (
	BoolValue   = domain.BoolValue
	StringValue = domain.StringValue
	NumberValue = domain.NumberValue
)

// Status is the observed state of a flag through the synchronous API.
type Status string

const (
	// StatusLoading means no value is cached and a fetch is outstanding
	StatusLoading Status = "loading"
	// StatusReady means a cached value is served
	StatusReady Status = "ready"
	// StatusError means the last fetch failed and nothing usable is cached
	StatusError Status = "error"
	// StatusPending means the host session is unresolved
	StatusPending Status = "pending"
)

// FlagState is what IsEnabled returns.
type FlagState struct {
	// On is Enabled once the flag is resolved; false while loading
	On      bool
	Enabled bool
	Status  Status
	Loading bool
	Value   Value
	Variant string
	Reason  Reason
}

func stateFromResult(r FlagResult) FlagState {
	status := StatusReady
	if r.Reason == domain.ReasonError {
		status = StatusError
	}
	return FlagState{
		On:      r.Enabled,
		Enabled: r.Enabled,
		Status:  status,
		Value:   r.Value,
		Variant: r.Variant,
		Reason:  r.Reason,
	}
}

func loadingState() FlagState {
	return FlagState{
		Status:  StatusLoading,
		Loading: true,
		Value:   domain.BoolValue(false),
		Reason:  domain.ReasonDefault,
	}
}

func errorState() FlagState {
	s := stateFromResult(domain.DefaultResult)
	s.Status = StatusError
	return s
}

func pendingState() FlagState {
	s := stateFromResult(domain.SessionPendingResult)
	s.Status = StatusPending
	return s
}

// Stats describes the manager's internal state.
type Stats struct {
	CacheEntries int    `json:"cacheEntries"`
	CacheHits    int64  `json:"cacheHits"`
	CacheMisses  int64  `json:"cacheMisses"`
	InFlight     int    `json:"inFlight"`
	BatchPending int    `json:"batchPending"`
	Fingerprint  string `json:"fingerprint"`
	Ready        bool   `json:"ready"`
	Destroyed    bool   `json:"destroyed"`
	CircuitState string `json:"circuitState,omitempty"`
	FailedKeys   int    `json:"failedKeys"`
}
