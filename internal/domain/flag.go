package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Reason explains why the evaluation service produced a result
type Reason string

const (
	ReasonDefault        Reason = "DEFAULT"
	ReasonMatch          Reason = "MATCH"
	ReasonError          Reason = "ERROR"
	ReasonSessionPending Reason = "SESSION_PENDING"
	ReasonDisabled       Reason = "DISABLED"
	ReasonRollout        Reason = "ROLLOUT"
)

// ValueKind identifies which member of the Value union is set
type ValueKind uint8

const (
	KindBool ValueKind = iota
	KindString
	KindNumber
)

// String returns the kind name
func (k ValueKind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	default:
		return "unknown"
	}
}

// Value is a closed union of bool, string and number. The zero Value is
// the boolean false.
type Value struct {
	kind ValueKind
	b    bool
	s    string
	n    float64
}

// BoolValue wraps a boolean
func BoolValue(b bool) Value { return Value{kind: KindBool, b: b} }

// StringValue wraps a string
func StringValue(s string) Value { return Value{kind: KindString, s: s} }

// NumberValue wraps a number
func NumberValue(n float64) Value { return Value{kind: KindNumber, n: n} }

// Kind returns the active member
func (v Value) Kind() ValueKind { return v.kind }

// Bool returns the boolean member and whether v holds one
func (v Value) Bool() (bool, bool) { return v.b, v.kind == KindBool }

// Str returns the string member and whether v holds one
func (v Value) Str() (string, bool) { return v.s, v.kind == KindString }

// Number returns the numeric member and whether v holds one
func (v Value) Number() (float64, bool) { return v.n, v.kind == KindNumber }

// Interface returns the held value as bool, string or float64
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.s
	case KindNumber:
		return v.n
	default:
		return v.b
	}
}

// String renders the value for logs and CLI output
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindNumber:
		return strconv.FormatFloat(v.n, 'f', -1, 64)
	default:
		return strconv.FormatBool(v.b)
	}
}

// Equal reports whether both values hold the same member and content
func (v Value) Equal(o Value) bool {
	return v == o
}

// MarshalJSON encodes the bare scalar
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// UnmarshalJSON accepts a JSON bool, string, number or null
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = BoolValue(false)
		return nil
	}

	switch data[0] {
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = BoolValue(b)
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = StringValue(s)
	default:
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("flag value must be bool, string or number: %w", err)
		}
		*v = NumberValue(n)
	}
	return nil
}

// ValueOf converts a decoded scalar (bool, string, any numeric type) to a Value
func ValueOf(raw any) (Value, error) {
	switch t := raw.(type) {
	case nil:
		return BoolValue(false), nil
	case bool:
		return BoolValue(t), nil
	case string:
		return StringValue(t), nil
	case float64:
		return NumberValue(t), nil
	case float32:
		return NumberValue(float64(t)), nil
	case int:
		return NumberValue(float64(t)), nil
	case int64:
		return NumberValue(float64(t)), nil
	case int32:
		return NumberValue(float64(t)), nil
	case uint64:
		return NumberValue(float64(t)), nil
	default:
		return Value{}, fmt.Errorf("unsupported flag value type %T", raw)
	}
}

// FlagResult is the resolved state of one flag for one user
type FlagResult struct {
	Enabled bool   `json:"enabled"`
	Value   Value  `json:"value"`
	Variant string `json:"variant,omitempty"`
	Reason  Reason `json:"reason"`
}

// DefaultResult is served for keys the service did not return
var DefaultResult = FlagResult{
	Enabled: false,
	Value:   BoolValue(false),
	Reason:  ReasonDefault,
}

// SessionPendingResult is served while the host session is unresolved
var SessionPendingResult = FlagResult{
	Enabled: false,
	Value:   BoolValue(false),
	Reason:  ReasonSessionPending,
}
