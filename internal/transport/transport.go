// Package transport resolves flag keys against an evaluation backend.
package transport

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/OrlandoBitencourt/flagcache/internal/domain"
)

// Transport fetches resolved flags. Empty Keys means every flag.
// A key missing from the returned map resolves to domain.DefaultResult.
type Transport interface {
	Fetch(ctx context.Context, req Request) (map[string]domain.FlagResult, error)
}

// Func adapts a plain function to Transport
type Func func(ctx context.Context, req Request) (map[string]domain.FlagResult, error)

// Fetch calls f
func (f Func) Fetch(ctx context.Context, req Request) (map[string]domain.FlagResult, error) {
	return f(ctx, req)
}

// Params identify who flags are resolved for
type Params struct {
	ClientID    string
	Environment string
	User        *domain.User
}

// Request is one outbound fetch
type Request struct {
	Keys   []string
	Params Params
}

// All reports whether the request asks for every flag
func (r Request) All() bool {
	return len(r.Keys) == 0
}

// Values encodes the request as query parameters
func (r Request) Values() url.Values {
	v := url.Values{}
	v.Set("clientId", r.Params.ClientID)

	if r.Params.Environment != "" {
		v.Set("environment", r.Params.Environment)
	}

	if u := r.Params.User; !u.IsZero() {
		setIf(v, "userId", u.UserID)
		setIf(v, "email", u.Email)
		setIf(v, "organizationId", u.OrganizationID)
		setIf(v, "teamId", u.TeamID)
		if len(u.Properties) > 0 {
			if data, err := json.Marshal(u.Properties); err == nil {
				v.Set("properties", string(data))
			}
		}
	}

	if !r.All() {
		v.Set("keys", strings.Join(r.Keys, ","))
	}

	return v
}

func setIf(v url.Values, key, value string) {
	if value != "" {
		v.Set(key, value)
	}
}
