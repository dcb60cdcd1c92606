package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/OrlandoBitencourt/flagcache"
)

type contextKey string

const contextKeyUser contextKey = "flagcache_user"

// User headers read by WithUser
const (
	HeaderUserID         = "X-User-ID"
	HeaderEmail          = "X-User-Email"
	HeaderOrganizationID = "X-Organization-ID"
	HeaderTeamID         = "X-Team-ID"

	// HeaderPropertyPrefix marks user properties, e.g. X-User-Property-Plan: pro
	HeaderPropertyPrefix = "X-User-Property-"
)

// WithUser resolves the flag user from request headers and stores it in
// the request context. Requests without user headers carry no user.
func WithUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user := userFromRequest(r); user != nil {
			r = r.WithContext(context.WithValue(r.Context(), contextKeyUser, user))
		}
		next.ServeHTTP(w, r)
	})
}

func userFromRequest(r *http.Request) *flagcache.User {
	user := &flagcache.User{
		UserID:         r.Header.Get(HeaderUserID),
		Email:          r.Header.Get(HeaderEmail),
		OrganizationID: r.Header.Get(HeaderOrganizationID),
		TeamID:         r.Header.Get(HeaderTeamID),
	}

	// the user id cookie is a fallback for browser callers
	if user.UserID == "" {
		if cookie, err := r.Cookie("user_id"); err == nil {
			user.UserID = cookie.Value
		}
	}

	for name, values := range r.Header {
		if len(values) == 0 || !strings.HasPrefix(name, HeaderPropertyPrefix) {
			continue
		}
		if user.Properties == nil {
			user.Properties = make(map[string]any)
		}
		prop := strings.ToLower(strings.TrimPrefix(name, HeaderPropertyPrefix))
		user.Properties[prop] = values[0]
	}

	if user.IsZero() {
		return nil
	}
	return user
}

// UserFromContext returns the user stored by WithUser
func UserFromContext(ctx context.Context) (*flagcache.User, bool) {
	user, ok := ctx.Value(contextKeyUser).(*flagcache.User)
	return user, ok
}
