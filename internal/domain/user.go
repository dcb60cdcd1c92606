package domain

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

const (
	// AnonymousFingerprint identifies entries resolved without a user
	AnonymousFingerprint = "anon"

	keySeparator = "|"
)

// User is the identity and attribute bag supplied by the host application.
// It only feeds the cache key fingerprint and the request parameters.
type User struct {
	UserID         string         `json:"userId,omitempty"`
	Email          string         `json:"email,omitempty"`
	OrganizationID string         `json:"organizationId,omitempty"`
	TeamID         string         `json:"teamId,omitempty"`
	Properties     map[string]any `json:"properties,omitempty"`
}

// IsZero reports whether the user carries no identifying data
func (u *User) IsZero() bool {
	return u == nil ||
		(u.UserID == "" && u.Email == "" && u.OrganizationID == "" && u.TeamID == "" && len(u.Properties) == 0)
}

// Clone returns a deep-enough copy for safe sharing across goroutines
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.Properties != nil {
		c.Properties = make(map[string]any, len(u.Properties))
		for k, v := range u.Properties {
			c.Properties[k] = v
		}
	}
	return &c
}

// Fingerprint derives a stable identifier for the user context.
// encoding/json sorts map keys, so equal users always hash equally.
func Fingerprint(u *User) string {
	if u.IsZero() {
		return AnonymousFingerprint
	}

	data, err := json.Marshal(u)
	if err != nil {
		// unencodable properties fall back to the identity fields
		data = []byte(u.UserID + "\x00" + u.Email + "\x00" + u.OrganizationID + "\x00" + u.TeamID)
	}
	return strconv.FormatUint(xxhash.Sum64(data), 16)
}

// CacheKey combines a flag key with a user fingerprint
func CacheKey(flagKey, fingerprint string) string {
	return flagKey + keySeparator + fingerprint
}

// SplitCacheKey reverses CacheKey. Flag keys may contain the separator;
// the fingerprint never does.
func SplitCacheKey(cacheKey string) (flagKey, fingerprint string) {
	i := strings.LastIndex(cacheKey, keySeparator)
	if i < 0 {
		return cacheKey, ""
	}
	return cacheKey[:i], cacheKey[i+len(keySeparator):]
}
