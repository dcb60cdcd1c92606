package transport

import (
	"github.com/OrlandoBitencourt/flagcache/internal/domain"
	"github.com/cespare/xxhash/v2"
)

const bucketCount = 100

// bucketUnit picks the identity rollouts stick to. Anonymous requests
// share one bucket unit, so they all land on the same side.
func bucketUnit(u *domain.User) string {
	if u != nil && u.UserID != "" {
		return u.UserID
	}
	return domain.Fingerprint(u)
}

// bucket maps a unit to [0, 100) independently per flag
func bucket(flagKey, unit string) int {
	var d xxhash.Digest
	d.Reset()
	_, _ = d.WriteString(flagKey)
	_, _ = d.WriteString("/")
	_, _ = d.WriteString(unit)
	return int(d.Sum64() % bucketCount)
}

func inRollout(flagKey, unit string, percent int) bool {
	if percent <= 0 {
		return false
	}
	return bucket(flagKey, unit) < percent
}
