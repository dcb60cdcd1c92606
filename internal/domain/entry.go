package domain

import "time"

// Entry is a cached FlagResult with its freshness window.
// FetchedAt <= StaleAt <= ExpiresAt always holds.
type Entry struct {
	Result    FlagResult
	FetchedAt time.Time
	StaleAt   time.Time
	ExpiresAt time.Time
}

// NewEntry stamps result with a freshness window starting at now.
// staleTime is clamped into [0, ttl].
func NewEntry(result FlagResult, now time.Time, ttl, staleTime time.Duration) Entry {
	if ttl < 0 {
		ttl = 0
	}
	if staleTime < 0 {
		staleTime = 0
	}
	if staleTime > ttl {
		staleTime = ttl
	}

	return Entry{
		Result:    result,
		FetchedAt: now,
		StaleAt:   now.Add(staleTime),
		ExpiresAt: now.Add(ttl),
	}
}

// Valid reports whether the entry may still be served
func (e Entry) Valid(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}

// Stale reports whether the entry is servable but due for revalidation
func (e Entry) Stale(now time.Time) bool {
	return !now.Before(e.StaleAt) && now.Before(e.ExpiresAt)
}

// Fresh reports whether the entry is valid and not yet stale
func (e Entry) Fresh(now time.Time) bool {
	return now.Before(e.StaleAt)
}
