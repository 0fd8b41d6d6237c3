package domain

import "time"

// CacheEntry is one persisted lookup result for a (store, reference) pair.
// Timestamps are epoch seconds so the on-disk format stays inspectable.
type CacheEntry struct {
	Key       string       `json:"key"`
	StoreID   string       `json:"storeId"`
	Verdict   MatchVerdict `json:"verdict"`
	FetchedAt int64        `json:"fetchedAt"`
	ExpiresAt int64        `json:"expiresAt"`
}

// IsExpired reports whether the entry must be treated as absent.
// An entry is served only while now < ExpiresAt.
func (e CacheEntry) IsExpired(now time.Time) bool {
	return now.Unix() >= e.ExpiresAt
}

// CacheStats summarizes one store's cache namespace.
type CacheStats struct {
	StoreID  string `json:"storeId"`
	Total    int    `json:"total"`
	Found    int    `json:"found"`
	NotFound int    `json:"notFound"`
	Expired  int    `json:"expired"`
}

// PacerStats is a read-only snapshot of the rate limiter.
// WindowSize counts currently-held outcomes, which is below capacity early
// in a run.
type PacerStats struct {
	MinGapSeconds  float64 `json:"minGapSeconds"`
	SlowMode       bool    `json:"slowMode"`
	RecentFailRate float64 `json:"recentFailRate"`
	WindowSize     int     `json:"windowSize"`
}
