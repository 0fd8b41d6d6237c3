package domain

import (
	"context"
	"time"
)

// VerdictStore defines the persistent per-store cache of lookup verdicts.
// Each store id is an independent namespace; one store's failures never
// affect another's entries.
type VerdictStore interface {
	// Lookup returns the fresh entry for (storeID, ref.Canonical), if any.
	// Entries at or past their expiry behave as absent.
	Lookup(storeID string, ref Reference) (CacheEntry, bool)

	// Store replaces any prior entry for (storeID, ref.Canonical) with a new
	// one whose expiry follows the found/not-found TTL split.
	Store(storeID string, ref Reference, verdict MatchVerdict, now time.Time) error

	// PurgeExpired removes every entry past its expiry across all store
	// namespaces and returns the number removed.
	PurgeExpired(now time.Time) (int, error)

	// Stats summarizes one store's namespace.
	Stats(storeID string) (CacheStats, error)

	// Flush persists any pending writes.
	Flush() error
}

// Pacer is the process-wide pacing gate. Every outbound fetch must call
// Acquire immediately before the request and Record immediately after,
// regardless of outcome.
type Pacer interface {
	Acquire(ctx context.Context) error
	Record(success bool)
	Stats() PacerStats
}

// Scraper performs the site-specific search for one reference and extracts
// page signals. Implementations live outside the engine; they must route
// every network request through the Pacer contract above.
type Scraper interface {
	Name() string
	Search(ctx context.Context, ref Reference) (*ScrapeResult, error)
}
