package domain

import "errors"

var (
	// ErrEmptyReference is returned when a raw reference normalizes to nothing searchable
	ErrEmptyReference = errors.New("reference normalizes to empty canonical form")

	// ErrStoreUnavailable is returned when the persistent cache cannot be read or written.
	// Callers degrade to a fresh fetch; this error is never fatal to a run.
	ErrStoreUnavailable = errors.New("verdict store unavailable")

	// ErrScrapeFailed is returned when a store scraper could not fetch a candidate page
	ErrScrapeFailed = errors.New("store scrape failed")

	// ErrUnknownStore is returned when no scraper is registered for a store id
	ErrUnknownStore = errors.New("no scraper registered for store")
)
