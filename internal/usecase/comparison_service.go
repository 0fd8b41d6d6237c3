package usecase

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/pricewatch/backend/internal/domain"
)

// ComparisonServiceConfig holds configuration for the comparison service
type ComparisonServiceConfig struct {
	AcceptThreshold    float64
	EnableDebugLogging bool
}

// ComparisonService drives reference lookups against competitor stores.
// Flow per (store, product): check cache -> acquire pacer slot -> scrape ->
// record outcome -> score -> cache -> return.
type ComparisonService struct {
	store     domain.VerdictStore
	pacer     domain.Pacer
	scrapers  map[string]domain.Scraper
	validator *Validator
	group     singleflight.Group
	debug     bool
	now       func() time.Time
}

// NewComparisonService creates a comparison service with its dependencies.
// One instance owns one cache handle for the whole run; tests create their
// own instances to avoid cross-test state.
func NewComparisonService(
	store domain.VerdictStore,
	pacer domain.Pacer,
	scrapers map[string]domain.Scraper,
	config ComparisonServiceConfig,
) *ComparisonService {
	return &ComparisonService{
		store:    store,
		pacer:    pacer,
		scrapers: scrapers,
		validator: NewValidator(ValidatorConfig{
			AcceptThreshold:    config.AcceptThreshold,
			EnableDebugLogging: config.EnableDebugLogging,
		}),
		debug: config.EnableDebugLogging,
		now:   time.Now,
	}
}

// Validator exposes the service's validator for delivery-layer scoring
// endpoints.
func (s *ComparisonService) Validator() *Validator {
	return s.validator
}

// CompareProduct resolves one product against one store, serving from the
// cache when a fresh entry exists. Concurrent lookups for the same
// (store, canonical) pair are collapsed into a single outbound fetch.
func (s *ComparisonService) CompareProduct(ctx context.Context, storeID string, product domain.FeedProduct) (domain.ComparisonRow, error) {
	if product.Ref.IsEmpty() {
		return domain.ComparisonRow{}, domain.ErrEmptyReference
	}

	if entry, ok := s.store.Lookup(storeID, product.Ref); ok {
		if s.debug {
			log.Printf("[COMPARE] cache hit %s/%s", storeID, product.Ref.Canonical)
		}
		return domain.ComparisonRow{Product: product, StoreID: storeID, Verdict: entry.Verdict, Cached: true}, nil
	}

	key := storeID + ":" + product.Ref.Canonical
	result, err, _ := s.group.Do(key, func() (interface{}, error) {
		return s.fetchAndScore(ctx, storeID, product.Ref)
	})
	if err != nil {
		return domain.ComparisonRow{}, err
	}

	return domain.ComparisonRow{Product: product, StoreID: storeID, Verdict: result.(domain.MatchVerdict)}, nil
}

// fetchAndScore performs the outbound path for a cache miss: pace, scrape,
// record the outcome, score the page, persist the verdict.
func (s *ComparisonService) fetchAndScore(ctx context.Context, storeID string, ref domain.Reference) (domain.MatchVerdict, error) {
	scraper, ok := s.scrapers[storeID]
	if !ok {
		return domain.MatchVerdict{}, fmt.Errorf("%w: %s", domain.ErrUnknownStore, storeID)
	}

	if err := s.pacer.Acquire(ctx); err != nil {
		// Cancelled while waiting for a slot; no outcome to record
		return domain.MatchVerdict{}, err
	}

	result, err := scraper.Search(ctx, ref)
	s.pacer.Record(err == nil)
	if err != nil {
		if s.debug {
			log.Printf("[COMPARE] scrape failed %s/%s: %v", storeID, ref.Canonical, err)
		}
		return domain.MatchVerdict{}, fmt.Errorf("%w: %v", domain.ErrScrapeFailed, err)
	}

	verdict := s.validator.Score(ref, result.Signals)
	if verdict.IsValid {
		verdict.Price = result.PriceNum
		verdict.PriceText = result.PriceText
		verdict.URL = result.Signals.URL
	}

	if err := s.store.Store(storeID, ref, verdict, s.now()); err != nil {
		// Storage failure costs a re-fetch next run, never correctness
		log.Printf("[COMPARE] cache write failed %s/%s: %v", storeID, ref.Canonical, err)
	}

	return verdict, nil
}

// CompareAll runs every product against every registered store sequentially
// and returns one row per (product, store) pair. Scrape failures for one
// pair are logged and skipped; one store's errors never abort another
// store's lookups.
func (s *ComparisonService) CompareAll(ctx context.Context, products []domain.FeedProduct) ([]domain.ComparisonRow, error) {
	storeIDs := make([]string, 0, len(s.scrapers))
	for id := range s.scrapers {
		storeIDs = append(storeIDs, id)
	}
	sort.Strings(storeIDs)

	rows := make([]domain.ComparisonRow, 0, len(products)*len(storeIDs))
	for _, storeID := range storeIDs {
		for _, product := range products {
			if err := ctx.Err(); err != nil {
				return rows, err
			}

			row, err := s.CompareProduct(ctx, storeID, product)
			if err != nil {
				log.Printf("[COMPARE] %s/%s skipped: %v", storeID, product.Ref.Canonical, err)
				continue
			}
			rows = append(rows, row)
		}
	}

	if err := s.store.Flush(); err != nil {
		log.Printf("[COMPARE] cache flush failed: %v", err)
	}

	return rows, nil
}
