package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pricewatch/backend/internal/domain"
)

// fakeStore is an in-memory VerdictStore for service tests
type fakeStore struct {
	mu      sync.Mutex
	entries map[string]domain.CacheEntry
	failPut bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{entries: make(map[string]domain.CacheEntry)}
}

func (f *fakeStore) Lookup(storeID string, ref domain.Reference) (domain.CacheEntry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.entries[storeID+":"+ref.Canonical]
	return entry, ok
}

func (f *fakeStore) Store(storeID string, ref domain.Reference, verdict domain.MatchVerdict, now time.Time) error {
	if f.failPut {
		return domain.ErrStoreUnavailable
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[storeID+":"+ref.Canonical] = domain.CacheEntry{
		Key:       ref.Canonical,
		StoreID:   storeID,
		Verdict:   verdict,
		FetchedAt: now.Unix(),
	}
	return nil
}

func (f *fakeStore) PurgeExpired(now time.Time) (int, error) { return 0, nil }

func (f *fakeStore) Stats(storeID string) (domain.CacheStats, error) {
	return domain.CacheStats{}, nil
}

func (f *fakeStore) Flush() error { return nil }

// fakePacer records Acquire/Record calls without sleeping
type fakePacer struct {
	mu       sync.Mutex
	acquires int
	records  []bool
}

func (f *fakePacer) Acquire(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acquires++
	return ctx.Err()
}

func (f *fakePacer) Record(success bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, success)
}

func (f *fakePacer) Stats() domain.PacerStats { return domain.PacerStats{} }

// fakeScraper returns a canned result or error, optionally holding every
// Search until block is closed
type fakeScraper struct {
	name     string
	result   *domain.ScrapeResult
	err      error
	block    chan struct{}
	mu       sync.Mutex
	searches int
}

func (f *fakeScraper) Name() string { return f.name }

func (f *fakeScraper) Search(ctx context.Context, ref domain.Reference) (*domain.ScrapeResult, error) {
	f.mu.Lock()
	f.searches++
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func price(v float64) *float64 { return &v }

func newTestService(store domain.VerdictStore, pacer domain.Pacer, scrapers map[string]domain.Scraper) *ComparisonService {
	return NewComparisonService(store, pacer, scrapers, ComparisonServiceConfig{AcceptThreshold: 0.65})
}

func TestCompareProduct_FetchScoreAndCache(t *testing.T) {
	store := newFakeStore()
	pacer := &fakePacer{}
	scraper := &fakeScraper{
		name: "wrs",
		result: &domain.ScrapeResult{
			Signals:   domain.PageSignals{SKU: "PHF1595", Title: "Exhaust", URL: "https://wrs.it/phf1595"},
			PriceText: "€ 120.00",
			PriceNum:  price(120),
		},
	}
	svc := newTestService(store, pacer, map[string]domain.Scraper{"wrs": scraper})

	product := domain.FeedProduct{ID: "1", Title: "Exhaust", Ref: Normalize("P-HF.1595"), PriceNum: price(100)}
	row, err := svc.CompareProduct(context.Background(), "wrs", product)
	if err != nil {
		t.Fatalf("CompareProduct() error = %v", err)
	}

	if row.Verdict.MatchType != domain.SKUMatch {
		t.Errorf("MatchType = %s, want SKU_MATCH", row.Verdict.MatchType)
	}
	if row.Verdict.Confidence != 1.0 || !row.Verdict.IsValid {
		t.Errorf("verdict = %+v, want valid confidence 1.0", row.Verdict)
	}
	if row.Verdict.Price == nil || *row.Verdict.Price != 120 {
		t.Errorf("Price = %v, want 120", row.Verdict.Price)
	}
	if row.Cached {
		t.Error("Cached = true on first lookup, want false")
	}
	if pacer.acquires != 1 {
		t.Errorf("pacer acquires = %d, want 1", pacer.acquires)
	}
	if len(pacer.records) != 1 || !pacer.records[0] {
		t.Errorf("pacer records = %v, want [true]", pacer.records)
	}
	if _, ok := store.Lookup("wrs", product.Ref); !ok {
		t.Error("verdict not written to cache")
	}
}

func TestCompareProduct_CacheHitSkipsFetch(t *testing.T) {
	store := newFakeStore()
	pacer := &fakePacer{}
	scraper := &fakeScraper{name: "wrs", result: &domain.ScrapeResult{}}
	svc := newTestService(store, pacer, map[string]domain.Scraper{"wrs": scraper})

	ref := Normalize("PHF1595")
	store.Store("wrs", ref, domain.MatchVerdict{IsValid: true, Confidence: 1.0, MatchType: domain.SKUMatch}, time.Now())

	row, err := svc.CompareProduct(context.Background(), "wrs", domain.FeedProduct{Ref: ref})
	if err != nil {
		t.Fatalf("CompareProduct() error = %v", err)
	}
	if !row.Cached {
		t.Error("Cached = false, want true")
	}
	if scraper.searches != 0 {
		t.Errorf("scraper searches = %d, want 0 on cache hit", scraper.searches)
	}
	if pacer.acquires != 0 {
		t.Errorf("pacer acquires = %d, want 0 on cache hit", pacer.acquires)
	}
}

func TestCompareProduct_ConcurrentLookupsCollapse(t *testing.T) {
	store := newFakeStore()
	pacer := &fakePacer{}
	release := make(chan struct{})
	scraper := &fakeScraper{
		name:   "wrs",
		result: &domain.ScrapeResult{Signals: domain.PageSignals{SKU: "PHF1595"}},
		block:  release,
	}
	svc := newTestService(store, pacer, map[string]domain.Scraper{"wrs": scraper})

	product := domain.FeedProduct{Ref: Normalize("PHF1595")}

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.CompareProduct(context.Background(), "wrs", product)
		}(i)
	}

	// Let every goroutine join the in-flight fetch before releasing it
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("goroutine %d: CompareProduct() error = %v", i, err)
		}
	}
	if scraper.searches != 1 {
		t.Errorf("scraper searches = %d, want 1 for concurrent lookups of one reference", scraper.searches)
	}
}

func TestCompareProduct_ScrapeFailureRecorded(t *testing.T) {
	store := newFakeStore()
	pacer := &fakePacer{}
	scraper := &fakeScraper{name: "wrs", err: errors.New("timeout")}
	svc := newTestService(store, pacer, map[string]domain.Scraper{"wrs": scraper})

	_, err := svc.CompareProduct(context.Background(), "wrs", domain.FeedProduct{Ref: Normalize("PHF1595")})
	if !errors.Is(err, domain.ErrScrapeFailed) {
		t.Errorf("error = %v, want ErrScrapeFailed", err)
	}
	if len(pacer.records) != 1 || pacer.records[0] {
		t.Errorf("pacer records = %v, want [false]", pacer.records)
	}
	if _, ok := store.Lookup("wrs", Normalize("PHF1595")); ok {
		t.Error("failed scrape must not be cached")
	}
}

func TestCompareProduct_EmptyReferenceRejected(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakePacer{}, nil)

	_, err := svc.CompareProduct(context.Background(), "wrs", domain.FeedProduct{Ref: Normalize("  ")})
	if !errors.Is(err, domain.ErrEmptyReference) {
		t.Errorf("error = %v, want ErrEmptyReference", err)
	}
}

func TestCompareProduct_UnknownStore(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakePacer{}, map[string]domain.Scraper{})

	_, err := svc.CompareProduct(context.Background(), "nosuch", domain.FeedProduct{Ref: Normalize("PHF1595")})
	if !errors.Is(err, domain.ErrUnknownStore) {
		t.Errorf("error = %v, want ErrUnknownStore", err)
	}
}

func TestCompareProduct_StorageFailureDegrades(t *testing.T) {
	store := newFakeStore()
	store.failPut = true
	pacer := &fakePacer{}
	scraper := &fakeScraper{
		name:   "wrs",
		result: &domain.ScrapeResult{Signals: domain.PageSignals{SKU: "PHF1595"}},
	}
	svc := newTestService(store, pacer, map[string]domain.Scraper{"wrs": scraper})

	row, err := svc.CompareProduct(context.Background(), "wrs", domain.FeedProduct{Ref: Normalize("PHF1595")})
	if err != nil {
		t.Fatalf("CompareProduct() error = %v, want nil: cache failure must not fail the lookup", err)
	}
	if row.Verdict.MatchType != domain.SKUMatch {
		t.Errorf("MatchType = %s, want SKU_MATCH despite storage failure", row.Verdict.MatchType)
	}
}

func TestCompareAll_IteratesStoresAndProducts(t *testing.T) {
	store := newFakeStore()
	pacer := &fakePacer{}
	scrapers := map[string]domain.Scraper{
		"wrs": &fakeScraper{name: "wrs", result: &domain.ScrapeResult{
			Signals: domain.PageSignals{SKU: "PHF1595"}, PriceNum: price(120),
		}},
		"omniaracing": &fakeScraper{name: "omniaracing", err: errors.New("blocked")},
	}
	svc := newTestService(store, pacer, scrapers)

	products := []domain.FeedProduct{
		{ID: "1", Ref: Normalize("P-HF.1595"), PriceNum: price(100)},
	}

	rows, err := svc.CompareAll(context.Background(), products)
	if err != nil {
		t.Fatalf("CompareAll() error = %v", err)
	}

	// omniaracing fails and is skipped; wrs succeeds
	if len(rows) != 1 {
		t.Fatalf("len(rows) = %d, want 1", len(rows))
	}
	if rows[0].StoreID != "wrs" {
		t.Errorf("StoreID = %s, want wrs", rows[0].StoreID)
	}
	// Both stores attempted a fetch and recorded an outcome
	if len(pacer.records) != 2 {
		t.Errorf("pacer records = %v, want 2 outcomes", pacer.records)
	}
}
