package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pricewatch/backend/internal/domain"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	store, err := NewFileStore(Config{
		Dir:         t.TempDir(),
		TTLFound:    10 * 24 * time.Hour,
		TTLNotFound: 4 * 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	return store
}

func ref(canonical string) domain.Reference {
	return domain.Reference{Raw: canonical, Canonical: canonical, Parts: []string{canonical}}
}

func validVerdict(p float64) domain.MatchVerdict {
	return domain.MatchVerdict{
		IsValid:    true,
		Confidence: 1.0,
		MatchType:  domain.SKUMatch,
		Price:      &p,
	}
}

func invalidVerdict() domain.MatchVerdict {
	return domain.MatchVerdict{MatchType: domain.NoMatch}
}

func TestFileStore_StoreAndLookup(t *testing.T) {
	store := newTestStore(t)

	now := time.Now()
	if err := store.Store("wrs", ref("PHF1595"), validVerdict(120), now); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	entry, ok := store.Lookup("wrs", ref("PHF1595"))
	if !ok {
		t.Fatal("Lookup() miss after Store()")
	}
	if entry.Verdict.MatchType != domain.SKUMatch {
		t.Errorf("MatchType = %s, want SKU_MATCH", entry.Verdict.MatchType)
	}
	if entry.FetchedAt != now.Unix() {
		t.Errorf("FetchedAt = %d, want %d", entry.FetchedAt, now.Unix())
	}
	if want := now.Add(10 * 24 * time.Hour).Unix(); entry.ExpiresAt != want {
		t.Errorf("ExpiresAt = %d, want %d (10 day TTL for found)", entry.ExpiresAt, want)
	}

	// Namespaces are independent
	if _, ok := store.Lookup("omniaracing", ref("PHF1595")); ok {
		t.Error("Lookup() hit in a different store namespace")
	}
}

func TestFileStore_TTLSplit(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()

	store.Store("wrs", ref("FOUND1"), validVerdict(99), now)
	store.Store("wrs", ref("MISSING1"), invalidVerdict(), now)

	found, _ := store.Lookup("wrs", ref("FOUND1"))
	missing, _ := store.Lookup("wrs", ref("MISSING1"))

	if want := now.Add(10 * 24 * time.Hour).Unix(); found.ExpiresAt != want {
		t.Errorf("found ExpiresAt = %d, want %d", found.ExpiresAt, want)
	}
	if want := now.Add(4 * 24 * time.Hour).Unix(); missing.ExpiresAt != want {
		t.Errorf("not-found ExpiresAt = %d, want %d", missing.ExpiresAt, want)
	}
}

func TestFileStore_Expiry(t *testing.T) {
	store := newTestStore(t)

	// Entry stored 10 days minus a second ago is still served
	fresh := time.Now().Add(-10*24*time.Hour + time.Second)
	store.Store("wrs", ref("FRESH"), validVerdict(50), fresh)
	if _, ok := store.Lookup("wrs", ref("FRESH")); !ok {
		t.Error("Lookup() miss just before expiry, want hit")
	}

	// Entry stored 10 days plus a second ago behaves as absent
	stale := time.Now().Add(-10*24*time.Hour - time.Second)
	store.Store("wrs", ref("STALE"), validVerdict(50), stale)
	if _, ok := store.Lookup("wrs", ref("STALE")); ok {
		t.Error("Lookup() hit past expiry, want miss")
	}

	// Not-found entries expire at 4 days under the same rule
	staleNeg := time.Now().Add(-4*24*time.Hour - time.Second)
	store.Store("wrs", ref("STALENEG"), invalidVerdict(), staleNeg)
	if _, ok := store.Lookup("wrs", ref("STALENEG")); ok {
		t.Error("Lookup() hit past not-found expiry, want miss")
	}
}

func TestFileStore_OverwriteReplacesEntry(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()

	store.Store("wrs", ref("PHF1595"), validVerdict(120), now.Add(-time.Hour))
	store.Store("wrs", ref("PHF1595"), validVerdict(99), now)

	entry, ok := store.Lookup("wrs", ref("PHF1595"))
	if !ok {
		t.Fatal("Lookup() miss after overwrite")
	}
	if *entry.Verdict.Price != 99 {
		t.Errorf("Price = %v, want 99: old verdict resurfaced", *entry.Verdict.Price)
	}
	if entry.FetchedAt != now.Unix() {
		t.Errorf("FetchedAt = %d, want refreshed timestamp", entry.FetchedAt)
	}

	stats, _ := store.Stats("wrs")
	if stats.Total != 1 {
		t.Errorf("Total = %d, want 1 after overwrite", stats.Total)
	}
}

func TestFileStore_PersistsAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Dir: dir, TTLFound: 240 * time.Hour, TTLNotFound: 96 * time.Hour}

	first, err := NewFileStore(cfg)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	if err := first.Store("wrs", ref("PHF1595"), validVerdict(120), time.Now()); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	second, err := NewFileStore(cfg)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	entry, ok := second.Lookup("wrs", ref("PHF1595"))
	if !ok {
		t.Fatal("Lookup() miss after restart, want persisted entry")
	}
	if *entry.Verdict.Price != 120 {
		t.Errorf("Price = %v, want 120", *entry.Verdict.Price)
	}
}

func TestFileStore_HumanInspectableFormat(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewFileStore(Config{Dir: dir, TTLFound: time.Hour, TTLNotFound: time.Hour})
	store.Store("wrs", ref("PHF1595"), validVerdict(120), time.Now())

	data, err := os.ReadFile(filepath.Join(dir, "wrs_cache.json"))
	if err != nil {
		t.Fatalf("cache file missing: %v", err)
	}

	var decoded map[string]domain.CacheEntry
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("cache file is not plain JSON: %v", err)
	}
	if _, ok := decoded["PHF1595"]; !ok {
		t.Errorf("cache file not keyed by canonical reference: %v", decoded)
	}
}

func TestFileStore_CorruptEntriesDroppedIndividually(t *testing.T) {
	dir := t.TempDir()
	good := domain.CacheEntry{
		Key: "GOOD1", StoreID: "wrs",
		Verdict:   validVerdict(10),
		FetchedAt: time.Now().Unix(),
		ExpiresAt: time.Now().Add(time.Hour).Unix(),
	}
	goodJSON, _ := json.Marshal(good)
	raw := []byte(`{"GOOD1": ` + string(goodJSON) + `, "BAD1": "not an entry", "BAD2": 42}`)
	if err := os.WriteFile(filepath.Join(dir, "wrs_cache.json"), raw, 0o644); err != nil {
		t.Fatal(err)
	}

	store, err := NewFileStore(Config{Dir: dir, TTLFound: time.Hour, TTLNotFound: time.Hour})
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}

	if _, ok := store.Lookup("wrs", ref("GOOD1")); !ok {
		t.Error("valid entry lost while dropping corrupt ones")
	}
	stats, _ := store.Stats("wrs")
	if stats.Total != 1 {
		t.Errorf("Total = %d, want 1 (corrupt entries dropped)", stats.Total)
	}
}

func TestFileStore_WhollyCorruptFileNotFatal(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "wrs_cache.json"), []byte("{{{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	store, err := NewFileStore(Config{Dir: dir, TTLFound: time.Hour, TTLNotFound: time.Hour})
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	if _, ok := store.Lookup("wrs", ref("ANY")); ok {
		t.Error("Lookup() hit from corrupt file")
	}
	// Store still works after the corrupt load
	if err := store.Store("wrs", ref("NEW1"), validVerdict(5), time.Now()); err != nil {
		t.Errorf("Store() after corrupt load error = %v", err)
	}
}

func TestFileStore_PurgeExpired(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Dir: dir, TTLFound: 240 * time.Hour, TTLNotFound: 96 * time.Hour}
	store, _ := NewFileStore(cfg)

	now := time.Now()
	store.Store("wrs", ref("LIVE1"), validVerdict(10), now)
	store.Store("wrs", ref("DEAD1"), validVerdict(10), now.Add(-241*time.Hour))
	store.Store("omniaracing", ref("DEAD2"), invalidVerdict(), now.Add(-97*time.Hour))

	removed, err := store.PurgeExpired(now)
	if err != nil {
		t.Fatalf("PurgeExpired() error = %v", err)
	}
	if removed != 2 {
		t.Errorf("PurgeExpired() = %d, want 2", removed)
	}

	stats, _ := store.Stats("wrs")
	if stats.Total != 1 {
		t.Errorf("wrs Total = %d, want 1 after purge", stats.Total)
	}

	// Purge also reaches namespaces only present on disk
	fresh, _ := NewFileStore(cfg)
	removed, err = fresh.PurgeExpired(now)
	if err != nil {
		t.Fatalf("PurgeExpired() on fresh handle error = %v", err)
	}
	if removed != 0 {
		t.Errorf("second PurgeExpired() = %d, want 0", removed)
	}
}

func TestFileStore_Stats(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()

	store.Store("wrs", ref("A1234"), validVerdict(10), now)
	store.Store("wrs", ref("B1234"), validVerdict(20), now)
	store.Store("wrs", ref("C1234"), invalidVerdict(), now)

	stats, err := store.Stats("wrs")
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Total != 3 || stats.Found != 2 || stats.NotFound != 1 {
		t.Errorf("Stats() = %+v, want total=3 found=2 notFound=1", stats)
	}
}
