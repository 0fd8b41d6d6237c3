package cache

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pricewatch/backend/internal/domain"
)

// Config holds cache-related configuration
type Config struct {
	Dir         string
	TTLFound    time.Duration
	TTLNotFound time.Duration
}

// FileStore is a thread-safe persistent verdict cache. Each store id owns
// an independent JSON file (<store>_cache.json) so one store's corruption
// or I/O failure never touches another store's entries. Files are plain
// indented JSON keyed by canonical reference, kept human-inspectable for
// operational debugging.
type FileStore struct {
	cfg Config

	mutex      sync.RWMutex
	namespaces map[string]*namespace
}

// namespace holds one store's loaded entries with its own lock, so lookups
// for different stores never contend.
type namespace struct {
	mutex   sync.RWMutex
	entries map[string]domain.CacheEntry
}

// NewFileStore creates a file-backed verdict store rooted at cfg.Dir.
// Store files are loaded lazily on first access.
func NewFileStore(cfg Config) (*FileStore, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating cache dir: %v", domain.ErrStoreUnavailable, err)
	}

	return &FileStore{
		cfg:        cfg,
		namespaces: make(map[string]*namespace),
	}, nil
}

// Lookup returns the fresh entry for (storeID, ref.Canonical). Entries at or
// past expiry behave as absent; they are removed on the next purge pass, not
// here.
func (s *FileStore) Lookup(storeID string, ref domain.Reference) (domain.CacheEntry, bool) {
	ns := s.namespace(storeID)

	ns.mutex.RLock()
	defer ns.mutex.RUnlock()

	entry, ok := ns.entries[ref.Canonical]
	if !ok || entry.IsExpired(time.Now()) {
		return domain.CacheEntry{}, false
	}
	return entry, true
}

// Store replaces any prior entry for (storeID, ref.Canonical) and commits
// the namespace to disk before returning. The expiry follows the TTL split:
// valid verdicts live longer than not-found ones, since fresh stock appears
// faster than prices change.
func (s *FileStore) Store(storeID string, ref domain.Reference, verdict domain.MatchVerdict, now time.Time) error {
	ttl := s.cfg.TTLNotFound
	if verdict.IsValid {
		ttl = s.cfg.TTLFound
	}

	entry := domain.CacheEntry{
		Key:       ref.Canonical,
		StoreID:   storeID,
		Verdict:   verdict,
		FetchedAt: now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
	}

	ns := s.namespace(storeID)
	ns.mutex.Lock()
	defer ns.mutex.Unlock()

	ns.entries[ref.Canonical] = entry
	return s.persistLocked(storeID, ns)
}

// PurgeExpired removes every expired entry across all store namespaces,
// including ones not yet loaded this run, and returns the number removed.
func (s *FileStore) PurgeExpired(now time.Time) (int, error) {
	storeIDs, err := s.knownStores()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, storeID := range storeIDs {
		ns := s.namespace(storeID)

		ns.mutex.Lock()
		before := len(ns.entries)
		for key, entry := range ns.entries {
			if entry.IsExpired(now) {
				delete(ns.entries, key)
			}
		}
		purged := before - len(ns.entries)
		if purged > 0 {
			if err := s.persistLocked(storeID, ns); err != nil {
				ns.mutex.Unlock()
				return removed, err
			}
		}
		ns.mutex.Unlock()

		removed += purged
	}
	return removed, nil
}

// Stats summarizes one store's namespace without mutating it.
func (s *FileStore) Stats(storeID string) (domain.CacheStats, error) {
	ns := s.namespace(storeID)

	ns.mutex.RLock()
	defer ns.mutex.RUnlock()

	stats := domain.CacheStats{StoreID: storeID, Total: len(ns.entries)}
	now := time.Now()
	for _, entry := range ns.entries {
		if entry.Verdict.IsValid {
			stats.Found++
		} else {
			stats.NotFound++
		}
		if entry.IsExpired(now) {
			stats.Expired++
		}
	}
	return stats, nil
}

// Flush persists every loaded namespace. Store already writes through, so
// this only matters after bulk mutations.
func (s *FileStore) Flush() error {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	for storeID, ns := range s.namespaces {
		ns.mutex.Lock()
		err := s.persistLocked(storeID, ns)
		ns.mutex.Unlock()
		if err != nil {
			return err
		}
	}
	return nil
}

// namespace returns the loaded namespace for a store, loading it from disk
// on first access.
func (s *FileStore) namespace(storeID string) *namespace {
	s.mutex.RLock()
	ns, ok := s.namespaces[storeID]
	s.mutex.RUnlock()
	if ok {
		return ns
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	if ns, ok := s.namespaces[storeID]; ok {
		return ns
	}

	ns = &namespace{entries: s.load(storeID)}
	s.namespaces[storeID] = ns
	return ns
}

// load reads one store's cache file. Corrupted state is expected (partial
// writes, external edits): unparsable individual entries are dropped with a
// warning count, and an unreadable file yields an empty namespace rather
// than failing the run.
func (s *FileStore) load(storeID string) map[string]domain.CacheEntry {
	entries := make(map[string]domain.CacheEntry)

	data, err := os.ReadFile(s.path(storeID))
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("[CACHE] %s: unreadable cache file, starting empty: %v", storeID, err)
		}
		return entries
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		log.Printf("[CACHE] %s: corrupt cache file, starting empty: %v", storeID, err)
		return entries
	}

	dropped := 0
	for key, msg := range raw {
		var entry domain.CacheEntry
		if err := json.Unmarshal(msg, &entry); err != nil || entry.ExpiresAt == 0 {
			dropped++
			continue
		}
		entries[key] = entry
	}
	if dropped > 0 {
		log.Printf("[CACHE] %s: dropped %d unparsable entries", storeID, dropped)
	}

	return entries
}

// persistLocked writes one namespace to disk atomically (temp file +
// rename), so a crash mid-write leaves the previous file intact. Caller
// holds the namespace lock.
func (s *FileStore) persistLocked(storeID string, ns *namespace) error {
	data, err := json.MarshalIndent(ns.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encoding %s: %v", domain.ErrStoreUnavailable, storeID, err)
	}

	path := s.path(storeID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("%w: writing %s: %v", domain.ErrStoreUnavailable, storeID, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("%w: committing %s: %v", domain.ErrStoreUnavailable, storeID, err)
	}
	return nil
}

func (s *FileStore) path(storeID string) string {
	return filepath.Join(s.cfg.Dir, storeID+"_cache.json")
}

// knownStores lists every store with either a loaded namespace or a cache
// file on disk.
func (s *FileStore) knownStores() ([]string, error) {
	seen := make(map[string]bool)

	s.mutex.RLock()
	for storeID := range s.namespaces {
		seen[storeID] = true
	}
	s.mutex.RUnlock()

	files, err := filepath.Glob(filepath.Join(s.cfg.Dir, "*_cache.json"))
	if err != nil {
		return nil, fmt.Errorf("%w: listing cache dir: %v", domain.ErrStoreUnavailable, err)
	}
	for _, f := range files {
		name := strings.TrimSuffix(filepath.Base(f), "_cache.json")
		seen[name] = true
	}

	storeIDs := make([]string, 0, len(seen))
	for storeID := range seen {
		storeIDs = append(storeIDs, storeID)
	}
	return storeIDs, nil
}
