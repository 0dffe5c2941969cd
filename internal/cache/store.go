// Package cache implements the client-side cache store: a bounded key to
// entry map with per-key TTL, insertion-order eviction at capacity, a
// periodic expiry sweep, and durable snapshot persistence so the cache
// survives a process restart.
package cache

import (
	"container/list"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sheetsync/sheetsync/pkg/utils"
)

// Entry represents a cached payload with its TTL metadata. Payloads are
// treated as immutable once stored; replacing a key creates a new entry.
type Entry struct {
	Key      string        `json:"key"`
	Payload  interface{}   `json:"payload"`
	StoredAt time.Time     `json:"stored_at"`
	TTL      time.Duration `json:"ttl"`
}

// Age returns how long ago the entry was stored, relative to now.
func (e Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.StoredAt)
}

// Expired reports whether the entry's age exceeds its TTL.
func (e Entry) Expired(now time.Time) bool {
	return e.Age(now) > e.TTL
}

// Stats tracks cache store statistics
type Stats struct {
	Entries     int     `json:"entries"`
	Hits        uint64  `json:"hits"`
	Misses      uint64  `json:"misses"`
	Evictions   uint64  `json:"evictions"`
	Expirations uint64  `json:"expirations"`
	HitRate     float64 `json:"hit_rate"`
}

// Config represents cache store configuration
type Config struct {
	// MaxEntries bounds the store; inserting beyond it evicts the
	// oldest-inserted entry
	MaxEntries int `yaml:"max_entries"`

	// SweepInterval is how often the background sweep runs
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// Store is a bounded TTL cache keyed by (collection, query) composite
// strings. All methods are safe for concurrent use.
type Store struct {
	mu         sync.RWMutex
	maxEntries int
	items      map[string]*list.Element
	order      *list.List // front is oldest insertion
	lastSync   map[string]time.Time
	stats      Stats

	snapshots SnapshotStore
	logger    *utils.Logger

	// now is replaceable for deterministic TTL tests
	now func() time.Time

	sweepInterval time.Duration
	stopCh        chan struct{}
	stopOnce      sync.Once
}

// NewStore creates a cache store and restores any persisted snapshot. A nil
// or failed snapshot load starts with an empty cache, never an error. The
// background sweep starts immediately and runs until Close.
func NewStore(config Config, snapshots SnapshotStore, logger *utils.Logger) *Store {
	if config.MaxEntries <= 0 {
		config.MaxEntries = 100
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = time.Hour
	}
	if logger == nil {
		logger = utils.NewLogger(utils.INFO, nil)
	}

	s := &Store{
		maxEntries:    config.MaxEntries,
		items:         make(map[string]*list.Element),
		order:         list.New(),
		lastSync:      make(map[string]time.Time),
		snapshots:     snapshots,
		logger:        logger.WithComponent("cache"),
		now:           time.Now,
		sweepInterval: config.SweepInterval,
		stopCh:        make(chan struct{}),
	}

	s.restore()

	go s.sweepLoop()

	return s
}

// Get returns the entry for key. Expired entries are reported as absent but
// retained so GetStale can serve them after a failed refresh; the sweep
// removes them once they pass twice their TTL.
func (s *Store) Get(key string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, exists := s.items[key]
	if !exists {
		s.stats.Misses++
		return Entry{}, false
	}

	entry := elem.Value.(Entry)
	if entry.Expired(s.now()) {
		s.stats.Misses++
		return Entry{}, false
	}

	s.stats.Hits++
	return entry, true
}

// GetStale returns the entry for key even if it has expired. Used for the
// stale fallback after a failed refresh. Does not count as a hit or miss.
func (s *Store) GetStale(key string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	elem, exists := s.items[key]
	if !exists {
		return Entry{}, false
	}
	return elem.Value.(Entry), true
}

// Set stores payload under key with the given TTL, replacing any existing
// entry. At capacity it first evicts the single oldest-inserted entry.
func (s *Store) Set(key string, payload interface{}, ttl time.Duration) {
	s.mu.Lock()

	entry := Entry{
		Key:      key,
		Payload:  payload,
		StoredAt: s.now(),
		TTL:      ttl,
	}

	if elem, exists := s.items[key]; exists {
		// Replacement is a fresh insertion: new entry, new position
		s.order.Remove(elem)
		delete(s.items, key)
	} else if len(s.items) >= s.maxEntries {
		s.evictOldestLocked()
	}

	s.items[key] = s.order.PushBack(entry)
	s.mu.Unlock()

	s.persist()
}

// Delete removes the entry for key if present.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	removed := s.removeLocked(key)
	s.mu.Unlock()

	if removed {
		s.persist()
	}
}

// DeleteByPrefix removes every entry whose key starts with prefix. Used to
// invalidate all cached query variants for one collection after a write.
func (s *Store) DeleteByPrefix(prefix string) int {
	s.mu.Lock()
	var keys []string
	for key := range s.items {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			keys = append(keys, key)
		}
	}
	for _, key := range keys {
		s.removeLocked(key)
	}
	s.mu.Unlock()

	if len(keys) > 0 {
		s.persist()
	}
	return len(keys)
}

// Clear removes all entries.
func (s *Store) Clear() {
	s.mu.Lock()
	s.items = make(map[string]*list.Element)
	s.order.Init()
	s.mu.Unlock()

	s.persist()
}

// Sweep removes all entries whose age exceeds twice their TTL and returns
// the number removed. Entries expired but under twice their TTL survive so
// they remain available as stale fallback data.
func (s *Store) Sweep() int {
	s.mu.Lock()
	now := s.now()
	var keys []string
	for key, elem := range s.items {
		entry := elem.Value.(Entry)
		if entry.Age(now) > 2*entry.TTL {
			keys = append(keys, key)
		}
	}
	for _, key := range keys {
		s.removeLocked(key)
		s.stats.Expirations++
	}
	s.mu.Unlock()

	if len(keys) > 0 {
		s.logger.Debug("sweep removed %d entries", len(keys))
		s.persist()
	}
	return len(keys)
}

// Len returns the number of cached entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Keys returns all cache keys in insertion order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.items))
	for elem := s.order.Front(); elem != nil; elem = elem.Next() {
		keys = append(keys, elem.Value.(Entry).Key)
	}
	return keys
}

// Stats returns current cache statistics.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := s.stats
	stats.Entries = len(s.items)
	total := stats.Hits + stats.Misses
	if total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	return stats
}

// SetLastSync records the last successful sync time for a collection. The
// value rides along in the persisted snapshot.
func (s *Store) SetLastSync(collection string, t time.Time) {
	s.mu.Lock()
	s.lastSync[collection] = t
	s.mu.Unlock()

	s.persist()
}

// LastSync returns the recorded last sync times keyed by collection.
func (s *Store) LastSync() map[string]time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]time.Time, len(s.lastSync))
	for k, v := range s.lastSync {
		out[k] = v
	}
	return out
}

// Close stops the background sweep and writes a final snapshot.
func (s *Store) Close() error {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	return s.persistErr()
}

// Helper methods

func (s *Store) removeLocked(key string) bool {
	elem, exists := s.items[key]
	if !exists {
		return false
	}
	s.order.Remove(elem)
	delete(s.items, key)
	return true
}

func (s *Store) evictOldestLocked() {
	elem := s.order.Front()
	if elem == nil {
		return
	}
	entry := elem.Value.(Entry)
	s.order.Remove(elem)
	delete(s.items, entry.Key)
	s.stats.Evictions++
}

func (s *Store) sweepLoop() {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// persist writes the snapshot, logging rather than failing on error; the
// cache stays authoritative in memory.
func (s *Store) persist() {
	if err := s.persistErr(); err != nil {
		s.logger.Warn("snapshot save failed: %v", err)
	}
}

func (s *Store) persistErr() error {
	if s.snapshots == nil {
		return nil
	}

	s.mu.RLock()
	snap := Snapshot{
		Data:         make(map[string]Entry, len(s.items)),
		LastSyncTime: make(map[string]time.Time, len(s.lastSync)),
		Timestamp:    s.now(),
	}
	for key, elem := range s.items {
		snap.Data[key] = elem.Value.(Entry)
	}
	for k, v := range s.lastSync {
		snap.LastSyncTime[k] = v
	}
	s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.snapshots.Save(ctx, snap)
}

// restore loads a persisted snapshot if one exists. A missing or corrupt
// snapshot is treated as an empty cache.
func (s *Store) restore() {
	if s.snapshots == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	snap, err := s.snapshots.Load(ctx)
	if err != nil {
		s.logger.Warn("snapshot load failed, starting empty: %v", err)
		return
	}
	if snap == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Rebuild the insertion order from StoredAt so capacity eviction still
	// removes the oldest entry after a restart
	entries := make([]Entry, 0, len(snap.Data))
	for key, entry := range snap.Data {
		entry.Key = key
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].StoredAt.Before(entries[j].StoredAt)
	})
	for _, entry := range entries {
		if len(s.items) >= s.maxEntries {
			break
		}
		s.items[entry.Key] = s.order.PushBack(entry)
	}
	for k, v := range snap.LastSyncTime {
		s.lastSync[k] = v
	}

	s.logger.Info("restored %d entries from snapshot taken %s", len(s.items),
		snap.Timestamp.Format(time.RFC3339))
}
