// Package cache implements a keyed, TTL-bounded, checksum-validated store
// with glob invalidation, import/export, and hit/miss accounting.
package cache

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gobwas/glob"
	"go.uber.org/zap"

	"github.com/fixturelab/matchday-crawler/internal/events"
)

// exportVersion identifies the export blob layout.
const exportVersion = 1

// Entry is one cached record. Entries are replaced wholesale by Set; callers
// never mutate a stored entry in place.
type Entry[T any] struct {
	Key       string        `json:"key"`
	Data      T             `json:"data"`
	Timestamp time.Time     `json:"timestamp"`
	TTL       time.Duration `json:"ttl"`
	Checksum  string        `json:"checksum"`
}

// Stats is a point-in-time view of store accounting.
type Stats struct {
	TotalEntries  int       `json:"totalEntries"`
	HitCount      int64     `json:"hitCount"`
	MissCount     int64     `json:"missCount"`
	HitRate       float64   `json:"hitRate"`
	EvictionCount int64     `json:"evictionCount"`
	OldestEntry   time.Time `json:"oldestEntry"`
	NewestEntry   time.Time `json:"newestEntry"`
}

// ExportMetadata carries an entry's bookkeeping fields in an export blob.
type ExportMetadata struct {
	Timestamp time.Time     `json:"timestamp"`
	TTL       time.Duration `json:"ttl"`
	Checksum  string        `json:"checksum"`
}

// ExportedEntry is one entry in an export blob.
type ExportedEntry[T any] struct {
	Key      string         `json:"key"`
	Data     T              `json:"data"`
	Metadata ExportMetadata `json:"metadata"`
}

// Export is a full store snapshot suitable for round-tripping through
// Import.
type Export[T any] struct {
	Version    int                `json:"version"`
	ExportedAt time.Time          `json:"exportedAt"`
	Entries    []ExportedEntry[T] `json:"entries"`
}

// Config controls store behavior.
type Config struct {
	// DefaultTTL applies when Set stores a value without an explicit TTL.
	DefaultTTL time.Duration
}

// Store holds cached values of one payload type. Reads that find an expired
// or corrupt entry count as misses without evicting; the periodic Cleanup or
// a later overwrite removes stale records.
type Store[T any] struct {
	cfg       Config
	validator *Validator[T]
	clock     Clock
	logger    *zap.Logger
	registry  *events.Registry

	mu        sync.RWMutex
	entries   map[string]Entry[T]
	hits      int64
	misses    int64
	evictions int64
}

// New creates a Store. A nil registry gets a private one; a nil logger is
// replaced with a no-op logger.
func New[T any](cfg Config, validator *Validator[T], clock Clock, registry *events.Registry, logger *zap.Logger) (*Store[T], error) {
	if cfg.DefaultTTL <= 0 {
		return nil, errors.New("default ttl must be positive")
	}
	if validator == nil {
		return nil, errors.New("validator is required")
	}
	if clock == nil {
		return nil, errors.New("clock is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if registry == nil {
		registry = events.NewRegistry(logger)
	}
	return &Store[T]{
		cfg:       cfg,
		validator: validator,
		clock:     clock,
		logger:    logger.Named("cache"),
		registry:  registry,
		entries:   make(map[string]Entry[T]),
	}, nil
}

// Get returns the value stored under key iff the entry is present and valid.
// Expired or corrupt entries are left in place and reported as misses.
func (s *Store[T]) Get(key string) (T, bool) {
	var zero T
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		s.recordMiss(key)
		return zero, false
	}
	verdict := s.validator.ValidateEntry(entry)
	if !verdict.Valid {
		s.logger.Debug("cache entry failed validation",
			zap.String("key", key),
			zap.String("reason", verdict.Reason))
		s.recordMiss(key)
		return zero, false
	}
	s.recordHit(key)
	return entry.Data, true
}

// GetEntry returns a copy of the raw entry without validation or hit/miss
// accounting. Callers use it with Validator.ShouldRefresh to schedule
// proactive refreshes.
func (s *Store[T]) GetEntry(key string) (Entry[T], bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[key]
	return entry, ok
}

// Set stores value under key with the default TTL.
func (s *Store[T]) Set(key string, value T) error {
	return s.SetTTL(key, value, s.cfg.DefaultTTL)
}

// SetTTL stores value under key, overwriting any previous entry. A
// non-positive ttl falls back to the default.
func (s *Store[T]) SetTTL(key string, value T, ttl time.Duration) error {
	if key == "" {
		return errors.New("key is required")
	}
	if ttl <= 0 {
		ttl = s.cfg.DefaultTTL
	}
	if err := s.validator.Validate(value); err != nil {
		return fmt.Errorf("validate %s: %w", key, err)
	}
	checksum, err := s.validator.Checksum(value)
	if err != nil {
		return fmt.Errorf("checksum %s: %w", key, err)
	}
	entry := Entry[T]{
		Key:       key,
		Data:      value,
		Timestamp: s.clock.Now(),
		TTL:       ttl,
		Checksum:  checksum,
	}
	s.mu.Lock()
	s.entries[key] = entry
	s.mu.Unlock()
	s.registry.Emit(events.Event{Type: events.CacheSet, Key: key, At: entry.Timestamp})
	return nil
}

// Has reports whether key holds a currently valid entry. Like Get it counts
// a hit or a miss.
func (s *Store[T]) Has(key string) bool {
	_, ok := s.Get(key)
	return ok
}

// Delete removes key and reports whether an entry was present.
func (s *Store[T]) Delete(key string) bool {
	s.mu.Lock()
	_, ok := s.entries[key]
	if ok {
		delete(s.entries, key)
	}
	s.mu.Unlock()
	if ok {
		s.registry.Emit(events.Event{Type: events.CacheDelete, Key: key, At: s.clock.Now()})
	}
	return ok
}

// Clear removes every entry and returns how many were dropped.
func (s *Store[T]) Clear() int {
	s.mu.Lock()
	n := len(s.entries)
	s.entries = make(map[string]Entry[T])
	s.mu.Unlock()
	s.registry.Emit(events.Event{Type: events.CacheClear, Count: n, At: s.clock.Now()})
	return n
}

// Cleanup evicts expired entries and returns how many were removed.
func (s *Store[T]) Cleanup() int {
	s.mu.Lock()
	removed := 0
	for key, entry := range s.entries {
		if s.validator.IsExpired(entry) {
			delete(s.entries, key)
			removed++
		}
	}
	s.evictions += int64(removed)
	s.mu.Unlock()
	return removed
}

// InvalidatePattern removes every key matching the glob pattern (* spans any
// run of characters including separators, ? matches exactly one) and returns
// the removal count. Individual keys that disappear mid-sweep are skipped,
// not errors.
func (s *Store[T]) InvalidatePattern(pattern string) (int, error) {
	matcher, err := glob.Compile(pattern)
	if err != nil {
		return 0, fmt.Errorf("compile pattern %q: %w", pattern, err)
	}

	s.mu.RLock()
	matched := make([]string, 0)
	for key := range s.entries {
		if matcher.Match(key) {
			matched = append(matched, key)
		}
	}
	s.mu.RUnlock()

	removed := 0
	for _, key := range matched {
		if s.Delete(key) {
			removed++
		}
	}
	return removed, nil
}

// Export snapshots every entry, valid or not, in sorted key order.
func (s *Store[T]) Export() Export[T] {
	s.mu.RLock()
	entries := make([]ExportedEntry[T], 0, len(s.entries))
	for _, entry := range s.entries {
		entries = append(entries, ExportedEntry[T]{
			Key:  entry.Key,
			Data: entry.Data,
			Metadata: ExportMetadata{
				Timestamp: entry.Timestamp,
				TTL:       entry.TTL,
				Checksum:  entry.Checksum,
			},
		})
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return Export[T]{Version: exportVersion, ExportedAt: s.clock.Now(), Entries: entries}
}

// Import loads entries from an export blob, returning how many were stored.
// Entries with an empty key or a checksum that no longer matches their data
// are skipped with a warning; only a version mismatch rejects the whole blob.
func (s *Store[T]) Import(blob Export[T]) (int, error) {
	if blob.Version != exportVersion {
		return 0, fmt.Errorf("unsupported export version %d", blob.Version)
	}
	imported := 0
	for _, exp := range blob.Entries {
		if exp.Key == "" {
			s.logger.Warn("skipping export entry without key")
			continue
		}
		sum, err := s.validator.Checksum(exp.Data)
		if err != nil {
			s.logger.Warn("skipping export entry", zap.String("key", exp.Key), zap.Error(err))
			continue
		}
		if exp.Metadata.Checksum != "" && sum != exp.Metadata.Checksum {
			s.logger.Warn("skipping export entry with checksum mismatch", zap.String("key", exp.Key))
			continue
		}
		entry := Entry[T]{
			Key:       exp.Key,
			Data:      exp.Data,
			Timestamp: exp.Metadata.Timestamp,
			TTL:       exp.Metadata.TTL,
			Checksum:  sum,
		}
		if entry.TTL <= 0 {
			entry.TTL = s.cfg.DefaultTTL
		}
		if entry.Timestamp.IsZero() {
			entry.Timestamp = s.clock.Now()
		}
		s.mu.Lock()
		s.entries[entry.Key] = entry
		s.mu.Unlock()
		s.registry.Emit(events.Event{Type: events.CacheSet, Key: entry.Key, At: s.clock.Now()})
		imported++
	}
	return imported, nil
}

// Stats recomputes the derived accounting view.
func (s *Store[T]) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{
		TotalEntries:  len(s.entries),
		HitCount:      s.hits,
		MissCount:     s.misses,
		EvictionCount: s.evictions,
	}
	if total := s.hits + s.misses; total > 0 {
		st.HitRate = float64(s.hits) / float64(total)
	}
	for _, entry := range s.entries {
		if st.OldestEntry.IsZero() || entry.Timestamp.Before(st.OldestEntry) {
			st.OldestEntry = entry.Timestamp
		}
		if entry.Timestamp.After(st.NewestEntry) {
			st.NewestEntry = entry.Timestamp
		}
	}
	return st
}

// AddListener registers an event listener and returns a removal token.
func (s *Store[T]) AddListener(l events.Listener) int {
	return s.registry.AddListener(l)
}

// RemoveListener drops a previously registered listener.
func (s *Store[T]) RemoveListener(token int) {
	s.registry.RemoveListener(token)
}

func (s *Store[T]) recordHit(key string) {
	s.mu.Lock()
	s.hits++
	s.mu.Unlock()
	s.registry.Emit(events.Event{Type: events.CacheHit, Key: key, At: s.clock.Now()})
}

func (s *Store[T]) recordMiss(key string) {
	s.mu.Lock()
	s.misses++
	s.mu.Unlock()
	s.registry.Emit(events.Event{Type: events.CacheMiss, Key: key, At: s.clock.Now()})
}
