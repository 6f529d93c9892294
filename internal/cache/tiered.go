// Package cache implements the in-memory tiered cache and the enhanced
// cache manager that mediates between data-access code and the rate-limited
// upstream market-data source.
package cache

import (
	"sync"
	"time"
)

// Tier names one of the three cache stores. Tiers differ only by default
// TTL: hot for fast-moving quotes, main as the default, static for
// rarely-changing reference data.
type Tier string

const (
	TierHot    Tier = "hot"
	TierMain   Tier = "main"
	TierStatic Tier = "static"
)

// Default per-tier TTLs and sweep interval.
const (
	DefaultHotTTL        = 60 * time.Second
	DefaultMainTTL       = 5 * time.Minute
	DefaultStaticTTL     = time.Hour
	DefaultSweepInterval = 30 * time.Second
)

// entry is one cached value with its absolute expiry.
type entry struct {
	value     any
	expiresAt time.Time
}

// Store is a single TTL-expiring key-value map with hit/miss accounting.
// It cannot fail; absence is always expressed as a miss. Expired entries
// are dropped lazily on read and proactively by a background sweep.
type Store struct {
	name       string
	defaultTTL time.Duration

	mu      sync.Mutex
	entries map[string]entry
	hits    uint64
	misses  uint64

	sweeper   *time.Ticker
	done      chan struct{}
	closeOnce sync.Once
}

// StoreStats is a read-only snapshot of one store's counters.
type StoreStats struct {
	Name    string  `json:"name"`
	Keys    int     `json:"keys"`
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	HitRate float64 `json:"hitRate"`
}

// NewStore creates a Store with the given default TTL and starts its
// expiry sweeper. Non-positive arguments fall back to the main-tier
// defaults.
func NewStore(name string, defaultTTL, sweepInterval time.Duration) *Store {
	if defaultTTL <= 0 {
		defaultTTL = DefaultMainTTL
	}
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}

	s := &Store{
		name:       name,
		defaultTTL: defaultTTL,
		entries:    make(map[string]entry),
		done:       make(chan struct{}),
	}
	s.sweeper = time.NewTicker(sweepInterval)
	go s.sweepLoop()
	return s
}

// sweepLoop periodically evicts expired entries so that keys written more
// often than read do not accumulate.
func (s *Store) sweepLoop() {
	for {
		select {
		case <-s.sweeper.C:
			s.sweep(time.Now())
		case <-s.done:
			s.sweeper.Stop()
			return
		}
	}
}

// sweep removes every entry expired as of now.
func (s *Store) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, k)
		}
	}
}

// Get returns the value for key if present and not expired. A read past
// the entry's expiry behaves as a miss and drops the entry.
func (s *Store) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		s.misses++
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		delete(s.entries, key)
		s.misses++
		return nil, false
	}
	s.hits++
	return e.value, true
}

// Set stores value under key with the given TTL. A non-positive ttl uses
// the store's default.
func (s *Store) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	s.mu.Lock()
	s.entries[key] = entry{value: value, expiresAt: time.Now().Add(ttl)}
	s.mu.Unlock()
}

// Delete removes key. Deleting an absent key is a no-op.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

// Len returns the number of entries currently held, expired or not.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Stats returns a snapshot of the store's counters.
func (s *Store) Stats() StoreStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := s.hits + s.misses
	rate := 0.0
	if total > 0 {
		rate = float64(s.hits) / float64(total)
	}
	return StoreStats{
		Name:    s.name,
		Keys:    len(s.entries),
		Hits:    s.hits,
		Misses:  s.misses,
		HitRate: rate,
	}
}

// Close stops the sweeper. Safe to call more than once.
func (s *Store) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// ---------------------------------------------------------------------------
// Tiers
// ---------------------------------------------------------------------------

// TiersConfig sets per-tier default TTLs. Zero fields use the package
// defaults.
type TiersConfig struct {
	HotTTL        time.Duration
	MainTTL       time.Duration
	StaticTTL     time.Duration
	SweepInterval time.Duration
}

// Tiers bundles the three independently configured stores.
type Tiers struct {
	Hot    *Store
	Main   *Store
	Static *Store
}

// NewTiers creates the hot/main/static stores.
func NewTiers(cfg TiersConfig) *Tiers {
	if cfg.HotTTL <= 0 {
		cfg.HotTTL = DefaultHotTTL
	}
	if cfg.MainTTL <= 0 {
		cfg.MainTTL = DefaultMainTTL
	}
	if cfg.StaticTTL <= 0 {
		cfg.StaticTTL = DefaultStaticTTL
	}
	return &Tiers{
		Hot:    NewStore(string(TierHot), cfg.HotTTL, cfg.SweepInterval),
		Main:   NewStore(string(TierMain), cfg.MainTTL, cfg.SweepInterval),
		Static: NewStore(string(TierStatic), cfg.StaticTTL, cfg.SweepInterval),
	}
}

// Store returns the store for the named tier, defaulting to main.
func (t *Tiers) Store(tier Tier) *Store {
	switch tier {
	case TierHot:
		return t.Hot
	case TierStatic:
		return t.Static
	default:
		return t.Main
	}
}

// DeleteAll removes key from every tier.
func (t *Tiers) DeleteAll(key string) {
	t.Hot.Delete(key)
	t.Main.Delete(key)
	t.Static.Delete(key)
}

// Stats returns a snapshot per tier.
func (t *Tiers) Stats() map[Tier]StoreStats {
	return map[Tier]StoreStats{
		TierHot:    t.Hot.Stats(),
		TierMain:   t.Main.Stats(),
		TierStatic: t.Static.Stats(),
	}
}

// Close stops all sweepers.
func (t *Tiers) Close() {
	t.Hot.Close()
	t.Main.Close()
	t.Static.Close()
}
