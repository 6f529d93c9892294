package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"nsewatch/internal/market"
	"nsewatch/internal/util"
)

// Config describes one logical cached resource. Key must be a stable
// deterministic function of the resource identity so repeated requests
// collide on the same entry.
type Config struct {
	Key          string
	TTL          time.Duration
	Tier         Tier
	ForceRefresh bool
}

// PollingConfig controls the proactive background refresh of one key.
type PollingConfig struct {
	// Interval is the time between refresh attempts.
	Interval time.Duration
	// MaxAge skips a scheduled refresh when the cached value is younger
	// than this (another path refreshed it recently). Zero disables the
	// freshness check.
	MaxAge time.Duration
	// RetryAttempts is the number of fetch attempts per refresh (>= 1).
	RetryAttempts int
	// BackoffMultiplier grows the delay between attempts (> 1).
	BackoffMultiplier float64
}

// FetchFunc loads a value from upstream. It may fail; the manager supplies
// retry and TTL behaviour, the function supplies its own timeout.
type FetchFunc func(ctx context.Context) (any, error)

// RefreshOutcome reports what a single background refresh cycle did, so
// callers and tests can observe poll behaviour without scraping logs.
type RefreshOutcome int

const (
	// RefreshSucceeded means the fetch succeeded and the entry was
	// overwritten.
	RefreshSucceeded RefreshOutcome = iota
	// RefreshSkippedMarketClosed means the cycle was skipped because the
	// market is closed and the data cannot have changed.
	RefreshSkippedMarketClosed
	// RefreshSkippedFresh means the cycle was skipped because the cached
	// value is younger than the polling MaxAge.
	RefreshSkippedFresh
	// RefreshFailedKeptStale means every retry failed; the previous entry,
	// however stale, was left in place.
	RefreshFailedKeptStale
)

// String returns the outcome name.
func (o RefreshOutcome) String() string {
	switch o {
	case RefreshSucceeded:
		return "succeeded"
	case RefreshSkippedMarketClosed:
		return "skipped_market_closed"
	case RefreshSkippedFresh:
		return "skipped_fresh"
	case RefreshFailedKeptStale:
		return "failed_kept_stale"
	default:
		return "unknown"
	}
}

// poller is the registry entry for one actively polled key. At most one
// poller exists per key; re-registering replaces the previous one.
type poller struct {
	cfg   Config
	poll  PollingConfig
	fetch FetchFunc
	stop  chan struct{}
}

// Manager wraps the tiered cache with get-or-fetch-and-populate,
// market-hours-aware TTLs, retry-with-backoff, and per-key background
// polling. Construct one per process and pass it by reference; Close
// releases every timer.
type Manager struct {
	tiers *Tiers
	cal   *market.Calendar
	log   *slog.Logger

	// now and retryDelay are swapped out by tests.
	now        func() time.Time
	retryDelay time.Duration

	mu        sync.Mutex
	pollers   map[string]*poller
	fetchedAt map[string]time.Time
}

// NewManager creates a Manager over the given tiers and trading calendar.
func NewManager(tiers *Tiers, cal *market.Calendar, log *slog.Logger) *Manager {
	return &Manager{
		tiers:      tiers,
		cal:        cal,
		log:        log.With("component", "cache"),
		now:        time.Now,
		retryDelay: util.DefaultRetryDelay,
		pollers:    make(map[string]*poller),
		fetchedAt:  make(map[string]time.Time),
	}
}

// GetWithCache returns the cached value for cfg.Key, or fetches, stores and
// returns a fresh one. The cache-hit path never invokes fetch. A fetch
// error on the miss path propagates to the caller unchanged; the manager
// never synthesizes a fallback value. On a successful fetch the entry is
// stored with a market-hours-adjusted TTL and, when poll is non-nil, a
// recurring background refresh is armed for the key.
func (m *Manager) GetWithCache(ctx context.Context, cfg Config, fetch FetchFunc, poll *PollingConfig) (any, error) {
	store := m.tiers.Store(cfg.Tier)

	if !cfg.ForceRefresh {
		if v, ok := store.Get(cfg.Key); ok {
			m.log.Debug("cache hit", "key", cfg.Key, "tier", string(cfg.Tier))
			return v, nil
		}
		m.log.Debug("cache miss", "key", cfg.Key, "tier", string(cfg.Tier))
	}

	v, err := fetch(ctx)
	if err != nil {
		return nil, err
	}

	now := m.now()
	ttl := m.cal.RecommendedTTL(cfg.TTL, now)
	store.Set(cfg.Key, v, ttl)

	m.mu.Lock()
	m.fetchedAt[cfg.Key] = now
	m.mu.Unlock()

	if poll != nil {
		m.StartPolling(cfg, fetch, *poll)
	}

	return v, nil
}

// GetWithCache is the typed wrapper around Manager.GetWithCache. A cached
// value of the wrong type is a programming error (two resources sharing a
// key) and is surfaced as such.
func GetWithCache[T any](ctx context.Context, m *Manager, cfg Config, fetch func(ctx context.Context) (T, error), poll *PollingConfig) (T, error) {
	var zero T
	v, err := m.GetWithCache(ctx, cfg, func(ctx context.Context) (any, error) {
		return fetch(ctx)
	}, poll)
	if err != nil {
		return zero, err
	}
	tv, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("cache: entry %q holds %T, want %T", cfg.Key, v, zero)
	}
	return tv, nil
}

// StartPolling arms (or re-arms) the background refresh for cfg.Key. An
// existing poller for the key is stopped first, so exactly one timer runs
// per key.
func (m *Manager) StartPolling(cfg Config, fetch FetchFunc, poll PollingConfig) {
	m.mu.Lock()
	if old, ok := m.pollers[cfg.Key]; ok {
		close(old.stop)
	}
	p := &poller{cfg: cfg, poll: poll, fetch: fetch, stop: make(chan struct{})}
	m.pollers[cfg.Key] = p
	m.mu.Unlock()

	m.log.Info("polling started", "key", cfg.Key, "interval", poll.Interval.String())
	go m.pollLoop(p)
}

// pollLoop runs one key's refresh timer until the poller is stopped.
// Cycles for a single key never overlap: the loop is a single goroutine
// and the retry sequence inside a cycle is sequential.
func (m *Manager) pollLoop(p *poller) {
	ticker := time.NewTicker(p.poll.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			m.refreshOnce(context.Background(), p)
		}
	}
}

// refreshOnce performs one background refresh cycle for the poller's key.
// Failures are contained here: the stale entry is never evicted on a
// refresh failure, because stale-but-present beats absent for a UI read.
func (m *Manager) refreshOnce(ctx context.Context, p *poller) RefreshOutcome {
	now := m.now()
	key := p.cfg.Key

	// Closed market: data is static, a fetch would only burn upstream
	// quota.
	if !m.cal.IsOpen(now) {
		return RefreshSkippedMarketClosed
	}

	if p.poll.MaxAge > 0 {
		m.mu.Lock()
		last := m.fetchedAt[key]
		m.mu.Unlock()
		if !last.IsZero() && now.Sub(last) < p.poll.MaxAge {
			m.log.Debug("poll skipped, entry fresh", "key", key, "age", now.Sub(last).String())
			return RefreshSkippedFresh
		}
	}

	var v any
	err := util.Retry(ctx, p.poll.RetryAttempts, m.retryDelay, p.poll.BackoffMultiplier, func() error {
		var ferr error
		v, ferr = p.fetch(ctx)
		return ferr
	})
	if err != nil {
		m.log.Warn("poll refresh failed, keeping stale entry", "key", key, "error", err)
		return RefreshFailedKeptStale
	}

	ttl := m.cal.RecommendedTTL(p.cfg.TTL, m.now())
	m.tiers.Store(p.cfg.Tier).Set(key, v, ttl)

	m.mu.Lock()
	m.fetchedAt[key] = m.now()
	m.mu.Unlock()

	m.log.Debug("poll refresh succeeded", "key", key)
	return RefreshSucceeded
}

// StopPolling cancels the background refresh for key. Calling it for a key
// that is not polled is a no-op.
func (m *Manager) StopPolling(key string) {
	m.mu.Lock()
	p, ok := m.pollers[key]
	if ok {
		close(p.stop)
		delete(m.pollers, key)
	}
	m.mu.Unlock()

	if ok {
		m.log.Info("polling stopped", "key", key)
	}
}

// StopAllPolling cancels every active background refresh.
func (m *Manager) StopAllPolling() {
	m.mu.Lock()
	for key, p := range m.pollers {
		close(p.stop)
		delete(m.pollers, key)
	}
	m.mu.Unlock()
}

// Invalidate removes key from every tier and stops its polling, forcing
// the next read to fetch fresh data. Used by write paths elsewhere in the
// application.
func (m *Manager) Invalidate(key string) {
	m.tiers.DeleteAll(key)
	m.StopPolling(key)

	m.mu.Lock()
	delete(m.fetchedAt, key)
	m.mu.Unlock()

	m.log.Info("cache invalidated", "key", key)
}

// Close stops all polling and the tier sweepers.
func (m *Manager) Close() {
	m.StopAllPolling()
	m.tiers.Close()
}

// Stats is the operational snapshot exposed for dashboards.
type Stats struct {
	Tiers             map[Tier]StoreStats      `json:"tiers"`
	PollingActiveKeys []string                 `json:"pollingActiveKeys"`
	PollingConfigs    map[string]PollingConfig `json:"pollingConfigs"`
}

// Stats returns a read-only snapshot of tier counters and active pollers.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	keys := make([]string, 0, len(m.pollers))
	cfgs := make(map[string]PollingConfig, len(m.pollers))
	for key, p := range m.pollers {
		keys = append(keys, key)
		cfgs[key] = p.poll
	}
	m.mu.Unlock()

	sort.Strings(keys)
	return Stats{
		Tiers:             m.tiers.Stats(),
		PollingActiveKeys: keys,
		PollingConfigs:    cfgs,
	}
}
