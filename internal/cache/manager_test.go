package cache

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"nsewatch/internal/market"
)

// testManager returns a Manager whose clock is pinned to a fixed instant in
// the NSE trading zone. open=true pins a mid-session Wednesday, open=false a
// Saturday.
func testManager(t *testing.T, open bool) *Manager {
	t.Helper()

	cal, err := market.NewNSECalendar(nil)
	if err != nil {
		t.Fatalf("NewNSECalendar: %v", err)
	}
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		t.Fatalf("loading Asia/Kolkata: %v", err)
	}

	at := time.Date(2026, time.January, 21, 11, 0, 0, 0, loc) // Wednesday 11:00
	if !open {
		at = time.Date(2026, time.January, 24, 11, 0, 0, 0, loc) // Saturday
	}

	tiers := NewTiers(TiersConfig{})
	t.Cleanup(tiers.Close)

	m := NewManager(tiers, cal, slog.Default())
	m.now = func() time.Time { return at }
	m.retryDelay = time.Millisecond
	t.Cleanup(m.StopAllPolling)
	return m
}

func countingFetch(v any, calls *atomic.Int32) FetchFunc {
	return func(ctx context.Context) (any, error) {
		calls.Add(1)
		return v, nil
	}
}

func failingFetch(err error, calls *atomic.Int32) FetchFunc {
	return func(ctx context.Context) (any, error) {
		calls.Add(1)
		return nil, err
	}
}

func TestGetWithCacheFetchesOnce(t *testing.T) {
	m := testManager(t, true)
	ctx := context.Background()

	var calls atomic.Int32
	quote := map[string]any{"symbol": "SBIN", "price": 500.0}
	cfg := Config{Key: "nse:stock:SBIN:quote", TTL: 2 * time.Minute, Tier: TierHot}

	v1, err := m.GetWithCache(ctx, cfg, countingFetch(quote, &calls), nil)
	if err != nil {
		t.Fatalf("first GetWithCache: %v", err)
	}
	if v1.(map[string]any)["price"] != 500.0 {
		t.Errorf("first call returned %v", v1)
	}
	if calls.Load() != 1 {
		t.Fatalf("fetch calls after first read = %d, want 1", calls.Load())
	}

	v2, err := m.GetWithCache(ctx, cfg, countingFetch(quote, &calls), nil)
	if err != nil {
		t.Fatalf("second GetWithCache: %v", err)
	}
	if v2.(map[string]any)["symbol"] != "SBIN" {
		t.Errorf("second call returned %v", v2)
	}
	if calls.Load() != 1 {
		t.Errorf("fetch calls after cached read = %d, want 1", calls.Load())
	}
}

func TestGetWithCachePropagatesFetchError(t *testing.T) {
	m := testManager(t, true)

	wantErr := errors.New("upstream down")
	var calls atomic.Int32
	cfg := Config{Key: "nse:stock:FAIL:quote", TTL: time.Minute, Tier: TierHot}

	_, err := m.GetWithCache(context.Background(), cfg, failingFetch(wantErr, &calls), nil)
	if !errors.Is(err, wantErr) {
		t.Errorf("GetWithCache error = %v, want %v", err, wantErr)
	}
	// A cold-miss failure must not populate the cache.
	if _, ok := m.tiers.Hot.Get(cfg.Key); ok {
		t.Error("failed fetch should not leave a cache entry")
	}
}

func TestGetWithCacheForceRefresh(t *testing.T) {
	m := testManager(t, true)
	ctx := context.Background()

	var calls atomic.Int32
	cfg := Config{Key: "nse:stock:SBIN:quote", TTL: time.Minute, Tier: TierHot}

	if _, err := m.GetWithCache(ctx, cfg, countingFetch("v1", &calls), nil); err != nil {
		t.Fatal(err)
	}

	cfg.ForceRefresh = true
	if _, err := m.GetWithCache(ctx, cfg, countingFetch("v2", &calls), nil); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 2 {
		t.Errorf("fetch calls = %d, want 2 (force refresh bypasses the read)", calls.Load())
	}
}

func TestTypedGetWithCache(t *testing.T) {
	m := testManager(t, true)
	ctx := context.Background()

	cfg := Config{Key: "nse:static:SYMBOLS", TTL: time.Hour, Tier: TierStatic}
	list, err := GetWithCache(ctx, m, cfg, func(ctx context.Context) ([]string, error) {
		return []string{"SBIN", "INFY"}, nil
	}, nil)
	if err != nil {
		t.Fatalf("typed GetWithCache: %v", err)
	}
	if len(list) != 2 || list[0] != "SBIN" {
		t.Errorf("typed GetWithCache returned %v", list)
	}

	// Same key read back as a different type is a programming error.
	_, err = GetWithCache(ctx, m, cfg, func(ctx context.Context) (int, error) {
		return 0, nil
	}, nil)
	if err == nil {
		t.Error("expected type-mismatch error for conflicting key")
	}
}

func TestClosedMarketStretchesTTL(t *testing.T) {
	m := testManager(t, false) // Saturday

	cfg := Config{Key: "nse:stock:SBIN:quote", TTL: 10 * time.Millisecond, Tier: TierHot}
	if _, err := m.GetWithCache(context.Background(), cfg, countingFetch("v", new(atomic.Int32)), nil); err != nil {
		t.Fatal(err)
	}

	// Nominal TTL has long passed, but the market is closed: the entry
	// lives until the next session open.
	time.Sleep(50 * time.Millisecond)
	if _, ok := m.tiers.Hot.Get(cfg.Key); !ok {
		t.Error("entry should survive past nominal TTL while market is closed")
	}
}

func TestRefreshSkippedWhenMarketClosed(t *testing.T) {
	m := testManager(t, false)

	var calls atomic.Int32
	p := &poller{
		cfg:   Config{Key: "k", TTL: time.Minute, Tier: TierHot},
		poll:  PollingConfig{Interval: time.Second, RetryAttempts: 3, BackoffMultiplier: 2},
		fetch: countingFetch("v", &calls),
		stop:  make(chan struct{}),
	}

	if got := m.refreshOnce(context.Background(), p); got != RefreshSkippedMarketClosed {
		t.Errorf("refreshOnce = %v, want RefreshSkippedMarketClosed", got)
	}
	if calls.Load() != 0 {
		t.Errorf("fetch calls = %d, want 0 on a closed-market cycle", calls.Load())
	}
}

func TestRefreshSkippedWhenFresh(t *testing.T) {
	m := testManager(t, true)

	var calls atomic.Int32
	p := &poller{
		cfg:   Config{Key: "k", TTL: time.Minute, Tier: TierHot},
		poll:  PollingConfig{Interval: time.Second, MaxAge: time.Hour, RetryAttempts: 1, BackoffMultiplier: 2},
		fetch: countingFetch("v", &calls),
		stop:  make(chan struct{}),
	}

	m.mu.Lock()
	m.fetchedAt["k"] = m.now()
	m.mu.Unlock()

	if got := m.refreshOnce(context.Background(), p); got != RefreshSkippedFresh {
		t.Errorf("refreshOnce = %v, want RefreshSkippedFresh", got)
	}
	if calls.Load() != 0 {
		t.Errorf("fetch calls = %d, want 0 when entry is fresh", calls.Load())
	}
}

func TestRefreshFailureKeepsStaleEntry(t *testing.T) {
	m := testManager(t, true)
	ctx := context.Background()

	cfg := Config{Key: "nse:stock:SBIN:quote", TTL: time.Minute, Tier: TierHot}
	if _, err := m.GetWithCache(ctx, cfg, countingFetch("V1", new(atomic.Int32)), nil); err != nil {
		t.Fatal(err)
	}

	var calls atomic.Int32
	p := &poller{
		cfg:   cfg,
		poll:  PollingConfig{Interval: time.Second, RetryAttempts: 3, BackoffMultiplier: 2},
		fetch: failingFetch(errors.New("upstream down"), &calls),
		stop:  make(chan struct{}),
	}

	if got := m.refreshOnce(ctx, p); got != RefreshFailedKeptStale {
		t.Errorf("refreshOnce = %v, want RefreshFailedKeptStale", got)
	}
	if calls.Load() != 3 {
		t.Errorf("fetch calls = %d, want exactly 3 (retryAttempts)", calls.Load())
	}

	v, ok := m.tiers.Hot.Get(cfg.Key)
	if !ok || v.(string) != "V1" {
		t.Errorf("stale entry = %v/%v, want V1 kept in place", v, ok)
	}
}

func TestRefreshSuccessOverwrites(t *testing.T) {
	m := testManager(t, true)
	ctx := context.Background()

	cfg := Config{Key: "k", TTL: time.Minute, Tier: TierMain}
	m.tiers.Main.Set(cfg.Key, "old", time.Minute)

	p := &poller{
		cfg:   cfg,
		poll:  PollingConfig{Interval: time.Second, RetryAttempts: 1, BackoffMultiplier: 2},
		fetch: countingFetch("new", new(atomic.Int32)),
		stop:  make(chan struct{}),
	}

	if got := m.refreshOnce(ctx, p); got != RefreshSucceeded {
		t.Errorf("refreshOnce = %v, want RefreshSucceeded", got)
	}
	if v, _ := m.tiers.Main.Get(cfg.Key); v != "new" {
		t.Errorf("cache holds %v after refresh, want %q", v, "new")
	}
}

func TestStartPollingReplacesTimer(t *testing.T) {
	m := testManager(t, true)

	cfg := Config{Key: "k", TTL: time.Minute, Tier: TierHot}
	poll := PollingConfig{Interval: time.Hour, RetryAttempts: 1, BackoffMultiplier: 2}

	m.StartPolling(cfg, countingFetch("v", new(atomic.Int32)), poll)
	m.StartPolling(cfg, countingFetch("v", new(atomic.Int32)), poll)

	st := m.Stats()
	if len(st.PollingActiveKeys) != 1 {
		t.Errorf("active pollers = %v, want exactly one for the key", st.PollingActiveKeys)
	}
}

func TestPollTimerFiresAndStops(t *testing.T) {
	m := testManager(t, true)

	var calls atomic.Int32
	cfg := Config{Key: "k", TTL: time.Minute, Tier: TierHot}
	poll := PollingConfig{Interval: 10 * time.Millisecond, RetryAttempts: 1, BackoffMultiplier: 2}

	m.StartPolling(cfg, countingFetch("v", &calls), poll)

	deadline := time.After(time.Second)
	for calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("poll timer never fired")
		case <-time.After(5 * time.Millisecond):
		}
	}

	m.StopPolling(cfg.Key)
	after := calls.Load()
	time.Sleep(50 * time.Millisecond)
	if calls.Load() != after {
		t.Errorf("fetch calls grew after StopPolling: %d -> %d", after, calls.Load())
	}
}

func TestPollTimerQuietWhenMarketClosed(t *testing.T) {
	m := testManager(t, false)

	var calls atomic.Int32
	cfg := Config{Key: "k", TTL: time.Minute, Tier: TierHot}
	poll := PollingConfig{Interval: 10 * time.Millisecond, RetryAttempts: 1, BackoffMultiplier: 2}

	m.StartPolling(cfg, countingFetch("v", &calls), poll)
	time.Sleep(60 * time.Millisecond)

	if calls.Load() != 0 {
		t.Errorf("fetch calls = %d on a closed market, want 0", calls.Load())
	}
}

func TestStopPollingIdempotent(t *testing.T) {
	m := testManager(t, true)

	m.StopPolling("never-polled")
	m.StopAllPolling()
	m.StopAllPolling()
}

func TestInvalidate(t *testing.T) {
	m := testManager(t, true)

	cfg := Config{Key: "k", TTL: time.Minute, Tier: TierHot}
	m.tiers.Hot.Set(cfg.Key, "v", time.Minute)
	m.tiers.Main.Set(cfg.Key, "v", time.Minute)
	m.StartPolling(cfg, countingFetch("v", new(atomic.Int32)), PollingConfig{Interval: time.Hour, RetryAttempts: 1, BackoffMultiplier: 2})

	m.Invalidate(cfg.Key)

	if _, ok := m.tiers.Hot.Get(cfg.Key); ok {
		t.Error("hot tier should be empty after Invalidate")
	}
	if _, ok := m.tiers.Main.Get(cfg.Key); ok {
		t.Error("main tier should be empty after Invalidate")
	}
	if len(m.Stats().PollingActiveKeys) != 0 {
		t.Error("polling should stop on Invalidate")
	}
}

func TestStatsSnapshot(t *testing.T) {
	m := testManager(t, true)

	cfg := Config{Key: "a", TTL: time.Minute, Tier: TierHot}
	poll := PollingConfig{Interval: time.Hour, MaxAge: time.Minute, RetryAttempts: 3, BackoffMultiplier: 2}
	m.StartPolling(cfg, countingFetch("v", new(atomic.Int32)), poll)

	st := m.Stats()
	if len(st.Tiers) != 3 {
		t.Errorf("Stats.Tiers has %d entries, want 3", len(st.Tiers))
	}
	if len(st.PollingActiveKeys) != 1 || st.PollingActiveKeys[0] != "a" {
		t.Errorf("PollingActiveKeys = %v, want [a]", st.PollingActiveKeys)
	}
	if got := st.PollingConfigs["a"]; got.RetryAttempts != 3 {
		t.Errorf("PollingConfigs[a] = %+v, want the registered config", got)
	}
}
