package cache

import (
	"fmt"
	"strings"
	"time"

	"nsewatch/internal/domain"
)

// The catalog maps each data kind to its cache tier, TTL, and polling
// policy. Quotes and index levels move intraday and get short TTLs plus
// active polling; charts and corporate data change at most once per trading
// day, so a long passive TTL (stretched further while the market is closed)
// is enough.

// QuoteConfig returns the cache and polling policy for a single stock
// quote.
func QuoteConfig(symbol string) (Config, PollingConfig) {
	cfg := Config{
		Key:  fmt.Sprintf("nse:stock:%s:quote", normalize(symbol)),
		TTL:  2 * time.Minute,
		Tier: TierHot,
	}
	poll := PollingConfig{
		Interval:          30 * time.Second,
		MaxAge:            time.Minute,
		RetryAttempts:     3,
		BackoffMultiplier: 2,
	}
	return cfg, poll
}

// IndexConfig returns the cache and polling policy for an index quote.
// Index levels drive the dashboard header, hence the tighter poll.
func IndexConfig(name string) (Config, PollingConfig) {
	cfg := Config{
		Key:  fmt.Sprintf("nse:index:%s:quote", normalize(name)),
		TTL:  2 * time.Minute,
		Tier: TierHot,
	}
	poll := PollingConfig{
		Interval:          15 * time.Second,
		MaxAge:            30 * time.Second,
		RetryAttempts:     3,
		BackoffMultiplier: 2,
	}
	return cfg, poll
}

// ChartConfig returns the cache policy for a price chart. Charts are
// expensive to fetch but change slowly; no polling.
func ChartConfig(symbol string, rng domain.ChartRange) Config {
	return Config{
		Key:  fmt.Sprintf("nse:chart:%s:%s", normalize(symbol), rng),
		TTL:  5 * time.Minute,
		Tier: TierMain,
	}
}

// StaticConfig returns the cache policy for reference data such as the
// tradable-symbol list.
func StaticConfig(name string) Config {
	return Config{
		Key:  fmt.Sprintf("nse:static:%s", normalize(name)),
		TTL:  time.Hour,
		Tier: TierStatic,
	}
}

// CorporateConfig returns the cache policy for corporate filings/actions.
func CorporateConfig(symbol string) Config {
	return Config{
		Key:  fmt.Sprintf("nse:corporate:%s", normalize(symbol)),
		TTL:  time.Hour,
		Tier: TierMain,
	}
}

// normalize canonicalizes an identifier so repeated requests for the same
// resource collide on the same key.
func normalize(s string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), " ", "_"))
}
