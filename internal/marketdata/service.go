// Package marketdata composes the upstream providers, the tiered cache,
// and the durable stores into the service the HTTP API serves from.
//
// Read path per request: in-memory cache, then upstream, then the durable
// snapshot as a stale fallback when the upstream is down. Successful
// upstream fetches are written through to the durable stores so the
// fallback stays warm.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"nsewatch/internal/cache"
	"nsewatch/internal/domain"
	"nsewatch/internal/indicator"
	"nsewatch/internal/store"
	"nsewatch/internal/upstream"
)

// Service serves quotes, charts, reference data, and indicators.
type Service struct {
	mgr       *cache.Manager
	provider  upstream.Provider
	snapshots store.SnapshotStore
	series    store.SeriesStore
	log       *slog.Logger
}

// NewService wires the service. snapshots and series may be nil; the
// corresponding durable fallbacks are then disabled.
func NewService(mgr *cache.Manager, provider upstream.Provider, snapshots store.SnapshotStore, series store.SeriesStore, log *slog.Logger) *Service {
	return &Service{
		mgr:       mgr,
		provider:  provider,
		snapshots: snapshots,
		series:    series,
		log:       log.With("component", "marketdata"),
	}
}

// fetchWithFallback runs the upstream fetch; on success the result is
// written through to the snapshot store, on failure the last snapshot is
// served instead.
func fetchWithFallback[T any](s *Service, key string, fetch func(ctx context.Context) (T, error)) func(ctx context.Context) (T, error) {
	return func(ctx context.Context) (T, error) {
		v, err := fetch(ctx)
		if err == nil {
			s.saveSnapshot(ctx, key, v)
			return v, nil
		}

		var zero T
		if s.snapshots == nil {
			return zero, err
		}
		payload, savedAt, loadErr := s.snapshots.LoadSnapshot(ctx, key)
		if loadErr != nil {
			return zero, err // report the upstream error, not the miss
		}
		var stale T
		if unmarshalErr := json.Unmarshal(payload, &stale); unmarshalErr != nil {
			return zero, err
		}
		s.log.Warn("serving stale snapshot", "key", key, "savedAt", savedAt, "err", err)
		return stale, nil
	}
}

// saveSnapshot best-effort persists a fetched value for later fallback.
func (s *Service) saveSnapshot(ctx context.Context, key string, v any) {
	if s.snapshots == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		s.log.Error("encoding snapshot", "key", key, "err", err)
		return
	}
	if err := s.snapshots.SaveSnapshot(ctx, key, payload); err != nil {
		s.log.Error("saving snapshot", "key", key, "err", err)
	}
}

// GetQuote returns the cached quote for a stock, fetching and starting
// background polling on a cold miss.
func (s *Service) GetQuote(ctx context.Context, symbol string) (domain.Quote, error) {
	cfg, poll := cache.QuoteConfig(symbol)
	fetch := fetchWithFallback(s, cfg.Key, func(ctx context.Context) (domain.Quote, error) {
		return s.provider.Quote(ctx, symbol)
	})
	return cache.GetWithCache(ctx, s.mgr, cfg, fetch, &poll)
}

// GetIndexQuote returns the cached level of a market index.
func (s *Service) GetIndexQuote(ctx context.Context, name string) (domain.IndexQuote, error) {
	cfg, poll := cache.IndexConfig(name)
	fetch := fetchWithFallback(s, cfg.Key, func(ctx context.Context) (domain.IndexQuote, error) {
		return s.provider.IndexQuote(ctx, name)
	})
	return cache.GetWithCache(ctx, s.mgr, cfg, fetch, &poll)
}

// GetChart returns the cached OHLCV series for a symbol and range.
// Successful fetches are merged into the series store; when the upstream
// is down the stored series is served instead.
func (s *Service) GetChart(ctx context.Context, symbol string, rng domain.ChartRange) ([]domain.PricePoint, error) {
	cfg := cache.ChartConfig(symbol, rng)
	fetch := func(ctx context.Context) ([]domain.PricePoint, error) {
		points, err := s.provider.Chart(ctx, symbol, rng)
		if err == nil {
			if s.series != nil {
				if werr := s.series.WriteSeries(ctx, symbol, rng, points); werr != nil {
					s.log.Error("writing series", "symbol", symbol, "range", rng, "err", werr)
				}
			}
			return points, nil
		}

		if s.series != nil {
			stored, rerr := s.series.ReadSeries(ctx, symbol, rng)
			if rerr == nil && len(stored) > 0 {
				s.log.Warn("serving stored series", "symbol", symbol, "range", rng, "err", err)
				return stored, nil
			}
		}
		return nil, err
	}
	return cache.GetWithCache(ctx, s.mgr, cfg, fetch, nil)
}

// GetSymbols returns the cached tradable-symbol list.
func (s *Service) GetSymbols(ctx context.Context) ([]domain.SymbolInfo, error) {
	cfg := cache.StaticConfig("symbols")
	fetch := fetchWithFallback(s, cfg.Key, func(ctx context.Context) ([]domain.SymbolInfo, error) {
		return s.provider.Symbols(ctx)
	})
	return cache.GetWithCache(ctx, s.mgr, cfg, fetch, nil)
}

// GetCorporateActions returns the cached corporate actions for a symbol.
func (s *Service) GetCorporateActions(ctx context.Context, symbol string) ([]domain.CorporateAction, error) {
	cfg := cache.CorporateConfig(symbol)
	fetch := fetchWithFallback(s, cfg.Key, func(ctx context.Context) ([]domain.CorporateAction, error) {
		return s.provider.CorporateActions(ctx, symbol)
	})
	return cache.GetWithCache(ctx, s.mgr, cfg, fetch, nil)
}

// IndicatorReport bundles the computed indicator series for one symbol
// plus headline interpretations of the latest values.
type IndicatorReport struct {
	Symbol     string                `json:"symbol"`
	Range      domain.ChartRange     `json:"range"`
	SMA20      []indicator.Point     `json:"sma20,omitempty"`
	EMA20      []indicator.Point     `json:"ema20,omitempty"`
	RSI14      []indicator.Point     `json:"rsi14,omitempty"`
	MACD       []indicator.MACDPoint `json:"macd,omitempty"`
	Bollinger  []indicator.BandPoint `json:"bollinger,omitempty"`
	StochK     []indicator.Point     `json:"stochK,omitempty"`
	StochD     []indicator.Point     `json:"stochD,omitempty"`
	ATR14      []indicator.Point     `json:"atr14,omitempty"`
	OBV        []indicator.Point     `json:"obv,omitempty"`
	Signals    map[string]string     `json:"signals,omitempty"`
	DataPoints int                   `json:"dataPoints"`
}

// GetIndicators computes the standard indicator set over the chart series
// for a symbol. The chart itself goes through the regular cached path, so
// repeated indicator requests do not refetch the series.
func (s *Service) GetIndicators(ctx context.Context, symbol string, rng domain.ChartRange) (IndicatorReport, error) {
	points, err := s.GetChart(ctx, symbol, rng)
	if err != nil {
		return IndicatorReport{}, fmt.Errorf("loading chart for indicators: %w", err)
	}

	report := IndicatorReport{
		Symbol:     symbol,
		Range:      rng,
		SMA20:      indicator.SMA(points, 20),
		EMA20:      indicator.EMA(points, 20),
		RSI14:      indicator.RSI(points, 14),
		MACD:       indicator.MACD(points, 12, 26, 9),
		Bollinger:  indicator.BollingerBands(points, 20, 2),
		ATR14:      indicator.ATR(points, 14),
		OBV:        indicator.OBV(points),
		DataPoints: len(points),
	}
	report.StochK, report.StochD = indicator.Stochastic(points, 14, 3)

	signals := make(map[string]string)
	if n := len(report.RSI14); n > 0 {
		signals["rsi"] = indicator.InterpretRSI(report.RSI14[n-1].Value)
	}
	if n := len(report.MACD); n > 0 {
		signals["macd"] = indicator.InterpretMACD(report.MACD[n-1])
	}
	if n := len(report.Bollinger); n > 0 && len(points) > 0 {
		signals["bollinger"] = indicator.InterpretBollinger(points[len(points)-1].Close, report.Bollinger[n-1])
	}
	if len(signals) > 0 {
		report.Signals = signals
	}
	return report, nil
}

// InvalidateSymbol drops every cached entry for a symbol across all data
// kinds and stops its pollers.
func (s *Service) InvalidateSymbol(symbol string) {
	quoteCfg, _ := cache.QuoteConfig(symbol)
	s.mgr.Invalidate(quoteCfg.Key)
	s.mgr.Invalidate(cache.CorporateConfig(symbol).Key)
	for _, rng := range []domain.ChartRange{
		domain.Range1D, domain.Range1W, domain.Range1M, domain.Range3M,
		domain.Range6M, domain.Range1Y, domain.Range5Y, domain.RangeMax,
	} {
		s.mgr.Invalidate(cache.ChartConfig(symbol, rng).Key)
	}
}

// CacheStats exposes the cache manager's statistics snapshot.
func (s *Service) CacheStats() cache.Stats {
	return s.mgr.Stats()
}
