package marketdata

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"nsewatch/internal/cache"
	"nsewatch/internal/domain"
	"nsewatch/internal/market"
	"nsewatch/internal/store"
	"nsewatch/internal/upstream"
)

// fakeProvider lets each test script the upstream's behavior.
type fakeProvider struct {
	quoteCalls atomic.Int32
	chartCalls atomic.Int32
	fail       atomic.Bool

	quote  domain.Quote
	points []domain.PricePoint
}

var _ upstream.Provider = (*fakeProvider)(nil)

var errUpstreamDown = errors.New("upstream down")

func (p *fakeProvider) Quote(ctx context.Context, symbol string) (domain.Quote, error) {
	p.quoteCalls.Add(1)
	if p.fail.Load() {
		return domain.Quote{}, errUpstreamDown
	}
	return p.quote, nil
}

func (p *fakeProvider) IndexQuote(ctx context.Context, name string) (domain.IndexQuote, error) {
	if p.fail.Load() {
		return domain.IndexQuote{}, errUpstreamDown
	}
	return domain.IndexQuote{Name: name, Value: 24315.8}, nil
}

func (p *fakeProvider) Chart(ctx context.Context, symbol string, rng domain.ChartRange) ([]domain.PricePoint, error) {
	p.chartCalls.Add(1)
	if p.fail.Load() {
		return nil, errUpstreamDown
	}
	return p.points, nil
}

func (p *fakeProvider) Symbols(ctx context.Context) ([]domain.SymbolInfo, error) {
	if p.fail.Load() {
		return nil, errUpstreamDown
	}
	return []domain.SymbolInfo{{Symbol: "SBIN", Name: "State Bank of India"}}, nil
}

func (p *fakeProvider) CorporateActions(ctx context.Context, symbol string) ([]domain.CorporateAction, error) {
	if p.fail.Load() {
		return nil, errUpstreamDown
	}
	return []domain.CorporateAction{{Symbol: symbol, Purpose: "Dividend"}}, nil
}

func chartFixture(n int) []domain.PricePoint {
	base := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	out := make([]domain.PricePoint, n)
	for i := range out {
		c := 600 + float64(i)
		out[i] = domain.PricePoint{
			Timestamp: base.AddDate(0, 0, i),
			Open:      c - 1, High: c + 2, Low: c - 2, Close: c, Volume: 1000,
		}
	}
	return out
}

func newTestService(t *testing.T) (*Service, *fakeProvider) {
	t.Helper()

	cal, err := market.NewNSECalendar(nil)
	if err != nil {
		t.Fatalf("NewNSECalendar: %v", err)
	}
	mgr := cache.NewManager(cache.NewTiers(cache.TiersConfig{}), cal, slog.Default())
	t.Cleanup(mgr.Close)

	snapshots, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "snap.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { snapshots.Close() })

	series := store.NewParquetStore(t.TempDir())

	provider := &fakeProvider{
		quote:  domain.Quote{Symbol: "SBIN", Price: 612.5},
		points: chartFixture(60),
	}
	return NewService(mgr, provider, snapshots, series, slog.Default()), provider
}

func TestGetQuoteCaches(t *testing.T) {
	s, provider := newTestService(t)
	ctx := context.Background()

	q, err := s.GetQuote(ctx, "SBIN")
	if err != nil {
		t.Fatalf("GetQuote: %v", err)
	}
	if q.Price != 612.5 {
		t.Errorf("price = %f", q.Price)
	}

	if _, err := s.GetQuote(ctx, "SBIN"); err != nil {
		t.Fatalf("second GetQuote: %v", err)
	}
	if got := provider.quoteCalls.Load(); got != 1 {
		t.Errorf("provider calls = %d, want 1 (second hit served from cache)", got)
	}
}

func TestGetQuoteStaleFallback(t *testing.T) {
	s, provider := newTestService(t)
	ctx := context.Background()

	// Warm the snapshot store, then take the upstream down and drop the
	// in-memory entry.
	if _, err := s.GetQuote(ctx, "SBIN"); err != nil {
		t.Fatalf("warm-up GetQuote: %v", err)
	}
	provider.fail.Store(true)
	s.InvalidateSymbol("SBIN")

	q, err := s.GetQuote(ctx, "SBIN")
	if err != nil {
		t.Fatalf("GetQuote with upstream down: %v", err)
	}
	if q.Price != 612.5 {
		t.Errorf("stale price = %f, want snapshot value 612.5", q.Price)
	}
}

func TestGetQuoteColdFailure(t *testing.T) {
	s, provider := newTestService(t)
	provider.fail.Store(true)

	// No snapshot yet: the upstream error surfaces.
	if _, err := s.GetQuote(context.Background(), "SBIN"); !errors.Is(err, errUpstreamDown) {
		t.Errorf("err = %v, want upstream error", err)
	}
}

func TestGetChartStoredFallback(t *testing.T) {
	s, provider := newTestService(t)
	ctx := context.Background()

	first, err := s.GetChart(ctx, "SBIN", domain.Range1M)
	if err != nil {
		t.Fatalf("warm-up GetChart: %v", err)
	}
	provider.fail.Store(true)
	s.InvalidateSymbol("SBIN")

	stored, err := s.GetChart(ctx, "SBIN", domain.Range1M)
	if err != nil {
		t.Fatalf("GetChart with upstream down: %v", err)
	}
	if len(stored) != len(first) {
		t.Errorf("stored series has %d points, want %d", len(stored), len(first))
	}
}

func TestGetIndexQuote(t *testing.T) {
	s, _ := newTestService(t)

	q, err := s.GetIndexQuote(context.Background(), "NIFTY 50")
	if err != nil {
		t.Fatalf("GetIndexQuote: %v", err)
	}
	if q.Value != 24315.8 {
		t.Errorf("value = %f", q.Value)
	}
}

func TestGetSymbolsAndCorporateActions(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	syms, err := s.GetSymbols(ctx)
	if err != nil || len(syms) != 1 {
		t.Fatalf("GetSymbols = %v, %v", syms, err)
	}

	actions, err := s.GetCorporateActions(ctx, "SBIN")
	if err != nil || len(actions) != 1 {
		t.Fatalf("GetCorporateActions = %v, %v", actions, err)
	}
}

func TestGetIndicators(t *testing.T) {
	s, provider := newTestService(t)

	report, err := s.GetIndicators(context.Background(), "SBIN", domain.Range3M)
	if err != nil {
		t.Fatalf("GetIndicators: %v", err)
	}
	if report.DataPoints != 60 {
		t.Errorf("DataPoints = %d, want 60", report.DataPoints)
	}
	if len(report.SMA20) == 0 || len(report.RSI14) == 0 || len(report.MACD) == 0 {
		t.Error("expected indicator series over a 60-point chart")
	}
	// Steadily rising fixture closes: RSI pegged high, trend bullish.
	if got := report.Signals["rsi"]; got != "Overbought" {
		t.Errorf("rsi signal = %q, want Overbought", got)
	}
	if got := report.Signals["macd"]; got != "Bullish" {
		t.Errorf("macd signal = %q, want Bullish", got)
	}

	// The chart behind the report is cached.
	if _, err := s.GetIndicators(context.Background(), "SBIN", domain.Range3M); err != nil {
		t.Fatalf("second GetIndicators: %v", err)
	}
	if got := provider.chartCalls.Load(); got != 1 {
		t.Errorf("chart fetches = %d, want 1", got)
	}
}

func TestCacheStats(t *testing.T) {
	s, _ := newTestService(t)

	if _, err := s.GetQuote(context.Background(), "SBIN"); err != nil {
		t.Fatalf("GetQuote: %v", err)
	}
	st := s.CacheStats()
	if len(st.Tiers) != 3 {
		t.Errorf("tiers in stats = %d, want 3", len(st.Tiers))
	}
	if len(st.PollingActiveKeys) != 1 {
		t.Errorf("active pollers = %d, want 1", len(st.PollingActiveKeys))
	}
}
