package upstream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"nsewatch/internal/domain"
)

// ---------------------------------------------------------------------------
// Compile-time interface check
// ---------------------------------------------------------------------------

var _ Provider = (*ADRProvider)(nil)

// ErrUnsupported marks operations a provider does not serve. The service
// layer falls back to the primary provider on it.
var ErrUnsupported = errors.New("operation not supported by this provider")

// ADRProvider serves quotes and charts for the US-listed depositary
// receipts of Indian companies (INFY, WIT, HDB, ...) via the Alpaca
// market-data API. It covers only the symbols in its mapping; everything
// else, and the exchange-specific operations (indices, the symbol master,
// corporate filings), returns ErrUnsupported.
type ADRProvider struct {
	client  *marketdata.Client
	mapping map[string]string // NSE symbol -> US ticker
	log     *slog.Logger
}

// DefaultADRMapping covers the liquid US listings of NSE names.
func DefaultADRMapping() map[string]string {
	return map[string]string{
		"INFY":       "INFY",
		"WIPRO":      "WIT",
		"HDFCBANK":   "HDB",
		"ICICIBANK":  "IBN",
		"TATAMOTORS": "TTM",
		"DRREDDY":    "RDY",
	}
}

// NewADRProvider creates a provider with the given Alpaca credentials. A
// nil mapping uses DefaultADRMapping.
func NewADRProvider(apiKey, apiSecret, dataURL string, mapping map[string]string, log *slog.Logger) *ADRProvider {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	if mapping == nil {
		mapping = DefaultADRMapping()
	}

	return &ADRProvider{
		client:  marketdata.NewClient(opts),
		mapping: mapping,
		log:     log.With("component", "adr"),
	}
}

// resolve maps an NSE symbol to its US ticker.
func (p *ADRProvider) resolve(symbol string) (string, bool) {
	us, ok := p.mapping[strings.ToUpper(strings.TrimSpace(symbol))]
	return us, ok
}

// Quote returns the latest US trade for the symbol's depositary receipt.
// Prices are in USD; the caller is responsible for labeling them as such.
func (p *ADRProvider) Quote(ctx context.Context, symbol string) (domain.Quote, error) {
	us, ok := p.resolve(symbol)
	if !ok {
		return domain.Quote{}, fmt.Errorf("quote %s: %w", symbol, ErrUnsupported)
	}

	snap, err := p.client.GetSnapshot(us, marketdata.GetSnapshotRequest{})
	if err != nil {
		return domain.Quote{}, fmt.Errorf("snapshot %s: %w", us, err)
	}
	if snap == nil || snap.LatestTrade == nil {
		return domain.Quote{}, fmt.Errorf("snapshot %s: no trade data", us)
	}

	q := domain.Quote{
		Symbol:    strings.ToUpper(symbol),
		Price:     snap.LatestTrade.Price,
		Timestamp: snap.LatestTrade.Timestamp,
	}
	if snap.DailyBar != nil {
		q.Open = snap.DailyBar.Open
		q.High = snap.DailyBar.High
		q.Low = snap.DailyBar.Low
		q.Volume = float64(snap.DailyBar.Volume)
	}
	if snap.PrevDailyBar != nil {
		q.PreviousClose = snap.PrevDailyBar.Close
		q.Change = q.Price - q.PreviousClose
		if q.PreviousClose != 0 {
			q.PercentChange = q.Change / q.PreviousClose * 100
		}
	}
	return q, nil
}

// Chart returns daily bars for the symbol's depositary receipt over the
// given range.
func (p *ADRProvider) Chart(ctx context.Context, symbol string, rng domain.ChartRange) ([]domain.PricePoint, error) {
	us, ok := p.resolve(symbol)
	if !ok {
		return nil, fmt.Errorf("chart %s: %w", symbol, ErrUnsupported)
	}

	end := time.Now()
	bars, err := p.client.GetBars(us, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     end.Add(-rangeLookback(rng)),
		End:       end,
	})
	if err != nil {
		return nil, fmt.Errorf("GetBars %s: %w", us, err)
	}

	points := make([]domain.PricePoint, 0, len(bars))
	for _, b := range bars {
		points = append(points, domain.PricePoint{
			Timestamp: b.Timestamp,
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    float64(b.Volume),
		})
	}
	return points, nil
}

// IndexQuote is exchange-specific data the US feed cannot serve.
func (p *ADRProvider) IndexQuote(ctx context.Context, name string) (domain.IndexQuote, error) {
	return domain.IndexQuote{}, fmt.Errorf("index %s: %w", name, ErrUnsupported)
}

// Symbols is exchange-specific data the US feed cannot serve.
func (p *ADRProvider) Symbols(ctx context.Context) ([]domain.SymbolInfo, error) {
	return nil, fmt.Errorf("symbol list: %w", ErrUnsupported)
}

// CorporateActions is exchange-specific data the US feed cannot serve.
func (p *ADRProvider) CorporateActions(ctx context.Context, symbol string) ([]domain.CorporateAction, error) {
	return nil, fmt.Errorf("corporate actions %s: %w", symbol, ErrUnsupported)
}

// rangeLookback converts a chart range into a lookback duration for the
// bars request.
func rangeLookback(rng domain.ChartRange) time.Duration {
	const day = 24 * time.Hour
	switch rng {
	case domain.Range1D:
		return day
	case domain.Range1W:
		return 7 * day
	case domain.Range1M:
		return 31 * day
	case domain.Range3M:
		return 92 * day
	case domain.Range6M:
		return 183 * day
	case domain.Range1Y:
		return 366 * day
	case domain.Range5Y:
		return 5 * 366 * day
	default: // RangeMax and anything unrecognized
		return 25 * 366 * day
	}
}
