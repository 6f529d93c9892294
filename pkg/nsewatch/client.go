// Package nsewatch provides a Go SDK for the nsewatch-server API, with an
// optional client-side cache so repeated reads skip the network.
package nsewatch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"nsewatch/internal/domain"
	"nsewatch/internal/marketdata"
	"nsewatch/pkg/localcache"
)

// Re-exported types so SDK consumers don't import internal packages.
type (
	Quote           = domain.Quote
	IndexQuote      = domain.IndexQuote
	PricePoint      = domain.PricePoint
	SymbolInfo      = domain.SymbolInfo
	CorporateAction = domain.CorporateAction
	ChartRange      = domain.ChartRange
	IndicatorReport = marketdata.IndicatorReport
)

const (
	Range1D  = domain.Range1D
	Range1W  = domain.Range1W
	Range1M  = domain.Range1M
	Range3M  = domain.Range3M
	Range6M  = domain.Range6M
	Range1Y  = domain.Range1Y
	Range5Y  = domain.Range5Y
	RangeMax = domain.RangeMax
)

// Client talks to the nsewatch-server API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cache      *localcache.Cache
	quoteTTL   time.Duration
	chartTTL   time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithCache attaches a client-side cache. Quotes are cached briefly,
// charts and reference data longer.
func WithCache(cache *localcache.Cache) Option {
	return func(c *Client) { c.cache = cache }
}

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates an nsewatch API client for the given server base URL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		quoteTTL:   30 * time.Second,
		chartTTL:   5 * time.Minute,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Close releases the attached cache, if any.
func (c *Client) Close() error {
	if c.cache == nil {
		return nil
	}
	return c.cache.Close()
}

// getJSON performs a GET and decodes the response into out, consulting
// the client-side cache first when one is attached.
func (c *Client) getJSON(ctx context.Context, path string, ttl time.Duration, out any) error {
	if c.cache != nil {
		if ok, err := c.cache.Get(path, out); err == nil && ok {
			return nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("GET %s: %s (status %d)", path, apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("GET %s: status %d", path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}

	if c.cache != nil {
		// Cache failures never fail the call.
		_ = c.cache.Set(path, out, ttl)
	}
	return nil
}

// GetQuote retrieves the latest quote for a stock.
func (c *Client) GetQuote(ctx context.Context, symbol string) (Quote, error) {
	var q Quote
	path := "/api/quote/" + url.PathEscape(strings.ToUpper(symbol))
	err := c.getJSON(ctx, path, c.quoteTTL, &q)
	return q, err
}

// GetIndexQuote retrieves the latest level of a market index.
func (c *Client) GetIndexQuote(ctx context.Context, name string) (IndexQuote, error) {
	var q IndexQuote
	path := "/api/index/" + url.PathEscape(name)
	err := c.getJSON(ctx, path, c.quoteTTL, &q)
	return q, err
}

// GetChart retrieves the OHLCV series for a symbol and range.
func (c *Client) GetChart(ctx context.Context, symbol string, rng ChartRange) ([]PricePoint, error) {
	var body struct {
		Points []PricePoint `json:"points"`
	}
	path := fmt.Sprintf("/api/chart/%s/%s", url.PathEscape(strings.ToUpper(symbol)), rng)
	if err := c.getJSON(ctx, path, c.chartTTL, &body); err != nil {
		return nil, err
	}
	return body.Points, nil
}

// GetSymbols retrieves the tradable-symbol list.
func (c *Client) GetSymbols(ctx context.Context) ([]SymbolInfo, error) {
	var body struct {
		Symbols []SymbolInfo `json:"symbols"`
	}
	if err := c.getJSON(ctx, "/api/symbols", c.chartTTL, &body); err != nil {
		return nil, err
	}
	return body.Symbols, nil
}

// GetCorporateActions retrieves recent corporate actions for a symbol.
func (c *Client) GetCorporateActions(ctx context.Context, symbol string) ([]CorporateAction, error) {
	var body struct {
		Actions []CorporateAction `json:"actions"`
	}
	path := "/api/corporate/" + url.PathEscape(strings.ToUpper(symbol))
	if err := c.getJSON(ctx, path, c.chartTTL, &body); err != nil {
		return nil, err
	}
	return body.Actions, nil
}

// GetIndicators retrieves the computed indicator report for a symbol.
func (c *Client) GetIndicators(ctx context.Context, symbol string, rng ChartRange) (IndicatorReport, error) {
	var report IndicatorReport
	path := fmt.Sprintf("/api/indicators/%s?range=%s", url.PathEscape(strings.ToUpper(symbol)), rng)
	err := c.getJSON(ctx, path, c.chartTTL, &report)
	return report, err
}

// InvalidateSymbol asks the server to drop its cached data for a symbol,
// and drops the client-side copies too.
func (c *Client) InvalidateSymbol(ctx context.Context, symbol string) error {
	symbol = strings.ToUpper(symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/cache/invalidate/"+url.PathEscape(symbol), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("invalidating %s: %w", symbol, err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("invalidating %s: status %d", symbol, resp.StatusCode)
	}

	if c.cache != nil {
		c.cache.Delete("/api/quote/" + symbol)
		c.cache.Delete("/api/corporate/" + symbol)
		for _, rng := range []ChartRange{Range1D, Range1W, Range1M, Range3M, Range6M, Range1Y, Range5Y, RangeMax} {
			c.cache.Delete(fmt.Sprintf("/api/chart/%s/%s", symbol, rng))
		}
	}
	return nil
}
