package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"nsewatch/internal/domain"
	"nsewatch/internal/util"
)

// ---------------------------------------------------------------------------
// Compile-time interface check
// ---------------------------------------------------------------------------

var _ Provider = (*NSEClient)(nil)

const (
	// The exchange rejects requests without a browser-like user agent.
	defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

	// Session cookies from the warm-up request stay valid for a while;
	// re-prime after this long.
	sessionLifetime = 5 * time.Minute
)

// NSEClient fetches quotes, charts, and reference data from the exchange's
// public JSON endpoints. The exchange requires a primed cookie session, so
// the client keeps a jar and re-warms it when it goes stale.
type NSEClient struct {
	baseURL string
	http    *http.Client
	limiter *util.RateLimiter
	log     *slog.Logger

	mu       sync.Mutex
	primedAt time.Time
}

// NewNSEClient creates a client for the given base URL (e.g.
// "https://www.nseindia.com") with the given request timeout and
// per-minute rate limit.
func NewNSEClient(baseURL string, timeout time.Duration, ratePerMin int, log *slog.Logger) *NSEClient {
	jar, _ := cookiejar.New(nil)
	return &NSEClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: timeout,
			Jar:     jar,
		},
		limiter: util.NewRateLimiter(ratePerMin),
		log:     log.With("component", "nse"),
	}
}

// prime performs the warm-up request that establishes session cookies.
func (c *NSEClient) prime(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if time.Since(c.primedAt) < sessionLifetime {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", defaultUserAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("priming session: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("priming session: status %d", resp.StatusCode)
	}

	c.primedAt = time.Now()
	c.log.Debug("session primed")
	return nil
}

// getJSON performs a rate-limited GET against an API path and decodes the
// response body into out.
func (c *NSEClient) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := c.prime(ctx); err != nil {
		return err
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", defaultUserAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Referer", c.baseURL+"/")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		// Session cookies expired server-side; force a re-prime on the
		// next call.
		c.mu.Lock()
		c.primedAt = time.Time{}
		c.mu.Unlock()
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Wire types — the exchange's JSON shapes, kept separate from domain types.
// ---------------------------------------------------------------------------

type quoteResponse struct {
	Info struct {
		Symbol      string `json:"symbol"`
		CompanyName string `json:"companyName"`
		Industry    string `json:"industry"`
	} `json:"info"`
	PriceInfo struct {
		LastPrice       float64 `json:"lastPrice"`
		Change          float64 `json:"change"`
		PChange         float64 `json:"pChange"`
		Open            float64 `json:"open"`
		Close           float64 `json:"close"`
		PreviousClose   float64 `json:"previousClose"`
		IntraDayHighLow struct {
			Min float64 `json:"min"`
			Max float64 `json:"max"`
		} `json:"intraDayHighLow"`
	} `json:"priceInfo"`
	SecurityWiseDP struct {
		QuantityTraded float64 `json:"quantityTraded"`
	} `json:"securityWiseDP"`
}

type allIndicesResponse struct {
	Data []struct {
		Index         string  `json:"index"`
		Last          float64 `json:"last"`
		Variation     float64 `json:"variation"`
		PercentChange float64 `json:"percentChange"`
	} `json:"data"`
}

type chartResponse struct {
	// Each point is [epochMillis, open, high, low, close, volume].
	CandleData [][]float64 `json:"candles"`
}

type symbolListResponse struct {
	Data []struct {
		Symbol      string `json:"symbol"`
		CompanyName string `json:"companyName"`
		Industry    string `json:"industry"`
	} `json:"data"`
}

type corporateActionsResponse struct {
	Data []struct {
		Symbol     string `json:"symbol"`
		ExDate     string `json:"exDate"`
		RecordDate string `json:"recDate"`
		Purpose    string `json:"subject"`
	} `json:"data"`
}

// ---------------------------------------------------------------------------
// Provider implementation
// ---------------------------------------------------------------------------

// Quote fetches the latest traded quote for an equity symbol.
func (c *NSEClient) Quote(ctx context.Context, symbol string) (domain.Quote, error) {
	var wire quoteResponse
	q := url.Values{"symbol": {strings.ToUpper(symbol)}}
	if err := c.getJSON(ctx, "/api/quote-equity", q, &wire); err != nil {
		return domain.Quote{}, err
	}
	if wire.Info.Symbol == "" {
		return domain.Quote{}, fmt.Errorf("quote %s: empty response", symbol)
	}

	return domain.Quote{
		Symbol:        wire.Info.Symbol,
		CompanyName:   wire.Info.CompanyName,
		Price:         wire.PriceInfo.LastPrice,
		Change:        wire.PriceInfo.Change,
		PercentChange: wire.PriceInfo.PChange,
		Open:          wire.PriceInfo.Open,
		High:          wire.PriceInfo.IntraDayHighLow.Max,
		Low:           wire.PriceInfo.IntraDayHighLow.Min,
		PreviousClose: wire.PriceInfo.PreviousClose,
		Volume:        wire.SecurityWiseDP.QuantityTraded,
		Timestamp:     time.Now(),
	}, nil
}

// IndexQuote fetches the latest level of a market index by name.
func (c *NSEClient) IndexQuote(ctx context.Context, name string) (domain.IndexQuote, error) {
	var wire allIndicesResponse
	if err := c.getJSON(ctx, "/api/allIndices", nil, &wire); err != nil {
		return domain.IndexQuote{}, err
	}

	want := strings.ToUpper(strings.TrimSpace(name))
	for _, row := range wire.Data {
		if strings.ToUpper(row.Index) != want {
			continue
		}
		return domain.IndexQuote{
			Name:          row.Index,
			Value:         row.Last,
			Change:        row.Variation,
			PercentChange: row.PercentChange,
			Timestamp:     time.Now(),
		}, nil
	}
	return domain.IndexQuote{}, fmt.Errorf("index %q not found", name)
}

// Chart fetches an OHLCV series for a symbol over the given range. Points
// come back ordered by ascending timestamp.
func (c *NSEClient) Chart(ctx context.Context, symbol string, rng domain.ChartRange) ([]domain.PricePoint, error) {
	var wire chartResponse
	q := url.Values{
		"symbol": {strings.ToUpper(symbol)},
		"range":  {string(rng)},
	}
	if err := c.getJSON(ctx, "/api/chart-databyindex", q, &wire); err != nil {
		return nil, err
	}

	points := make([]domain.PricePoint, 0, len(wire.CandleData))
	for _, row := range wire.CandleData {
		if len(row) < 6 {
			continue
		}
		points = append(points, domain.PricePoint{
			Timestamp: time.UnixMilli(int64(row[0])).UTC(),
			Open:      row[1],
			High:      row[2],
			Low:       row[3],
			Close:     row[4],
			Volume:    row[5],
		})
	}
	return points, nil
}

// Symbols fetches the list of tradable equity symbols.
func (c *NSEClient) Symbols(ctx context.Context) ([]domain.SymbolInfo, error) {
	var wire symbolListResponse
	if err := c.getJSON(ctx, "/api/equity-master", nil, &wire); err != nil {
		return nil, err
	}

	out := make([]domain.SymbolInfo, 0, len(wire.Data))
	for _, row := range wire.Data {
		out = append(out, domain.SymbolInfo{
			Symbol:   row.Symbol,
			Name:     row.CompanyName,
			Industry: row.Industry,
		})
	}
	return out, nil
}

// CorporateActions fetches recent corporate actions (dividends, splits,
// bonuses) for a symbol.
func (c *NSEClient) CorporateActions(ctx context.Context, symbol string) ([]domain.CorporateAction, error) {
	var wire corporateActionsResponse
	q := url.Values{
		"index":  {"equities"},
		"symbol": {strings.ToUpper(symbol)},
	}
	if err := c.getJSON(ctx, "/api/corporates-corporateActions", q, &wire); err != nil {
		return nil, err
	}

	out := make([]domain.CorporateAction, 0, len(wire.Data))
	for _, row := range wire.Data {
		out = append(out, domain.CorporateAction{
			Symbol:     row.Symbol,
			Purpose:    row.Purpose,
			ExDate:     parseActionDate(row.ExDate),
			RecordDate: parseActionDate(row.RecordDate),
		})
	}
	return out, nil
}

// parseActionDate parses the feed's "02-Jan-2006" dates. The feed
// occasionally carries placeholder text instead of a date; those come back
// as the zero time rather than dropping the row.
func parseActionDate(s string) time.Time {
	t, err := time.Parse("02-Jan-2006", strings.TrimSpace(s))
	if err != nil {
		return time.Time{}
	}
	return t
}
