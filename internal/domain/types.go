// Package domain defines the core types shared across the nsewatch
// platform: price series points, quotes, index levels, and corporate
// actions.
package domain

import "time"

// ChartRange identifies a chart lookback window as accepted by the
// upstream chart endpoint.
type ChartRange string

const (
	Range1D  ChartRange = "1d"
	Range1W  ChartRange = "1w"
	Range1M  ChartRange = "1mo"
	Range3M  ChartRange = "3mo"
	Range6M  ChartRange = "6mo"
	Range1Y  ChartRange = "1y"
	Range5Y  ChartRange = "5y"
	RangeMax ChartRange = "max"
)

// PricePoint is one bar of an OHLCV price series. Series are always
// ordered by ascending Timestamp; consumers (the indicator engine in
// particular) rely on that ordering and do not sort.
type PricePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Quote is the latest traded state of a single stock.
type Quote struct {
	Symbol        string    `json:"symbol"`
	CompanyName   string    `json:"companyName,omitempty"`
	Price         float64   `json:"price"`
	Change        float64   `json:"change"`
	PercentChange float64   `json:"percentChange"`
	Open          float64   `json:"open"`
	High          float64   `json:"high"`
	Low           float64   `json:"low"`
	PreviousClose float64   `json:"previousClose"`
	Volume        float64   `json:"volume"`
	Timestamp     time.Time `json:"timestamp"`
}

// IndexQuote is the latest level of a market index (e.g. NIFTY 50).
type IndexQuote struct {
	Name          string    `json:"name"`
	Value         float64   `json:"value"`
	Change        float64   `json:"change"`
	PercentChange float64   `json:"percentChange"`
	Timestamp     time.Time `json:"timestamp"`
}

// SymbolInfo is one entry of the tradable-symbol reference list.
type SymbolInfo struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Industry string `json:"industry,omitempty"`
}

// CorporateAction is a dividend, split, bonus or similar announcement
// for a symbol.
type CorporateAction struct {
	Symbol     string    `json:"symbol"`
	Purpose    string    `json:"purpose"`
	ExDate     time.Time `json:"exDate"`
	RecordDate time.Time `json:"recordDate,omitempty"`
}
