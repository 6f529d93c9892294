package httpapi

import (
	"nsewatch/internal/domain"
)

// ChartResponse is the JSON payload for GET /api/chart/{symbol}/{range}.
type ChartResponse struct {
	Symbol string              `json:"symbol"`
	Range  domain.ChartRange   `json:"range"`
	Points []domain.PricePoint `json:"points"`
}

// SymbolsResponse is the JSON payload for GET /api/symbols.
type SymbolsResponse struct {
	Symbols []domain.SymbolInfo `json:"symbols"`
}

// CorporateResponse is the JSON payload for GET /api/corporate/{symbol}.
type CorporateResponse struct {
	Symbol  string                   `json:"symbol"`
	Actions []domain.CorporateAction `json:"actions"`
}
