// Package upstream contains clients for the external market-data sources.
package upstream

import (
	"context"

	"nsewatch/internal/domain"
)

// Provider is the data source the caching layer polls. Implementations
// must be safe for concurrent use.
type Provider interface {
	Quote(ctx context.Context, symbol string) (domain.Quote, error)
	IndexQuote(ctx context.Context, name string) (domain.IndexQuote, error)
	Chart(ctx context.Context, symbol string, rng domain.ChartRange) ([]domain.PricePoint, error)
	Symbols(ctx context.Context) ([]domain.SymbolInfo, error)
	CorporateActions(ctx context.Context, symbol string) ([]domain.CorporateAction, error)
}
