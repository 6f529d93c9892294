package upstream

import (
	"context"
	"errors"
	"log/slog"

	"nsewatch/internal/domain"
)

var _ Provider = (*FallbackProvider)(nil)

// FallbackProvider tries the primary provider first and falls back to the
// secondary when the primary fails. Secondary errors are logged but the
// primary's error is the one reported, since it names the real source.
type FallbackProvider struct {
	primary   Provider
	secondary Provider
	log       *slog.Logger
}

// NewFallbackProvider chains two providers.
func NewFallbackProvider(primary, secondary Provider, log *slog.Logger) *FallbackProvider {
	return &FallbackProvider{
		primary:   primary,
		secondary: secondary,
		log:       log.With("component", "fallback"),
	}
}

func (p *FallbackProvider) Quote(ctx context.Context, symbol string) (domain.Quote, error) {
	q, err := p.primary.Quote(ctx, symbol)
	if err == nil {
		return q, nil
	}
	q2, err2 := p.secondary.Quote(ctx, symbol)
	if err2 != nil {
		if !errors.Is(err2, ErrUnsupported) {
			p.log.Warn("secondary quote failed", "symbol", symbol, "err", err2)
		}
		return domain.Quote{}, err
	}
	p.log.Info("served quote from secondary", "symbol", symbol)
	return q2, nil
}

func (p *FallbackProvider) Chart(ctx context.Context, symbol string, rng domain.ChartRange) ([]domain.PricePoint, error) {
	points, err := p.primary.Chart(ctx, symbol, rng)
	if err == nil {
		return points, nil
	}
	points2, err2 := p.secondary.Chart(ctx, symbol, rng)
	if err2 != nil {
		if !errors.Is(err2, ErrUnsupported) {
			p.log.Warn("secondary chart failed", "symbol", symbol, "err", err2)
		}
		return nil, err
	}
	p.log.Info("served chart from secondary", "symbol", symbol, "range", rng)
	return points2, nil
}

// The remaining operations are exchange-specific; no secondary can serve
// them, so they pass straight through.

func (p *FallbackProvider) IndexQuote(ctx context.Context, name string) (domain.IndexQuote, error) {
	return p.primary.IndexQuote(ctx, name)
}

func (p *FallbackProvider) Symbols(ctx context.Context) ([]domain.SymbolInfo, error) {
	return p.primary.Symbols(ctx)
}

func (p *FallbackProvider) CorporateActions(ctx context.Context, symbol string) ([]domain.CorporateAction, error) {
	return p.primary.CorporateActions(ctx, symbol)
}
