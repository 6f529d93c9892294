package upstream

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"nsewatch/internal/domain"
)

// scriptedProvider returns canned results per operation.
type scriptedProvider struct {
	quote    domain.Quote
	quoteErr error
	chartErr error
}

var _ Provider = (*scriptedProvider)(nil)

func (p *scriptedProvider) Quote(ctx context.Context, symbol string) (domain.Quote, error) {
	return p.quote, p.quoteErr
}

func (p *scriptedProvider) Chart(ctx context.Context, symbol string, rng domain.ChartRange) ([]domain.PricePoint, error) {
	if p.chartErr != nil {
		return nil, p.chartErr
	}
	return []domain.PricePoint{{Close: 100}}, nil
}

func (p *scriptedProvider) IndexQuote(ctx context.Context, name string) (domain.IndexQuote, error) {
	return domain.IndexQuote{Name: name}, nil
}

func (p *scriptedProvider) Symbols(ctx context.Context) ([]domain.SymbolInfo, error) {
	return nil, nil
}

func (p *scriptedProvider) CorporateActions(ctx context.Context, symbol string) ([]domain.CorporateAction, error) {
	return nil, nil
}

func TestFallbackPrefersPrimary(t *testing.T) {
	primary := &scriptedProvider{quote: domain.Quote{Symbol: "INFY", Price: 1500}}
	secondary := &scriptedProvider{quote: domain.Quote{Symbol: "INFY", Price: 18}}
	p := NewFallbackProvider(primary, secondary, slog.Default())

	q, err := p.Quote(context.Background(), "INFY")
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if q.Price != 1500 {
		t.Errorf("price = %f, want primary's 1500", q.Price)
	}
}

func TestFallbackUsesSecondaryOnPrimaryFailure(t *testing.T) {
	primary := &scriptedProvider{quoteErr: errors.New("exchange down")}
	secondary := &scriptedProvider{quote: domain.Quote{Symbol: "INFY", Price: 18}}
	p := NewFallbackProvider(primary, secondary, slog.Default())

	q, err := p.Quote(context.Background(), "INFY")
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if q.Price != 18 {
		t.Errorf("price = %f, want secondary's 18", q.Price)
	}
}

func TestFallbackReportsPrimaryError(t *testing.T) {
	primaryErr := errors.New("exchange down")
	primary := &scriptedProvider{quoteErr: primaryErr, chartErr: primaryErr}
	secondary := &scriptedProvider{quoteErr: ErrUnsupported, chartErr: ErrUnsupported}
	p := NewFallbackProvider(primary, secondary, slog.Default())

	if _, err := p.Quote(context.Background(), "SBIN"); !errors.Is(err, primaryErr) {
		t.Errorf("quote err = %v, want the primary's error", err)
	}
	if _, err := p.Chart(context.Background(), "SBIN", domain.Range1M); !errors.Is(err, primaryErr) {
		t.Errorf("chart err = %v, want the primary's error", err)
	}
}
