// Package store provides durable persistence behind the in-memory cache:
// point-in-time snapshots (quotes, symbol lists, corporate actions) and
// OHLCV chart series. Snapshots keep the dashboard serving data when the
// upstream is unreachable; series files accumulate history across runs.
package store

import (
	"context"
	"errors"
	"time"

	"nsewatch/internal/domain"
)

// ErrNotFound is returned when a snapshot or series does not exist.
var ErrNotFound = errors.New("store: not found")

// SnapshotStore persists the latest known payload per cache key. SavedAt
// lets callers judge staleness when serving a fallback.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, key string, payload []byte) error
	LoadSnapshot(ctx context.Context, key string) (payload []byte, savedAt time.Time, err error)
	DeleteSnapshot(ctx context.Context, key string) error
	Close() error
}

// SeriesStore persists OHLCV chart series per symbol and range. Writes
// merge with existing points; reads return points ordered by ascending
// timestamp.
type SeriesStore interface {
	WriteSeries(ctx context.Context, symbol string, rng domain.ChartRange, points []domain.PricePoint) error
	ReadSeries(ctx context.Context, symbol string, rng domain.ChartRange) ([]domain.PricePoint, error)
	ListSymbols(ctx context.Context) ([]string, error)
}
