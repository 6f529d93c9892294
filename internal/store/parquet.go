package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"nsewatch/internal/domain"
)

// Compile-time interface check.
var _ SeriesStore = (*ParquetStore)(nil)

// ParquetStore implements SeriesStore using Parquet files on disk.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a ParquetStore rooted at the given data
// directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// PricePointRecord is the Parquet schema for chart series data.
type PricePointRecord struct {
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    float64 `parquet:"volume"`
}

// WriteSeries merges the given points into the series file for a symbol
// and range, deduplicating by timestamp with new points winning.
//
// Layout: <DataDir>/nse/chart/<SYMBOL>/<range>.parquet
func (s *ParquetStore) WriteSeries(_ context.Context, symbol string, rng domain.ChartRange, points []domain.PricePoint) error {
	if len(points) == 0 {
		return nil
	}

	records := make([]PricePointRecord, len(points))
	for i, p := range points {
		records[i] = PricePointRecord{
			Timestamp: p.Timestamp.UnixMilli(),
			Open:      p.Open,
			High:      p.High,
			Low:       p.Low,
			Close:     p.Close,
			Volume:    p.Volume,
		}
	}

	path := s.seriesPath(symbol, rng)
	existing, _ := readParquetFile[PricePointRecord](path)
	merged := mergePointRecords(existing, records)

	if err := writeParquetFile(path, merged); err != nil {
		return fmt.Errorf("writing series %s/%s: %w", symbol, rng, err)
	}
	return nil
}

// ReadSeries reads the stored series for a symbol and range, ordered by
// ascending timestamp. A missing file reads as ErrNotFound.
func (s *ParquetStore) ReadSeries(_ context.Context, symbol string, rng domain.ChartRange) ([]domain.PricePoint, error) {
	records, err := readParquetFile[PricePointRecord](s.seriesPath(symbol, rng))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading series %s/%s: %w", symbol, rng, err)
	}

	points := make([]domain.PricePoint, len(records))
	for i, r := range records {
		points[i] = domain.PricePoint{
			Timestamp: time.UnixMilli(r.Timestamp).UTC(),
			Open:      r.Open,
			High:      r.High,
			Low:       r.Low,
			Close:     r.Close,
			Volume:    r.Volume,
		}
	}
	return points, nil
}

// ListSymbols lists all symbols that have stored chart series.
func (s *ParquetStore) ListSymbols(_ context.Context) ([]string, error) {
	dir := filepath.Join(s.DataDir, "nse", "chart")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var symbols []string
	for _, e := range entries {
		if e.IsDir() {
			symbols = append(symbols, e.Name())
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

// seriesPath returns the filesystem path for a series Parquet file.
func (s *ParquetStore) seriesPath(symbol string, rng domain.ChartRange) string {
	return filepath.Join(s.DataDir, "nse", "chart", strings.ToUpper(symbol), string(rng)+".parquet")
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// mergePointRecords deduplicates records by timestamp, preferring new
// records over existing ones. Results are sorted by timestamp.
func mergePointRecords(existing, incoming []PricePointRecord) []PricePointRecord {
	seen := make(map[int64]PricePointRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.Timestamp] = r
	}
	for _, r := range incoming {
		seen[r.Timestamp] = r
	}

	merged := make([]PricePointRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}
