package datafeed

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"fxTradeBot/internal/domain"
	"fxTradeBot/internal/ports"
)

// Feed serves historical bars with a CSV cache in front of the venue. Each
// symbol/timeframe pair gets its own file; the cache is only trusted when it
// already holds at least as many bars as the caller asked for, otherwise the
// venue is queried and the cache refreshed.
type Feed struct {
	broker   ports.Broker
	cacheDir string
	logger   ports.Logger
}

// Config holds construction parameters for the data feed.
type Config struct {
	Broker   ports.Broker
	CacheDir string
	Logger   ports.Logger
}

// New creates a data feed. The cache directory is created if needed.
func New(cfg Config) (*Feed, error) {
	if cfg.Broker == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("missing required dependencies for data feed")
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = "./data/market_data"
	}
	if err := os.MkdirAll(cfg.CacheDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory '%s': %w", cfg.CacheDir, err)
	}
	return &Feed{broker: cfg.Broker, cacheDir: cfg.CacheDir, logger: cfg.Logger}, nil
}

func (f *Feed) cachePath(symbol string, timeframe domain.Timeframe) string {
	return filepath.Join(f.cacheDir, fmt.Sprintf("%s_%s.csv", symbol, timeframe))
}

// GetBars returns the newest count bars for the symbol and timeframe, oldest
// first. Cached data short-circuits the venue only when it fully covers the
// request; a partial cache is treated as a miss.
func (f *Feed) GetBars(ctx context.Context, symbol string, timeframe domain.Timeframe, count int) ([]domain.Bar, error) {
	if count <= 0 {
		return nil, fmt.Errorf("bar count must be positive, got %d", count)
	}

	path := f.cachePath(symbol, timeframe)
	cached, err := readBars(path, symbol, timeframe)
	if err != nil {
		f.logger.Warn(ctx, "Bar cache unreadable, refetching", map[string]interface{}{"path": path, "error": err.Error()})
		cached = nil
	}
	if len(cached) >= count {
		f.logger.Debug(ctx, "Bar cache hit", map[string]interface{}{"symbol": symbol, "timeframe": string(timeframe), "cached": len(cached), "requested": count})
		return cached[len(cached)-count:], nil
	}

	fetched, err := f.broker.GetHistoricalBars(ctx, symbol, timeframe, count)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch bars for %s %s: %w", symbol, timeframe, err)
	}

	merged := domain.NormalizeBars(append(cached, fetched...))
	if err := writeBars(path, merged); err != nil {
		// A cache write failure only costs the next call a refetch.
		f.logger.Warn(ctx, "Failed to write bar cache", map[string]interface{}{"path": path, "error": err.Error()})
	}

	if len(merged) > count {
		merged = merged[len(merged)-count:]
	}
	return merged, nil
}

// readBars loads a cache file. A missing file is an empty cache, not an error.
func readBars(path, symbol string, timeframe domain.Timeframe) ([]domain.Bar, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) <= 1 {
		return nil, nil // header only or empty
	}

	bars := make([]domain.Bar, 0, len(records)-1)
	for _, rec := range records[1:] {
		if len(rec) != 6 {
			return nil, fmt.Errorf("malformed cache row: expected 6 fields, got %d", len(rec))
		}
		openTime, err := time.Parse(time.RFC3339, rec[0])
		if err != nil {
			return nil, fmt.Errorf("parsing open time '%s': %w", rec[0], err)
		}
		vals := make([]float64, 5)
		for i, s := range rec[1:] {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("parsing cache field '%s': %w", s, err)
			}
			vals[i] = v
		}
		bars = append(bars, domain.Bar{
			OpenTime:  openTime,
			Symbol:    symbol,
			Timeframe: timeframe,
			Open:      vals[0],
			High:      vals[1],
			Low:       vals[2],
			Close:     vals[3],
			Volume:    vals[4],
		})
	}
	return domain.NormalizeBars(bars), nil
}

func writeBars(path string, bars []domain.Bar) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	writer.Write([]string{"open_time", "open", "high", "low", "close", "volume"})

	for _, b := range bars {
		writer.Write([]string{
			b.OpenTime.Format(time.RFC3339),
			strconv.FormatFloat(b.Open, 'f', -1, 64),
			strconv.FormatFloat(b.High, 'f', -1, 64),
			strconv.FormatFloat(b.Low, 'f', -1, 64),
			strconv.FormatFloat(b.Close, 'f', -1, 64),
			strconv.FormatFloat(b.Volume, 'f', -1, 64),
		})
	}
	return writer.Error()
}
