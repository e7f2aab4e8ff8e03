package main

import (
	"context"
	"flag"
	"log"
	"strings"

	"fxTradeBot/config"
	"fxTradeBot/internal/adapters/binancebroker"
	"fxTradeBot/internal/adapters/logger"
	"fxTradeBot/internal/datafeed"
	"fxTradeBot/internal/domain"
)

// fetchbars warms the historical bar cache from the live venue, so backfills
// don't compete with the trading loop for the session.
func main() {
	symbolFlag := flag.String("symbol", "", "instrument to fetch (defaults to configured SYMBOL)")
	timeframeFlag := flag.String("timeframe", "M1", "bar timeframe (M1, M5, M15, M30, H1, H4, D1, W1, MN1)")
	countFlag := flag.Int("count", 1000, "number of bars to fetch")
	flag.Parse()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	ctx := context.Background()

	symbol := strings.ToUpper(*symbolFlag)
	if symbol == "" {
		symbol = cfg.Symbol
	}
	timeframe, ok := domain.ParseTimeframe(*timeframeFlag)
	if !ok {
		appLogger.Warn(ctx, "Unknown timeframe, falling back to M1", map[string]interface{}{"requested": *timeframeFlag})
	}

	// 3. Initialize Venue (live adapter; the cache is only useful against real data)
	broker, err := binancebroker.New(binancebroker.Config{
		APIKey:         cfg.APIKey,
		SecretKey:      cfg.SecretKey,
		UseTestnet:     cfg.IsTestnet,
		Logger:         appLogger,
		RequestTimeout: cfg.RequestTimeout,
		ReconnectDelay: cfg.ReconnectDelay,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize venue adapter")
		log.Fatalf("FATAL: Failed to initialize venue adapter: %v", err)
	}
	if err := broker.Connect(ctx); err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to connect to venue")
		log.Fatalf("FATAL: Failed to connect to venue: %v", err)
	}
	defer broker.Disconnect(ctx)

	// 4. Fetch through the feed so results land in the cache
	feed, err := datafeed.New(datafeed.Config{
		Broker:   broker,
		CacheDir: cfg.CacheDir,
		Logger:   appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize data feed")
		log.Fatalf("FATAL: Failed to initialize data feed: %v", err)
	}

	bars, err := feed.GetBars(ctx, symbol, timeframe, *countFlag)
	if err != nil {
		appLogger.Error(ctx, err, "Error fetching bars")
		log.Fatalf("Error fetching bars: %v", err)
	}

	appLogger.Info(ctx, "Bar cache updated", map[string]interface{}{
		"symbol":    symbol,
		"timeframe": string(timeframe),
		"fetched":   len(bars),
		"cacheDir":  cfg.CacheDir,
	})
}
