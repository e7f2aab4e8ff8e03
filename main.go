package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up

	"fxTradeBot/config"
	"fxTradeBot/internal/adapters/binancebroker"
	"fxTradeBot/internal/adapters/logger"
	"fxTradeBot/internal/adapters/simbroker"
	"fxTradeBot/internal/adapters/sqlite"
	"fxTradeBot/internal/app"
	"fxTradeBot/internal/ports"
	"fxTradeBot/internal/risk"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	var appLogger ports.Logger
	if cfg.UseZapLog {
		zl, err := logger.NewZapLogger(cfg.LogLevel)
		if err != nil {
			log.Fatalf("FATAL: Failed to initialize zap logger: %v", err)
		}
		defer zl.Sync()
		appLogger = zl
	} else {
		appLogger = logger.NewStdLogger(cfg.LogLevel)
	}
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize trade journal")
		log.Fatalf("FATAL: Failed to initialize trade journal: %v", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing trade journal")
		}
	}()
	appLogger.Info(context.Background(), "Trade journal initialized")

	// 4. Initialize Venue (Broker Adapter)
	broker, err := buildBroker(cfg, appLogger)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize venue adapter")
		log.Fatalf("FATAL: Failed to initialize venue adapter: %v", err)
	}
	appLogger.Info(context.Background(), "Venue adapter initialized", map[string]interface{}{"venue": string(cfg.Venue)})

	// 5. Initialize Risk Gate
	riskGate := risk.NewManager(risk.Config{
		MaxPositionSize:  cfg.MaxPositionSize,
		MaxOpenPositions: cfg.MaxOpenPositions,
		MaxDailyTrades:   cfg.MaxDailyTrades,
		MinFreeMargin:    cfg.MinFreeMargin,
		RequireStopLoss:  cfg.RequireStopLoss,
	}, repo, appLogger)
	appLogger.Info(context.Background(), "Risk gate initialized")

	// 6. Initialize Application Service
	tradingService, err := app.NewTradingService(
		cfg,
		appLogger,
		broker,
		repo,
		riskGate,
	)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize trading service")
		log.Fatalf("FATAL: Failed to initialize trading service: %v", err)
	}
	appLogger.Info(context.Background(), "Trading service initialized")

	// 7. Start the Service
	if err := tradingService.Start(context.Background()); err != nil {
		appLogger.Error(context.Background(), err, "Trading service exited with error")
		log.Fatalf("FATAL: Trading service exited with error: %v", err)
	}

	appLogger.Info(context.Background(), "Application finished gracefully.")
}

func buildBroker(cfg *config.Config, appLogger ports.Logger) (ports.Broker, error) {
	switch cfg.Venue {
	case config.VenueBinance:
		return binancebroker.New(binancebroker.Config{
			APIKey:         cfg.APIKey,
			SecretKey:      cfg.SecretKey,
			UseTestnet:     cfg.IsTestnet,
			Logger:         appLogger,
			RequestTimeout: cfg.RequestTimeout,
			ReconnectDelay: cfg.ReconnectDelay,
		})
	default:
		symbols, err := config.LoadSymbolMeta(cfg.SymbolMetaPath)
		if err != nil {
			return nil, err
		}
		return simbroker.New(simbroker.Config{
			Logger:         appLogger,
			Symbols:        symbols,
			InitialDeposit: cfg.InitialDeposit,
			Currency:       cfg.AccountCurrency,
			Leverage:       cfg.AccountLeverage,
		})
	}
}
