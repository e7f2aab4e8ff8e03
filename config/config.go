package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"fxTradeBot/internal/adapters/logger"
)

// Venue selects the Broker implementation wired at startup.
type Venue string

const (
	VenueSimulated Venue = "simulated"
	VenueBinance   Venue = "binance"
)

// Config holds all application configuration.
type Config struct {
	// Venue selection
	Venue Venue

	// Binance API (live venue only)
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Trading parameters
	Symbol string

	// Risk gate
	MaxPositionSize  float64
	MaxOpenPositions int
	MaxDailyTrades   int
	MinFreeMargin    float64
	RequireStopLoss  bool

	// Simulated venue account
	InitialDeposit  float64
	AccountCurrency string
	AccountLeverage int

	// Paths
	DBPath         string
	CacheDir       string
	SymbolMetaPath string

	// Logging
	LogLevel  logger.LogLevel
	UseZapLog bool

	// Session discipline
	RequestTimeout    time.Duration
	ReconcileInterval time.Duration
	ReconnectDelay    time.Duration
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env if present; pure env vars are fine too.
	_ = godotenv.Load()

	cfg := &Config{}
	var errs []string

	switch Venue(strings.ToLower(getEnv("VENUE", string(VenueSimulated)))) {
	case VenueSimulated:
		cfg.Venue = VenueSimulated
	case VenueBinance:
		cfg.Venue = VenueBinance
	default:
		errs = append(errs, "VENUE must be 'simulated' or 'binance'")
	}

	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // default to testnet for safety
	if cfg.Venue == VenueBinance {
		if cfg.APIKey == "" {
			errs = append(errs, "BINANCE_API_KEY must be set for the binance venue")
		}
		if cfg.SecretKey == "" {
			errs = append(errs, "BINANCE_API_SECRET must be set for the binance venue")
		}
	}

	cfg.Symbol = strings.ToUpper(getEnv("SYMBOL", "EURUSDM"))
	if cfg.Symbol == "" {
		errs = append(errs, "SYMBOL must be set")
	}

	var err error
	cfg.MaxPositionSize, err = getEnvAsFloatRequired("MAX_POSITION_SIZE", 1.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_POSITION_SIZE: %v", err))
	} else if cfg.MaxPositionSize <= 0 {
		errs = append(errs, "MAX_POSITION_SIZE must be positive")
	}

	cfg.MaxOpenPositions = getEnvAsInt("MAX_OPEN_POSITIONS", 3)
	if cfg.MaxOpenPositions <= 0 {
		errs = append(errs, "MAX_OPEN_POSITIONS must be positive")
	}

	cfg.MaxDailyTrades = getEnvAsInt("MAX_DAILY_TRADES", 10)
	if cfg.MaxDailyTrades <= 0 {
		errs = append(errs, "MAX_DAILY_TRADES must be positive")
	}

	cfg.MinFreeMargin, err = getEnvAsFloatRequired("MIN_FREE_MARGIN", 100.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MIN_FREE_MARGIN: %v", err))
	} else if cfg.MinFreeMargin < 0 {
		errs = append(errs, "MIN_FREE_MARGIN cannot be negative")
	}

	cfg.RequireStopLoss = getEnvAsBool("REQUIRE_STOP_LOSS", false)

	cfg.InitialDeposit, err = getEnvAsFloatRequired("INITIAL_DEPOSIT", 10000.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid INITIAL_DEPOSIT: %v", err))
	} else if cfg.InitialDeposit <= 0 {
		errs = append(errs, "INITIAL_DEPOSIT must be positive")
	}
	cfg.AccountCurrency = getEnv("ACCOUNT_CURRENCY", "USD")
	cfg.AccountLeverage = getEnvAsInt("ACCOUNT_LEVERAGE", 100)
	if cfg.AccountLeverage <= 0 {
		errs = append(errs, "ACCOUNT_LEVERAGE must be positive")
	}

	cfg.DBPath = getEnv("DB_PATH", "./data/trades.db")
	cfg.CacheDir = getEnv("CACHE_DIR", "./data/market_data")
	cfg.SymbolMetaPath = getEnv("SYMBOL_META_PATH", "./data/symbol_meta.json")

	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))
	cfg.UseZapLog = getEnvAsBool("LOG_ZAP", true)

	requestTimeoutSeconds := getEnvAsInt("REQUEST_TIMEOUT_SECONDS", 10)
	if requestTimeoutSeconds <= 0 {
		errs = append(errs, "REQUEST_TIMEOUT_SECONDS must be positive")
	}
	cfg.RequestTimeout = time.Duration(requestTimeoutSeconds) * time.Second

	reconcileSeconds := getEnvAsInt("RECONCILE_INTERVAL_SECONDS", 30)
	if reconcileSeconds <= 0 {
		errs = append(errs, "RECONCILE_INTERVAL_SECONDS must be positive")
	}
	cfg.ReconcileInterval = time.Duration(reconcileSeconds) * time.Second

	reconnectSeconds := getEnvAsInt("RECONNECT_DELAY_SECONDS", 5)
	if reconnectSeconds <= 0 {
		errs = append(errs, "RECONNECT_DELAY_SECONDS must be positive")
	}
	cfg.ReconnectDelay = time.Duration(reconnectSeconds) * time.Second

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
