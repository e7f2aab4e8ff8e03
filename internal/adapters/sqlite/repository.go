package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"fxTradeBot/internal/domain"
	"fxTradeBot/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements ports.TradeRepository using SQLite. It is the local
// journal only; the venue remains the source of truth for live state.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/trades.db" // Default path
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Open database connection
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000") // WAL mode for better concurrency
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Set connection pool settings (important for SQLite)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := &Repository{db: db, logger: cfg.Logger}

	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	return repo, nil
}

// initializeSchema creates tables if they don't exist.
// NOTE: This is a basic approach. A proper migration tool is recommended for production.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		venue_id TEXT DEFAULT '',
		symbol TEXT NOT NULL,
		direction TEXT NOT NULL,
		order_type TEXT NOT NULL,
		size REAL NOT NULL,
		entry_price REAL DEFAULT NULL,
		stop_loss REAL DEFAULT NULL,
		take_profit REAL DEFAULT NULL,
		executed_price REAL DEFAULT 0,
		close_price REAL DEFAULT 0,
		status TEXT NOT NULL,
		open_time TIMESTAMP DEFAULT NULL,
		close_time TIMESTAMP DEFAULT NULL,
		profit REAL DEFAULT 0,
		commission REAL DEFAULT 0,
		swap REAL DEFAULT 0,
		close_reason TEXT DEFAULT '',
		rejection_reason TEXT DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_trades_symbol_status ON trades (symbol, status);
	CREATE INDEX IF NOT EXISTS idx_trades_symbol_open_time ON trades (symbol, open_time);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// Save inserts the trade when it has no journal ID yet, otherwise updates the
// existing row. The assigned row ID is written back to the trade.
func (r *Repository) Save(ctx context.Context, trade *domain.Trade) error {
	if trade.LocalID == 0 {
		return r.insert(ctx, trade)
	}
	return r.update(ctx, trade)
}

func (r *Repository) insert(ctx context.Context, trade *domain.Trade) error {
	const query = `
	INSERT INTO trades (venue_id, symbol, direction, order_type, size, entry_price, stop_loss, take_profit,
	                    executed_price, close_price, status, open_time, close_time, profit, commission, swap,
	                    close_reason, rejection_reason)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		trade.ID, trade.Symbol, string(trade.Direction), string(trade.OrderType), trade.Size,
		nullFloat(trade.EntryPrice), nullFloat(trade.StopLoss), nullFloat(trade.TakeProfit),
		trade.ExecutedPrice, trade.ClosePrice, string(trade.Status()),
		nullTime(trade.OpenTime), nullTime(trade.CloseTime),
		trade.Profit, trade.Commission, trade.Swap,
		string(trade.CloseReason), trade.RejectionReason)
	if err != nil {
		return fmt.Errorf("failed to insert trade for symbol %s: %w", trade.Symbol, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID for trade %s: %w", trade.Symbol, err)
	}
	trade.LocalID = id
	r.logger.Debug(ctx, "Trade journaled", map[string]interface{}{"localID": id, "symbol": trade.Symbol, "status": trade.Status()})
	return nil
}

func (r *Repository) update(ctx context.Context, trade *domain.Trade) error {
	const query = `
	UPDATE trades
	SET venue_id = ?, symbol = ?, direction = ?, order_type = ?, size = ?, entry_price = ?, stop_loss = ?,
	    take_profit = ?, executed_price = ?, close_price = ?, status = ?, open_time = ?, close_time = ?,
	    profit = ?, commission = ?, swap = ?, close_reason = ?, rejection_reason = ?
	WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		trade.ID, trade.Symbol, string(trade.Direction), string(trade.OrderType), trade.Size,
		nullFloat(trade.EntryPrice), nullFloat(trade.StopLoss), nullFloat(trade.TakeProfit),
		trade.ExecutedPrice, trade.ClosePrice, string(trade.Status()),
		nullTime(trade.OpenTime), nullTime(trade.CloseTime),
		trade.Profit, trade.Commission, trade.Swap,
		string(trade.CloseReason), trade.RejectionReason,
		trade.LocalID)
	if err != nil {
		return fmt.Errorf("failed to update trade ID %d: %w", trade.LocalID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for trade ID %d: %w", trade.LocalID, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("trade ID %d not found for update: %w", trade.LocalID, ports.ErrUpdateFailed)
	}
	r.logger.Debug(ctx, "Trade journal updated", map[string]interface{}{"localID": trade.LocalID, "symbol": trade.Symbol, "status": trade.Status()})
	return nil
}

// FindOpen retrieves all trades still in flight (PENDING or OPEN), oldest
// first, for reconciliation at startup.
func (r *Repository) FindOpen(ctx context.Context) ([]*domain.Trade, error) {
	const query = `
	SELECT id, venue_id, symbol, direction, order_type, size, entry_price, stop_loss, take_profit,
	       executed_price, close_price, status, open_time, close_time, profit, commission, swap,
	       close_reason, rejection_reason
	FROM trades
	WHERE status IN (?, ?)
	ORDER BY id ASC`

	rows, err := r.db.QueryContext(ctx, query, string(domain.StatusPending), string(domain.StatusOpen))
	if err != nil {
		return nil, fmt.Errorf("failed to query open trades: %w", err)
	}
	defer rows.Close()

	return collectTrades(rows)
}

// FindBySymbol retrieves the most recent trades for a given symbol, up to a limit.
func (r *Repository) FindBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.Trade, error) {
	const query = `
	SELECT id, venue_id, symbol, direction, order_type, size, entry_price, stop_loss, take_profit,
	       executed_price, close_price, status, open_time, close_time, profit, commission, swap,
	       close_reason, rejection_reason
	FROM trades
	WHERE symbol = ? ORDER BY id DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades for symbol %s: %w", symbol, err)
	}
	defer rows.Close()

	return collectTrades(rows)
}

// CountTodayBySymbol counts the number of trades opened today for a given symbol.
func (r *Repository) CountTodayBySymbol(ctx context.Context, symbol string) (int, error) {
	// Ensure timezone consistency might be needed depending on SQLite build/config
	const query = `SELECT COUNT(*) FROM trades WHERE symbol = ? AND open_time IS NOT NULL AND date(open_time) = date('now', 'localtime')`
	var count int
	err := r.db.QueryRowContext(ctx, query, symbol).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count trades today for symbol %s: %w", symbol, err)
	}
	return count, nil
}

// TotalProfit calculates the sum of profit for all closed trades.
func (r *Repository) TotalProfit(ctx context.Context) (float64, error) {
	const query = `SELECT COALESCE(SUM(profit), 0) FROM trades WHERE status = ?`
	var totalProfit float64
	err := r.db.QueryRowContext(ctx, query, string(domain.StatusClosed)).Scan(&totalProfit)
	if err != nil {
		return 0, fmt.Errorf("failed to calculate total profit: %w", err)
	}
	return totalProfit, nil
}

// --- Helper Scan Functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func collectTrades(rows *sql.Rows) ([]*domain.Trade, error) {
	trades := make([]*domain.Trade, 0)
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade row: %w", err)
		}
		trades = append(trades, trade)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade rows: %w", err)
	}
	return trades, nil
}

// scanTrade rehydrates a journal row into a domain.Trade. The stored status is
// restored directly; transition rules apply to live trades, not persistence.
func scanTrade(s scanner) (*domain.Trade, error) {
	t := &domain.Trade{}
	var (
		direction, orderType, status, closeReason string
		entryPrice, stopLoss, takeProfit          sql.NullFloat64
		openTime, closeTime                       sql.NullTime
	)
	err := s.Scan(
		&t.LocalID, &t.ID, &t.Symbol, &direction, &orderType, &t.Size,
		&entryPrice, &stopLoss, &takeProfit,
		&t.ExecutedPrice, &t.ClosePrice, &status,
		&openTime, &closeTime,
		&t.Profit, &t.Commission, &t.Swap,
		&closeReason, &t.RejectionReason)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}

	t.Direction = domain.TradeDirection(direction)
	t.OrderType = domain.OrderType(orderType)
	t.CloseReason = domain.CloseReason(closeReason)
	if entryPrice.Valid {
		v := entryPrice.Float64
		t.EntryPrice = &v
	}
	if stopLoss.Valid {
		v := stopLoss.Float64
		t.StopLoss = &v
	}
	if takeProfit.Valid {
		v := takeProfit.Float64
		t.TakeProfit = &v
	}
	if openTime.Valid {
		t.OpenTime = openTime.Time
	}
	if closeTime.Valid {
		t.CloseTime = closeTime.Time
	}
	t.Restore(domain.TradeStatus(status))
	return t, nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
