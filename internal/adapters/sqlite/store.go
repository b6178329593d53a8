// Package sqlite implements the ports.UserDirectory and ports.ResultSink
// interfaces using SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"signalArmyBot/internal/domain"
	"signalArmyBot/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Store backs the user directory and the execution log with one SQLite file.
type Store struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite store.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewStore opens (and if needed creates) the database and verifies the schema.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("%w: logger is required for SQLite store", ports.ErrConfiguration)
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/signal_army.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite store initialization failed")
		return nil, err
	}

	// WAL mode: the dispatcher records results concurrently with directory reads.
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite store initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite store initialization failed")
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	store := &Store{db: db, logger: cfg.Logger}
	if err := store.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite store initialization failed")
		return nil, err
	}

	cfg.Logger.Info(context.Background(), "SQLite store ready", map[string]interface{}{"path": dbPath})
	return store, nil
}

// initializeSchema creates tables if they don't exist.
func (s *Store) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS traders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		username TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		trader_id INTEGER NOT NULL REFERENCES traders(id),
		name TEXT NOT NULL,
		username TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		strategy TEXT NOT NULL DEFAULT 'low',
		capital_fraction REAL NOT NULL DEFAULT 0,
		api_key TEXT NOT NULL,
		api_secret TEXT NOT NULL,
		api_passphrase TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS executions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		signal_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		status TEXT NOT NULL,
		entry_order_id TEXT NULL,
		take_profit_order_ids TEXT NULL,
		stop_loss_order_id TEXT NULL,
		error TEXT NULL,
		finished_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_users_trader_active ON users (trader_id, active);
	CREATE INDEX IF NOT EXISTS idx_executions_signal ON executions (signal_id);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("exec schema: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// AddTrader inserts a trader and returns its assigned ID.
func (s *Store) AddTrader(ctx context.Context, trader *domain.Trader) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO traders (name, username) VALUES (?, ?)`,
		trader.Name, trader.Username)
	if err != nil {
		return 0, fmt.Errorf("insert trader: %w", err)
	}
	return res.LastInsertId()
}

// AddUser inserts a subscriber and returns its assigned ID.
func (s *Store) AddUser(ctx context.Context, user *domain.User) (int64, error) {
	if !user.Strategy.IsValid() {
		return 0, fmt.Errorf("%w: unknown risk strategy %q", ports.ErrInvalidInput, user.Strategy)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (trader_id, name, username, active, strategy, capital_fraction, api_key, api_secret, api_passphrase)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.TraderID, user.Name, user.Username, user.Active, string(user.Strategy),
		user.CapitalFraction, user.Credential.APIKey, user.Credential.APISecret, user.Credential.APIPassphrase)
	if err != nil {
		return 0, fmt.Errorf("insert user: %w", err)
	}
	return res.LastInsertId()
}

// SetUserActive flips a user's subscription on or off.
func (s *Store) SetUserActive(ctx context.Context, userID int64, active bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET active = ? WHERE id = ?`, active, userID)
	if err != nil {
		return fmt.Errorf("update user active flag: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: user %d", ports.ErrNotFound, userID)
	}
	return nil
}

// FindTrader looks up a trader by ID.
func (s *Store) FindTrader(ctx context.Context, traderID int64) (*domain.Trader, error) {
	var trader domain.Trader
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, username FROM traders WHERE id = ?`, traderID).
		Scan(&trader.ID, &trader.Name, &trader.Username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: trader %d", ports.ErrNotFound, traderID)
	}
	if err != nil {
		return nil, fmt.Errorf("query trader %d: %w", traderID, err)
	}
	return &trader, nil
}

// FindUser looks up one subscriber by ID, active or not.
func (s *Store) FindUser(ctx context.Context, userID int64) (*domain.User, error) {
	var u domain.User
	var strategy string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, trader_id, name, username, active, strategy, capital_fraction, api_key, api_secret, api_passphrase
		 FROM users WHERE id = ?`, userID).
		Scan(&u.ID, &u.TraderID, &u.Name, &u.Username, &u.Active, &strategy,
			&u.CapitalFraction, &u.Credential.APIKey, &u.Credential.APISecret, &u.Credential.APIPassphrase)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %d", ports.ErrNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("query user %d: %w", userID, err)
	}
	u.Strategy = domain.RiskStrategy(strategy)
	return &u, nil
}

// ActiveSubscribers returns all active users subscribed to the trader, each
// carrying credential, capital allocation and risk strategy.
func (s *Store) ActiveSubscribers(ctx context.Context, traderID int64) ([]*domain.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, trader_id, name, username, active, strategy, capital_fraction, api_key, api_secret, api_passphrase
		 FROM users WHERE trader_id = ? AND active = 1 ORDER BY id`, traderID)
	if err != nil {
		return nil, fmt.Errorf("query subscribers of trader %d: %w", traderID, err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		var u domain.User
		var strategy string
		if err := rows.Scan(&u.ID, &u.TraderID, &u.Name, &u.Username, &u.Active, &strategy,
			&u.CapitalFraction, &u.Credential.APIKey, &u.Credential.APISecret, &u.Credential.APIPassphrase); err != nil {
			return nil, fmt.Errorf("scan subscriber row: %w", err)
		}
		u.Strategy = domain.RiskStrategy(strategy)
		users = append(users, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscriber rows: %w", err)
	}
	return users, nil
}

// Record persists one per-user execution outcome. The credential never touches
// this table; only order IDs and the failure text are kept.
func (s *Store) Record(ctx context.Context, result *domain.ExecutionResult) error {
	var entryID, stopID, errText sql.NullString
	if result.Entry != nil {
		entryID = sql.NullString{String: result.Entry.OrderID, Valid: true}
	}
	if result.StopLoss != nil {
		stopID = sql.NullString{String: result.StopLoss.OrderID, Valid: true}
	}
	if result.Err != nil {
		errText = sql.NullString{String: result.Err.Error(), Valid: true}
	}

	tpIDs := make([]string, 0, len(result.TakeProfit))
	for _, conf := range result.TakeProfit {
		tpIDs = append(tpIDs, conf.OrderID)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO executions (signal_id, user_id, status, entry_order_id, take_profit_order_ids, stop_loss_order_id, error, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		result.SignalID, result.UserID, string(result.Status),
		entryID, strings.Join(tpIDs, ","), stopID, errText, result.FinishedAt)
	if err != nil {
		return fmt.Errorf("insert execution result: %w", err)
	}
	return nil
}

// ExecutionRecord is one row of the execution log as read back from storage.
type ExecutionRecord struct {
	ID                 int64
	SignalID           int64
	UserID             int64
	Status             domain.ExecutionStatus
	EntryOrderID       string
	TakeProfitOrderIDs []string
	StopLossOrderID    string
	Error              string
	FinishedAt         time.Time
}

// ExecutionsBySignal reads back the outcomes recorded for one signal.
func (s *Store) ExecutionsBySignal(ctx context.Context, signalID int64) ([]*ExecutionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, signal_id, user_id, status, entry_order_id, take_profit_order_ids, stop_loss_order_id, error, finished_at
		 FROM executions WHERE signal_id = ? ORDER BY id`, signalID)
	if err != nil {
		return nil, fmt.Errorf("query executions for signal %d: %w", signalID, err)
	}
	defer rows.Close()

	var records []*ExecutionRecord
	for rows.Next() {
		var rec ExecutionRecord
		var status string
		var entryID, tpIDs, stopID, errText sql.NullString
		if err := rows.Scan(&rec.ID, &rec.SignalID, &rec.UserID, &status,
			&entryID, &tpIDs, &stopID, &errText, &rec.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan execution row: %w", err)
		}
		rec.Status = domain.ExecutionStatus(status)
		rec.EntryOrderID = entryID.String
		rec.StopLossOrderID = stopID.String
		rec.Error = errText.String
		if tpIDs.String != "" {
			rec.TakeProfitOrderIDs = strings.Split(tpIDs.String, ",")
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate execution rows: %w", err)
	}
	return records, nil
}

var (
	_ ports.UserDirectory = (*Store)(nil)
	_ ports.ResultSink    = (*Store)(nil)
)
