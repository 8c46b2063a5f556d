package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/stockfolio/stockfolio/internal/models"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// tradeAttempts bounds how many times a trade transaction is retried on
// serialization failure before reporting ErrConcurrencyConflict.
const tradeAttempts = 3

// DB wraps a PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// NewDB initializes a new database connection pool. NUMERIC columns scan
// into shopspring decimals.
func NewDB(ctx context.Context, connString string) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close closes the database connection pool
func (db *DB) Close(ctx context.Context) error {
	db.Pool.Close()
	return nil
}

// CreateUser inserts a new user with the default starting cash balance
func (db *DB) CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error) {
	user := &models.User{}
	err := db.Pool.QueryRow(ctx,
		"INSERT INTO users (username, password_hash) VALUES ($1, $2) RETURNING id, username, password_hash, cash, created_at",
		username, passwordHash).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Cash, &user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicateUsername
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// GetUser retrieves a user by id
func (db *DB) GetUser(ctx context.Context, id int) (*models.User, error) {
	user := &models.User{}
	err := db.Pool.QueryRow(ctx,
		"SELECT id, username, password_hash, cash, created_at FROM users WHERE id = $1",
		id).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Cash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetUserByUsername retrieves a user by username
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	user := &models.User{}
	err := db.Pool.QueryRow(ctx,
		"SELECT id, username, password_hash, cash, created_at FROM users WHERE username = $1",
		username).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Cash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetHolding retrieves one holding, or nil when the user holds no shares of
// the symbol. Callers decide insert vs update from this explicit check
// rather than inserting and falling back on error.
func (db *DB) GetHolding(ctx context.Context, userID int, symbol string) (*models.Holding, error) {
	h := &models.Holding{}
	err := db.Pool.QueryRow(ctx,
		"SELECT user_id, symbol, name, shares, last_price, updated_at FROM holdings WHERE user_id = $1 AND symbol = $2",
		userID, symbol).Scan(&h.UserID, &h.Symbol, &h.Name, &h.Shares, &h.LastPrice, &h.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get holding: %w", err)
	}
	return h, nil
}

// GetUserHoldings retrieves all holdings for a user, ordered by symbol
func (db *DB) GetUserHoldings(ctx context.Context, userID int) ([]models.Holding, error) {
	rows, err := db.Pool.Query(ctx,
		"SELECT user_id, symbol, name, shares, last_price, updated_at FROM holdings WHERE user_id = $1 ORDER BY symbol ASC",
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get holdings: %w", err)
	}
	defer rows.Close()

	var holdings []models.Holding
	for rows.Next() {
		var h models.Holding
		if err := rows.Scan(&h.UserID, &h.Symbol, &h.Name, &h.Shares, &h.LastPrice, &h.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}
		holdings = append(holdings, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read holdings: %w", err)
	}
	return holdings, nil
}

// GetUserTransactions retrieves a user's transaction history, newest first
func (db *DB) GetUserTransactions(ctx context.Context, userID int) ([]models.Transaction, error) {
	rows, err := db.Pool.Query(ctx,
		"SELECT id, user_id, symbol, shares, price, executed_at FROM transactions WHERE user_id = $1 ORDER BY executed_at DESC, id DESC",
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}
	defer rows.Close()

	var txns []models.Transaction
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Symbol, &t.Shares, &t.Price, &t.ExecutedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read transactions: %w", err)
	}
	return txns, nil
}

// ExecuteTrade applies one trade as a single atomic unit: adjust cash,
// upsert or delete the holding, append the history row. sharesDelta is
// positive for a buy and negative for a sell. Returns the new cash balance.
//
// The transaction runs serializable and locks only the trading user's rows,
// so trades for different users never contend. The cash and share guards are
// enforced here as well as upstream: a concurrent trade that lands between
// the engine's validation reads and this commit cannot overdraw cash or
// double-spend shares.
func (db *DB) ExecuteTrade(ctx context.Context, userID int, symbol, name string, sharesDelta int64, price decimal.Decimal) (decimal.Decimal, error) {
	if sharesDelta == 0 {
		return decimal.Decimal{}, fmt.Errorf("shares delta must be nonzero")
	}
	if !price.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("price must be positive")
	}

	return withTradeRetries(func() (decimal.Decimal, error) {
		return db.executeTradeOnce(ctx, userID, symbol, name, sharesDelta, price)
	})
}

// withTradeRetries runs one trade attempt up to tradeAttempts times,
// retrying only on transient serialization failures, and reports
// ErrConcurrencyConflict once the attempts are exhausted.
func withTradeRetries(fn func() (decimal.Decimal, error)) (decimal.Decimal, error) {
	var newCash decimal.Decimal
	var err error
	for attempt := 0; attempt < tradeAttempts; attempt++ {
		newCash, err = fn()
		if !isSerializationFailure(err) {
			return newCash, err
		}
	}
	return decimal.Decimal{}, ErrConcurrencyConflict
}

func (db *DB) executeTradeOnce(ctx context.Context, userID int, symbol, name string, sharesDelta int64, price decimal.Decimal) (decimal.Decimal, error) {
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lock the user row for the duration of the trade
	var cash decimal.Decimal
	err = tx.QueryRow(ctx, "SELECT cash FROM users WHERE id = $1 FOR UPDATE", userID).Scan(&cash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Decimal{}, ErrNotFound
		}
		return decimal.Decimal{}, fmt.Errorf("failed to read cash: %w", err)
	}

	// Buys debit cash, sells credit it
	newCash := cash.Sub(price.Mul(decimal.NewFromInt(sharesDelta)))
	if newCash.IsNegative() {
		return decimal.Decimal{}, ErrInsufficientFunds
	}

	var held int64
	err = tx.QueryRow(ctx,
		"SELECT shares FROM holdings WHERE user_id = $1 AND symbol = $2 FOR UPDATE",
		userID, symbol).Scan(&held)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return decimal.Decimal{}, fmt.Errorf("failed to read holding: %w", err)
	}

	newShares := held + sharesDelta
	switch {
	case newShares < 0:
		return decimal.Decimal{}, ErrInsufficientShares
	case newShares == 0:
		// A fully sold position is deleted, never kept at zero shares
		if _, err := tx.Exec(ctx,
			"DELETE FROM holdings WHERE user_id = $1 AND symbol = $2",
			userID, symbol); err != nil {
			return decimal.Decimal{}, fmt.Errorf("failed to delete holding: %w", err)
		}
	default:
		if _, err := tx.Exec(ctx, `
			INSERT INTO holdings (user_id, symbol, name, shares, last_price)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (user_id, symbol)
			DO UPDATE SET shares = EXCLUDED.shares, last_price = EXCLUDED.last_price, updated_at = NOW()`,
			userID, symbol, name, newShares, price); err != nil {
			return decimal.Decimal{}, fmt.Errorf("failed to upsert holding: %w", err)
		}
	}

	if _, err := tx.Exec(ctx,
		"INSERT INTO transactions (user_id, symbol, shares, price) VALUES ($1, $2, $3, $4)",
		userID, symbol, sharesDelta, price); err != nil {
		return decimal.Decimal{}, fmt.Errorf("failed to append transaction: %w", err)
	}

	if _, err := tx.Exec(ctx, "UPDATE users SET cash = $1 WHERE id = $2", newCash, userID); err != nil {
		return decimal.Decimal{}, fmt.Errorf("failed to adjust cash: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return decimal.Decimal{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return newCash, nil
}

// isSerializationFailure reports whether err is a transient serialization or
// deadlock failure worth retrying.
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}
