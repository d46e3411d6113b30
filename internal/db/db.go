package db

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/xtrntr/papertrade/internal/apperr"
	"github.com/xtrntr/papertrade/internal/ledger"
	"github.com/xtrntr/papertrade/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

//go:embed migrations/001_init.sql
var initSchema string

// uniqueViolation is the PostgreSQL SQLSTATE for a unique constraint failure
const uniqueViolation = "23505"

// DB wraps a PostgreSQL connection pool and implements ledger.Store and ledger.Users
type DB struct {
	Pool *pgxpool.Pool
}

var (
	_ ledger.Store = (*DB)(nil)
	_ ledger.Users = (*DB)(nil)
)

// NewDB initializes a new database connection pool
func NewDB(ctx context.Context, connString string) (*DB, error) {
	pool, err := pgxpool.New(ctx, connString)
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

// Migrate creates the schema if it does not exist yet
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.Pool.Exec(ctx, initSchema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// CreateUser inserts a new user with its starting cash
func (db *DB) CreateUser(ctx context.Context, username, passwordHash, experience string, cash decimal.Decimal) (*models.User, error) {
	user := &models.User{}
	err := db.Pool.QueryRow(ctx,
		"INSERT INTO users (username, password_hash, experience, cash) VALUES ($1, $2, $3, $4) "+
			"RETURNING id, username, password_hash, cash, experience, created_at",
		username, passwordHash, experience, cash).Scan(
		&user.ID, &user.Username, &user.PasswordHash, &user.Cash, &user.Experience, &user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, apperr.Wrap(apperr.DuplicateUsername, "username already taken", err)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// UserByUsername retrieves a user by username
func (db *DB) UserByUsername(ctx context.Context, username string) (*models.User, error) {
	return db.getUser(ctx, "SELECT id, username, password_hash, cash, experience, created_at FROM users WHERE username = $1", username)
}

// User retrieves a user by id
func (db *DB) User(ctx context.Context, userID int) (*models.User, error) {
	return db.getUser(ctx, "SELECT id, username, password_hash, cash, experience, created_at FROM users WHERE id = $1", userID)
}

func (db *DB) getUser(ctx context.Context, query string, arg any) (*models.User, error) {
	user := &models.User{}
	err := db.Pool.QueryRow(ctx, query, arg).Scan(
		&user.ID, &user.Username, &user.PasswordHash, &user.Cash, &user.Experience, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ledger.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// Holdings retrieves all holdings for a user, ordered by symbol
func (db *DB) Holdings(ctx context.Context, userID int) ([]models.Holding, error) {
	rows, err := db.Pool.Query(ctx,
		"SELECT user_id, symbol, volume, price FROM portfolio WHERE user_id = $1 ORDER BY symbol",
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get holdings: %w", err)
	}
	defer rows.Close()

	holdings := []models.Holding{}
	for rows.Next() {
		var h models.Holding
		if err := rows.Scan(&h.UserID, &h.Symbol, &h.Volume, &h.Price); err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}
		holdings = append(holdings, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read holdings: %w", err)
	}
	return holdings, nil
}

// Transactions retrieves a user's transaction log, newest first
func (db *DB) Transactions(ctx context.Context, userID int) ([]models.Transaction, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, user_id, symbol, volume, price, date, method
		FROM transactions
		WHERE user_id = $1
		ORDER BY date DESC, id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}
	defer rows.Close()

	txns := []models.Transaction{}
	for rows.Next() {
		var t models.Transaction
		var method string
		if err := rows.Scan(&t.ID, &t.UserID, &t.Symbol, &t.Volume, &t.Price, &t.Date, &method); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		t.Method = models.Method(method)
		txns = append(txns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read transactions: %w", err)
	}
	return txns, nil
}

// LeaderboardByExperience lists every user of a tier with their recorded profit
func (db *DB) LeaderboardByExperience(ctx context.Context, experience string) ([]models.LeaderboardRow, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT users.id, users.username, COALESCE(leaderboard.profit, 0) AS profit
		FROM users
		LEFT JOIN leaderboard ON users.id = leaderboard.user_id
		WHERE users.experience = $1
		ORDER BY profit DESC, users.username ASC
	`, experience)
	if err != nil {
		return nil, fmt.Errorf("failed to get leaderboard: %w", err)
	}
	defer rows.Close()

	var board []models.LeaderboardRow
	for rows.Next() {
		var row models.LeaderboardRow
		if err := rows.Scan(&row.UserID, &row.Username, &row.Profit); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard row: %w", err)
		}
		board = append(board, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read leaderboard: %w", err)
	}
	return board, nil
}

// SetProfit writes the leaderboard aggregate for a user. The trading path
// never calls it; the figure is owned by whatever job maintains it.
func (db *DB) SetProfit(ctx context.Context, userID int, profit decimal.Decimal) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO leaderboard (user_id, profit) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET profit = EXCLUDED.profit
	`, userID, profit)
	if err != nil {
		return fmt.Errorf("failed to set profit: %w", err)
	}
	return nil
}

// WithUser runs fn inside a transaction holding the user's row lock, so
// concurrent trades by the same user execute one after the other.
func (db *DB) WithUser(ctx context.Context, userID int, fn func(ledger.Tx) error) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lock the user row for update to prevent concurrent modifications
	var id int
	err = tx.QueryRow(ctx, "SELECT id FROM users WHERE id = $1 FOR UPDATE", userID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ledger.ErrUserNotFound
		}
		return fmt.Errorf("failed to lock user: %w", err)
	}

	if err := fn(&pgTx{tx: tx, userID: userID}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// pgTx is the ledger.Tx of one WithUser call
type pgTx struct {
	tx     pgx.Tx
	userID int
}

func (t *pgTx) Cash(ctx context.Context) (decimal.Decimal, error) {
	var cash decimal.Decimal
	if err := t.tx.QueryRow(ctx, "SELECT cash FROM users WHERE id = $1", t.userID).Scan(&cash); err != nil {
		return decimal.Zero, fmt.Errorf("failed to get cash: %w", err)
	}
	return cash, nil
}

func (t *pgTx) SetCash(ctx context.Context, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("cash cannot be negative: %s", amount)
	}
	if _, err := t.tx.Exec(ctx, "UPDATE users SET cash = $1 WHERE id = $2", amount, t.userID); err != nil {
		return fmt.Errorf("failed to set cash: %w", err)
	}
	return nil
}

func (t *pgTx) Holding(ctx context.Context, symbol string) (models.Holding, error) {
	h := models.Holding{UserID: t.userID, Symbol: symbol}
	err := t.tx.QueryRow(ctx,
		"SELECT volume, price FROM portfolio WHERE user_id = $1 AND symbol = $2",
		t.userID, symbol).Scan(&h.Volume, &h.Price)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Holding{}, ledger.ErrNoHolding
		}
		return models.Holding{}, fmt.Errorf("failed to get holding: %w", err)
	}
	return h, nil
}

func (t *pgTx) UpsertHolding(ctx context.Context, symbol string, volume int, price decimal.Decimal) error {
	if volume <= 0 {
		return fmt.Errorf("holding volume must be positive, got %d", volume)
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO portfolio (user_id, symbol, volume, price) VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, symbol) DO UPDATE SET volume = EXCLUDED.volume, price = EXCLUDED.price
	`, t.userID, symbol, volume, price)
	if err != nil {
		return fmt.Errorf("failed to upsert holding: %w", err)
	}
	return nil
}

func (t *pgTx) DeleteHolding(ctx context.Context, symbol string) error {
	_, err := t.tx.Exec(ctx, "DELETE FROM portfolio WHERE user_id = $1 AND symbol = $2", t.userID, symbol)
	if err != nil {
		return fmt.Errorf("failed to delete holding: %w", err)
	}
	return nil
}

func (t *pgTx) AppendTransaction(ctx context.Context, txn models.Transaction) (models.Transaction, error) {
	if txn.Date.IsZero() {
		txn.Date = time.Now()
	}
	txn.UserID = t.userID
	err := t.tx.QueryRow(ctx,
		"INSERT INTO transactions (user_id, symbol, volume, price, date, method) VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, date",
		t.userID, txn.Symbol, txn.Volume, txn.Price, txn.Date, string(txn.Method)).Scan(&txn.ID, &txn.Date)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("failed to append transaction: %w", err)
	}
	return txn, nil
}
