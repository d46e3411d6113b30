// Package ledger defines the storage contract for a user's cash, holdings and
// transaction log, and an in-memory implementation of it.
//
// All mutation goes through Store.WithUser, which serializes writers of the
// same user and commits the writes made through its Tx together or not at all.
package ledger

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/xtrntr/papertrade/internal/models"
)

var (
	// ErrUserNotFound is returned for reads and writes against an unknown user id
	ErrUserNotFound = errors.New("user not found")
	// ErrNoHolding is returned by Tx.Holding when the user owns none of the symbol
	ErrNoHolding = errors.New("no holding")
)

// Tx is a user-scoped read/write view valid only inside Store.WithUser
type Tx interface {
	Cash(ctx context.Context) (decimal.Decimal, error)
	SetCash(ctx context.Context, amount decimal.Decimal) error
	Holding(ctx context.Context, symbol string) (models.Holding, error)
	UpsertHolding(ctx context.Context, symbol string, volume int, price decimal.Decimal) error
	DeleteHolding(ctx context.Context, symbol string) error
	AppendTransaction(ctx context.Context, t models.Transaction) (models.Transaction, error)
}

// Store is the ledger used by the trading engine and the reports
type Store interface {
	// WithUser runs fn with userID's ledger locked. If fn returns an error
	// nothing it wrote is kept.
	WithUser(ctx context.Context, userID int, fn func(Tx) error) error

	User(ctx context.Context, userID int) (*models.User, error)
	// Holdings returns the user's holdings ordered by symbol
	Holdings(ctx context.Context, userID int) ([]models.Holding, error)
	// Transactions returns the user's log, newest first
	Transactions(ctx context.Context, userID int) ([]models.Transaction, error)
	// LeaderboardByExperience returns every user of the tier with their
	// recorded profit (zero when none), highest first
	LeaderboardByExperience(ctx context.Context, experience string) ([]models.LeaderboardRow, error)
}

// Users is the account side of the store used for registration and login
type Users interface {
	CreateUser(ctx context.Context, username, passwordHash, experience string, cash decimal.Decimal) (*models.User, error)
	UserByUsername(ctx context.Context, username string) (*models.User, error)
}
