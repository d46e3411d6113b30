package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// User represents a registered trader
type User struct {
	ID           int
	Username     string
	PasswordHash string
	Cash         decimal.Decimal
	Experience   string // leaderboard tier
	CreatedAt    time.Time
}

// Method is the direction of a transaction
type Method string

const (
	Buy  Method = "BUY"
	Sell Method = "SELL"
)

// Holding is a user's aggregate position in one symbol
type Holding struct {
	UserID int
	Symbol string
	Volume int             // always > 0 while stored
	Price  decimal.Decimal // cost basis per share
}

// Transaction is an executed buy or sell, never modified once recorded
type Transaction struct {
	ID     int             `json:"id"`
	UserID int             `json:"-"`
	Symbol string          `json:"symbol"`
	Volume int             `json:"volume"`
	Price  decimal.Decimal `json:"price"`
	Date   time.Time       `json:"date"`
	Method Method          `json:"method"`
}

// Quote is a point-in-time price; it is never persisted
type Quote struct {
	Name   string          `json:"name"`
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
}

// LeaderboardRow is one user's entry in the externally maintained profit aggregate
type LeaderboardRow struct {
	UserID   int
	Username string
	Profit   decimal.Decimal
}
