// Package trading executes buy and sell orders against a user's ledger at
// the provider's current price.
package trading

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xtrntr/papertrade/internal/apperr"
	"github.com/xtrntr/papertrade/internal/ledger"
	"github.com/xtrntr/papertrade/internal/metrics"
	"github.com/xtrntr/papertrade/internal/models"
	"github.com/xtrntr/papertrade/internal/money"
	"github.com/xtrntr/papertrade/internal/quote"
)

// CostBasis decides a holding's price after a repeat buy
type CostBasis int

const (
	// FirstFill keeps the price of the buy that opened the holding
	FirstFill CostBasis = iota
	// WeightedAverage re-weights the price by volume on every buy
	WeightedAverage
)

// ParseCostBasis accepts "first" or "average"
func ParseCostBasis(s string) (CostBasis, error) {
	switch s {
	case "", "first":
		return FirstFill, nil
	case "average":
		return WeightedAverage, nil
	}
	return FirstFill, fmt.Errorf("unknown cost basis %q (want first or average)", s)
}

// MaxVolume is the largest share count a single holding or order may carry
const MaxVolume = math.MaxInt32

// Engine runs trades. It holds no per-user state between calls.
type Engine struct {
	Store     ledger.Store
	Quotes    quote.Provider
	CostBasis CostBasis
	Log       *slog.Logger
	Metrics   *metrics.Metrics
	Now       func() time.Time
}

// NewEngine creates an engine with the first-fill cost basis
func NewEngine(store ledger.Store, quotes quote.Provider, logger *slog.Logger, m *metrics.Metrics) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{Store: store, Quotes: quotes, Log: logger, Metrics: m, Now: time.Now}
}

// Buy purchases quantity shares of symbol at the current price
func (e *Engine) Buy(ctx context.Context, userID int, symbol string, quantity int) (models.Transaction, error) {
	txn, err := e.buy(ctx, userID, symbol, quantity)
	e.record(models.Buy, userID, symbol, quantity, txn, err)
	return txn, err
}

func (e *Engine) buy(ctx context.Context, userID int, symbol string, quantity int) (models.Transaction, error) {
	symbol, err := validate(symbol, quantity)
	if err != nil {
		return models.Transaction{}, err
	}

	// quote before locking so the provider's latency is not spent holding the ledger
	q, err := e.lookup(ctx, symbol)
	if err != nil {
		return models.Transaction{}, err
	}
	cost := money.Total(q.Price, quantity)

	var txn models.Transaction
	err = e.Store.WithUser(ctx, userID, func(tx ledger.Tx) error {
		cash, err := tx.Cash(ctx)
		if err != nil {
			return err
		}
		if cash.LessThan(cost) {
			return apperr.New(apperr.InsufficientFunds, "not enough cash")
		}
		if err := tx.SetCash(ctx, cash.Sub(cost)); err != nil {
			return err
		}

		volume, price := quantity, q.Price
		h, err := tx.Holding(ctx, symbol)
		switch {
		case err == nil:
			if h.Volume > MaxVolume-quantity {
				return apperr.New(apperr.InvalidInput, "position too large")
			}
			volume = h.Volume + quantity
			price = e.basisAfterBuy(h, quantity, q.Price)
		case !errors.Is(err, ledger.ErrNoHolding):
			return err
		}
		if err := tx.UpsertHolding(ctx, symbol, volume, price); err != nil {
			return err
		}

		txn, err = tx.AppendTransaction(ctx, models.Transaction{
			Symbol: symbol,
			Volume: quantity,
			Price:  q.Price,
			Date:   e.now(),
			Method: models.Buy,
		})
		return err
	})
	return txn, err
}

// Sell disposes of quantity shares of symbol at the current price
func (e *Engine) Sell(ctx context.Context, userID int, symbol string, quantity int) (models.Transaction, error) {
	txn, err := e.sell(ctx, userID, symbol, quantity)
	e.record(models.Sell, userID, symbol, quantity, txn, err)
	return txn, err
}

func (e *Engine) sell(ctx context.Context, userID int, symbol string, quantity int) (models.Transaction, error) {
	symbol, err := validate(symbol, quantity)
	if err != nil {
		return models.Transaction{}, err
	}

	q, err := e.lookup(ctx, symbol)
	if err != nil {
		return models.Transaction{}, err
	}
	proceeds := money.Total(q.Price, quantity)

	var txn models.Transaction
	err = e.Store.WithUser(ctx, userID, func(tx ledger.Tx) error {
		h, err := tx.Holding(ctx, symbol)
		if errors.Is(err, ledger.ErrNoHolding) {
			return apperr.New(apperr.InsufficientShares, "not enough shares")
		}
		if err != nil {
			return err
		}
		if quantity > h.Volume {
			return apperr.New(apperr.InsufficientShares, "not enough shares")
		}

		cash, err := tx.Cash(ctx)
		if err != nil {
			return err
		}
		if err := tx.SetCash(ctx, cash.Add(proceeds)); err != nil {
			return err
		}

		if remaining := h.Volume - quantity; remaining == 0 {
			err = tx.DeleteHolding(ctx, symbol)
		} else {
			// the basis is left alone on sells
			err = tx.UpsertHolding(ctx, symbol, remaining, h.Price)
		}
		if err != nil {
			return err
		}

		txn, err = tx.AppendTransaction(ctx, models.Transaction{
			Symbol: symbol,
			Volume: quantity,
			Price:  q.Price,
			Date:   e.now(),
			Method: models.Sell,
		})
		return err
	})
	return txn, err
}

func validate(symbol string, quantity int) (string, error) {
	symbol = quote.Normalize(symbol)
	if symbol == "" {
		return "", apperr.New(apperr.InvalidInput, "must provide stock symbol")
	}
	if quantity <= 0 || quantity > MaxVolume {
		return "", apperr.New(apperr.InvalidInput, "quantity invalid")
	}
	return symbol, nil
}

// lookup quotes symbol; a quote must carry a positive price to be traded on
func (e *Engine) lookup(ctx context.Context, symbol string) (*models.Quote, error) {
	q := e.Quotes.Lookup(ctx, symbol)
	if q == nil || !q.Price.IsPositive() {
		return nil, apperr.New(apperr.UnknownSymbol, "invalid stock symbol")
	}
	return q, nil
}

func (e *Engine) basisAfterBuy(h models.Holding, quantity int, price decimal.Decimal) decimal.Decimal {
	if e.CostBasis != WeightedAverage {
		return h.Price
	}
	total := money.Total(h.Price, h.Volume).Add(money.Total(price, quantity))
	return total.Div(decimal.NewFromInt(int64(h.Volume + quantity))).Round(money.BasisPlaces)
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) record(method models.Method, userID int, symbol string, quantity int, txn models.Transaction, err error) {
	log := e.Log
	if log == nil {
		log = slog.Default()
	}
	if err != nil {
		kind := apperr.KindOf(err)
		e.Metrics.Trade(string(method), kind.String())
		if kind == apperr.Internal {
			log.Error("trade failed", "method", method, "user_id", userID, "symbol", symbol, "quantity", quantity, "error", err)
		} else {
			log.Info("trade rejected", "method", method, "user_id", userID, "symbol", symbol, "quantity", quantity, "reason", kind)
		}
		return
	}
	e.Metrics.Trade(string(method), "ok")
	log.Info("trade executed", "method", method, "user_id", userID, "symbol", txn.Symbol,
		"volume", txn.Volume, "price", txn.Price.StringFixed(money.Cents))
}
