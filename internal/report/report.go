// Package report builds the read-only views of a user's ledger: the valued
// portfolio and the tier leaderboard.
package report

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xtrntr/papertrade/internal/ledger"
	"github.com/xtrntr/papertrade/internal/models"
	"github.com/xtrntr/papertrade/internal/money"
	"github.com/xtrntr/papertrade/internal/quote"
)

// maxConcurrentQuotes bounds provider calls made for one portfolio view
const maxConcurrentQuotes = 4

// Reporter reads the ledger and never writes to it
type Reporter struct {
	Store  ledger.Store
	Quotes quote.Provider
}

// NewReporter creates a reporter
func NewReporter(store ledger.Store, quotes quote.Provider) *Reporter {
	return &Reporter{Store: store, Quotes: quotes}
}

// Line is one valued holding
type Line struct {
	Symbol  string
	Volume  int
	Price   decimal.Decimal // basis per share
	Cost    decimal.Decimal // basis × volume
	Current decimal.Decimal
	Value   decimal.Decimal // current × volume
	Profit  decimal.Decimal // volume × (current − basis)
}

// Portfolio is a user's cash plus every holding that could be priced
type Portfolio struct {
	Cash    decimal.Decimal
	Lines   []Line
	Value   decimal.Decimal // sum of line values
	Profit  decimal.Decimal // sum of line profits
	Total   decimal.Decimal // cash + value
	Skipped []string        // symbols with no live quote
}

// Portfolio values userID's holdings at live prices. Holdings whose quote is
// unavailable are listed in Skipped rather than failing the view.
func (r *Reporter) Portfolio(ctx context.Context, userID int) (*Portfolio, error) {
	user, err := r.Store.User(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	holdings, err := r.Store.Holdings(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get holdings: %w", err)
	}

	quotes := make([]*models.Quote, len(holdings))
	var g errgroup.Group
	g.SetLimit(maxConcurrentQuotes)
	for i, h := range holdings {
		// lookups never fail; a nil quote marks the holding unpriced
		g.Go(func() error {
			quotes[i] = r.Quotes.Lookup(ctx, h.Symbol)
			return nil
		})
	}
	_ = g.Wait()

	p := &Portfolio{Cash: user.Cash, Lines: []Line{}}
	for i, h := range holdings {
		q := quotes[i]
		if q == nil {
			p.Skipped = append(p.Skipped, h.Symbol)
			continue
		}
		line := valueLine(h, q.Price)
		p.Lines = append(p.Lines, line)
		p.Value = p.Value.Add(line.Value)
		p.Profit = p.Profit.Add(line.Profit)
	}
	p.Total = p.Cash.Add(p.Value)
	return p, nil
}

func valueLine(h models.Holding, current decimal.Decimal) Line {
	return Line{
		Symbol:  h.Symbol,
		Volume:  h.Volume,
		Price:   h.Price,
		Cost:    money.Total(h.Price, h.Volume),
		Current: current,
		Value:   money.Total(current, h.Volume),
		Profit:  money.Total(current.Sub(h.Price), h.Volume),
	}
}

// Entry is one ranked leaderboard row
type Entry struct {
	Placement int
	UserID    int
	Username  string
	Profit    decimal.Decimal
}

// Leaderboard ranks the users sharing the requester's experience tier
type Leaderboard struct {
	Experience string
	Entries    []Entry
	User       *Entry // the requester's own entry
}

// Leaderboard ranks userID's tier by the recorded profit aggregate
func (r *Reporter) Leaderboard(ctx context.Context, userID int) (*Leaderboard, error) {
	user, err := r.Store.User(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	rows, err := r.Store.LeaderboardByExperience(ctx, user.Experience)
	if err != nil {
		return nil, fmt.Errorf("failed to get leaderboard: %w", err)
	}

	board := &Leaderboard{Experience: user.Experience, Entries: make([]Entry, 0, len(rows))}
	for i, row := range rows {
		board.Entries = append(board.Entries, Entry{
			Placement: i + 1,
			UserID:    row.UserID,
			Username:  row.Username,
			Profit:    row.Profit,
		})
	}
	for i := range board.Entries {
		if board.Entries[i].UserID == userID {
			e := board.Entries[i]
			board.User = &e
			break
		}
	}
	return board, nil
}
