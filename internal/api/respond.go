package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xtrntr/papertrade/internal/apperr"
	"github.com/xtrntr/papertrade/internal/models"
	"github.com/xtrntr/papertrade/internal/money"
	"github.com/xtrntr/papertrade/internal/report"
)

// amount is a currency value as sent to clients: the exact figure and its display form
type amount struct {
	Value   string `json:"value"`
	Display string `json:"display"`
}

func newAmount(d decimal.Decimal) amount {
	return amount{Value: d.StringFixed(money.Cents), Display: money.USD(d)}
}

type transactionView struct {
	ID     int       `json:"id"`
	Symbol string    `json:"symbol"`
	Volume int       `json:"volume"`
	Price  amount    `json:"price"`
	Date   time.Time `json:"date"`
	Method string    `json:"method"`
}

func newTransactionView(t models.Transaction) transactionView {
	return transactionView{
		ID:     t.ID,
		Symbol: t.Symbol,
		Volume: t.Volume,
		Price:  newAmount(t.Price),
		Date:   t.Date,
		Method: string(t.Method),
	}
}

type stockView struct {
	Symbol  string `json:"symbol"`
	Volume  int    `json:"volume"`
	Price   amount `json:"price"`
	Cost    amount `json:"cost"`
	Current amount `json:"current"`
	Value   amount `json:"value"`
	Profit  amount `json:"profit"`
}

type portfolioView struct {
	Cash        amount      `json:"cash"`
	Stocks      []stockView `json:"stocks"`
	StocksValue amount      `json:"stocks_value"`
	Profit      amount      `json:"profit"`
	Total       amount      `json:"total"`
	Unpriced    []string    `json:"unpriced"`
}

func newPortfolioView(p *report.Portfolio) portfolioView {
	v := portfolioView{
		Cash:        newAmount(p.Cash),
		Stocks:      make([]stockView, 0, len(p.Lines)),
		StocksValue: newAmount(p.Value),
		Profit:      newAmount(p.Profit),
		Total:       newAmount(p.Total),
		Unpriced:    p.Skipped,
	}
	if v.Unpriced == nil {
		v.Unpriced = []string{}
	}
	for _, l := range p.Lines {
		v.Stocks = append(v.Stocks, stockView{
			Symbol:  l.Symbol,
			Volume:  l.Volume,
			Price:   newAmount(l.Price),
			Cost:    newAmount(l.Cost),
			Current: newAmount(l.Current),
			Value:   newAmount(l.Value),
			Profit:  newAmount(l.Profit),
		})
	}
	return v
}

type entryView struct {
	Placement int    `json:"placement"`
	Username  string `json:"username"`
	Profit    amount `json:"profit"`
}

type leaderboardView struct {
	Experience string      `json:"experience"`
	Entries    []entryView `json:"entries"`
	User       *entryView  `json:"user"`
}

func newLeaderboardView(b *report.Leaderboard) leaderboardView {
	v := leaderboardView{Experience: b.Experience, Entries: make([]entryView, 0, len(b.Entries))}
	for _, e := range b.Entries {
		v.Entries = append(v.Entries, entryView{Placement: e.Placement, Username: e.Username, Profit: newAmount(e.Profit)})
	}
	if b.User != nil {
		v.User = &entryView{Placement: b.User.Placement, Username: b.User.Username, Profit: newAmount(b.User.Profit)}
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps err to its status code; internal errors get a fixed message
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, apperr.HTTPStatus(apperr.KindOf(err)), map[string]string{"error": apperr.Message(err)})
}
