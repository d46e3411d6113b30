// Package money holds the currency helpers shared by the ledger and the API.
// Amounts are exact decimals; formatting happens only when rendering.
package money

import (
	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Cents is the number of fractional digits kept for cash amounts
const Cents = 2

// BasisPlaces is the precision kept for a holding's average price
const BasisPlaces = 4

// FromFloat converts a provider price to an exact cent amount
func FromFloat(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f).Round(Cents)
}

// Parse reads a decimal amount such as "10000.00"
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	return d.Round(Cents), nil
}

// Total returns price × volume
func Total(price decimal.Decimal, volume int) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(int64(volume)))
}

// USD renders an amount for display, e.g. "$1,234.56".
func USD(d decimal.Decimal) string {
	return money.New(d.Shift(Cents).Round(0).IntPart(), money.USD).Display()
}
