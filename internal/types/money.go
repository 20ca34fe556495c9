// README: Common money value object used across modules.
package types

import "github.com/shopspring/decimal"

type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// RoundCents rounds half-up to two decimal places. Amounts handled here are
// never negative, so decimal's half-away-from-zero rounding is half-up.
func RoundCents(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

func (m Money) Rounded() Money {
	return Money{Amount: RoundCents(m.Amount), Currency: m.Currency}
}
