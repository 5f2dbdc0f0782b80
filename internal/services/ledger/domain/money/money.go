// Package money provides decimal amounts tagged with an ISO currency and the
// quantity helpers shared by the ledger aggregates.
package money

import (
	"errors"
	"fmt"
	"strings"

	gomoney "github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// QuantityEpsilon is the tolerance under which a holding remainder is treated
// as fully sold.
var QuantityEpsilon = decimal.New(1, -4)

var (
	// ErrUnknownCurrency is returned for codes not in the ISO 4217 table.
	ErrUnknownCurrency = errors.New("unknown currency")
	// ErrCurrencyMismatch is returned when combining amounts in different currencies.
	ErrCurrencyMismatch = errors.New("currency mismatch")
)

// Money is an exact amount in a single currency.
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// NormalizeCurrency upper-cases code and checks it against the ISO table.
func NormalizeCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" || gomoney.GetCurrency(code) == nil {
		return "", fmt.Errorf("%w: %q", ErrUnknownCurrency, code)
	}
	return code, nil
}

// New returns amount in currency after validating the currency code.
func New(amount decimal.Decimal, currency string) (Money, error) {
	code, err := NormalizeCurrency(currency)
	if err != nil {
		return Money{}, err
	}
	return Money{Amount: amount, Currency: code}, nil
}

// MustParse parses a decimal string and panics on bad input. Intended for
// fixtures.
func MustParse(amount, currency string) Money {
	m, err := New(decimal.RequireFromString(amount), currency)
	if err != nil {
		panic(err)
	}
	return m
}

// Zero returns a zero amount in currency.
func Zero(currency string) Money {
	return Money{Amount: decimal.Zero, Currency: strings.ToUpper(currency)}
}

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool { return m.Amount.IsZero() }

// IsNegative reports whether the amount is below zero.
func (m Money) IsNegative() bool { return m.Amount.IsNegative() }

// Add returns m+o. Both amounts must share a currency.
func (m Money) Add(o Money) (Money, error) {
	if err := m.sameCurrency(o); err != nil {
		return Money{}, err
	}
	return Money{Amount: m.Amount.Add(o.Amount), Currency: m.Currency}, nil
}

// Sub returns m-o. Both amounts must share a currency.
func (m Money) Sub(o Money) (Money, error) {
	if err := m.sameCurrency(o); err != nil {
		return Money{}, err
	}
	return Money{Amount: m.Amount.Sub(o.Amount), Currency: m.Currency}, nil
}

// Equal reports whether both currency and amount match.
func (m Money) Equal(o Money) bool {
	return m.Currency == o.Currency && m.Amount.Equal(o.Amount)
}

// Fraction returns the number of minor-unit digits for the currency.
func (m Money) Fraction() int32 {
	return Fraction(m.Currency)
}

// Round rounds the amount to the currency's minor units.
func (m Money) Round() Money {
	return Money{Amount: m.Amount.Round(m.Fraction()), Currency: m.Currency}
}

// String formats the amount at the currency's minor-unit precision.
func (m Money) String() string {
	return m.Amount.StringFixed(m.Fraction()) + " " + m.Currency
}

func (m Money) sameCurrency(o Money) error {
	if m.Currency != o.Currency {
		return fmt.Errorf("%w: %s and %s", ErrCurrencyMismatch, m.Currency, o.Currency)
	}
	return nil
}

// Fraction returns the minor-unit digits for a currency code, 2 if unknown.
func Fraction(currency string) int32 {
	cur := gomoney.GetCurrency(strings.ToUpper(currency))
	if cur == nil {
		return 2
	}
	return int32(cur.Fraction)
}

// WithinEpsilon reports whether |q| <= QuantityEpsilon.
func WithinEpsilon(q decimal.Decimal) bool {
	return q.Abs().LessThanOrEqual(QuantityEpsilon)
}
