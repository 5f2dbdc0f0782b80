package money

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestNormalizeCurrency(t *testing.T) {
	code, err := NormalizeCurrency(" usd ")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if code != "USD" {
		t.Fatalf("expected USD, got %q", code)
	}
	if _, err := NormalizeCurrency("XXQ"); !errors.Is(err, ErrUnknownCurrency) {
		t.Fatalf("expected unknown currency, got %v", err)
	}
	if _, err := NormalizeCurrency(""); !errors.Is(err, ErrUnknownCurrency) {
		t.Fatalf("expected unknown currency for empty code, got %v", err)
	}
}

func TestAddRejectsMixedCurrencies(t *testing.T) {
	_, err := MustParse("1", "USD").Add(MustParse("1", "EUR"))
	if !errors.Is(err, ErrCurrencyMismatch) {
		t.Fatalf("expected currency mismatch, got %v", err)
	}
}

func TestArithmeticIsExact(t *testing.T) {
	sum, err := MustParse("0.1", "USD").Add(MustParse("0.2", "USD"))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !sum.Equal(MustParse("0.3", "USD")) {
		t.Fatalf("expected 0.3, got %s", sum.Amount)
	}
	diff, err := sum.Sub(MustParse("0.5", "USD"))
	if err != nil {
		t.Fatalf("sub: %v", err)
	}
	if !diff.IsNegative() {
		t.Fatalf("expected negative, got %s", diff.Amount)
	}
}

func TestFractionAndString(t *testing.T) {
	if got := Fraction("JPY"); got != 0 {
		t.Fatalf("expected 0 digits for JPY, got %d", got)
	}
	if got := MustParse("1234.5", "USD").String(); got != "1234.50 USD" {
		t.Fatalf("unexpected string %q", got)
	}
	if got := MustParse("10.126", "EUR").Round().Amount.String(); got != "10.13" {
		t.Fatalf("unexpected rounding %q", got)
	}
}

func TestWithinEpsilon(t *testing.T) {
	if !WithinEpsilon(decimal.RequireFromString("0.0001")) {
		t.Fatal("epsilon itself should be within tolerance")
	}
	if !WithinEpsilon(decimal.RequireFromString("-0.00005")) {
		t.Fatal("negative dust should be within tolerance")
	}
	if WithinEpsilon(decimal.RequireFromString("0.00011")) {
		t.Fatal("0.00011 exceeds tolerance")
	}
}
