// Package position derives holdings, cost basis and gains from a list of
// transactions using first-in first-out lot matching.
//
// Everything here is a pure function of its inputs: the same transactions and
// prices always produce the same positions.
package position

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/louisbranch/folio/internal/services/ledger/domain/money"
	"github.com/louisbranch/folio/internal/services/ledger/domain/transaction"
)

// Transaction is the engine's view of one active ledger entry.
type Transaction struct {
	ID       string
	Symbol   string
	Type     transaction.Type
	Date     time.Time
	Quantity decimal.Decimal
	Price    decimal.Decimal
	Fee      decimal.Decimal
	Amount   decimal.Decimal
	Currency string
}

// Position summarizes one symbol.
type Position struct {
	Symbol   string
	Currency string
	Quantity decimal.Decimal
	// AverageCost is the cost basis per unit still held.
	AverageCost    decimal.Decimal
	CostBasis      decimal.Decimal
	Price          decimal.Decimal
	Priced         bool
	MarketValue    decimal.Decimal
	UnrealizedGain decimal.Decimal
	RealizedGain   decimal.Decimal
	Income         decimal.Decimal
	Lots           []Lot
}

// InsufficientHoldingsError reports a sale larger than the units held at its
// date by more than money.QuantityEpsilon.
type InsufficientHoldingsError struct {
	Symbol        string
	TransactionID string
	Date          time.Time
	Requested     decimal.Decimal
	Available     decimal.Decimal
	Shortfall     decimal.Decimal
}

func (e *InsufficientHoldingsError) Error() string {
	return fmt.Sprintf("insufficient holdings for %s on %s: requested %s, available %s, short %s",
		e.Symbol, e.Date.Format(time.DateOnly), e.Requested, e.Available, e.Shortfall)
}

type book struct {
	currency string
	started  bool
	lots     lots
	realized decimal.Decimal
	income   decimal.Decimal
}

// pin fixes the book to the currency of its first transaction; every later
// one must match.
func (b *book) pin(symbol string, tx Transaction) error {
	currency := strings.ToUpper(strings.TrimSpace(tx.Currency))
	if !b.started {
		b.currency = currency
		b.started = true
		return nil
	}
	if currency != b.currency {
		return fmt.Errorf("transaction %s: %s is held in %s, not %s: %w", tx.ID, symbol, b.currency, currency, money.ErrCurrencyMismatch)
	}
	return nil
}

// Ledger is the lot state per symbol after replaying transactions. It is
// immutable and safe to share.
type Ledger struct {
	books   map[string]book
	symbols []string
}

// Build replays transactions per symbol in date order. Transactions on the
// same date keep their input order.
func Build(txns []Transaction) (Ledger, error) {
	ordered := make([]Transaction, len(txns))
	copy(ordered, txns)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Date.Before(ordered[j].Date)
	})

	books := make(map[string]book)
	for _, tx := range ordered {
		symbol := strings.ToUpper(strings.TrimSpace(tx.Symbol))
		b := books[symbol]
		if err := b.pin(symbol, tx); err != nil {
			return Ledger{}, err
		}
		switch tx.Type {
		case transaction.TypeBuy:
			if !tx.Quantity.IsPositive() {
				return Ledger{}, fmt.Errorf("transaction %s: buy quantity must be positive", tx.ID)
			}
			unitCost := tx.Price.Mul(tx.Quantity).Add(tx.Fee).Div(tx.Quantity)
			b.lots = append(append(lots(nil), b.lots...), Lot{Quantity: tx.Quantity, UnitCost: unitCost, AcquiredAt: tx.Date})
		case transaction.TypeSell:
			next, err := sell(b, symbol, tx)
			if err != nil {
				return Ledger{}, err
			}
			b = next
		case transaction.TypeDividend, transaction.TypeInterest:
			b.income = b.income.Add(tx.Amount).Sub(tx.Fee)
		default:
			return Ledger{}, fmt.Errorf("transaction %s: unknown type %q", tx.ID, tx.Type)
		}
		books[symbol] = b
	}

	symbols := make([]string, 0, len(books))
	for symbol := range books {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return Ledger{books: books, symbols: symbols}, nil
}

func sell(b book, symbol string, tx Transaction) (book, error) {
	if !tx.Quantity.IsPositive() {
		return b, fmt.Errorf("transaction %s: sell quantity must be positive", tx.ID)
	}
	available := b.lots.quantity()
	if shortfall := tx.Quantity.Sub(available); shortfall.IsPositive() && !money.WithinEpsilon(shortfall) {
		return b, &InsufficientHoldingsError{
			Symbol:        symbol,
			TransactionID: tx.ID,
			Date:          tx.Date,
			Requested:     tx.Quantity,
			Available:     available,
			Shortfall:     shortfall,
		}
	}
	remaining, consumed := b.lots.sell(tx.Quantity)
	// A remainder within epsilon is sold with the rest.
	if left := remaining.quantity(); left.IsPositive() && money.WithinEpsilon(left) {
		for _, lot := range remaining {
			consumed = append(consumed, fragment{quantity: lot.Quantity, unitCost: lot.UnitCost})
		}
		remaining = nil
	}
	gain := tx.Fee.Neg()
	for _, f := range consumed {
		gain = gain.Add(tx.Price.Sub(f.unitCost).Mul(f.quantity))
	}
	b.lots = remaining
	b.realized = b.realized.Add(gain)
	return b, nil
}

// Symbols lists the symbols seen, sorted.
func (l Ledger) Symbols() []string {
	return append([]string(nil), l.symbols...)
}

// Positions values the ledger at prices. Symbols without a price report no
// market value or unrealized gain.
func (l Ledger) Positions(prices map[string]decimal.Decimal) []Position {
	out := make([]Position, 0, len(l.symbols))
	for _, symbol := range l.symbols {
		b := l.books[symbol]
		p := Position{
			Symbol:       symbol,
			Currency:     b.currency,
			Quantity:     b.lots.quantity(),
			CostBasis:    b.lots.cost(),
			RealizedGain: b.realized,
			Income:       b.income,
			Lots:         append([]Lot(nil), b.lots...),
		}
		if p.Quantity.IsPositive() {
			p.AverageCost = p.CostBasis.Div(p.Quantity)
		}
		if price, ok := prices[symbol]; ok {
			p.Price = price
			p.Priced = true
			p.MarketValue = p.Quantity.Mul(price)
			p.UnrealizedGain = p.MarketValue.Sub(p.CostBasis)
		}
		out = append(out, p)
	}
	return out
}

// Compute is Build followed by Positions.
func Compute(txns []Transaction, prices map[string]decimal.Decimal) ([]Position, error) {
	ledger, err := Build(txns)
	if err != nil {
		return nil, err
	}
	return ledger.Positions(prices), nil
}
