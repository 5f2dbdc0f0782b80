// Package transaction implements the transaction aggregate: a dated buy,
// sell, dividend or interest entry against one investment.
package transaction

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/louisbranch/folio/internal/services/ledger/domain/aggregate"
	"github.com/louisbranch/folio/internal/services/ledger/domain/event"
	"github.com/louisbranch/folio/internal/services/ledger/domain/money"
)

// Type is the transaction kind.
type Type string

const (
	TypeBuy      Type = "BUY"
	TypeSell     Type = "SELL"
	TypeDividend Type = "DIVIDEND"
	TypeInterest Type = "INTEREST"
)

// ParseType normalizes a transaction type.
func ParseType(value string) (Type, bool) {
	switch t := Type(strings.ToUpper(strings.TrimSpace(value))); t {
	case TypeBuy, TypeSell, TypeDividend, TypeInterest:
		return t, true
	default:
		return "", false
	}
}

// Trade reports whether the type moves units.
func (t Type) Trade() bool {
	return t == TypeBuy || t == TypeSell
}

// Income reports whether the type is a cash distribution.
func (t Type) Income() bool {
	return t == TypeDividend || t == TypeInterest
}

// Status is the lifecycle state of a transaction.
type Status string

const (
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
)

// State captures transaction facts needed to decide commands.
type State struct {
	Created       bool
	TransactionID string
	InvestmentID  string
	PortfolioID   string
	Symbol        string
	Type          Type
	Date          time.Time
	Quantity      decimal.Decimal
	Price         money.Money
	Fee           money.Money
	Amount        money.Money
	Currency      string
	Notes         string
	Status        Status
	CancelReason  string
}

// Root is a transaction aggregate instance.
type Root = aggregate.Root[State]

// StreamID returns the stream backing transaction id.
func StreamID(id string) string {
	return event.StreamID(event.AggregateTransaction, id)
}

// New returns an empty transaction root.
func New(id string) Root {
	return aggregate.New(event.AggregateTransaction, id, State{})
}

// Load rebuilds a transaction from its committed events.
func Load(id string, events []event.Event) (Root, error) {
	return aggregate.Replay(event.AggregateTransaction, id, State{}, events, Fold)
}
