// Package investment implements the investment aggregate: one symbol held in
// one portfolio, with the quantity contributed by each buy and sell.
package investment

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/louisbranch/folio/internal/services/ledger/domain/aggregate"
	"github.com/louisbranch/folio/internal/services/ledger/domain/event"
)

// Kind classifies the instrument.
type Kind string

const (
	KindStock  Kind = "STOCK"
	KindETF    Kind = "ETF"
	KindFund   Kind = "FUND"
	KindBond   Kind = "BOND"
	KindCrypto Kind = "CRYPTO"
	KindOther  Kind = "OTHER"
)

// ParseKind normalizes a kind, defaulting empty input to STOCK.
func ParseKind(value string) (Kind, bool) {
	switch kind := Kind(strings.ToUpper(strings.TrimSpace(value))); kind {
	case "":
		return KindStock, true
	case KindStock, KindETF, KindFund, KindBond, KindCrypto, KindOther:
		return kind, true
	default:
		return "", false
	}
}

// Side says whether a holding entry adds or removes units.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Holding is the contribution of one transaction to the held quantity.
type Holding struct {
	Side     Side
	Quantity decimal.Decimal
	Date     time.Time
	// Order breaks ties between holdings on the same date.
	Order uint64
}

// State captures investment facts needed to decide commands.
type State struct {
	Created      bool
	Removed      bool
	InvestmentID string
	PortfolioID  string
	Symbol       string
	Name         string
	Kind         Kind
	Currency     string
	Held         decimal.Decimal
	Holdings     map[string]Holding
}

// Active reports whether the investment exists and has not been removed.
func (s State) Active() bool {
	return s.Created && !s.Removed
}

// EarliestPurchase returns the date of the first buy, if any.
func (s State) EarliestPurchase() (time.Time, bool) {
	var earliest time.Time
	found := false
	for _, h := range s.Holdings {
		if h.Side != SideBuy {
			continue
		}
		if !found || h.Date.Before(earliest) {
			earliest = h.Date
			found = true
		}
	}
	return earliest, found
}

// Holding returns the entry recorded for a transaction.
func (s State) Holding(transactionID string) (Holding, bool) {
	h, ok := s.Holdings[transactionID]
	return h, ok
}

// orderedHoldings returns holdings sorted by date then recording order.
func orderedHoldings(holdings map[string]Holding) []Holding {
	out := make([]Holding, 0, len(holdings))
	for _, h := range holdings {
		out = append(out, h)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Order < out[j].Order
	})
	return out
}

// Root is an investment aggregate instance.
type Root = aggregate.Root[State]

// IDFor derives the investment id for a symbol in a portfolio. Deriving the
// id makes the stream itself the uniqueness guard for (portfolio, symbol).
func IDFor(portfolioID, symbol string) string {
	return strings.TrimSpace(portfolioID) + "." + strings.ToLower(strings.TrimSpace(symbol))
}

// StreamID returns the stream backing investment id.
func StreamID(id string) string {
	return event.StreamID(event.AggregateInvestment, id)
}

// New returns an empty investment root.
func New(id string) Root {
	return aggregate.New(event.AggregateInvestment, id, State{})
}

// Load rebuilds an investment from its committed events.
func Load(id string, events []event.Event) (Root, error) {
	return aggregate.Replay(event.AggregateInvestment, id, State{}, events, Fold)
}
