package investment

import (
	"maps"

	"github.com/louisbranch/folio/internal/services/ledger/domain/event"
)

// Fold applies an investment event to state.
func Fold(state State, evt event.Event) (State, error) {
	payload, err := Decode(evt)
	if err != nil {
		return state, err
	}
	return apply(state, payload, evt.Seq), nil
}

func apply(state State, payload Payload, seq uint64) State {
	switch p := payload.(type) {
	case AddedPayload:
		return State{
			Created:      true,
			InvestmentID: p.InvestmentID,
			PortfolioID:  p.PortfolioID,
			Symbol:       p.Symbol,
			Name:         p.Name,
			Kind:         p.Kind,
			Currency:     p.Currency,
			Holdings:     map[string]Holding{},
		}
	case RenamedPayload:
		state.Name = p.Name
	case HoldingIncreasedPayload:
		state = withHolding(state, p.TransactionID, Holding{Side: SideBuy, Quantity: p.Quantity, Date: p.Date, Order: seq})
		state.Held = p.HeldQuantity
	case HoldingDecreasedPayload:
		state = withHolding(state, p.TransactionID, Holding{Side: SideSell, Quantity: p.Quantity, Date: p.Date, Order: seq})
		state.Held = p.HeldQuantity
	case HoldingAdjustedPayload:
		prev := state.Holdings[p.TransactionID]
		state = withHolding(state, p.TransactionID, Holding{Side: prev.Side, Quantity: p.Quantity, Date: p.Date, Order: prev.Order})
		state.Held = p.HeldQuantity
	case HoldingRevertedPayload:
		holdings := maps.Clone(state.Holdings)
		delete(holdings, p.TransactionID)
		state.Holdings = holdings
		state.Held = p.HeldQuantity
	case RemovedPayload:
		state.Removed = true
	}
	return state
}

func withHolding(state State, transactionID string, h Holding) State {
	holdings := maps.Clone(state.Holdings)
	if holdings == nil {
		holdings = map[string]Holding{}
	}
	holdings[transactionID] = h
	state.Holdings = holdings
	return state
}
