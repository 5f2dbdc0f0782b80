package transaction

import "github.com/louisbranch/folio/internal/services/ledger/domain/event"

// Fold applies a transaction event to state.
func Fold(state State, evt event.Event) (State, error) {
	payload, err := Decode(evt)
	if err != nil {
		return state, err
	}
	return apply(state, payload), nil
}

func apply(state State, payload Payload) State {
	switch p := payload.(type) {
	case RecordedPayload:
		return State{
			Created:       true,
			TransactionID: p.TransactionID,
			InvestmentID:  p.InvestmentID,
			PortfolioID:   p.PortfolioID,
			Symbol:        p.Symbol,
			Type:          p.Type,
			Date:          p.Date,
			Quantity:      p.Quantity,
			Price:         p.Price,
			Fee:           p.Fee,
			Amount:        p.Amount,
			Currency:      p.Currency,
			Notes:         p.Notes,
			Status:        StatusActive,
		}
	case UpdatedPayload:
		state.Date = p.Date
		state.Quantity = p.Quantity
		state.Price = p.Price
		state.Fee = p.Fee
		state.Amount = p.Amount
		state.Notes = p.Notes
	case CancelledPayload:
		state.Status = StatusCancelled
		state.CancelReason = p.Reason
	}
	return state
}
