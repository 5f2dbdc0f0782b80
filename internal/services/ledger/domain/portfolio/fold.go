package portfolio

import (
	"github.com/louisbranch/folio/internal/services/ledger/domain/event"
)

// Fold applies a portfolio event to state.
func Fold(state State, evt event.Event) (State, error) {
	payload, err := Decode(evt)
	if err != nil {
		return state, err
	}
	return apply(state, payload), nil
}

func apply(state State, payload Payload) State {
	switch p := payload.(type) {
	case CreatedPayload:
		return State{
			Created:     true,
			PortfolioID: p.PortfolioID,
			Name:        p.Name,
			Description: p.Description,
			Currency:    p.Currency,
			Status:      StatusOpen,
		}
	case RenamedPayload:
		state.Name = p.Name
	case DescriptionChangedPayload:
		state.Description = p.Description
	case ClosedPayload:
		state.Status = StatusClosed
	}
	return state
}
