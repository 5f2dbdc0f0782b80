package portfolio

import (
	"fmt"

	"github.com/louisbranch/folio/internal/services/ledger/domain/event"
)

const (
	EventTypeCreated            event.Type = "portfolio.created"
	EventTypeRenamed            event.Type = "portfolio.renamed"
	EventTypeDescriptionChanged event.Type = "portfolio.description_changed"
	EventTypeClosed             event.Type = "portfolio.closed"
)

// Payload is the closed set of portfolio event payloads.
type Payload interface {
	event.Payload
	portfolioPayload()
}

// CreatedPayload opens a portfolio.
type CreatedPayload struct {
	PortfolioID string `json:"portfolio_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Currency    string `json:"currency"`
}

// RenamedPayload carries the new name.
type RenamedPayload struct {
	PortfolioID string `json:"portfolio_id"`
	Name        string `json:"name"`
}

// DescriptionChangedPayload carries the new description.
type DescriptionChangedPayload struct {
	PortfolioID string `json:"portfolio_id"`
	Description string `json:"description"`
}

// ClosedPayload closes a portfolio for good.
type ClosedPayload struct {
	PortfolioID string `json:"portfolio_id"`
}

func (CreatedPayload) EventType() event.Type            { return EventTypeCreated }
func (RenamedPayload) EventType() event.Type            { return EventTypeRenamed }
func (DescriptionChangedPayload) EventType() event.Type { return EventTypeDescriptionChanged }
func (ClosedPayload) EventType() event.Type             { return EventTypeClosed }

func (CreatedPayload) portfolioPayload()            {}
func (RenamedPayload) portfolioPayload()            {}
func (DescriptionChangedPayload) portfolioPayload() {}
func (ClosedPayload) portfolioPayload()             {}

// EventTypes lists every portfolio event type.
func EventTypes() []event.Type {
	return []event.Type{EventTypeCreated, EventTypeRenamed, EventTypeDescriptionChanged, EventTypeClosed}
}

// Decode returns the typed payload of a portfolio event.
func Decode(evt event.Event) (Payload, error) {
	switch evt.Type {
	case EventTypeCreated:
		return event.Decode[CreatedPayload](evt)
	case EventTypeRenamed:
		return event.Decode[RenamedPayload](evt)
	case EventTypeDescriptionChanged:
		return event.Decode[DescriptionChangedPayload](evt)
	case EventTypeClosed:
		return event.Decode[ClosedPayload](evt)
	default:
		return nil, fmt.Errorf("%w: %s", event.ErrTypeUnknown, evt.Type)
	}
}

// Register adds the portfolio event types to registry.
func Register(registry *event.Registry) error {
	for _, t := range EventTypes() {
		if err := registry.Register(event.Definition{Type: t, Aggregate: event.AggregatePortfolio}); err != nil {
			return err
		}
	}
	return nil
}
