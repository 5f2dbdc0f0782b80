package transaction

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/louisbranch/folio/internal/services/ledger/domain/event"
	"github.com/louisbranch/folio/internal/services/ledger/domain/money"
)

const (
	EventTypeRecorded  event.Type = "transaction.recorded"
	EventTypeUpdated   event.Type = "transaction.updated"
	EventTypeCancelled event.Type = "transaction.cancelled"
)

// Payload is the closed set of transaction event payloads.
type Payload interface {
	event.Payload
	transactionPayload()
}

// RecordedPayload captures a new transaction in full.
type RecordedPayload struct {
	TransactionID string          `json:"transaction_id"`
	InvestmentID  string          `json:"investment_id"`
	PortfolioID   string          `json:"portfolio_id"`
	Symbol        string          `json:"symbol"`
	Type          Type            `json:"type"`
	Date          time.Time       `json:"date"`
	Quantity      decimal.Decimal `json:"quantity"`
	Price         money.Money     `json:"price"`
	Fee           money.Money     `json:"fee"`
	Amount        money.Money     `json:"amount"`
	Currency      string          `json:"currency"`
	Notes         string          `json:"notes,omitempty"`
}

// UpdatedPayload carries every mutable field after the update.
type UpdatedPayload struct {
	TransactionID string          `json:"transaction_id"`
	Date          time.Time       `json:"date"`
	Quantity      decimal.Decimal `json:"quantity"`
	Price         money.Money     `json:"price"`
	Fee           money.Money     `json:"fee"`
	Amount        money.Money     `json:"amount"`
	Notes         string          `json:"notes,omitempty"`
}

// CancelledPayload voids a transaction.
type CancelledPayload struct {
	TransactionID string `json:"transaction_id"`
	Reason        string `json:"reason,omitempty"`
}

func (RecordedPayload) EventType() event.Type  { return EventTypeRecorded }
func (UpdatedPayload) EventType() event.Type   { return EventTypeUpdated }
func (CancelledPayload) EventType() event.Type { return EventTypeCancelled }

func (RecordedPayload) transactionPayload()  {}
func (UpdatedPayload) transactionPayload()   {}
func (CancelledPayload) transactionPayload() {}

// EventTypes lists every transaction event type.
func EventTypes() []event.Type {
	return []event.Type{EventTypeRecorded, EventTypeUpdated, EventTypeCancelled}
}

// Decode returns the typed payload of a transaction event.
func Decode(evt event.Event) (Payload, error) {
	switch evt.Type {
	case EventTypeRecorded:
		return event.Decode[RecordedPayload](evt)
	case EventTypeUpdated:
		return event.Decode[UpdatedPayload](evt)
	case EventTypeCancelled:
		return event.Decode[CancelledPayload](evt)
	default:
		return nil, fmt.Errorf("%w: %s", event.ErrTypeUnknown, evt.Type)
	}
}

// Register adds the transaction event types to registry.
func Register(registry *event.Registry) error {
	for _, t := range EventTypes() {
		if err := registry.Register(event.Definition{Type: t, Aggregate: event.AggregateTransaction}); err != nil {
			return err
		}
	}
	return nil
}
