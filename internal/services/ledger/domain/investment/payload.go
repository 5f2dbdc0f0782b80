package investment

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/louisbranch/folio/internal/services/ledger/domain/event"
)

const (
	EventTypeAdded            event.Type = "investment.added"
	EventTypeRenamed          event.Type = "investment.renamed"
	EventTypeHoldingIncreased event.Type = "investment.holding_increased"
	EventTypeHoldingDecreased event.Type = "investment.holding_decreased"
	EventTypeHoldingAdjusted  event.Type = "investment.holding_adjusted"
	EventTypeHoldingReverted  event.Type = "investment.holding_reverted"
	EventTypeRemoved          event.Type = "investment.removed"
)

// Payload is the closed set of investment event payloads.
type Payload interface {
	event.Payload
	investmentPayload()
}

// AddedPayload starts (or restarts, after removal) an investment.
type AddedPayload struct {
	InvestmentID string `json:"investment_id"`
	PortfolioID  string `json:"portfolio_id"`
	Symbol       string `json:"symbol"`
	Name         string `json:"name"`
	Kind         Kind   `json:"kind"`
	Currency     string `json:"currency"`
}

// RenamedPayload carries the new display name.
type RenamedPayload struct {
	InvestmentID string `json:"investment_id"`
	Name         string `json:"name"`
}

// HoldingChange is shared by the holding payloads. HeldQuantity is the
// absolute quantity held after the change.
type HoldingChange struct {
	InvestmentID  string          `json:"investment_id"`
	PortfolioID   string          `json:"portfolio_id"`
	Symbol        string          `json:"symbol"`
	TransactionID string          `json:"transaction_id"`
	Quantity      decimal.Decimal `json:"quantity"`
	Date          time.Time       `json:"date"`
	HeldQuantity  decimal.Decimal `json:"held_quantity"`
}

// HoldingIncreasedPayload records a purchase.
type HoldingIncreasedPayload struct{ HoldingChange }

// HoldingDecreasedPayload records a sale.
type HoldingDecreasedPayload struct{ HoldingChange }

// HoldingAdjustedPayload records a corrected purchase or sale.
type HoldingAdjustedPayload struct{ HoldingChange }

// HoldingRevertedPayload drops a purchase or sale after cancellation.
// Quantity and Date are zero.
type HoldingRevertedPayload struct{ HoldingChange }

// RemovedPayload retires an investment with no remaining holdings.
type RemovedPayload struct {
	InvestmentID string `json:"investment_id"`
	PortfolioID  string `json:"portfolio_id"`
	Symbol       string `json:"symbol"`
}

func (AddedPayload) EventType() event.Type            { return EventTypeAdded }
func (RenamedPayload) EventType() event.Type          { return EventTypeRenamed }
func (HoldingIncreasedPayload) EventType() event.Type { return EventTypeHoldingIncreased }
func (HoldingDecreasedPayload) EventType() event.Type { return EventTypeHoldingDecreased }
func (HoldingAdjustedPayload) EventType() event.Type  { return EventTypeHoldingAdjusted }
func (HoldingRevertedPayload) EventType() event.Type  { return EventTypeHoldingReverted }
func (RemovedPayload) EventType() event.Type          { return EventTypeRemoved }

func (AddedPayload) investmentPayload()            {}
func (RenamedPayload) investmentPayload()          {}
func (HoldingIncreasedPayload) investmentPayload() {}
func (HoldingDecreasedPayload) investmentPayload() {}
func (HoldingAdjustedPayload) investmentPayload()  {}
func (HoldingRevertedPayload) investmentPayload()  {}
func (RemovedPayload) investmentPayload()          {}

// EventTypes lists every investment event type.
func EventTypes() []event.Type {
	return []event.Type{
		EventTypeAdded,
		EventTypeRenamed,
		EventTypeHoldingIncreased,
		EventTypeHoldingDecreased,
		EventTypeHoldingAdjusted,
		EventTypeHoldingReverted,
		EventTypeRemoved,
	}
}

// Decode returns the typed payload of an investment event.
func Decode(evt event.Event) (Payload, error) {
	switch evt.Type {
	case EventTypeAdded:
		return event.Decode[AddedPayload](evt)
	case EventTypeRenamed:
		return event.Decode[RenamedPayload](evt)
	case EventTypeHoldingIncreased:
		return event.Decode[HoldingIncreasedPayload](evt)
	case EventTypeHoldingDecreased:
		return event.Decode[HoldingDecreasedPayload](evt)
	case EventTypeHoldingAdjusted:
		return event.Decode[HoldingAdjustedPayload](evt)
	case EventTypeHoldingReverted:
		return event.Decode[HoldingRevertedPayload](evt)
	case EventTypeRemoved:
		return event.Decode[RemovedPayload](evt)
	default:
		return nil, fmt.Errorf("%w: %s", event.ErrTypeUnknown, evt.Type)
	}
}

// Register adds the investment event types to registry.
func Register(registry *event.Registry) error {
	for _, t := range EventTypes() {
		if err := registry.Register(event.Definition{Type: t, Aggregate: event.AggregateInvestment}); err != nil {
			return err
		}
	}
	return nil
}
