// Package catalog assembles the registry of every ledger event type.
package catalog

import (
	"fmt"

	"github.com/louisbranch/folio/internal/services/ledger/domain/event"
	"github.com/louisbranch/folio/internal/services/ledger/domain/investment"
	"github.com/louisbranch/folio/internal/services/ledger/domain/portfolio"
	"github.com/louisbranch/folio/internal/services/ledger/domain/transaction"
)

// NewRegistry returns a registry holding the portfolio, investment and
// transaction event types.
func NewRegistry() (*event.Registry, error) {
	registry := event.NewRegistry()
	for name, register := range map[string]func(*event.Registry) error{
		"portfolio":   portfolio.Register,
		"investment":  investment.Register,
		"transaction": transaction.Register,
	} {
		if err := register(registry); err != nil {
			return nil, fmt.Errorf("register %s events: %w", name, err)
		}
	}
	return registry, nil
}

// MustRegistry is NewRegistry for static wiring; registration only fails on
// duplicate types.
func MustRegistry() *event.Registry {
	registry, err := NewRegistry()
	if err != nil {
		panic(err)
	}
	return registry
}

// Types returns every ledger event type.
func Types() []event.Type {
	var types []event.Type
	types = append(types, portfolio.EventTypes()...)
	types = append(types, investment.EventTypes()...)
	types = append(types, transaction.EventTypes()...)
	return types
}

// Decode returns the typed payload of any ledger event.
func Decode(evt event.Event) (event.Payload, error) {
	switch evt.AggregateType {
	case event.AggregatePortfolio:
		return portfolio.Decode(evt)
	case event.AggregateInvestment:
		return investment.Decode(evt)
	case event.AggregateTransaction:
		return transaction.Decode(evt)
	default:
		return nil, fmt.Errorf("%w: aggregate %q", event.ErrTypeUnknown, evt.AggregateType)
	}
}

// Verify replays a stream through its aggregate and returns the folded version.
func Verify(aggregateType event.AggregateType, entityID string, events []event.Event) (uint64, error) {
	switch aggregateType {
	case event.AggregatePortfolio:
		root, err := portfolio.Load(entityID, events)
		return root.Version, err
	case event.AggregateInvestment:
		root, err := investment.Load(entityID, events)
		return root.Version, err
	case event.AggregateTransaction:
		root, err := transaction.Load(entityID, events)
		return root.Version, err
	default:
		return 0, fmt.Errorf("%w: aggregate %q", event.ErrTypeUnknown, aggregateType)
	}
}
