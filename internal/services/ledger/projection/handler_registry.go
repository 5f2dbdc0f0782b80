package projection

import (
	"context"
	"sort"

	"github.com/louisbranch/folio/internal/services/ledger/domain/event"
	"github.com/louisbranch/folio/internal/services/ledger/domain/investment"
	"github.com/louisbranch/folio/internal/services/ledger/domain/portfolio"
	"github.com/louisbranch/folio/internal/services/ledger/domain/transaction"
)

// Mutation is the kind of read-model change an event causes.
type Mutation string

const (
	MutationInsert Mutation = "insert"
	MutationUpdate Mutation = "update"
	MutationDelete Mutation = "delete"
)

type handlerEntry struct {
	mutation Mutation
	apply    func(Applier, context.Context, event.Event) error
}

var handlers = map[event.Type]handlerEntry{
	// portfolio
	portfolio.EventTypeCreated: {
		mutation: MutationInsert,
		apply:    func(a Applier, ctx context.Context, evt event.Event) error { return a.applyPortfolioCreated(ctx, evt) },
	},
	portfolio.EventTypeRenamed: {
		mutation: MutationUpdate,
		apply:    func(a Applier, ctx context.Context, evt event.Event) error { return a.applyPortfolioRenamed(ctx, evt) },
	},
	portfolio.EventTypeDescriptionChanged: {
		mutation: MutationUpdate,
		apply: func(a Applier, ctx context.Context, evt event.Event) error {
			return a.applyPortfolioDescriptionChanged(ctx, evt)
		},
	},
	portfolio.EventTypeClosed: {
		mutation: MutationDelete,
		apply:    func(a Applier, ctx context.Context, evt event.Event) error { return a.applyPortfolioClosed(ctx, evt) },
	},

	// investment
	investment.EventTypeAdded: {
		mutation: MutationInsert,
		apply:    func(a Applier, ctx context.Context, evt event.Event) error { return a.applyInvestmentAdded(ctx, evt) },
	},
	investment.EventTypeRenamed: {
		mutation: MutationUpdate,
		apply:    func(a Applier, ctx context.Context, evt event.Event) error { return a.applyInvestmentRenamed(ctx, evt) },
	},
	investment.EventTypeHoldingIncreased: {
		mutation: MutationUpdate,
		apply:    func(a Applier, ctx context.Context, evt event.Event) error { return a.applyHoldingChanged(ctx, evt) },
	},
	investment.EventTypeHoldingDecreased: {
		mutation: MutationUpdate,
		apply:    func(a Applier, ctx context.Context, evt event.Event) error { return a.applyHoldingChanged(ctx, evt) },
	},
	investment.EventTypeHoldingAdjusted: {
		mutation: MutationUpdate,
		apply:    func(a Applier, ctx context.Context, evt event.Event) error { return a.applyHoldingChanged(ctx, evt) },
	},
	investment.EventTypeHoldingReverted: {
		mutation: MutationUpdate,
		apply:    func(a Applier, ctx context.Context, evt event.Event) error { return a.applyHoldingChanged(ctx, evt) },
	},
	investment.EventTypeRemoved: {
		mutation: MutationDelete,
		apply:    func(a Applier, ctx context.Context, evt event.Event) error { return a.applyInvestmentRemoved(ctx, evt) },
	},

	// transaction
	transaction.EventTypeRecorded: {
		mutation: MutationInsert,
		apply:    func(a Applier, ctx context.Context, evt event.Event) error { return a.applyTransactionRecorded(ctx, evt) },
	},
	transaction.EventTypeUpdated: {
		mutation: MutationUpdate,
		apply:    func(a Applier, ctx context.Context, evt event.Event) error { return a.applyTransactionUpdated(ctx, evt) },
	},
	transaction.EventTypeCancelled: {
		mutation: MutationUpdate,
		apply:    func(a Applier, ctx context.Context, evt event.Event) error { return a.applyTransactionCancelled(ctx, evt) },
	},
}

// HandledTypes returns the event types with a projection handler, sorted.
func HandledTypes() []event.Type {
	types := make([]event.Type, 0, len(handlers))
	for t := range handlers {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// MutationFor reports the mutation kind of an event type.
func MutationFor(t event.Type) (Mutation, bool) {
	h, ok := handlers[t]
	return h.mutation, ok
}
