// Package portfolio implements the portfolio aggregate: a named, single
// currency container of investments that can be renamed and closed.
package portfolio

import (
	"github.com/louisbranch/folio/internal/services/ledger/domain/aggregate"
	"github.com/louisbranch/folio/internal/services/ledger/domain/event"
)

// Status is the lifecycle state of a portfolio.
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// State captures portfolio facts needed to decide commands.
type State struct {
	Created     bool
	PortfolioID string
	Name        string
	Description string
	Currency    string
	Status      Status
}

// Open reports whether the portfolio exists and accepts changes.
func (s State) Open() bool {
	return s.Created && s.Status == StatusOpen
}

// Root is a portfolio aggregate instance.
type Root = aggregate.Root[State]

// StreamID returns the stream backing portfolio id.
func StreamID(id string) string {
	return event.StreamID(event.AggregatePortfolio, id)
}

// New returns an empty, uncreated portfolio root.
func New(id string) Root {
	return aggregate.New(event.AggregatePortfolio, id, State{})
}

// Load rebuilds a portfolio from its committed events.
func Load(id string, events []event.Event) (Root, error) {
	return aggregate.Replay(event.AggregatePortfolio, id, State{}, events, Fold)
}
