// Package storage declares the persistence contracts of the ledger: the
// append-only event store, per-consumer stream cursors and the read models
// maintained by projections.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/louisbranch/folio/internal/platform/errors"
	"github.com/louisbranch/folio/internal/services/ledger/domain/event"
	"github.com/louisbranch/folio/internal/services/ledger/domain/investment"
	"github.com/louisbranch/folio/internal/services/ledger/domain/money"
	"github.com/louisbranch/folio/internal/services/ledger/domain/portfolio"
	"github.com/louisbranch/folio/internal/services/ledger/domain/transaction"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

// ErrConcurrencyConflict indicates an append whose expected version no
// longer matches the stream.
var ErrConcurrencyConflict = apperrors.New(apperrors.CodeConcurrencyConflict, "concurrency conflict")

// ConflictError describes a rejected append.
type ConflictError struct {
	StreamID string
	Expected uint64
	Actual   uint64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("concurrency conflict on %s: expected version %d, current %d", e.StreamID, e.Expected, e.Actual)
}

// Is makes errors.Is(err, ErrConcurrencyConflict) hold.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConcurrencyConflict || errors.Is(ErrConcurrencyConflict, target)
}

// IsConflict reports whether err is a concurrency conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}

// StreamAppend is one stream's share of an atomic batch.
type StreamAppend struct {
	StreamID        string
	ExpectedVersion uint64
	Events          []event.Event
}

// StreamInfo describes a stream head.
type StreamInfo struct {
	StreamID      string
	AggregateType event.AggregateType
	EntityID      string
	Version       uint64
	UpdatedAt     time.Time
}

// EventStore is the append-only commit log.
type EventStore interface {
	// Append commits events at expectedVersion and returns the new version.
	// Nothing is written on conflict.
	Append(ctx context.Context, streamID string, expectedVersion uint64, events []event.Event) (uint64, error)
	// AppendBatch commits several streams atomically; either every stream
	// advances or none does.
	AppendBatch(ctx context.Context, appends []StreamAppend) ([]uint64, error)
	// Load returns every event of a stream in sequence order and its version.
	Load(ctx context.Context, streamID string) ([]event.Event, uint64, error)
	// ListEvents returns up to limit events with seq > afterSeq.
	ListEvents(ctx context.Context, streamID string, afterSeq uint64, limit int) ([]event.Event, error)
	// ListStreams returns every stream head ordered by stream id.
	ListStreams(ctx context.Context) ([]StreamInfo, error)
}

// CursorStatus is the lifecycle of a consumer cursor.
type CursorStatus string

const (
	CursorActive CursorStatus = "active"
	CursorHalted CursorStatus = "halted"
)

// Cursor is a consumer's durable position in one stream.
type Cursor struct {
	Consumer      string
	StreamID      string
	AppliedSeq    uint64
	Status        CursorStatus
	Attempts      int
	NextAttemptAt time.Time
	LastError     string
	UpdatedAt     time.Time
}

// CursorStore persists consumer cursors.
type CursorStore interface {
	// GetCursor returns ErrNotFound when the consumer never touched the stream.
	GetCursor(ctx context.Context, consumer, streamID string) (Cursor, error)
	ListCursors(ctx context.Context, consumer string) ([]Cursor, error)
	// AdvanceCursor records seq as applied and clears any retry state.
	AdvanceCursor(ctx context.Context, consumer, streamID string, seq uint64, at time.Time) error
	// ScheduleRetry keeps the position and records a failed attempt.
	ScheduleRetry(ctx context.Context, consumer, streamID string, attempts int, next time.Time, lastErr string, at time.Time) error
	// HaltCursor stops the consumer on this stream until resumed.
	HaltCursor(ctx context.Context, consumer, streamID string, lastErr string, at time.Time) error
	// ResumeCursor reactivates a halted cursor at its current position.
	ResumeCursor(ctx context.Context, consumer, streamID string, at time.Time) error
	// ResetCursors deletes every cursor of a consumer.
	ResetCursors(ctx context.Context, consumer string) error
}

// PortfolioRecord is the portfolio read model.
type PortfolioRecord struct {
	ID          string
	Name        string
	Description string
	Currency    string
	Status      portfolio.Status
	Version     uint64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// InvestmentRecord is the investment read model.
type InvestmentRecord struct {
	ID          string
	PortfolioID string
	Symbol      string
	Name        string
	Kind        investment.Kind
	Currency    string
	Version     uint64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PositionRecord is the held quantity of a symbol in a portfolio.
type PositionRecord struct {
	PortfolioID  string
	Symbol       string
	InvestmentID string
	Quantity     decimal.Decimal
	UpdatedAt    time.Time
}

// TransactionRecord is the transaction read model.
type TransactionRecord struct {
	ID           string
	PortfolioID  string
	InvestmentID string
	Symbol       string
	Type         transaction.Type
	Date         time.Time
	Quantity     decimal.Decimal
	Price        money.Money
	Fee          money.Money
	Amount       money.Money
	Currency     string
	Notes        string
	Status       transaction.Status
	CancelReason string
	Version      uint64
	// Position is the commit position of the recording event.
	Position  uint64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TransactionFilter narrows ListTransactions.
type TransactionFilter struct {
	PortfolioID      string
	InvestmentID     string
	Symbol           string
	IncludeCancelled bool
}

// ReadModelStore persists projection output.
type ReadModelStore interface {
	PutPortfolio(ctx context.Context, rec PortfolioRecord) error
	GetPortfolio(ctx context.Context, id string) (PortfolioRecord, error)
	ListPortfolios(ctx context.Context) ([]PortfolioRecord, error)
	DeletePortfolio(ctx context.Context, id string) error

	PutInvestment(ctx context.Context, rec InvestmentRecord) error
	GetInvestment(ctx context.Context, id string) (InvestmentRecord, error)
	DeleteInvestment(ctx context.Context, id string) error
	ListInvestments(ctx context.Context, portfolioID string) ([]InvestmentRecord, error)

	PutPosition(ctx context.Context, rec PositionRecord) error
	DeletePosition(ctx context.Context, portfolioID, symbol string) error
	ListPositions(ctx context.Context, portfolioID string) ([]PositionRecord, error)

	PutTransaction(ctx context.Context, rec TransactionRecord) error
	GetTransaction(ctx context.Context, id string) (TransactionRecord, error)
	// ListTransactions orders by date then commit position.
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]TransactionRecord, error)

	// TruncateReadModels deletes every read model row.
	TruncateReadModels(ctx context.Context) error
}

// Store is the composite persistence surface of the ledger.
type Store interface {
	EventStore
	CursorStore
	ReadModelStore
	Close() error
}

// ValidateAppends checks batch addressing shared by every EventStore.
func ValidateAppends(appends []StreamAppend) error {
	seen := make(map[string]bool, len(appends))
	for _, a := range appends {
		if a.StreamID == "" {
			return event.ErrStreamIDRequired
		}
		if seen[a.StreamID] {
			return fmt.Errorf("stream %s appears twice in batch", a.StreamID)
		}
		seen[a.StreamID] = true
		if len(a.Events) == 0 {
			return fmt.Errorf("stream %s: no events to append", a.StreamID)
		}
		for _, evt := range a.Events {
			if evt.StreamID != a.StreamID {
				return fmt.Errorf("event for %s appended to %s", evt.StreamID, a.StreamID)
			}
		}
	}
	return nil
}
