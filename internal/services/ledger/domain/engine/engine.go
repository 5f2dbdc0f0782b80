package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/louisbranch/folio/internal/platform/id"
	foliootel "github.com/louisbranch/folio/internal/platform/otel"
	"github.com/louisbranch/folio/internal/services/ledger/domain/event"
	"github.com/louisbranch/folio/internal/services/ledger/domain/investment"
	"github.com/louisbranch/folio/internal/services/ledger/domain/portfolio"
	"github.com/louisbranch/folio/internal/services/ledger/domain/transaction"
	"github.com/louisbranch/folio/internal/services/ledger/storage"
)

// Service executes ledger commands against an event store.
type Service struct {
	store  storage.EventStore
	now    func() time.Time
	newID  func() (string, error)
	tracer trace.Tracer
	logger zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the command clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides generation of portfolio and transaction ids.
func WithIDGenerator(newID func() (string, error)) Option {
	return func(s *Service) { s.newID = newID }
}

// WithTracer overrides the command tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) { s.tracer = tracer }
}

// WithLogger sets the command logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// New builds a Service over store.
func New(store storage.EventStore, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	s := &Service{
		store:  store,
		now:    time.Now,
		newID:  id.NewID,
		tracer: foliootel.Tracer("engine"),
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Result reports the stream versions a command produced. Versions are
// unchanged when the command was a no-op.
type Result struct {
	// ID is the primary entity the command addressed.
	ID      string
	Version uint64
	// InvestmentVersion is set by commands that also move an investment.
	InvestmentVersion uint64
}

type pendingAppend struct {
	streamID string
	expected uint64
	events   []event.Event
}

func (s *Service) start(ctx context.Context, command string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "engine."+command, trace.WithAttributes(attrs...))
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// commit appends every non-empty pending slice atomically and returns the
// new versions in input order. Streams without events keep their expected
// version.
func (s *Service) commit(ctx context.Context, command string, pending ...pendingAppend) ([]uint64, error) {
	versions := make([]uint64, len(pending))
	var appends []storage.StreamAppend
	var index []int
	for i, p := range pending {
		versions[i] = p.expected
		if len(p.events) == 0 {
			continue
		}
		appends = append(appends, storage.StreamAppend{StreamID: p.streamID, ExpectedVersion: p.expected, Events: p.events})
		index = append(index, i)
	}
	if len(appends) == 0 {
		return versions, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	committed, err := s.store.AppendBatch(ctx, appends)
	if err != nil {
		return nil, err
	}
	log := s.logger.Debug().Str("command", command)
	for j, i := range index {
		versions[i] = committed[j]
		log = log.Uint64(appends[j].StreamID, committed[j])
	}
	log.Msg("command committed")
	return versions, nil
}

func (s *Service) loadPortfolio(ctx context.Context, portfolioID string) (portfolio.Root, error) {
	events, _, err := s.store.Load(ctx, portfolio.StreamID(portfolioID))
	if err != nil {
		return portfolio.Root{}, fmt.Errorf("load portfolio %s: %w", portfolioID, err)
	}
	return portfolio.Load(portfolioID, events)
}

func (s *Service) loadInvestment(ctx context.Context, investmentID string) (investment.Root, error) {
	events, _, err := s.store.Load(ctx, investment.StreamID(investmentID))
	if err != nil {
		return investment.Root{}, fmt.Errorf("load investment %s: %w", investmentID, err)
	}
	return investment.Load(investmentID, events)
}

func (s *Service) loadTransaction(ctx context.Context, transactionID string) (transaction.Root, error) {
	events, _, err := s.store.Load(ctx, transaction.StreamID(transactionID))
	if err != nil {
		return transaction.Root{}, fmt.Errorf("load transaction %s: %w", transactionID, err)
	}
	return transaction.Load(transactionID, events)
}

// loadHolding loads an active investment and its owning portfolio.
func (s *Service) loadHolding(ctx context.Context, investmentID string) (investment.Root, portfolio.Root, error) {
	inv, err := s.loadInvestment(ctx, investmentID)
	if err != nil {
		return investment.Root{}, portfolio.Root{}, err
	}
	if err := investment.RequireActive(inv.State); err != nil {
		return investment.Root{}, portfolio.Root{}, err
	}
	owner, err := s.loadPortfolio(ctx, inv.State.PortfolioID)
	if err != nil {
		return investment.Root{}, portfolio.Root{}, err
	}
	return inv, owner, nil
}

func (s *Service) entityID(requested string) (string, error) {
	requested = strings.TrimSpace(requested)
	if requested != "" {
		return requested, nil
	}
	generated, err := s.newID()
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return generated, nil
}
