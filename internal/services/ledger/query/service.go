// Package query answers read-side questions from the projected read models.
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	apperrors "github.com/louisbranch/folio/internal/platform/errors"
	"github.com/louisbranch/folio/internal/services/ledger/domain/position"
	"github.com/louisbranch/folio/internal/services/ledger/storage"
)

// ErrStoreRequired indicates a Service built without a read model store.
var ErrStoreRequired = errors.New("read model store is required")

// Service reads portfolios, transactions and derived positions.
type Service struct {
	store    storage.ReadModelStore
	cache    *position.Cache
	progress Progress
	consumer string
	logger   zerolog.Logger
}

// Progress exposes stream heads and a consumer's cursors.
type Progress interface {
	ListStreams(ctx context.Context) ([]storage.StreamInfo, error)
	ListCursors(ctx context.Context, consumer string) ([]storage.Cursor, error)
}

// Option configures a Service.
type Option func(*Service)

// WithCache memoizes position ledgers per portfolio transaction set.
func WithCache(cache *position.Cache) Option {
	return func(s *Service) { s.cache = cache }
}

// WithProgress lets position queries tell projection lag from a real
// shortfall by comparing consumer's cursors with the stream heads.
func WithProgress(progress Progress, consumer string) Option {
	return func(s *Service) {
		s.progress = progress
		s.consumer = consumer
	}
}

// WithLogger sets the query logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// NewService builds a Service over store.
func NewService(store storage.ReadModelStore, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	s := &Service{store: store, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// PortfolioSummary is a portfolio with its investments and held quantities.
type PortfolioSummary struct {
	Portfolio   storage.PortfolioRecord
	Investments []storage.InvestmentRecord
	Positions   []storage.PositionRecord
}

// PortfolioSummary returns the projected state of one portfolio.
func (s *Service) PortfolioSummary(ctx context.Context, portfolioID string) (PortfolioSummary, error) {
	portfolioID = strings.TrimSpace(portfolioID)
	if portfolioID == "" {
		return PortfolioSummary{}, apperrors.New(apperrors.CodePortfolioIDRequired, "portfolio id is required")
	}
	rec, err := s.store.GetPortfolio(ctx, portfolioID)
	if err != nil {
		return PortfolioSummary{}, fmt.Errorf("get portfolio %s: %w", portfolioID, err)
	}
	investments, err := s.store.ListInvestments(ctx, portfolioID)
	if err != nil {
		return PortfolioSummary{}, fmt.Errorf("list investments: %w", err)
	}
	positions, err := s.store.ListPositions(ctx, portfolioID)
	if err != nil {
		return PortfolioSummary{}, fmt.Errorf("list positions: %w", err)
	}
	return PortfolioSummary{Portfolio: rec, Investments: investments, Positions: positions}, nil
}

// ListPortfolios returns every portfolio.
func (s *Service) ListPortfolios(ctx context.Context) ([]storage.PortfolioRecord, error) {
	return s.store.ListPortfolios(ctx)
}

// ListTransactions returns transactions matching filter ordered by date then
// commit position. A portfolio or investment is required.
func (s *Service) ListTransactions(ctx context.Context, filter storage.TransactionFilter) ([]storage.TransactionRecord, error) {
	if strings.TrimSpace(filter.PortfolioID) == "" && strings.TrimSpace(filter.InvestmentID) == "" {
		return nil, apperrors.New(apperrors.CodePortfolioIDRequired, "portfolio or investment id is required")
	}
	return s.store.ListTransactions(ctx, filter)
}
