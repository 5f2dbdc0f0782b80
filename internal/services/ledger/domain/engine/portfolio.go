package engine

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	apperrors "github.com/louisbranch/folio/internal/platform/errors"
	"github.com/louisbranch/folio/internal/services/ledger/domain/event"
	"github.com/louisbranch/folio/internal/services/ledger/domain/portfolio"
	"github.com/louisbranch/folio/internal/services/ledger/storage"
)

// CreatePortfolio opens a portfolio. ID is generated when empty.
type CreatePortfolio struct {
	ID          string
	Name        string
	Description string
	Currency    string
}

// RenamePortfolio changes a portfolio name.
type RenamePortfolio struct {
	PortfolioID string
	Name        string
}

// DescribePortfolio replaces a portfolio description.
type DescribePortfolio struct {
	PortfolioID string
	Description string
}

// ClosePortfolio closes a portfolio.
type ClosePortfolio struct {
	PortfolioID string
}

// CreatePortfolio executes cmd.
func (s *Service) CreatePortfolio(ctx context.Context, cmd CreatePortfolio) (res Result, err error) {
	ctx, span := s.start(ctx, "CreatePortfolio")
	defer func() { finish(span, err) }()

	portfolioID, err := s.entityID(cmd.ID)
	if err != nil {
		return Result{}, err
	}
	span.SetAttributes(attribute.String("portfolio_id", portfolioID))
	existing, err := s.loadPortfolio(ctx, portfolioID)
	if err != nil {
		return Result{}, err
	}
	if existing.Exists() {
		return Result{}, portfolioExists(portfolioID)
	}
	root, events, err := portfolio.Create(portfolioID, cmd.Name, cmd.Description, cmd.Currency, s.now())
	if err != nil {
		return Result{}, err
	}
	versions, err := s.commit(ctx, "CreatePortfolio", pendingAppend{root.StreamID, root.ExpectedVersion(), events})
	if err != nil {
		if storage.IsConflict(err) {
			return Result{}, portfolioExists(portfolioID)
		}
		return Result{}, err
	}
	return Result{ID: portfolioID, Version: versions[0]}, nil
}

// RenamePortfolio executes cmd.
func (s *Service) RenamePortfolio(ctx context.Context, cmd RenamePortfolio) (res Result, err error) {
	ctx, span := s.start(ctx, "RenamePortfolio", attribute.String("portfolio_id", cmd.PortfolioID))
	defer func() { finish(span, err) }()
	return s.updatePortfolio(ctx, "RenamePortfolio", cmd.PortfolioID, func(root portfolio.Root) (portfolio.Root, []event.Event, error) {
		return portfolio.Rename(root, cmd.Name, s.now())
	})
}

// DescribePortfolio executes cmd.
func (s *Service) DescribePortfolio(ctx context.Context, cmd DescribePortfolio) (res Result, err error) {
	ctx, span := s.start(ctx, "DescribePortfolio", attribute.String("portfolio_id", cmd.PortfolioID))
	defer func() { finish(span, err) }()
	return s.updatePortfolio(ctx, "DescribePortfolio", cmd.PortfolioID, func(root portfolio.Root) (portfolio.Root, []event.Event, error) {
		return portfolio.Describe(root, cmd.Description, s.now())
	})
}

// ClosePortfolio executes cmd.
func (s *Service) ClosePortfolio(ctx context.Context, cmd ClosePortfolio) (res Result, err error) {
	ctx, span := s.start(ctx, "ClosePortfolio", attribute.String("portfolio_id", cmd.PortfolioID))
	defer func() { finish(span, err) }()
	return s.updatePortfolio(ctx, "ClosePortfolio", cmd.PortfolioID, func(root portfolio.Root) (portfolio.Root, []event.Event, error) {
		return portfolio.Close(root, s.now())
	})
}

func (s *Service) updatePortfolio(ctx context.Context, command, portfolioID string, decide func(portfolio.Root) (portfolio.Root, []event.Event, error)) (Result, error) {
	if portfolioID == "" {
		return Result{}, apperrors.New(apperrors.CodePortfolioIDRequired, "portfolio id is required")
	}
	root, err := s.loadPortfolio(ctx, portfolioID)
	if err != nil {
		return Result{}, err
	}
	root, events, err := decide(root)
	if err != nil {
		return Result{}, err
	}
	versions, err := s.commit(ctx, command, pendingAppend{root.StreamID, root.ExpectedVersion(), events})
	if err != nil {
		return Result{}, err
	}
	return Result{ID: portfolioID, Version: versions[0]}, nil
}

func portfolioExists(portfolioID string) error {
	return apperrors.WithMetadata(apperrors.CodePortfolioAlreadyExists, "portfolio already exists", map[string]string{
		"portfolio_id": portfolioID,
	})
}
