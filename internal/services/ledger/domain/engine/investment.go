package engine

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	apperrors "github.com/louisbranch/folio/internal/platform/errors"
	"github.com/louisbranch/folio/internal/services/ledger/domain/event"
	"github.com/louisbranch/folio/internal/services/ledger/domain/investment"
	"github.com/louisbranch/folio/internal/services/ledger/domain/portfolio"
	"github.com/louisbranch/folio/internal/services/ledger/storage"
)

// AddInvestment starts tracking a symbol in a portfolio. The investment id
// is derived from the portfolio id and symbol.
type AddInvestment struct {
	PortfolioID string
	Symbol      string
	Name        string
	Kind        string
	Currency    string
}

// RenameInvestment changes an investment display name.
type RenameInvestment struct {
	InvestmentID string
	Name         string
}

// RemoveInvestment retires an investment with no holdings.
type RemoveInvestment struct {
	InvestmentID string
}

// AddInvestment executes cmd.
func (s *Service) AddInvestment(ctx context.Context, cmd AddInvestment) (res Result, err error) {
	ctx, span := s.start(ctx, "AddInvestment",
		attribute.String("portfolio_id", cmd.PortfolioID),
		attribute.String("symbol", cmd.Symbol),
	)
	defer func() { finish(span, err) }()

	if strings.TrimSpace(cmd.PortfolioID) == "" {
		return Result{}, apperrors.New(apperrors.CodePortfolioIDRequired, "portfolio id is required")
	}
	if strings.TrimSpace(cmd.Symbol) == "" {
		return Result{}, apperrors.New(apperrors.CodeInvestmentSymbolEmpty, "investment symbol is required")
	}
	owner, err := s.loadPortfolio(ctx, cmd.PortfolioID)
	if err != nil {
		return Result{}, err
	}
	investmentID := investment.IDFor(cmd.PortfolioID, cmd.Symbol)
	root, err := s.loadInvestment(ctx, investmentID)
	if err != nil {
		return Result{}, err
	}
	root, events, err := investment.Add(root, owner.State, investment.AddInput{
		Symbol:   cmd.Symbol,
		Name:     cmd.Name,
		Kind:     cmd.Kind,
		Currency: cmd.Currency,
	}, s.now())
	if err != nil {
		return Result{}, err
	}
	versions, err := s.commit(ctx, "AddInvestment", pendingAppend{root.StreamID, root.ExpectedVersion(), events})
	if err != nil {
		if storage.IsConflict(err) && root.ExpectedVersion() == 0 {
			return Result{}, apperrors.WithMetadata(apperrors.CodeInvestmentAlreadyExists, "investment already exists", map[string]string{
				"investment_id": investmentID,
			})
		}
		return Result{}, err
	}
	return Result{ID: investmentID, Version: versions[0]}, nil
}

// RenameInvestment executes cmd.
func (s *Service) RenameInvestment(ctx context.Context, cmd RenameInvestment) (res Result, err error) {
	ctx, span := s.start(ctx, "RenameInvestment", attribute.String("investment_id", cmd.InvestmentID))
	defer func() { finish(span, err) }()
	return s.updateInvestment(ctx, "RenameInvestment", cmd.InvestmentID, func(root investment.Root, owner portfolio.State) (investment.Root, []event.Event, error) {
		return investment.Rename(root, owner, cmd.Name, s.now())
	})
}

// RemoveInvestment executes cmd.
func (s *Service) RemoveInvestment(ctx context.Context, cmd RemoveInvestment) (res Result, err error) {
	ctx, span := s.start(ctx, "RemoveInvestment", attribute.String("investment_id", cmd.InvestmentID))
	defer func() { finish(span, err) }()
	return s.updateInvestment(ctx, "RemoveInvestment", cmd.InvestmentID, func(root investment.Root, owner portfolio.State) (investment.Root, []event.Event, error) {
		return investment.Remove(root, owner, s.now())
	})
}

func (s *Service) updateInvestment(ctx context.Context, command, investmentID string, decide func(investment.Root, portfolio.State) (investment.Root, []event.Event, error)) (Result, error) {
	if strings.TrimSpace(investmentID) == "" {
		return Result{}, apperrors.New(apperrors.CodeInvestmentIDRequired, "investment id is required")
	}
	root, owner, err := s.loadHolding(ctx, investmentID)
	if err != nil {
		return Result{}, err
	}
	root, events, err := decide(root, owner.State)
	if err != nil {
		return Result{}, err
	}
	versions, err := s.commit(ctx, command, pendingAppend{root.StreamID, root.ExpectedVersion(), events})
	if err != nil {
		return Result{}, err
	}
	return Result{ID: investmentID, Version: versions[0]}, nil
}
