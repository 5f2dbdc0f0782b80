package engine

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	apperrors "github.com/louisbranch/folio/internal/platform/errors"
	"github.com/louisbranch/folio/internal/services/ledger/domain/event"
	"github.com/louisbranch/folio/internal/services/ledger/domain/investment"
	"github.com/louisbranch/folio/internal/services/ledger/domain/money"
	"github.com/louisbranch/folio/internal/services/ledger/domain/portfolio"
	"github.com/louisbranch/folio/internal/services/ledger/domain/transaction"
)

// RecordTrade records a BUY or SELL. TransactionID is generated when empty.
type RecordTrade struct {
	TransactionID string
	InvestmentID  string
	Date          time.Time
	Quantity      decimal.Decimal
	Price         money.Money
	Fee           money.Money
	Notes         string
}

// RecordIncome records a DIVIDEND or INTEREST payment.
type RecordIncome struct {
	TransactionID string
	InvestmentID  string
	Date          time.Time
	Amount        money.Money
	Fee           money.Money
	Notes         string
}

// UpdateTransaction replaces fields of an active transaction.
type UpdateTransaction struct {
	TransactionID string
	Changes       transaction.Changes
}

// CancelTransaction voids an active transaction.
type CancelTransaction struct {
	TransactionID string
	Reason        string
}

// RecordBuy records a purchase and increases the investment holding.
func (s *Service) RecordBuy(ctx context.Context, cmd RecordTrade) (Result, error) {
	return s.recordTrade(ctx, "RecordBuy", transaction.TypeBuy, cmd)
}

// RecordSell records a sale and decreases the investment holding. Selling
// more than is held at the sale date fails with
// TRANSACTION_INSUFFICIENT_HOLDINGS.
func (s *Service) RecordSell(ctx context.Context, cmd RecordTrade) (Result, error) {
	return s.recordTrade(ctx, "RecordSell", transaction.TypeSell, cmd)
}

// RecordDividend records a dividend payment.
func (s *Service) RecordDividend(ctx context.Context, cmd RecordIncome) (Result, error) {
	return s.recordIncome(ctx, "RecordDividend", transaction.TypeDividend, cmd)
}

// RecordInterest records an interest payment.
func (s *Service) RecordInterest(ctx context.Context, cmd RecordIncome) (Result, error) {
	return s.recordIncome(ctx, "RecordInterest", transaction.TypeInterest, cmd)
}

func (s *Service) recordTrade(ctx context.Context, command string, txType transaction.Type, cmd RecordTrade) (res Result, err error) {
	ctx, span := s.start(ctx, command, attribute.String("investment_id", cmd.InvestmentID))
	defer func() { finish(span, err) }()

	inv, owner, tx, err := s.prepareRecord(ctx, cmd.TransactionID, cmd.InvestmentID)
	if err != nil {
		return Result{}, err
	}
	now := s.now()
	tx, txEvents, err := transaction.Record(tx, inv.State, transaction.Input{
		Type:     string(txType),
		Date:     cmd.Date,
		Quantity: cmd.Quantity,
		Price:    cmd.Price,
		Fee:      cmd.Fee,
		Notes:    cmd.Notes,
	}, now)
	if err != nil {
		return Result{}, err
	}
	var invEvents []event.Event
	if txType == transaction.TypeBuy {
		inv, invEvents, err = investment.Acquire(inv, owner.State, tx.ID, tx.State.Quantity, tx.State.Date, now)
	} else {
		inv, invEvents, err = investment.Sell(inv, owner.State, tx.ID, tx.State.Quantity, tx.State.Date, now)
	}
	if err != nil {
		return Result{}, err
	}
	versions, err := s.commit(ctx, command,
		pendingAppend{tx.StreamID, tx.ExpectedVersion(), txEvents},
		pendingAppend{inv.StreamID, inv.ExpectedVersion(), invEvents},
	)
	if err != nil {
		return Result{}, err
	}
	return Result{ID: tx.ID, Version: versions[0], InvestmentVersion: versions[1]}, nil
}

func (s *Service) recordIncome(ctx context.Context, command string, txType transaction.Type, cmd RecordIncome) (res Result, err error) {
	ctx, span := s.start(ctx, command, attribute.String("investment_id", cmd.InvestmentID))
	defer func() { finish(span, err) }()

	inv, _, tx, err := s.prepareRecord(ctx, cmd.TransactionID, cmd.InvestmentID)
	if err != nil {
		return Result{}, err
	}
	tx, events, err := transaction.Record(tx, inv.State, transaction.Input{
		Type:   string(txType),
		Date:   cmd.Date,
		Amount: cmd.Amount,
		Fee:    cmd.Fee,
		Notes:  cmd.Notes,
	}, s.now())
	if err != nil {
		return Result{}, err
	}
	versions, err := s.commit(ctx, command, pendingAppend{tx.StreamID, tx.ExpectedVersion(), events})
	if err != nil {
		return Result{}, err
	}
	return Result{ID: tx.ID, Version: versions[0], InvestmentVersion: inv.Version}, nil
}

// prepareRecord loads the aggregates a new transaction touches. The
// portfolio must be open even for income, which only appends to the
// transaction stream.
func (s *Service) prepareRecord(ctx context.Context, transactionID, investmentID string) (investment.Root, portfolio.Root, transaction.Root, error) {
	if strings.TrimSpace(investmentID) == "" {
		return investment.Root{}, portfolio.Root{}, transaction.Root{}, apperrors.New(apperrors.CodeInvestmentIDRequired, "investment id is required")
	}
	inv, owner, err := s.loadHolding(ctx, investmentID)
	if err != nil {
		return investment.Root{}, portfolio.Root{}, transaction.Root{}, err
	}
	if err := portfolio.RequireOpen(owner.State); err != nil {
		return investment.Root{}, portfolio.Root{}, transaction.Root{}, err
	}
	transactionID, err = s.entityID(transactionID)
	if err != nil {
		return investment.Root{}, portfolio.Root{}, transaction.Root{}, err
	}
	tx, err := s.loadTransaction(ctx, transactionID)
	if err != nil {
		return investment.Root{}, portfolio.Root{}, transaction.Root{}, err
	}
	if tx.Exists() {
		return investment.Root{}, portfolio.Root{}, transaction.Root{}, apperrors.WithMetadata(apperrors.CodeTransactionAlreadyExists, "transaction already exists", map[string]string{
			"transaction_id": transactionID,
		})
	}
	return inv, owner, tx, nil
}

// UpdateTransaction executes cmd. Trades re-size the investment holding in
// the same atomic batch.
func (s *Service) UpdateTransaction(ctx context.Context, cmd UpdateTransaction) (res Result, err error) {
	ctx, span := s.start(ctx, "UpdateTransaction", attribute.String("transaction_id", cmd.TransactionID))
	defer func() { finish(span, err) }()

	tx, inv, owner, err := s.loadExisting(ctx, cmd.TransactionID)
	if err != nil {
		return Result{}, err
	}
	now := s.now()
	tx, txEvents, err := transaction.Update(tx, inv.State, cmd.Changes, now)
	if err != nil {
		return Result{}, err
	}
	var invEvents []event.Event
	if len(txEvents) > 0 && tx.State.Type.Trade() {
		inv, invEvents, err = investment.Adjust(inv, owner.State, tx.ID, tx.State.Quantity, tx.State.Date, now)
		if err != nil {
			return Result{}, err
		}
	} else if err := portfolio.RequireOpen(owner.State); err != nil {
		return Result{}, err
	}
	versions, err := s.commit(ctx, "UpdateTransaction",
		pendingAppend{tx.StreamID, tx.ExpectedVersion(), txEvents},
		pendingAppend{inv.StreamID, inv.ExpectedVersion(), invEvents},
	)
	if err != nil {
		return Result{}, err
	}
	return Result{ID: tx.ID, Version: versions[0], InvestmentVersion: versions[1]}, nil
}

// CancelTransaction executes cmd. Cancelling a trade reverts its holding;
// cancelling a purchase that later sales depend on fails.
func (s *Service) CancelTransaction(ctx context.Context, cmd CancelTransaction) (res Result, err error) {
	ctx, span := s.start(ctx, "CancelTransaction", attribute.String("transaction_id", cmd.TransactionID))
	defer func() { finish(span, err) }()

	tx, inv, owner, err := s.loadExisting(ctx, cmd.TransactionID)
	if err != nil {
		return Result{}, err
	}
	now := s.now()
	tx, txEvents, err := transaction.Cancel(tx, cmd.Reason, now)
	if err != nil {
		return Result{}, err
	}
	var invEvents []event.Event
	if tx.State.Type.Trade() {
		inv, invEvents, err = investment.Revert(inv, owner.State, tx.ID, now)
		if err != nil {
			return Result{}, err
		}
	} else if err := portfolio.RequireOpen(owner.State); err != nil {
		return Result{}, err
	}
	versions, err := s.commit(ctx, "CancelTransaction",
		pendingAppend{tx.StreamID, tx.ExpectedVersion(), txEvents},
		pendingAppend{inv.StreamID, inv.ExpectedVersion(), invEvents},
	)
	if err != nil {
		return Result{}, err
	}
	return Result{ID: tx.ID, Version: versions[0], InvestmentVersion: versions[1]}, nil
}

// loadExisting loads a recorded transaction with its investment and
// portfolio.
func (s *Service) loadExisting(ctx context.Context, transactionID string) (transaction.Root, investment.Root, portfolio.Root, error) {
	if strings.TrimSpace(transactionID) == "" {
		return transaction.Root{}, investment.Root{}, portfolio.Root{}, apperrors.New(apperrors.CodeTransactionIDRequired, "transaction id is required")
	}
	tx, err := s.loadTransaction(ctx, transactionID)
	if err != nil {
		return transaction.Root{}, investment.Root{}, portfolio.Root{}, err
	}
	if !tx.Exists() {
		return transaction.Root{}, investment.Root{}, portfolio.Root{}, apperrors.WithMetadata(apperrors.CodeNotFound, "transaction not found", map[string]string{
			"transaction_id": transactionID,
		})
	}
	inv, owner, err := s.loadHolding(ctx, tx.State.InvestmentID)
	if err != nil {
		return transaction.Root{}, investment.Root{}, portfolio.Root{}, err
	}
	return tx, inv, owner, nil
}
