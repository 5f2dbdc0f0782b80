package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/louisbranch/folio/internal/platform/errors"
	"github.com/louisbranch/folio/internal/services/ledger/domain/catalog"
	"github.com/louisbranch/folio/internal/services/ledger/domain/investment"
	"github.com/louisbranch/folio/internal/services/ledger/domain/money"
	"github.com/louisbranch/folio/internal/services/ledger/domain/transaction"
	"github.com/louisbranch/folio/internal/services/ledger/storage"
	"github.com/louisbranch/folio/internal/services/ledger/storage/memory"
)

var fixedNow = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

func day(d int) time.Time {
	return time.Date(2026, 1, d, 0, 0, 0, 0, time.UTC)
}

func newService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.New(memory.WithRegistry(catalog.MustRegistry()), memory.WithClock(func() time.Time { return fixedNow }))
	seq := 0
	svc, err := New(store,
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(func() (string, error) {
			seq++
			return fmt.Sprintf("id%d", seq), nil
		}),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, store
}

func seedHolding(t *testing.T, svc *Service) string {
	t.Helper()
	ctx := context.Background()
	if _, err := svc.CreatePortfolio(ctx, CreatePortfolio{ID: "p1", Name: "Core", Currency: "USD"}); err != nil {
		t.Fatalf("create portfolio: %v", err)
	}
	res, err := svc.AddInvestment(ctx, AddInvestment{PortfolioID: "p1", Symbol: "acme", Kind: string(investment.KindStock)})
	if err != nil {
		t.Fatalf("add investment: %v", err)
	}
	return res.ID
}

func trade(invID, txID string, d int, qty, price string) RecordTrade {
	return RecordTrade{
		TransactionID: txID,
		InvestmentID:  invID,
		Date:          day(d),
		Quantity:      decimal.RequireFromString(qty),
		Price:         money.MustParse(price, "USD"),
	}
}

func TestNewRequiresStore(t *testing.T) {
	if _, err := New(nil); !errors.Is(err, ErrStoreRequired) {
		t.Fatalf("expected ErrStoreRequired, got %v", err)
	}
}

func TestPortfolioLifecycle(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	res, err := svc.CreatePortfolio(ctx, CreatePortfolio{Name: "Core", Currency: "usd"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if res.ID != "id1" || res.Version != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if res, err = svc.RenamePortfolio(ctx, RenamePortfolio{PortfolioID: "id1", Name: "Core"}); err != nil || res.Version != 1 {
		t.Fatalf("no-op rename: %+v %v", res, err)
	}
	if res, err = svc.DescribePortfolio(ctx, DescribePortfolio{PortfolioID: "id1", Description: "long term"}); err != nil || res.Version != 2 {
		t.Fatalf("describe: %+v %v", res, err)
	}
	if res, err = svc.ClosePortfolio(ctx, ClosePortfolio{PortfolioID: "id1"}); err != nil || res.Version != 3 {
		t.Fatalf("close: %+v %v", res, err)
	}
	if _, err := svc.RenamePortfolio(ctx, RenamePortfolio{PortfolioID: "id1", Name: "Other"}); !apperrors.HasCode(err, apperrors.CodePortfolioClosed) {
		t.Fatalf("expected closed error, got %v", err)
	}

	events, version, err := store.Load(ctx, "portfolio-id1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if version != 3 || len(events) != 3 {
		t.Fatalf("expected 3 events, got %d at version %d", len(events), version)
	}
}

func TestCreatePortfolioTwice(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	cmd := CreatePortfolio{ID: "p1", Name: "Core", Currency: "USD"}
	if _, err := svc.CreatePortfolio(ctx, cmd); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err := svc.CreatePortfolio(ctx, cmd)
	if !apperrors.HasCode(err, apperrors.CodePortfolioAlreadyExists) {
		t.Fatalf("expected already exists, got %v", err)
	}
}

func TestAddInvestmentDerivesID(t *testing.T) {
	svc, _ := newService(t)
	invID := seedHolding(t, svc)
	if invID != investment.IDFor("p1", "ACME") {
		t.Fatalf("unexpected investment id %q", invID)
	}
	_, err := svc.AddInvestment(context.Background(), AddInvestment{PortfolioID: "p1", Symbol: "ACME", Kind: "STOCK"})
	if !apperrors.HasCode(err, apperrors.CodeInvestmentAlreadyExists) {
		t.Fatalf("expected already exists, got %v", err)
	}
}

func TestTradesMoveHoldingAtomically(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	invID := seedHolding(t, svc)

	if _, err := svc.RecordBuy(ctx, trade(invID, "t1", 2, "10", "100")); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if _, err := svc.RecordBuy(ctx, trade(invID, "t2", 3, "5", "120")); err != nil {
		t.Fatalf("buy: %v", err)
	}
	res, err := svc.RecordSell(ctx, trade(invID, "t3", 4, "12", "150"))
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	if res.ID != "t3" || res.Version != 1 || res.InvestmentVersion != 4 {
		t.Fatalf("unexpected result %+v", res)
	}

	events, _, err := store.Load(ctx, investment.StreamID(invID))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	inv, err := investment.Load(invID, events)
	if err != nil {
		t.Fatalf("fold: %v", err)
	}
	if !inv.State.Held.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("expected 3 held, got %s", inv.State.Held)
	}
}

func TestSellBeyondHoldingsWritesNothing(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	invID := seedHolding(t, svc)
	if _, err := svc.RecordBuy(ctx, trade(invID, "t1", 2, "10", "100")); err != nil {
		t.Fatalf("buy: %v", err)
	}

	_, err := svc.RecordSell(ctx, trade(invID, "t2", 3, "11", "150"))
	if !apperrors.HasCode(err, apperrors.CodeTransactionInsufficientHolding) {
		t.Fatalf("expected insufficient holdings, got %v", err)
	}
	if _, version, _ := store.Load(ctx, transaction.StreamID("t2")); version != 0 {
		t.Fatalf("expected no transaction stream, got version %d", version)
	}
}

func TestCancelPurchaseCoveringSale(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	invID := seedHolding(t, svc)
	if _, err := svc.RecordBuy(ctx, trade(invID, "t1", 2, "10", "100")); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if _, err := svc.RecordSell(ctx, trade(invID, "t2", 3, "4", "120")); err != nil {
		t.Fatalf("sell: %v", err)
	}

	_, err := svc.CancelTransaction(ctx, CancelTransaction{TransactionID: "t1"})
	if !apperrors.HasCode(err, apperrors.CodeTransactionInsufficientHolding) {
		t.Fatalf("expected insufficient holdings, got %v", err)
	}

	res, err := svc.CancelTransaction(ctx, CancelTransaction{TransactionID: "t2", Reason: "typo"})
	if err != nil {
		t.Fatalf("cancel sale: %v", err)
	}
	if res.Version != 2 || res.InvestmentVersion != 4 {
		t.Fatalf("unexpected result %+v", res)
	}
	if _, err := svc.CancelTransaction(ctx, CancelTransaction{TransactionID: "t2"}); !apperrors.HasCode(err, apperrors.CodeTransactionCancelled) {
		t.Fatalf("expected cancelled error, got %v", err)
	}
}

func TestUpdateTradeAdjustsHolding(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	invID := seedHolding(t, svc)
	if _, err := svc.RecordBuy(ctx, trade(invID, "t1", 2, "10", "100")); err != nil {
		t.Fatalf("buy: %v", err)
	}

	qty := decimal.NewFromInt(7)
	res, err := svc.UpdateTransaction(ctx, UpdateTransaction{TransactionID: "t1", Changes: transaction.Changes{Quantity: &qty}})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if res.Version != 2 || res.InvestmentVersion != 3 {
		t.Fatalf("unexpected result %+v", res)
	}

	notes := "rebalanced"
	res, err = svc.UpdateTransaction(ctx, UpdateTransaction{TransactionID: "t1", Changes: transaction.Changes{Notes: &notes}})
	if err != nil {
		t.Fatalf("update notes: %v", err)
	}
	if res.Version != 3 || res.InvestmentVersion != 3 {
		t.Fatalf("notes update should not touch the investment: %+v", res)
	}

	events, _, _ := store.Load(ctx, investment.StreamID(invID))
	inv, err := investment.Load(invID, events)
	if err != nil {
		t.Fatalf("fold: %v", err)
	}
	if !inv.State.Held.Equal(qty) {
		t.Fatalf("expected %s held, got %s", qty, inv.State.Held)
	}
}

func TestIncomeTouchesOnlyTransactionStream(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	invID := seedHolding(t, svc)
	if _, err := svc.RecordBuy(ctx, trade(invID, "t1", 2, "10", "100")); err != nil {
		t.Fatalf("buy: %v", err)
	}
	res, err := svc.RecordDividend(ctx, RecordIncome{InvestmentID: invID, Date: day(20), Amount: money.MustParse("12.50", "USD")})
	if err != nil {
		t.Fatalf("dividend: %v", err)
	}
	if res.ID != "id1" || res.Version != 1 || res.InvestmentVersion != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	_, err = svc.RecordInterest(ctx, RecordIncome{InvestmentID: invID, Date: day(1), Amount: money.MustParse("1", "USD")})
	if !apperrors.HasCode(err, apperrors.CodeTransactionBeforePurchase) {
		t.Fatalf("expected before purchase, got %v", err)
	}
}

func TestRemoveInvestment(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	invID := seedHolding(t, svc)
	if _, err := svc.RecordBuy(ctx, trade(invID, "t1", 2, "10", "100")); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if _, err := svc.RemoveInvestment(ctx, RemoveInvestment{InvestmentID: invID}); !apperrors.HasCode(err, apperrors.CodeInvestmentHoldingsRemaining) {
		t.Fatalf("expected holdings remaining, got %v", err)
	}
	if _, err := svc.RecordSell(ctx, trade(invID, "t2", 3, "10", "110")); err != nil {
		t.Fatalf("sell: %v", err)
	}
	if _, err := svc.RemoveInvestment(ctx, RemoveInvestment{InvestmentID: invID}); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := svc.RenameInvestment(ctx, RenameInvestment{InvestmentID: invID, Name: "Acme"}); !apperrors.HasCode(err, apperrors.CodeInvestmentRemoved) {
		t.Fatalf("expected removed error, got %v", err)
	}
}

type conflictingStore struct {
	storage.EventStore
}

func (conflictingStore) AppendBatch(context.Context, []storage.StreamAppend) ([]uint64, error) {
	return nil, &storage.ConflictError{StreamID: "investment-p1.acme", Expected: 1, Actual: 2}
}

func TestConflictIsRetryable(t *testing.T) {
	_, store := newService(t)
	ctx := context.Background()
	seeded, err := New(store, WithClock(func() time.Time { return fixedNow }))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	invID := seedHolding(t, seeded)

	svc, err := New(conflictingStore{store}, WithClock(func() time.Time { return fixedNow }))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	_, err = svc.RecordBuy(ctx, trade(invID, "t1", 2, "1", "100"))
	if !IsRetryable(err) {
		t.Fatalf("expected retryable conflict, got %v", err)
	}
	if !apperrors.HasCode(err, apperrors.CodeConcurrencyConflict) {
		t.Fatalf("expected conflict code, got %v", err)
	}
}

func TestCanceledContextWritesNothing(t *testing.T) {
	svc, store := newService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.CreatePortfolio(ctx, CreatePortfolio{ID: "p1", Name: "Core", Currency: "USD"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
	streams, err := store.ListStreams(context.Background())
	if err != nil {
		t.Fatalf("list streams: %v", err)
	}
	if len(streams) != 0 {
		t.Fatalf("expected no streams, got %+v", streams)
	}
}
