package projection

import (
	"context"

	"github.com/louisbranch/folio/internal/services/ledger/domain/event"
	"github.com/louisbranch/folio/internal/services/ledger/domain/transaction"
	"github.com/louisbranch/folio/internal/services/ledger/storage"
)

func (a Applier) applyTransactionRecorded(ctx context.Context, evt event.Event) error {
	payload, err := event.Decode[transaction.RecordedPayload](evt)
	if err != nil {
		return err
	}
	return a.Store.PutTransaction(ctx, storage.TransactionRecord{
		ID:           evt.EntityID,
		PortfolioID:  payload.PortfolioID,
		InvestmentID: payload.InvestmentID,
		Symbol:       payload.Symbol,
		Type:         payload.Type,
		Date:         payload.Date.UTC(),
		Quantity:     payload.Quantity,
		Price:        payload.Price,
		Fee:          payload.Fee,
		Amount:       payload.Amount,
		Currency:     payload.Currency,
		Notes:        payload.Notes,
		Status:       transaction.StatusActive,
		Version:      evt.Seq,
		Position:     evt.Position,
		CreatedAt:    evt.Timestamp,
		UpdatedAt:    evt.Timestamp,
	})
}

func (a Applier) applyTransactionUpdated(ctx context.Context, evt event.Event) error {
	payload, err := event.Decode[transaction.UpdatedPayload](evt)
	if err != nil {
		return err
	}
	return a.updateTransaction(ctx, evt, func(rec *storage.TransactionRecord) {
		rec.Date = payload.Date.UTC()
		rec.Quantity = payload.Quantity
		rec.Price = payload.Price
		rec.Fee = payload.Fee
		rec.Amount = payload.Amount
		rec.Notes = payload.Notes
	})
}

func (a Applier) applyTransactionCancelled(ctx context.Context, evt event.Event) error {
	payload, err := event.Decode[transaction.CancelledPayload](evt)
	if err != nil {
		return err
	}
	return a.updateTransaction(ctx, evt, func(rec *storage.TransactionRecord) {
		rec.Status = transaction.StatusCancelled
		rec.CancelReason = payload.Reason
	})
}

func (a Applier) updateTransaction(ctx context.Context, evt event.Event, mutate func(*storage.TransactionRecord)) error {
	rec, err := a.Store.GetTransaction(ctx, evt.EntityID)
	if err != nil {
		return err
	}
	mutate(&rec)
	rec.Version = evt.Seq
	rec.UpdatedAt = evt.Timestamp
	return a.Store.PutTransaction(ctx, rec)
}
