package projection

import (
	"context"
	"fmt"

	"github.com/louisbranch/folio/internal/services/ledger/domain/event"
	"github.com/louisbranch/folio/internal/services/ledger/domain/investment"
	"github.com/louisbranch/folio/internal/services/ledger/storage"
)

func (a Applier) applyInvestmentAdded(ctx context.Context, evt event.Event) error {
	payload, err := event.Decode[investment.AddedPayload](evt)
	if err != nil {
		return err
	}
	return a.Store.PutInvestment(ctx, storage.InvestmentRecord{
		ID:          evt.EntityID,
		PortfolioID: payload.PortfolioID,
		Symbol:      payload.Symbol,
		Name:        payload.Name,
		Kind:        payload.Kind,
		Currency:    payload.Currency,
		Version:     evt.Seq,
		CreatedAt:   evt.Timestamp,
		UpdatedAt:   evt.Timestamp,
	})
}

func (a Applier) applyInvestmentRenamed(ctx context.Context, evt event.Event) error {
	payload, err := event.Decode[investment.RenamedPayload](evt)
	if err != nil {
		return err
	}
	rec, err := a.Store.GetInvestment(ctx, evt.EntityID)
	if err != nil {
		return err
	}
	rec.Name = payload.Name
	rec.Version = evt.Seq
	rec.UpdatedAt = evt.Timestamp
	return a.Store.PutInvestment(ctx, rec)
}

// applyHoldingChanged serves every holding event: the payload carries the
// absolute held quantity, so the position row is simply overwritten.
func (a Applier) applyHoldingChanged(ctx context.Context, evt event.Event) error {
	change, err := decodeHoldingChange(evt)
	if err != nil {
		return err
	}
	rec, err := a.Store.GetInvestment(ctx, evt.EntityID)
	if err != nil {
		return err
	}
	rec.Version = evt.Seq
	rec.UpdatedAt = evt.Timestamp
	if err := a.Store.PutInvestment(ctx, rec); err != nil {
		return err
	}
	return a.Store.PutPosition(ctx, storage.PositionRecord{
		PortfolioID:  rec.PortfolioID,
		Symbol:       rec.Symbol,
		InvestmentID: rec.ID,
		Quantity:     change.HeldQuantity,
		UpdatedAt:    evt.Timestamp,
	})
}

func decodeHoldingChange(evt event.Event) (investment.HoldingChange, error) {
	payload, err := investment.Decode(evt)
	if err != nil {
		return investment.HoldingChange{}, err
	}
	switch p := payload.(type) {
	case investment.HoldingIncreasedPayload:
		return p.HoldingChange, nil
	case investment.HoldingDecreasedPayload:
		return p.HoldingChange, nil
	case investment.HoldingAdjustedPayload:
		return p.HoldingChange, nil
	case investment.HoldingRevertedPayload:
		return p.HoldingChange, nil
	default:
		return investment.HoldingChange{}, fmt.Errorf("%w: %s is not a holding event", event.ErrPayloadInvalid, evt.Type)
	}
}

func (a Applier) applyInvestmentRemoved(ctx context.Context, evt event.Event) error {
	payload, err := event.Decode[investment.RemovedPayload](evt)
	if err != nil {
		return err
	}
	if err := a.Store.DeletePosition(ctx, payload.PortfolioID, payload.Symbol); err != nil {
		return err
	}
	return a.Store.DeleteInvestment(ctx, evt.EntityID)
}
