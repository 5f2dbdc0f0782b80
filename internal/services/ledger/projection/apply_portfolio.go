package projection

import (
	"context"

	"github.com/louisbranch/folio/internal/services/ledger/domain/event"
	"github.com/louisbranch/folio/internal/services/ledger/domain/portfolio"
	"github.com/louisbranch/folio/internal/services/ledger/storage"
)

func (a Applier) applyPortfolioCreated(ctx context.Context, evt event.Event) error {
	payload, err := event.Decode[portfolio.CreatedPayload](evt)
	if err != nil {
		return err
	}
	return a.Store.PutPortfolio(ctx, storage.PortfolioRecord{
		ID:          evt.EntityID,
		Name:        payload.Name,
		Description: payload.Description,
		Currency:    payload.Currency,
		Status:      portfolio.StatusOpen,
		Version:     evt.Seq,
		CreatedAt:   evt.Timestamp,
		UpdatedAt:   evt.Timestamp,
	})
}

func (a Applier) applyPortfolioRenamed(ctx context.Context, evt event.Event) error {
	payload, err := event.Decode[portfolio.RenamedPayload](evt)
	if err != nil {
		return err
	}
	return a.updatePortfolio(ctx, evt, func(rec *storage.PortfolioRecord) {
		rec.Name = payload.Name
	})
}

func (a Applier) applyPortfolioDescriptionChanged(ctx context.Context, evt event.Event) error {
	payload, err := event.Decode[portfolio.DescriptionChangedPayload](evt)
	if err != nil {
		return err
	}
	return a.updatePortfolio(ctx, evt, func(rec *storage.PortfolioRecord) {
		rec.Description = payload.Description
	})
}

func (a Applier) applyPortfolioClosed(ctx context.Context, evt event.Event) error {
	if _, err := event.Decode[portfolio.ClosedPayload](evt); err != nil {
		return err
	}
	return a.Store.DeletePortfolio(ctx, evt.EntityID)
}

func (a Applier) updatePortfolio(ctx context.Context, evt event.Event, mutate func(*storage.PortfolioRecord)) error {
	rec, err := a.Store.GetPortfolio(ctx, evt.EntityID)
	if err != nil {
		return err
	}
	mutate(&rec)
	rec.Version = evt.Seq
	rec.UpdatedAt = evt.Timestamp
	return a.Store.PutPortfolio(ctx, rec)
}
