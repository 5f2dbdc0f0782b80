package portfolio

import (
	"strings"
	"time"

	apperrors "github.com/louisbranch/folio/internal/platform/errors"
	"github.com/louisbranch/folio/internal/services/ledger/domain/event"
	"github.com/louisbranch/folio/internal/services/ledger/domain/money"
)

// Create opens a new portfolio.
func Create(id, name, description, currency string, now time.Time) (Root, []event.Event, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Root{}, nil, apperrors.New(apperrors.CodePortfolioIDRequired, "portfolio id is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Root{}, nil, apperrors.New(apperrors.CodePortfolioNameEmpty, "portfolio name is required")
	}
	code, err := money.NormalizeCurrency(currency)
	if err != nil {
		return Root{}, nil, apperrors.Wrap(apperrors.CodePortfolioInvalidCurrency, "portfolio currency is invalid", err)
	}
	root := New(id)
	return record(root, CreatedPayload{
		PortfolioID: id,
		Name:        name,
		Description: strings.TrimSpace(description),
		Currency:    code,
	}, now)
}

// Rename changes the display name of an open portfolio. Renaming to the
// current name records nothing.
func Rename(root Root, name string, now time.Time) (Root, []event.Event, error) {
	if err := requireOpen(root.State); err != nil {
		return root, nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return root, nil, apperrors.New(apperrors.CodePortfolioNameEmpty, "portfolio name is required")
	}
	if name == root.State.Name {
		return root, nil, nil
	}
	return record(root, RenamedPayload{PortfolioID: root.State.PortfolioID, Name: name}, now)
}

// Describe replaces the description of an open portfolio.
func Describe(root Root, description string, now time.Time) (Root, []event.Event, error) {
	if err := requireOpen(root.State); err != nil {
		return root, nil, err
	}
	description = strings.TrimSpace(description)
	if description == root.State.Description {
		return root, nil, nil
	}
	return record(root, DescriptionChangedPayload{PortfolioID: root.State.PortfolioID, Description: description}, now)
}

// Close closes an open portfolio. Closed portfolios reject every further command.
func Close(root Root, now time.Time) (Root, []event.Event, error) {
	if err := requireOpen(root.State); err != nil {
		return root, nil, err
	}
	return record(root, ClosedPayload{PortfolioID: root.State.PortfolioID}, now)
}

// RequireOpen returns a validation error unless state is an open portfolio.
func RequireOpen(state State) error {
	return requireOpen(state)
}

func requireOpen(state State) error {
	if !state.Created {
		return apperrors.New(apperrors.CodeNotFound, "portfolio not found")
	}
	if state.Status == StatusClosed {
		return apperrors.WithMetadata(apperrors.CodePortfolioClosed, "portfolio is closed", map[string]string{
			"portfolio_id": state.PortfolioID,
		})
	}
	return nil
}

func record(root Root, payload Payload, now time.Time) (Root, []event.Event, error) {
	next, recorded, err := root.Record(payload, now, Fold)
	if err != nil {
		return root, nil, err
	}
	return next, []event.Event{recorded}, nil
}
