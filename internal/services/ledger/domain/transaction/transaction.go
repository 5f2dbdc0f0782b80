package transaction

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/louisbranch/folio/internal/platform/errors"
	"github.com/louisbranch/folio/internal/services/ledger/domain/event"
	"github.com/louisbranch/folio/internal/services/ledger/domain/investment"
	"github.com/louisbranch/folio/internal/services/ledger/domain/money"
)

// Input describes a transaction to record. Price and Fee apply to trades,
// Amount to dividends and interest. Zero-valued money fields default to the
// investment currency.
type Input struct {
	Type     string
	Date     time.Time
	Quantity decimal.Decimal
	Price    money.Money
	Fee      money.Money
	Amount   money.Money
	Notes    string
}

// Changes lists the fields an update replaces. Nil fields keep their value.
type Changes struct {
	Date     *time.Time
	Quantity *decimal.Decimal
	Price    *money.Money
	Fee      *money.Money
	Amount   *money.Money
	Notes    *string
}

// Record creates a transaction against an active investment. The holding
// change for trades is recorded separately on the investment.
func Record(root Root, inv investment.State, in Input, now time.Time) (Root, []event.Event, error) {
	if root.State.Created {
		return root, nil, apperrors.New(apperrors.CodeTransactionAlreadyExists, "transaction already exists")
	}
	if strings.TrimSpace(root.ID) == "" {
		return root, nil, apperrors.New(apperrors.CodeTransactionIDRequired, "transaction id is required")
	}
	if err := investment.RequireActive(inv); err != nil {
		return root, nil, err
	}
	txType, ok := ParseType(in.Type)
	if !ok {
		return root, nil, apperrors.WithMetadata(apperrors.CodeTransactionInvalidType, "transaction type is invalid", map[string]string{"type": in.Type})
	}
	fields, err := normalize(txType, inv, fields{
		Date:     in.Date,
		Quantity: in.Quantity,
		Price:    in.Price,
		Fee:      in.Fee,
		Amount:   in.Amount,
		Notes:    in.Notes,
	}, now)
	if err != nil {
		return root, nil, err
	}
	return record(root, RecordedPayload{
		TransactionID: root.ID,
		InvestmentID:  inv.InvestmentID,
		PortfolioID:   inv.PortfolioID,
		Symbol:        inv.Symbol,
		Type:          txType,
		Date:          fields.Date,
		Quantity:      fields.Quantity,
		Price:         fields.Price,
		Fee:           fields.Fee,
		Amount:        fields.Amount,
		Currency:      inv.Currency,
		Notes:         fields.Notes,
	}, now)
}

// Update replaces mutable fields of an active transaction. An update that
// changes nothing records nothing.
func Update(root Root, inv investment.State, changes Changes, now time.Time) (Root, []event.Event, error) {
	if err := requireActive(root.State); err != nil {
		return root, nil, err
	}
	if err := investment.RequireActive(inv); err != nil {
		return root, nil, err
	}
	current := fields{
		Date:     root.State.Date,
		Quantity: root.State.Quantity,
		Price:    root.State.Price,
		Fee:      root.State.Fee,
		Amount:   root.State.Amount,
		Notes:    root.State.Notes,
	}
	next := current
	if changes.Date != nil {
		next.Date = *changes.Date
	}
	if changes.Quantity != nil {
		next.Quantity = *changes.Quantity
	}
	if changes.Price != nil {
		next.Price = *changes.Price
	}
	if changes.Fee != nil {
		next.Fee = *changes.Fee
	}
	if changes.Amount != nil {
		next.Amount = *changes.Amount
	}
	if changes.Notes != nil {
		next.Notes = *changes.Notes
	}
	next, err := normalize(root.State.Type, inv, next, now)
	if err != nil {
		return root, nil, err
	}
	if next.equal(current) {
		return root, nil, nil
	}
	return record(root, UpdatedPayload{
		TransactionID: root.ID,
		Date:          next.Date,
		Quantity:      next.Quantity,
		Price:         next.Price,
		Fee:           next.Fee,
		Amount:        next.Amount,
		Notes:         next.Notes,
	}, now)
}

// Cancel voids an active transaction.
func Cancel(root Root, reason string, now time.Time) (Root, []event.Event, error) {
	if err := requireActive(root.State); err != nil {
		return root, nil, err
	}
	return record(root, CancelledPayload{TransactionID: root.ID, Reason: strings.TrimSpace(reason)}, now)
}

func requireActive(state State) error {
	if !state.Created {
		return apperrors.New(apperrors.CodeNotFound, "transaction not found")
	}
	if state.Status == StatusCancelled {
		return apperrors.New(apperrors.CodeTransactionCancelled, "transaction is cancelled")
	}
	return nil
}

type fields struct {
	Date     time.Time
	Quantity decimal.Decimal
	Price    money.Money
	Fee      money.Money
	Amount   money.Money
	Notes    string
}

func (f fields) equal(o fields) bool {
	return f.Date.Equal(o.Date) &&
		f.Quantity.Equal(o.Quantity) &&
		f.Price.Equal(o.Price) &&
		f.Fee.Equal(o.Fee) &&
		f.Amount.Equal(o.Amount) &&
		f.Notes == o.Notes
}

// normalize validates f for txType against the investment and returns it
// with defaulted currencies and zeroed irrelevant fields.
func normalize(txType Type, inv investment.State, f fields, now time.Time) (fields, error) {
	if f.Date.IsZero() {
		return fields{}, apperrors.New(apperrors.CodeTransactionDateRequired, "transaction date is required")
	}
	f.Date = f.Date.UTC()
	if f.Date.After(now) {
		return fields{}, apperrors.WithMetadata(apperrors.CodeTransactionFutureDate, "transaction date is in the future", map[string]string{
			"date": f.Date.Format(time.RFC3339),
		})
	}
	if txType != TypeBuy {
		earliest, ok := inv.EarliestPurchase()
		if !ok || f.Date.Before(earliest) {
			return fields{}, apperrors.WithMetadata(apperrors.CodeTransactionBeforePurchase, "transaction predates the first purchase", map[string]string{
				"symbol": inv.Symbol,
				"date":   f.Date.Format(time.DateOnly),
			})
		}
	}

	var err error
	if f.Price, err = inCurrency(f.Price, inv.Currency); err != nil {
		return fields{}, err
	}
	if f.Fee, err = inCurrency(f.Fee, inv.Currency); err != nil {
		return fields{}, err
	}
	if f.Amount, err = inCurrency(f.Amount, inv.Currency); err != nil {
		return fields{}, err
	}
	if f.Fee.IsNegative() {
		return fields{}, apperrors.New(apperrors.CodeTransactionInvalidAmount, "fee cannot be negative")
	}
	f.Notes = strings.TrimSpace(f.Notes)

	if txType.Trade() {
		if !f.Quantity.IsPositive() {
			return fields{}, apperrors.WithMetadata(apperrors.CodeTransactionInvalidQuantity, "quantity must be positive", map[string]string{
				"quantity": f.Quantity.String(),
			})
		}
		if f.Price.IsNegative() {
			return fields{}, apperrors.New(apperrors.CodeTransactionInvalidPrice, "price cannot be negative")
		}
		f.Amount = money.Zero(inv.Currency)
		return f, nil
	}

	if !f.Amount.Amount.IsPositive() {
		return fields{}, apperrors.WithMetadata(apperrors.CodeTransactionInvalidAmount, "amount must be positive", map[string]string{
			"amount": f.Amount.Amount.String(),
		})
	}
	f.Quantity = decimal.Zero
	f.Price = money.Zero(inv.Currency)
	return f, nil
}

func inCurrency(m money.Money, currency string) (money.Money, error) {
	if m.Currency == "" {
		return money.Money{Amount: m.Amount, Currency: currency}, nil
	}
	if !strings.EqualFold(m.Currency, currency) {
		return money.Money{}, apperrors.WithMetadata(apperrors.CodeTransactionCurrencyMismatch, "currency does not match investment", map[string]string{
			"expected": currency,
			"actual":   m.Currency,
		})
	}
	return money.Money{Amount: m.Amount, Currency: currency}, nil
}

func record(root Root, payload Payload, now time.Time) (Root, []event.Event, error) {
	next, recorded, err := root.Record(payload, now, Fold)
	if err != nil {
		return root, nil, err
	}
	return next, []event.Event{recorded}, nil
}
