package investment

import (
	"maps"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/louisbranch/folio/internal/platform/errors"
	"github.com/louisbranch/folio/internal/services/ledger/domain/event"
	"github.com/louisbranch/folio/internal/services/ledger/domain/money"
	"github.com/louisbranch/folio/internal/services/ledger/domain/portfolio"
)

// AddInput describes a new investment.
type AddInput struct {
	Symbol string
	Name   string
	Kind   string
	// Currency defaults to the portfolio currency.
	Currency string
}

// Add starts tracking a symbol in an open portfolio. A removed investment can
// be added again in its original currency; its previous holdings are
// discarded.
func Add(root Root, owner portfolio.State, in AddInput, now time.Time) (Root, []event.Event, error) {
	if err := portfolio.RequireOpen(owner); err != nil {
		return root, nil, err
	}
	if root.State.Active() {
		return root, nil, apperrors.New(apperrors.CodeInvestmentAlreadyExists, "investment already exists")
	}
	if strings.TrimSpace(root.ID) == "" {
		return root, nil, apperrors.New(apperrors.CodeInvestmentIDRequired, "investment id is required")
	}
	symbol := strings.ToUpper(strings.TrimSpace(in.Symbol))
	if symbol == "" {
		return root, nil, apperrors.New(apperrors.CodeInvestmentSymbolEmpty, "investment symbol is required")
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = symbol
	}
	kind, ok := ParseKind(in.Kind)
	if !ok {
		return root, nil, apperrors.WithMetadata(apperrors.CodeInvestmentInvalidType, "investment type is invalid", map[string]string{"kind": in.Kind})
	}
	currency := in.Currency
	if strings.TrimSpace(currency) == "" {
		currency = owner.Currency
	}
	code, err := money.NormalizeCurrency(currency)
	if err != nil {
		return root, nil, apperrors.Wrap(apperrors.CodeInvestmentInvalidCurrency, "investment currency is invalid", err)
	}
	if root.State.Removed && code != root.State.Currency {
		return root, nil, apperrors.WithMetadata(apperrors.CodeInvestmentInvalidCurrency, "investment was held in another currency", map[string]string{
			"symbol":   symbol,
			"previous": root.State.Currency,
			"currency": code,
		})
	}
	return record(root, AddedPayload{
		InvestmentID: root.ID,
		PortfolioID:  owner.PortfolioID,
		Symbol:       symbol,
		Name:         name,
		Kind:         kind,
		Currency:     code,
	}, now)
}

// Rename changes the display name.
func Rename(root Root, owner portfolio.State, name string, now time.Time) (Root, []event.Event, error) {
	if err := requireWritable(root.State, owner); err != nil {
		return root, nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return root, nil, apperrors.New(apperrors.CodeInvestmentNameEmpty, "investment name is required")
	}
	if name == root.State.Name {
		return root, nil, nil
	}
	return record(root, RenamedPayload{InvestmentID: root.ID, Name: name}, now)
}

// Acquire adds quantity bought by a transaction.
func Acquire(root Root, owner portfolio.State, transactionID string, quantity decimal.Decimal, date, now time.Time) (Root, []event.Event, error) {
	return addHolding(root, owner, transactionID, SideBuy, quantity, date, now)
}

// Sell removes quantity sold by a transaction. Selling more than is held at
// the sale date fails; a remainder within money.QuantityEpsilon closes the
// holding.
func Sell(root Root, owner portfolio.State, transactionID string, quantity decimal.Decimal, date, now time.Time) (Root, []event.Event, error) {
	return addHolding(root, owner, transactionID, SideSell, quantity, date, now)
}

// Adjust replaces the quantity and date contributed by an existing transaction.
func Adjust(root Root, owner portfolio.State, transactionID string, quantity decimal.Decimal, date, now time.Time) (Root, []event.Event, error) {
	if err := requireWritable(root.State, owner); err != nil {
		return root, nil, err
	}
	prev, ok := root.State.Holding(transactionID)
	if !ok {
		return root, nil, apperrors.New(apperrors.CodeNotFound, "holding not found for transaction")
	}
	if !quantity.IsPositive() {
		return root, nil, invalidQuantity(quantity)
	}
	date = date.UTC()
	if prev.Quantity.Equal(quantity) && prev.Date.Equal(date) {
		return root, nil, nil
	}
	holdings := maps.Clone(root.State.Holdings)
	holdings[transactionID] = Holding{Side: prev.Side, Quantity: quantity, Date: date, Order: prev.Order}
	held, err := checkHoldings(root.State.Symbol, holdings)
	if err != nil {
		return root, nil, err
	}
	return record(root, HoldingAdjustedPayload{HoldingChange{
		InvestmentID:  root.ID,
		PortfolioID:   root.State.PortfolioID,
		Symbol:        root.State.Symbol,
		TransactionID: transactionID,
		Quantity:      quantity,
		Date:          date,
		HeldQuantity:  held,
	}}, now)
}

// Revert drops the holding contributed by a cancelled transaction. Reverting
// a purchase fails when later sales would no longer be covered.
func Revert(root Root, owner portfolio.State, transactionID string, now time.Time) (Root, []event.Event, error) {
	if err := requireWritable(root.State, owner); err != nil {
		return root, nil, err
	}
	if _, ok := root.State.Holding(transactionID); !ok {
		return root, nil, apperrors.New(apperrors.CodeNotFound, "holding not found for transaction")
	}
	holdings := maps.Clone(root.State.Holdings)
	delete(holdings, transactionID)
	held, err := checkHoldings(root.State.Symbol, holdings)
	if err != nil {
		return root, nil, err
	}
	return record(root, HoldingRevertedPayload{HoldingChange{
		InvestmentID:  root.ID,
		PortfolioID:   root.State.PortfolioID,
		Symbol:        root.State.Symbol,
		TransactionID: transactionID,
		HeldQuantity:  held,
	}}, now)
}

// Remove retires an investment that no longer holds any units.
func Remove(root Root, owner portfolio.State, now time.Time) (Root, []event.Event, error) {
	if err := requireWritable(root.State, owner); err != nil {
		return root, nil, err
	}
	if !money.WithinEpsilon(root.State.Held) {
		return root, nil, apperrors.WithMetadata(apperrors.CodeInvestmentHoldingsRemaining, "investment still holds units", map[string]string{
			"symbol": root.State.Symbol,
			"held":   root.State.Held.String(),
		})
	}
	return record(root, RemovedPayload{
		InvestmentID: root.ID,
		PortfolioID:  root.State.PortfolioID,
		Symbol:       root.State.Symbol,
	}, now)
}

// RequireActive returns a validation error unless state is an active investment.
func RequireActive(state State) error {
	if !state.Created {
		return apperrors.New(apperrors.CodeNotFound, "investment not found")
	}
	if state.Removed {
		return apperrors.New(apperrors.CodeInvestmentRemoved, "investment has been removed")
	}
	return nil
}

func addHolding(root Root, owner portfolio.State, transactionID string, side Side, quantity decimal.Decimal, date, now time.Time) (Root, []event.Event, error) {
	if err := requireWritable(root.State, owner); err != nil {
		return root, nil, err
	}
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return root, nil, apperrors.New(apperrors.CodeTransactionIDRequired, "transaction id is required")
	}
	if _, exists := root.State.Holding(transactionID); exists {
		return root, nil, apperrors.New(apperrors.CodeTransactionAlreadyExists, "transaction already recorded")
	}
	if !quantity.IsPositive() {
		return root, nil, invalidQuantity(quantity)
	}
	date = date.UTC()
	holdings := maps.Clone(root.State.Holdings)
	if holdings == nil {
		holdings = map[string]Holding{}
	}
	holdings[transactionID] = Holding{Side: side, Quantity: quantity, Date: date, Order: root.Version + 1}
	held, err := checkHoldings(root.State.Symbol, holdings)
	if err != nil {
		return root, nil, err
	}
	change := HoldingChange{
		InvestmentID:  root.ID,
		PortfolioID:   root.State.PortfolioID,
		Symbol:        root.State.Symbol,
		TransactionID: transactionID,
		Quantity:      quantity,
		Date:          date,
		HeldQuantity:  held,
	}
	if side == SideBuy {
		return record(root, HoldingIncreasedPayload{change}, now)
	}
	return record(root, HoldingDecreasedPayload{change}, now)
}

// checkHoldings walks holdings in date order and returns the final held
// quantity. It fails when a sale predates every purchase or exceeds the units
// held at its date by more than money.QuantityEpsilon.
func checkHoldings(symbol string, holdings map[string]Holding) (decimal.Decimal, error) {
	held := decimal.Zero
	bought := false
	for _, h := range orderedHoldings(holdings) {
		if h.Side == SideBuy {
			held = held.Add(h.Quantity)
			bought = true
			continue
		}
		if !bought {
			return decimal.Zero, apperrors.WithMetadata(apperrors.CodeTransactionBeforePurchase, "sale predates the first purchase", map[string]string{
				"symbol": symbol,
				"date":   h.Date.Format(time.DateOnly),
			})
		}
		remaining := held.Sub(h.Quantity)
		if remaining.IsNegative() {
			if !money.WithinEpsilon(remaining) {
				return decimal.Zero, InsufficientHoldings(symbol, h.Quantity, held)
			}
			remaining = decimal.Zero
		}
		held = remaining
	}
	if money.WithinEpsilon(held) {
		held = decimal.Zero
	}
	return held, nil
}

// InsufficientHoldings builds the validation error for an uncovered sale.
func InsufficientHoldings(symbol string, requested, available decimal.Decimal) error {
	return apperrors.WithMetadata(apperrors.CodeTransactionInsufficientHolding, "insufficient holdings for "+symbol, map[string]string{
		"symbol":    symbol,
		"requested": requested.String(),
		"available": available.String(),
		"shortfall": requested.Sub(available).String(),
	})
}

func requireWritable(state State, owner portfolio.State) error {
	if err := RequireActive(state); err != nil {
		return err
	}
	if err := portfolio.RequireOpen(owner); err != nil {
		return err
	}
	if owner.PortfolioID != state.PortfolioID {
		return apperrors.New(apperrors.CodeNotFound, "investment does not belong to portfolio")
	}
	return nil
}

func invalidQuantity(quantity decimal.Decimal) error {
	return apperrors.WithMetadata(apperrors.CodeTransactionInvalidQuantity, "quantity must be positive", map[string]string{
		"quantity": quantity.String(),
	})
}

func record(root Root, payload Payload, now time.Time) (Root, []event.Event, error) {
	next, recorded, err := root.Record(payload, now, Fold)
	if err != nil {
		return root, nil, err
	}
	return next, []event.Event{recorded}, nil
}
