package position

import (
	"time"

	"github.com/shopspring/decimal"
)

// Lot is an open purchase still held.
type Lot struct {
	Quantity   decimal.Decimal
	UnitCost   decimal.Decimal
	AcquiredAt time.Time
}

// Cost is the total cost of the units left in the lot.
func (l Lot) Cost() decimal.Decimal {
	return l.Quantity.Mul(l.UnitCost)
}

type lots []Lot

func (l lots) quantity() decimal.Decimal {
	total := decimal.Zero
	for _, lot := range l {
		total = total.Add(lot.Quantity)
	}
	return total
}

func (l lots) cost() decimal.Decimal {
	total := decimal.Zero
	for _, lot := range l {
		total = total.Add(lot.Cost())
	}
	return total
}

// fragment is the part of one lot consumed by a sale.
type fragment struct {
	quantity decimal.Decimal
	unitCost decimal.Decimal
}

// sell consumes up to quantity units oldest first and returns the remaining
// lots with the consumed fragments. The receiver is not modified.
func (l lots) sell(quantity decimal.Decimal) (lots, []fragment) {
	var remaining lots
	var consumed []fragment
	for _, current := range l {
		if !quantity.IsPositive() {
			remaining = append(remaining, current)
			continue
		}
		if current.Quantity.GreaterThan(quantity) {
			consumed = append(consumed, fragment{quantity: quantity, unitCost: current.UnitCost})
			current.Quantity = current.Quantity.Sub(quantity)
			remaining = append(remaining, current)
			quantity = decimal.Zero
			continue
		}
		consumed = append(consumed, fragment{quantity: current.Quantity, unitCost: current.UnitCost})
		quantity = quantity.Sub(current.Quantity)
	}
	return remaining, consumed
}
