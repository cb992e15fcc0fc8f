// Package positions derives weighted-average holdings from the transaction ledger.
package positions

import (
	"github.com/aristath/holdings/internal/domain"
)

// ApplyEffect returns the position that results from applying one effect.
// current is the active position for the key, or nil when none exists.
// The returned value shares no pointers with current; identity fields
// (id, key, currency, timestamps) are carried over and left for the caller to fill when new.
func ApplyEffect(current *domain.Position, effect domain.Effect) domain.Position {
	var next domain.Position
	if current != nil {
		next = *current
		next.FirstPurchaseDate = copyTime(current.FirstPurchaseDate)
	}

	buy := effect.Type.IsBuyClass()
	switch {
	case current == nil && buy:
		next.Quantity = effect.Quantity
		next.AverageCost = effect.Price

	case buy:
		newQuantity := current.Quantity.Add(effect.Quantity)
		if newQuantity.IsPositive() {
			cost := current.Quantity.Mul(current.AverageCost).Add(effect.Quantity.Mul(effect.Price))
			next.AverageCost = cost.Div(newQuantity)
		}
		next.Quantity = newQuantity

	default:
		// Sells never touch the average; a sell with no position starts at zero cost
		next.Quantity = next.Quantity.Sub(effect.Quantity)
	}

	next.TotalCost = next.Quantity.Mul(next.AverageCost)

	if buy {
		if next.FirstPurchaseDate == nil || effect.Date.Before(*next.FirstPurchaseDate) {
			d := effect.Date
			next.FirstPurchaseDate = &d
		}
	}
	next.LastTransactionDate = effect.Date
	next.IsActive = next.Quantity.IsPositive()

	return next
}

// ReverseEffect undoes one previously applied effect using the position's current average cost.
// Dates are left untouched.
func ReverseEffect(current domain.Position, effect domain.Effect) domain.Position {
	next := current
	next.FirstPurchaseDate = copyTime(current.FirstPurchaseDate)

	if effect.Type.IsBuyClass() {
		next.Quantity = current.Quantity.Sub(effect.Quantity)
	} else {
		next.Quantity = current.Quantity.Add(effect.Quantity)
	}

	next.TotalCost = next.Quantity.Mul(next.AverageCost)
	next.IsActive = next.Quantity.IsPositive()

	return next
}

// Replay folds an ordered effect history into a single position the same way
// the store would have built it incrementally: once a position deactivates,
// the next effect starts from an empty position.
func Replay(effects []domain.Effect) *domain.Position {
	var pos *domain.Position
	for _, e := range effects {
		base := pos
		if base != nil && !base.IsActive {
			base = nil
		}
		next := ApplyEffect(base, e)
		pos = &next
	}
	return pos
}
