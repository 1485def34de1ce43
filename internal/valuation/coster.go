package valuation

import (
	"github.com/shopspring/decimal"

	"github.com/atlas-ims/atlas-ims/internal/ledger"
)

// Coster derives a unit cost from an item's live receipt history, oldest
// first. Implementations are pure; swapping one in never changes callers.
type Coster interface {
	Method() Method
	UnitCost(layers []ledger.Entry) decimal.Decimal
}

// Costers returns the built-in strategies keyed by method.
func Costers() map[Method]Coster {
	return map[Method]Coster{
		MethodWeightedAverage: weightedAverageCoster{},
		MethodFIFO:            fifoCoster{},
		MethodLIFO:            lifoCoster{},
	}
}

type weightedAverageCoster struct{}

func (weightedAverageCoster) Method() Method { return MethodWeightedAverage }

func (weightedAverageCoster) UnitCost(layers []ledger.Entry) decimal.Decimal {
	totalQty := decimal.Zero
	totalCost := decimal.Zero
	for _, layer := range layers {
		qty := decimal.NewFromFloat(layer.Qty)
		totalQty = totalQty.Add(qty)
		totalCost = totalCost.Add(qty.Mul(decimal.NewFromFloat(layer.UnitCost)))
	}
	if totalQty.IsZero() {
		return decimal.Zero
	}
	return totalCost.DivRound(totalQty, 4)
}

// fifoCoster prices the entire on-hand quantity at the oldest live receipt's
// unit cost. A layered consumption model can be slotted in behind Coster
// later without touching callers.
type fifoCoster struct{}

func (fifoCoster) Method() Method { return MethodFIFO }

func (fifoCoster) UnitCost(layers []ledger.Entry) decimal.Decimal {
	if len(layers) == 0 {
		return decimal.Zero
	}
	return decimal.NewFromFloat(layers[0].UnitCost)
}

type lifoCoster struct{}

func (lifoCoster) Method() Method { return MethodLIFO }

func (lifoCoster) UnitCost(layers []ledger.Entry) decimal.Decimal {
	if len(layers) == 0 {
		return decimal.Zero
	}
	return decimal.NewFromFloat(layers[len(layers)-1].UnitCost)
}
