package classify

import (
	"sort"

	"github.com/shopspring/decimal"
)

// ClassifyABC ranks items by stock value descending and partitions them by
// cumulative value share. The item that crosses a threshold stays in the
// richer class, so class A carries at most one boundary item past aThreshold.
// Equal values tie-break on item code to keep runs deterministic.
func ClassifyABC(items []ItemValue, aThreshold, bThreshold float64) []ABCResult {
	ranked := make([]ItemValue, len(items))
	copy(ranked, items)
	sort.SliceStable(ranked, func(i, j int) bool {
		cmp := ranked[i].TotalValue.Cmp(ranked[j].TotalValue)
		if cmp != 0 {
			return cmp > 0
		}
		return ranked[i].ItemCode < ranked[j].ItemCode
	})

	total := decimal.Zero
	for _, item := range ranked {
		total = total.Add(item.TotalValue)
	}

	results := make([]ABCResult, 0, len(ranked))
	cumulative := 0.0
	for _, item := range ranked {
		share := 0.0
		if total.IsPositive() {
			share, _ = item.TotalValue.Div(total).Float64()
		}
		before := cumulative
		cumulative += share

		class := ClassC
		switch {
		case total.IsPositive() && before < aThreshold:
			class = ClassA
		case total.IsPositive() && before < bThreshold:
			class = ClassB
		}
		results = append(results, ABCResult{
			ItemCode:        item.ItemCode,
			Class:           class,
			ValueShare:      share,
			CumulativeShare: cumulative,
		})
	}
	return results
}
