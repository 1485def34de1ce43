package valuation

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/atlas-ims/atlas-ims/internal/ledger"
)

func receiptLayers() []ledger.Entry {
	return []ledger.Entry{
		{ItemCode: "RM-A", Date: day("2026-01-02"), Qty: 100, UnitCost: 8},
		{ItemCode: "RM-A", Date: day("2026-01-15"), Qty: 50, UnitCost: 11},
	}
}

func TestWeightedAverageBlendsReceipts(t *testing.T) {
	cost := weightedAverageCoster{}.UnitCost(receiptLayers())
	// (100*8 + 50*11) / 150 = 9
	require.True(t, cost.Equal(decimal.NewFromInt(9)), "got %s", cost)
}

func TestFIFOUsesOldestReceipt(t *testing.T) {
	cost := fifoCoster{}.UnitCost(receiptLayers())
	require.True(t, cost.Equal(decimal.NewFromInt(8)), "got %s", cost)
}

func TestLIFOUsesNewestReceipt(t *testing.T) {
	cost := lifoCoster{}.UnitCost(receiptLayers())
	require.True(t, cost.Equal(decimal.NewFromInt(11)), "got %s", cost)
}

func TestCostersEmptyHistory(t *testing.T) {
	for method, coster := range Costers() {
		require.Equal(t, method, coster.Method())
		require.True(t, coster.UnitCost(nil).IsZero(), "method %s", method)
	}
}

func TestParseMethodDefaultsToWeightedAverage(t *testing.T) {
	method, err := ParseMethod("")
	require.NoError(t, err)
	require.Equal(t, MethodWeightedAverage, method)

	method, err = ParseMethod("lifo")
	require.NoError(t, err)
	require.Equal(t, MethodLIFO, method)

	_, err = ParseMethod("STANDARD")
	require.ErrorIs(t, err, ErrUnknownMethod)
}
