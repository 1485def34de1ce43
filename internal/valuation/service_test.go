package valuation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/atlas-ims/atlas-ims/internal/ledger"
)

type memoryLedger struct {
	positions map[string]ledger.StockPosition
	layers    map[string][]ledger.Entry
	failItems map[string]error
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{
		positions: map[string]ledger.StockPosition{},
		layers:    map[string][]ledger.Entry{},
		failItems: map[string]error{},
	}
}

func (m *memoryLedger) ComputeBalance(_ context.Context, itemCode string, _ time.Time) (ledger.StockPosition, error) {
	if err, ok := m.failItems[itemCode]; ok {
		return ledger.StockPosition{}, err
	}
	return m.positions[itemCode], nil
}

func (m *memoryLedger) CostLayers(_ context.Context, itemCode string) ([]ledger.Entry, error) {
	return m.layers[itemCode], nil
}

func (m *memoryLedger) ItemCodes(_ context.Context) ([]string, error) {
	codes := make([]string, 0, len(m.positions))
	for code := range m.positions {
		codes = append(codes, code)
	}
	return codes, nil
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func fixedClock(s string) func() time.Time {
	t := day(s)
	return func() time.Time { return t }
}

func TestValuateWeightedAverage(t *testing.T) {
	repo := newMemoryLedger()
	repo.positions["RM-STEEL-01"] = ledger.StockPosition{ItemCode: "RM-STEEL-01", CurrentStock: 120}
	repo.layers["RM-STEEL-01"] = []ledger.Entry{
		{ItemCode: "RM-STEEL-01", Date: day("2026-01-05"), Qty: 50, UnitCost: 10},
	}
	svc := NewService(repo, ServiceConfig{Now: fixedClock("2026-01-31")})

	val, err := svc.Valuate(context.Background(), "RM-STEEL-01", MethodWeightedAverage)
	require.NoError(t, err)
	require.Equal(t, float64(120), val.Quantity)
	require.True(t, val.UnitCost.Equal(decimal.NewFromInt(10)), "unit cost %s", val.UnitCost)
	require.True(t, val.TotalValue.Equal(decimal.NewFromInt(1200)), "total %s", val.TotalValue)
	require.Equal(t, 26, val.StockAgeDays)
	require.False(t, val.MissingCostBasis)
}

func TestValuateMissingCostBasis(t *testing.T) {
	repo := newMemoryLedger()
	repo.positions["RM-NO-COST"] = ledger.StockPosition{ItemCode: "RM-NO-COST", CurrentStock: 40}
	svc := NewService(repo, ServiceConfig{Now: fixedClock("2026-01-31")})

	val, err := svc.Valuate(context.Background(), "RM-NO-COST", MethodFIFO)
	require.NoError(t, err)
	require.True(t, val.MissingCostBasis)
	require.True(t, val.UnitCost.IsZero())
	require.True(t, val.TotalValue.IsZero())
	require.Zero(t, val.StockAgeDays)
}

func TestValuateUnknownMethod(t *testing.T) {
	svc := NewService(newMemoryLedger(), ServiceConfig{})
	_, err := svc.Valuate(context.Background(), "RM-STEEL-01", Method("STANDARD"))
	require.ErrorIs(t, err, ErrUnknownMethod)
}

func TestValuateAllIsolatesItemErrors(t *testing.T) {
	repo := newMemoryLedger()
	repo.positions["RM-A"] = ledger.StockPosition{ItemCode: "RM-A", CurrentStock: 10}
	repo.layers["RM-A"] = []ledger.Entry{{ItemCode: "RM-A", Date: day("2026-01-10"), Qty: 10, UnitCost: 3}}
	repo.positions["RM-B"] = ledger.StockPosition{ItemCode: "RM-B", CurrentStock: 5}
	repo.layers["RM-B"] = []ledger.Entry{{ItemCode: "RM-B", Date: day("2026-01-12"), Qty: 5, UnitCost: 7}}
	repo.positions["RM-BAD"] = ledger.StockPosition{}
	repo.failItems["RM-BAD"] = errors.New("corrupt row")
	svc := NewService(repo, ServiceConfig{Now: fixedClock("2026-01-31"), Workers: 2})

	report, err := svc.ValuateAll(context.Background(), MethodWeightedAverage)
	require.NoError(t, err)
	require.Len(t, report.Valuations, 2)
	require.Equal(t, "RM-A", report.Valuations[0].ItemCode)
	require.Equal(t, "RM-B", report.Valuations[1].ItemCode)
	require.True(t, report.Total.Equal(decimal.NewFromInt(65)), "total %s", report.Total)
	require.Len(t, report.Errors, 1)
	require.Equal(t, "RM-BAD", report.Errors[0].ItemCode)
}

func TestValuateAllCancelled(t *testing.T) {
	repo := newMemoryLedger()
	repo.positions["RM-A"] = ledger.StockPosition{ItemCode: "RM-A", CurrentStock: 10}
	svc := NewService(repo, ServiceConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.ValuateAll(ctx, MethodLIFO)
	require.ErrorIs(t, err, context.Canceled)
}
