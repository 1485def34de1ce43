package classify

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/atlas-ims/atlas-ims/internal/ledger"
	"github.com/atlas-ims/atlas-ims/internal/valuation"
)

type memoryLedger struct {
	positions map[string]ledger.StockPosition
	windows   map[string]ledger.WindowAggregate
}

func (m *memoryLedger) ItemCodes(context.Context) ([]string, error) {
	codes := make([]string, 0, len(m.positions))
	for code := range m.positions {
		codes = append(codes, code)
	}
	return codes, nil
}

func (m *memoryLedger) ComputeBalance(_ context.Context, itemCode string, _ time.Time) (ledger.StockPosition, error) {
	return m.positions[itemCode], nil
}

func (m *memoryLedger) WindowAggregates(_ context.Context, itemCode string, _, _ time.Time) (ledger.WindowAggregate, error) {
	return m.windows[itemCode], nil
}

type memoryValuation struct {
	values map[string]decimal.Decimal
}

func (m *memoryValuation) Valuate(_ context.Context, itemCode string, method valuation.Method) (valuation.Valuation, error) {
	return valuation.Valuation{ItemCode: itemCode, Method: method, TotalValue: m.values[itemCode]}, nil
}

func fixedClock(s string) func() time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return func() time.Time { return t }
}

func testFixture(t *testing.T) (*memoryLedger, *memoryValuation) {
	t.Helper()
	now := fixedClock("2026-06-30")()
	recent := now.AddDate(0, 0, -5)
	stale := now.AddDate(0, 0, -200)
	return &memoryLedger{
			positions: map[string]ledger.StockPosition{
				"RM-FAST": {ItemCode: "RM-FAST", CurrentStock: 50},
				"RM-SLOW": {ItemCode: "RM-SLOW", CurrentStock: 400},
				"RM-DEAD": {ItemCode: "RM-DEAD", CurrentStock: 30},
			},
			windows: map[string]ledger.WindowAggregate{
				"RM-FAST": {ItemCode: "RM-FAST", IssuesQty: 120, LastIssue: &recent},
				"RM-SLOW": {ItemCode: "RM-SLOW", IssuesQty: 40, LastIssue: &recent},
				"RM-DEAD": {ItemCode: "RM-DEAD", LastReceipt: &stale},
			},
		}, &memoryValuation{values: map[string]decimal.Decimal{
			"RM-FAST": decimal.NewFromInt(8000),
			"RM-SLOW": decimal.NewFromInt(1500),
			"RM-DEAD": decimal.NewFromInt(500),
		}}
}

func TestRefreshAllBuildsSnapshot(t *testing.T) {
	ledgerPort, valuationPort := testFixture(t)
	svc := NewService(Config{Now: fixedClock("2026-06-30")}, ledgerPort, valuationPort, nil, nil)

	report, err := svc.RefreshAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, report.Items)
	require.Empty(t, report.Errors)

	records, err := svc.List(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, records, 3)
	byCode := map[string]Record{}
	for _, rec := range records {
		byCode[rec.ItemCode] = rec
	}

	// RM-FAST holds 80% of total value and turns over 2.4x in the window.
	require.Equal(t, ClassA, byCode["RM-FAST"].ABCClass)
	require.Equal(t, MovementFast, byCode["RM-FAST"].MovementClass)
	require.Equal(t, RiskLow, byCode["RM-FAST"].Risk)

	require.Equal(t, ClassB, byCode["RM-SLOW"].ABCClass)
	require.Equal(t, MovementSlow, byCode["RM-SLOW"].MovementClass)

	require.Equal(t, ClassC, byCode["RM-DEAD"].ABCClass)
	require.Equal(t, MovementDead, byCode["RM-DEAD"].MovementClass)
	require.Equal(t, RiskHigh, byCode["RM-DEAD"].Risk)
	require.Equal(t, ActionLiquidate, byCode["RM-DEAD"].RecommendedAction)
	require.True(t, byCode["RM-DEAD"].ValuationImpact.Equal(decimal.NewFromInt(125)))
}

func TestListFilters(t *testing.T) {
	ledgerPort, valuationPort := testFixture(t)
	svc := NewService(Config{Now: fixedClock("2026-06-30")}, ledgerPort, valuationPort, nil, nil)
	_, err := svc.RefreshAll(context.Background())
	require.NoError(t, err)

	records, err := svc.List(context.Background(), Filter{Movement: MovementDead})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "RM-DEAD", records[0].ItemCode)

	records, err = svc.List(context.Background(), Filter{ABC: ClassA, Risk: RiskCritical})
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestRefreshAllIdempotent(t *testing.T) {
	ledgerPort, valuationPort := testFixture(t)
	svc := NewService(Config{Now: fixedClock("2026-06-30")}, ledgerPort, valuationPort, nil, nil)

	_, err := svc.RefreshAll(context.Background())
	require.NoError(t, err)
	first, err := svc.List(context.Background(), Filter{})
	require.NoError(t, err)

	_, err = svc.RefreshAll(context.Background())
	require.NoError(t, err)
	second, err := svc.List(context.Background(), Filter{})
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestRefreshAllCancelled(t *testing.T) {
	ledgerPort, valuationPort := testFixture(t)
	svc := NewService(Config{Now: fixedClock("2026-06-30")}, ledgerPort, valuationPort, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.RefreshAll(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestSnapshotMirroredThroughCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewCache(client, time.Minute)

	ledgerPort, valuationPort := testFixture(t)
	writer := NewService(Config{Now: fixedClock("2026-06-30")}, ledgerPort, valuationPort, cache, nil)
	_, err := writer.RefreshAll(context.Background())
	require.NoError(t, err)

	// A fresh replica with no in-memory snapshot serves the cached one.
	reader := NewService(Config{Now: fixedClock("2026-06-30")}, ledgerPort, valuationPort, cache, nil)
	records, err := reader.List(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, records, 3)

	// A version bump makes the next read recompute instead of serving stale data.
	require.NoError(t, cache.Bump(context.Background()))
	fresh := NewService(Config{Now: fixedClock("2026-06-30")}, ledgerPort, valuationPort, cache, nil)
	records, err = fresh.List(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, records, 3)
}
