package ledger

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/atlas-ims/atlas-ims/internal/shared"
)

type memoryRepo struct {
	entries []Entry
	seq     int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{}
}

func (r *memoryRepo) Snapshot(ctx context.Context, fn func(context.Context, SnapshotReader) error) error {
	return fn(ctx, r)
}

func (r *memoryRepo) InsertEntry(ctx context.Context, entry Entry) error {
	r.seq++
	entry.CreatedAt = time.Unix(r.seq, 0)
	r.entries = append(r.entries, entry)
	return nil
}

func (r *memoryRepo) GetEntry(ctx context.Context, id uuid.UUID) (Entry, error) {
	for _, entry := range r.entries {
		if entry.ID == id {
			return entry, nil
		}
	}
	return Entry{}, ErrEntryNotFound
}

func (r *memoryRepo) HasReversal(ctx context.Context, id uuid.UUID) (bool, error) {
	for _, entry := range r.entries {
		if entry.ReversalOf == id {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryRepo) ListEntries(ctx context.Context, filter EntryFilter) ([]Entry, error) {
	var out []Entry
	for _, entry := range r.entries {
		if entry.ItemCode != filter.ItemCode {
			continue
		}
		if filter.Kind != "" && entry.Kind != filter.Kind {
			continue
		}
		if !filter.From.IsZero() && entry.Date.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && entry.Date.After(filter.To) {
			continue
		}
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (r *memoryRepo) ListCostLayers(ctx context.Context, itemCode string) ([]Entry, error) {
	reversed := map[uuid.UUID]bool{}
	for _, entry := range r.entries {
		if entry.ReversalOf != uuid.Nil {
			reversed[entry.ReversalOf] = true
		}
	}
	var out []Entry
	for _, entry := range r.entries {
		if entry.ItemCode != itemCode || entry.Kind != EntryKindReceipt || entry.IsReversal() || reversed[entry.ID] {
			continue
		}
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date.Equal(out[j].Date) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Date.Before(out[j].Date)
	})
	return out, nil
}

func (r *memoryRepo) ListItemCodes(ctx context.Context) ([]string, error) {
	seen := map[string]bool{}
	var codes []string
	for _, entry := range r.entries {
		if !seen[entry.ItemCode] {
			seen[entry.ItemCode] = true
			codes = append(codes, entry.ItemCode)
		}
	}
	sort.Strings(codes)
	return codes, nil
}

func (r *memoryRepo) ListFutureDated(ctx context.Context, today time.Time) ([]Entry, error) {
	var out []Entry
	for _, entry := range r.entries {
		if entry.Date.After(today) {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (r *memoryRepo) WindowAggregates(ctx context.Context, itemCode string, from, to time.Time) (WindowAggregate, error) {
	agg := WindowAggregate{ItemCode: itemCode}
	for _, entry := range r.entries {
		if entry.ItemCode != itemCode {
			continue
		}
		qty := entry.Qty
		if entry.IsReversal() {
			qty = -qty
		}
		inWindow := !entry.Date.Before(from) && !entry.Date.After(to)
		switch entry.Kind {
		case EntryKindReceipt:
			if inWindow {
				agg.ReceiptsQty += qty
			}
			if !entry.IsReversal() {
				d := entry.Date
				if agg.LastReceipt == nil || d.After(*agg.LastReceipt) {
					agg.LastReceipt = &d
				}
			}
		case EntryKindIssue:
			if inWindow {
				agg.IssuesQty += qty
			}
			if !entry.IsReversal() {
				d := entry.Date
				if agg.LastIssue == nil || d.After(*agg.LastIssue) {
					agg.LastIssue = &d
				}
			}
		}
	}
	return agg, nil
}

func (r *memoryRepo) LatestOpening(ctx context.Context, itemCode string, asOf time.Time) (Entry, bool, error) {
	var best Entry
	found := false
	for _, entry := range r.entries {
		if entry.ItemCode != itemCode || entry.Kind != EntryKindOpening || entry.Date.After(asOf) {
			continue
		}
		if !found || entry.Date.After(best.Date) || (entry.Date.Equal(best.Date) && entry.CreatedAt.After(best.CreatedAt)) {
			best = entry
			found = true
		}
	}
	return best, found, nil
}

func (r *memoryRepo) SumMovements(ctx context.Context, itemCode string, from time.Time) (float64, float64, error) {
	var receipts, issues float64
	for _, entry := range r.entries {
		if entry.ItemCode != itemCode {
			continue
		}
		if !from.IsZero() && entry.Date.Before(from) {
			continue
		}
		qty := entry.Qty
		if entry.IsReversal() {
			qty = -qty
		}
		switch entry.Kind {
		case EntryKindReceipt:
			receipts += qty
		case EntryKindIssue:
			issues += qty
		}
	}
	return receipts, issues, nil
}

func fixedClock(date string) func() time.Time {
	t, _ := time.Parse("2006-01-02", date)
	return func() time.Time { return t }
}

func day(date string) time.Time {
	t, _ := time.Parse("2006-01-02", date)
	return t
}

func newTestService(repo *memoryRepo, today string) *Service {
	return NewService(repo, nil, nil, nil, ServiceConfig{Now: fixedClock(today)})
}

func TestAppendValidation(t *testing.T) {
	svc := newTestService(newMemoryRepo(), "2024-03-15")
	ctx := context.Background()

	_, err := svc.Append(ctx, AppendInput{Kind: EntryKindReceipt, Date: day("2024-03-01"), Qty: 5})
	require.ErrorIs(t, err, ErrItemCodeRequired)

	_, err = svc.Append(ctx, AppendInput{ItemCode: "X", Kind: EntryKindReceipt, Date: day("2024-03-01"), Qty: 0})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.Append(ctx, AppendInput{ItemCode: "X", Kind: EntryKindIssue, Date: day("2024-03-01"), Qty: -3})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.Append(ctx, AppendInput{ItemCode: "X", Kind: EntryKindReceipt, Date: day("2024-03-16"), Qty: 5, UnitCost: 1})
	require.ErrorIs(t, err, ErrFutureDate)

	_, err = svc.Append(ctx, AppendInput{ItemCode: "X", Kind: "TRANSFER", Date: day("2024-03-01"), Qty: 5})
	require.ErrorIs(t, err, ErrUnknownKind)

	_, err = svc.Append(ctx, AppendInput{ItemCode: "X", Kind: EntryKindOpening, Date: day("2024-03-01"), Qty: 0})
	require.NoError(t, err, "zero opening stock is legal")
}

func TestReceiptUnitCostDerivedFromAmount(t *testing.T) {
	svc := newTestService(newMemoryRepo(), "2024-03-15")

	entry, err := svc.Append(context.Background(), AppendInput{
		ItemCode: "X", Kind: EntryKindReceipt, Date: day("2024-03-01"), Qty: 50, Amount: 500,
	})
	require.NoError(t, err)
	require.InDelta(t, 10.0, entry.UnitCost, 0.0001)
}

func TestComputeBalanceWorkedExample(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, "2024-03-15")
	ctx := context.Background()

	_, err := svc.Append(ctx, AppendInput{ItemCode: "X", Kind: EntryKindOpening, Date: day("2024-01-01"), Qty: 100})
	require.NoError(t, err)
	_, err = svc.Append(ctx, AppendInput{ItemCode: "X", Kind: EntryKindReceipt, Date: day("2024-02-01"), Qty: 50, UnitCost: 10})
	require.NoError(t, err)
	_, err = svc.Append(ctx, AppendInput{ItemCode: "X", Kind: EntryKindIssue, Date: day("2024-02-15"), Qty: 30, Purpose: "production"})
	require.NoError(t, err)

	position, err := svc.ComputeBalance(ctx, "X", time.Time{})
	require.NoError(t, err)
	require.InDelta(t, 100.0, position.OpeningStock, 0.0001)
	require.InDelta(t, 50.0, position.TotalReceipts, 0.0001)
	require.InDelta(t, 30.0, position.TotalIssues, 0.0001)
	require.InDelta(t, 120.0, position.CurrentStock, 0.0001)
	require.InDelta(t, position.OpeningStock+position.TotalReceipts-position.TotalIssues, position.CurrentStock, 0.0001)

	// Re-running the fold over identical inputs yields an identical position.
	again, err := svc.ComputeBalance(ctx, "X", time.Time{})
	require.NoError(t, err)
	require.Equal(t, position, again)
}

func TestComputeBalanceNoOpening(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, "2024-03-15")
	ctx := context.Background()

	_, err := svc.Append(ctx, AppendInput{ItemCode: "Y", Kind: EntryKindReceipt, Date: day("2024-02-01"), Qty: 40, UnitCost: 5})
	require.NoError(t, err)

	position, err := svc.ComputeBalance(ctx, "Y", time.Time{})
	require.NoError(t, err)
	require.Zero(t, position.OpeningStock)
	require.InDelta(t, 40.0, position.CurrentStock, 0.0001)
}

func TestComputeBalanceOpeningCutoff(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, "2024-06-15")
	ctx := context.Background()

	// A receipt before the opening cutoff is already folded into the declared
	// opening quantity and must not be double counted.
	_, err := svc.Append(ctx, AppendInput{ItemCode: "Z", Kind: EntryKindReceipt, Date: day("2024-01-10"), Qty: 25, UnitCost: 4})
	require.NoError(t, err)
	_, err = svc.Append(ctx, AppendInput{ItemCode: "Z", Kind: EntryKindOpening, Date: day("2024-02-01"), Qty: 80})
	require.NoError(t, err)
	_, err = svc.Append(ctx, AppendInput{ItemCode: "Z", Kind: EntryKindIssue, Date: day("2024-03-01"), Qty: 10})
	require.NoError(t, err)

	position, err := svc.ComputeBalance(ctx, "Z", time.Time{})
	require.NoError(t, err)
	require.InDelta(t, 80.0, position.OpeningStock, 0.0001)
	require.Zero(t, position.TotalReceipts)
	require.InDelta(t, 70.0, position.CurrentStock, 0.0001)

	// An as-of before the opening date falls back to no opening at all.
	earlier, err := svc.ComputeBalance(ctx, "Z", day("2024-01-15"))
	require.NoError(t, err)
	require.Zero(t, earlier.OpeningStock)
	require.InDelta(t, 25.0, earlier.TotalReceipts, 0.0001)
}

func TestReverseCompensates(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, "2024-03-15")
	ctx := context.Background()

	receipt, err := svc.Append(ctx, AppendInput{ItemCode: "X", Kind: EntryKindReceipt, Date: day("2024-02-01"), Qty: 50, UnitCost: 10})
	require.NoError(t, err)

	reversal, err := svc.Reverse(ctx, receipt.ID, 7, "")
	require.NoError(t, err)
	require.Equal(t, receipt.ID, reversal.ReversalOf)
	require.Equal(t, receipt.Kind, reversal.Kind)

	position, err := svc.ComputeBalance(ctx, "X", time.Time{})
	require.NoError(t, err)
	require.Zero(t, position.CurrentStock)

	// The reversed receipt no longer contributes a cost layer.
	layers, err := svc.CostLayers(ctx, "X")
	require.NoError(t, err)
	require.Empty(t, layers)

	_, err = svc.Reverse(ctx, receipt.ID, 7, "")
	require.ErrorIs(t, err, ErrAlreadyReversed)

	_, err = svc.Reverse(ctx, reversal.ID, 7, "")
	require.ErrorIs(t, err, ErrReverseReversal)
}

func TestReverseCarriesOriginalDate(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, "2024-03-15")
	ctx := context.Background()

	// A receipt recorded before a later opening falls outside the balance
	// fold; its reversal must land on the same side of the cutoff.
	receipt, err := svc.Append(ctx, AppendInput{ItemCode: "X", Kind: EntryKindReceipt, Date: day("2024-01-10"), Qty: 25, UnitCost: 4})
	require.NoError(t, err)
	_, err = svc.Append(ctx, AppendInput{ItemCode: "X", Kind: EntryKindOpening, Date: day("2024-02-01"), Qty: 80})
	require.NoError(t, err)

	before, err := svc.ComputeBalance(ctx, "X", time.Time{})
	require.NoError(t, err)
	require.InDelta(t, 80.0, before.CurrentStock, 0.0001)

	reversal, err := svc.Reverse(ctx, receipt.ID, 7, "")
	require.NoError(t, err)
	require.True(t, reversal.Date.Equal(day("2024-01-10")))

	after, err := svc.ComputeBalance(ctx, "X", time.Time{})
	require.NoError(t, err)
	require.InDelta(t, 80.0, after.CurrentStock, 0.0001)
}

func TestReverseOpeningRejected(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, "2024-03-15")
	ctx := context.Background()

	opening, err := svc.Append(ctx, AppendInput{ItemCode: "X", Kind: EntryKindOpening, Date: day("2024-01-01"), Qty: 10})
	require.NoError(t, err)

	_, err = svc.Reverse(ctx, opening.ID, 7, "")
	require.ErrorIs(t, err, ErrOpeningNotReversible)
}

func TestScanIntegrityFindings(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, "2024-03-15")
	ctx := context.Background()

	// Issue before any receipt drives the balance negative.
	_, err := svc.Append(ctx, AppendInput{ItemCode: "NEG", Kind: EntryKindIssue, Date: day("2024-02-01"), Qty: 50, Purpose: "maintenance"})
	require.NoError(t, err)

	// Opening stock without receipts has no cost basis.
	_, err = svc.Append(ctx, AppendInput{ItemCode: "NOCOST", Kind: EntryKindOpening, Date: day("2024-01-01"), Qty: 30})
	require.NoError(t, err)

	// Future-dated entries bypass Append validation only via direct inserts,
	// e.g. a bulk import; seed one directly.
	require.NoError(t, repo.InsertEntry(ctx, Entry{
		ID: uuid.New(), ItemCode: "FUT", Kind: EntryKindReceipt, Date: day("2024-04-01"), Qty: 5, UnitCost: 2,
	}))

	findings, err := svc.ScanIntegrity(ctx)
	require.NoError(t, err)

	kinds := map[string]FindingKind{}
	for _, f := range findings {
		kinds[f.ItemCode] = f.Kind
	}
	require.Equal(t, FindingNegativeStock, kinds["NEG"])
	require.Equal(t, FindingMissingCostBasis, kinds["NOCOST"])
	require.Equal(t, FindingFutureDated, kinds["FUT"])
}

type failingLayersRepo struct {
	*memoryRepo
}

func (r *failingLayersRepo) ListCostLayers(ctx context.Context, itemCode string) ([]Entry, error) {
	return nil, errors.New("simulated read failure")
}

func TestScanIntegrityReportsFailedChecks(t *testing.T) {
	repo := &failingLayersRepo{memoryRepo: newMemoryRepo()}
	svc := NewService(repo, nil, nil, nil, ServiceConfig{Now: fixedClock("2024-03-15")})
	ctx := context.Background()

	_, err := svc.Append(ctx, AppendInput{ItemCode: "X", Kind: EntryKindReceipt, Date: day("2024-02-01"), Qty: 10, UnitCost: 3})
	require.NoError(t, err)

	findings, err := svc.ScanIntegrity(ctx)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	require.Equal(t, FindingComputationFailed, findings[0].Kind)
	require.Equal(t, "X", findings[0].ItemCode)
	require.Contains(t, findings[0].Detail, "cost basis check failed")
}

type auditSpy struct {
	logs []shared.AuditLog
}

func (a *auditSpy) Record(_ context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func TestAuditLogsCarryTimestamp(t *testing.T) {
	spy := &auditSpy{}
	svc := NewService(newMemoryRepo(), spy, nil, nil, ServiceConfig{Now: fixedClock("2024-03-15")})

	_, err := svc.Append(context.Background(), AppendInput{ItemCode: "X", Kind: EntryKindReceipt, Date: day("2024-03-01"), Qty: 5, UnitCost: 2})
	require.NoError(t, err)

	require.Len(t, spy.logs, 1)
	require.Equal(t, "ledger:RECEIPT", spy.logs[0].Action)
	require.True(t, spy.logs[0].At.Equal(day("2024-03-15")))
}
