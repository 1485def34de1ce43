package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/atlas-ims/atlas-ims/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	Snapshot(ctx context.Context, fn func(context.Context, SnapshotReader) error) error
	InsertEntry(ctx context.Context, entry Entry) error
	GetEntry(ctx context.Context, id uuid.UUID) (Entry, error)
	HasReversal(ctx context.Context, id uuid.UUID) (bool, error)
	ListEntries(ctx context.Context, filter EntryFilter) ([]Entry, error)
	ListCostLayers(ctx context.Context, itemCode string) ([]Entry, error)
	ListItemCodes(ctx context.Context) ([]string, error)
	ListFutureDated(ctx context.Context, today time.Time) ([]Entry, error)
	WindowAggregates(ctx context.Context, itemCode string, from, to time.Time) (WindowAggregate, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort exposes the counters the service feeds.
type MetricsPort interface {
	ObserveLedgerAppend(kind string)
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	// Now supplies the clock used for future-date validation and default
	// as-of dates. Tests pin it; production leaves it nil for time.Now.
	Now func() time.Time
}

// Service coordinates the transaction log store and the balance calculator.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency *shared.IdempotencyStore
	metrics     MetricsPort
	now         func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, idem *shared.IdempotencyStore, metrics MetricsPort, cfg ServiceConfig) *Service {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{repo: repo, audit: audit, idempotency: idem, metrics: metrics, now: now}
}

// Append validates and persists one ledger entry.
func (s *Service) Append(ctx context.Context, input AppendInput) (Entry, error) {
	if err := s.validate(input); err != nil {
		return Entry{}, err
	}
	entry := Entry{
		ID:        uuid.New(),
		ItemCode:  input.ItemCode,
		Kind:      input.Kind,
		Date:      truncateDay(input.Date),
		Qty:       input.Qty,
		UnitCost:  input.UnitCost,
		Amount:    input.Amount,
		Supplier:  input.Supplier,
		GRNNumber: input.GRNNumber,
		Purpose:   input.Purpose,
		Remarks:   input.Remarks,
		CreatedBy: input.ActorID,
	}
	// Receipts recorded with a total amount instead of a unit price derive
	// unit cost as amount/qty.
	if entry.Kind == EntryKindReceipt && entry.UnitCost == 0 && entry.Amount > 0 {
		entry.UnitCost = entry.Amount / entry.Qty
	}
	insertedKey := ""
	if s.idempotency != nil && entry.Kind == EntryKindReceipt && entry.GRNNumber != "" {
		key := fmt.Sprintf("GRN:%s:%s", entry.GRNNumber, entry.ItemCode)
		if err := s.idempotency.CheckAndInsert(ctx, key, "ledger"); err != nil {
			return Entry{}, err
		}
		insertedKey = key
	}
	if err := s.repo.InsertEntry(ctx, entry); err != nil {
		if insertedKey != "" {
			_ = s.idempotency.Delete(ctx, insertedKey)
		}
		return Entry{}, err
	}
	if s.metrics != nil {
		s.metrics.ObserveLedgerAppend(string(entry.Kind))
	}
	s.recordAudit(ctx, input.ActorID, fmt.Sprintf("ledger:%s", entry.Kind), entry.ID, map[string]any{
		"item_code": entry.ItemCode,
		"qty":       entry.Qty,
		"date":      entry.Date.Format("2006-01-02"),
	})
	return entry, nil
}

// Reverse appends a compensating entry for the given entry. The original row
// is never touched; the balance calculator nets the pair out. The reversal
// carries the original entry date so both rows land on the same side of any
// opening cutoff; append ordering is preserved through created_at.
func (s *Service) Reverse(ctx context.Context, entryID uuid.UUID, actorID int64, remarks string) (Entry, error) {
	original, err := s.repo.GetEntry(ctx, entryID)
	if err != nil {
		return Entry{}, err
	}
	if original.Kind == EntryKindOpening {
		return Entry{}, ErrOpeningNotReversible
	}
	if original.IsReversal() {
		return Entry{}, ErrReverseReversal
	}
	reversed, err := s.repo.HasReversal(ctx, entryID)
	if err != nil {
		return Entry{}, err
	}
	if reversed {
		return Entry{}, ErrAlreadyReversed
	}
	if remarks == "" {
		remarks = fmt.Sprintf("reversal of %s", original.ID)
	}
	entry := Entry{
		ID:         uuid.New(),
		ItemCode:   original.ItemCode,
		Kind:       original.Kind,
		Date:       original.Date,
		Qty:        original.Qty,
		UnitCost:   original.UnitCost,
		Amount:     original.Amount,
		Supplier:   original.Supplier,
		GRNNumber:  original.GRNNumber,
		Purpose:    original.Purpose,
		Remarks:    remarks,
		ReversalOf: original.ID,
		CreatedBy:  actorID,
	}
	if err := s.repo.InsertEntry(ctx, entry); err != nil {
		return Entry{}, err
	}
	s.recordAudit(ctx, actorID, "ledger:REVERSE", entry.ID, map[string]any{
		"item_code":   entry.ItemCode,
		"reversal_of": original.ID.String(),
	})
	return entry, nil
}

// ListEntries lists entries for an item.
func (s *Service) ListEntries(ctx context.Context, filter EntryFilter) ([]Entry, error) {
	if filter.ItemCode == "" {
		return nil, ErrItemCodeRequired
	}
	return s.repo.ListEntries(ctx, filter)
}

// CostLayers returns the live receipt history for an item, oldest first.
func (s *Service) CostLayers(ctx context.Context, itemCode string) ([]Entry, error) {
	if itemCode == "" {
		return nil, ErrItemCodeRequired
	}
	return s.repo.ListCostLayers(ctx, itemCode)
}

// ItemCodes returns every item known to the ledger.
func (s *Service) ItemCodes(ctx context.Context) ([]string, error) {
	return s.repo.ListItemCodes(ctx)
}

// WindowAggregates exposes trailing-window movement totals for an item.
func (s *Service) WindowAggregates(ctx context.Context, itemCode string, from, to time.Time) (WindowAggregate, error) {
	if itemCode == "" {
		return WindowAggregate{}, ErrItemCodeRequired
	}
	return s.repo.WindowAggregates(ctx, itemCode, from, to)
}

// ComputeBalance folds the three logs into one StockPosition. The computation
// runs against a single consistent snapshot and is deterministic: identical
// ledger contents always produce an identical position. A negative result is
// returned as-is, never clamped; callers surface it as an integrity finding.
func (s *Service) ComputeBalance(ctx context.Context, itemCode string, asOf time.Time) (StockPosition, error) {
	if itemCode == "" {
		return StockPosition{}, ErrItemCodeRequired
	}
	if asOf.IsZero() {
		asOf = s.now()
	}
	asOf = truncateDay(asOf)
	position := StockPosition{ItemCode: itemCode, AsOfDate: asOf}
	err := s.repo.Snapshot(ctx, func(ctx context.Context, reader SnapshotReader) error {
		opening, found, err := reader.LatestOpening(ctx, itemCode, asOf)
		if err != nil {
			return err
		}
		var from time.Time
		if found {
			position.OpeningStock = opening.Qty
			position.OpeningDate = opening.Date
			from = opening.Date
		}
		receipts, issues, err := reader.SumMovements(ctx, itemCode, from)
		if err != nil {
			return err
		}
		position.TotalReceipts = receipts
		position.TotalIssues = issues
		position.CurrentStock = position.OpeningStock + receipts - issues
		return nil
	})
	if err != nil {
		return StockPosition{}, err
	}
	return position, nil
}

// ScanIntegrity sweeps the catalog for data-quality conditions: negative
// balances, future-dated entries, and stock on hand without a cost basis.
// One item's failure never aborts the sweep.
func (s *Service) ScanIntegrity(ctx context.Context) ([]IntegrityFinding, error) {
	today := truncateDay(s.now())
	var findings []IntegrityFinding

	future, err := s.repo.ListFutureDated(ctx, today)
	if err != nil {
		return nil, err
	}
	for _, entry := range future {
		findings = append(findings, IntegrityFinding{
			ItemCode:       entry.ItemCode,
			Kind:           FindingFutureDated,
			Detail:         fmt.Sprintf("%s entry %s dated %s is beyond today", entry.Kind, entry.ID, entry.Date.Format("2006-01-02")),
			Recommendation: "verify the recorded date; append a reversal and a corrected entry if wrong",
		})
	}

	codes, err := s.repo.ListItemCodes(ctx)
	if err != nil {
		return nil, err
	}
	for _, code := range codes {
		if err := ctx.Err(); err != nil {
			return findings, err
		}
		position, err := s.ComputeBalance(ctx, code, today)
		if err != nil {
			findings = append(findings, IntegrityFinding{
				ItemCode:       code,
				Kind:           FindingComputationFailed,
				Detail:         fmt.Sprintf("balance computation failed: %v", err),
				Recommendation: "inspect ledger entries for this item",
			})
			continue
		}
		if position.CurrentStock < 0 {
			findings = append(findings, IntegrityFinding{
				ItemCode:       code,
				Kind:           FindingNegativeStock,
				Detail:         "computed current stock is negative; an issue was likely recorded before its receipt",
				Expected:       0,
				Actual:         position.CurrentStock,
				Recommendation: "locate the missing receipt or reverse the premature issue",
			})
		}
		if position.CurrentStock > 0 {
			layers, err := s.repo.ListCostLayers(ctx, code)
			if err != nil {
				findings = append(findings, IntegrityFinding{
					ItemCode:       code,
					Kind:           FindingComputationFailed,
					Detail:         fmt.Sprintf("cost basis check failed: %v", err),
					Recommendation: "inspect receipt history for this item",
				})
				continue
			}
			if len(layers) == 0 {
				findings = append(findings, IntegrityFinding{
					ItemCode:       code,
					Kind:           FindingMissingCostBasis,
					Detail:         "stock on hand but no receipt history; valuation has no cost basis",
					Actual:         position.CurrentStock,
					Recommendation: "record the missing goods-received-note with its cost",
				})
			}
		}
	}
	return findings, nil
}

func (s *Service) validate(input AppendInput) error {
	if input.ItemCode == "" {
		return ErrItemCodeRequired
	}
	if input.Date.IsZero() {
		return ErrDateRequired
	}
	if truncateDay(input.Date).After(truncateDay(s.now())) {
		return ErrFutureDate
	}
	switch input.Kind {
	case EntryKindOpening:
		if input.Qty < 0 {
			return ErrInvalidQuantity
		}
	case EntryKindReceipt:
		if input.Qty <= 0 {
			return ErrInvalidQuantity
		}
		if input.UnitCost < 0 || input.Amount < 0 {
			return ErrInvalidUnitCost
		}
	case EntryKindIssue:
		if input.Qty <= 0 {
			return ErrInvalidQuantity
		}
	default:
		return ErrUnknownKind
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entryID uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "stock_entry",
		EntityID: entryID.String(),
		Meta:     meta,
		At:       s.now(),
	})
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
