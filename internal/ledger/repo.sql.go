package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atlas-ims/atlas-ims/internal/platform/db"
)

// Repository persists ledger entries in PostgreSQL. The stock_entries table is
// append-only: no UPDATE or DELETE statement exists in this package.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// SnapshotReader exposes the reads a balance computation performs against one
// consistent snapshot.
type SnapshotReader interface {
	LatestOpening(ctx context.Context, itemCode string, asOf time.Time) (Entry, bool, error)
	SumMovements(ctx context.Context, itemCode string, from time.Time) (receipts, issues float64, err error)
}

type snapshotReader struct {
	tx pgx.Tx
}

const entryColumns = `id, item_code, kind, entry_date, qty, unit_cost, amount, supplier, grn_number, purpose, remarks, reversal_of, created_by, created_at`

// Snapshot runs fn against a read-only repeatable-read transaction so all
// reads of one computation observe the same ledger state.
func (r *Repository) Snapshot(ctx context.Context, fn func(context.Context, SnapshotReader) error) error {
	if r == nil {
		return errors.New("ledger repository not initialised")
	}
	return db.WithReadTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &snapshotReader{tx: tx})
	})
}

// InsertEntry appends one entry.
func (r *Repository) InsertEntry(ctx context.Context, entry Entry) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO stock_entries (`+entryColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,NOW())`,
		entry.ID, entry.ItemCode, string(entry.Kind), entry.Date, entry.Qty, entry.UnitCost, entry.Amount,
		entry.Supplier, entry.GRNNumber, entry.Purpose, entry.Remarks, nullUUID(entry.ReversalOf), nullInt(entry.CreatedBy))
	return err
}

// GetEntry fetches a single entry by ID.
func (r *Repository) GetEntry(ctx context.Context, id uuid.UUID) (Entry, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+entryColumns+` FROM stock_entries WHERE id=$1`, id)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, ErrEntryNotFound
		}
		return Entry{}, err
	}
	return entry, nil
}

// HasReversal reports whether a compensating entry already references id.
func (r *Repository) HasReversal(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM stock_entries WHERE reversal_of=$1)`, id).Scan(&exists)
	return exists, err
}

// ListEntries returns entries for an item and optional kind/date range.
func (r *Repository) ListEntries(ctx context.Context, filter EntryFilter) ([]Entry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT `+entryColumns+` FROM stock_entries
WHERE item_code=$1
  AND ($2::text IS NULL OR kind=$2)
  AND entry_date BETWEEN COALESCE($3, '-infinity') AND COALESCE($4, 'infinity')
ORDER BY entry_date ASC, created_at ASC
LIMIT $5`, filter.ItemCode, nullKind(filter.Kind), nullTime(filter.From), nullTime(filter.To), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntries(rows)
}

// ListCostLayers returns the live receipt history for an item, oldest first.
// Reversal entries and receipts that have been reversed are excluded, so the
// valuation engine only sees cost layers that still stand.
func (r *Repository) ListCostLayers(ctx context.Context, itemCode string) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+entryColumns+` FROM stock_entries e
WHERE e.item_code=$1 AND e.kind='RECEIPT' AND e.reversal_of IS NULL
  AND NOT EXISTS (SELECT 1 FROM stock_entries rv WHERE rv.reversal_of = e.id)
ORDER BY e.entry_date ASC, e.created_at ASC`, itemCode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntries(rows)
}

// ListItemCodes returns every item code with at least one ledger entry.
func (r *Repository) ListItemCodes(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT item_code FROM stock_entries ORDER BY item_code ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

// ListFutureDated returns entries dated strictly after today.
func (r *Repository) ListFutureDated(ctx context.Context, today time.Time) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+entryColumns+` FROM stock_entries WHERE entry_date > $1 ORDER BY entry_date ASC`, today)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntries(rows)
}

// WindowAggregates summarises receipts/issues for an item inside [from, to]
// plus the most recent receipt and issue dates over the whole history.
func (r *Repository) WindowAggregates(ctx context.Context, itemCode string, from, to time.Time) (WindowAggregate, error) {
	var agg WindowAggregate
	agg.ItemCode = itemCode
	err := r.pool.QueryRow(ctx, `SELECT
  COALESCE(SUM(CASE WHEN kind='RECEIPT' AND entry_date BETWEEN $2 AND $3 THEN signed_qty ELSE 0 END), 0),
  COALESCE(SUM(CASE WHEN kind='ISSUE' AND entry_date BETWEEN $2 AND $3 THEN signed_qty ELSE 0 END), 0),
  MAX(CASE WHEN kind='RECEIPT' AND reversal_of IS NULL THEN entry_date END),
  MAX(CASE WHEN kind='ISSUE' AND reversal_of IS NULL THEN entry_date END)
FROM (SELECT kind, entry_date, reversal_of,
        CASE WHEN reversal_of IS NULL THEN qty ELSE -qty END AS signed_qty
      FROM stock_entries WHERE item_code=$1) s`, itemCode, from, to).
		Scan(&agg.ReceiptsQty, &agg.IssuesQty, &agg.LastReceipt, &agg.LastIssue)
	if err != nil {
		return WindowAggregate{}, err
	}
	return agg, nil
}

func (s *snapshotReader) LatestOpening(ctx context.Context, itemCode string, asOf time.Time) (Entry, bool, error) {
	row := s.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM stock_entries
WHERE item_code=$1 AND kind='OPENING' AND entry_date <= $2
ORDER BY entry_date DESC, created_at DESC
LIMIT 1`, itemCode, asOf)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}
	return entry, true, nil
}

func (s *snapshotReader) SumMovements(ctx context.Context, itemCode string, from time.Time) (float64, float64, error) {
	var receipts, issues float64
	err := s.tx.QueryRow(ctx, `SELECT
  COALESCE(SUM(CASE WHEN kind='RECEIPT' THEN CASE WHEN reversal_of IS NULL THEN qty ELSE -qty END ELSE 0 END), 0),
  COALESCE(SUM(CASE WHEN kind='ISSUE' THEN CASE WHEN reversal_of IS NULL THEN qty ELSE -qty END ELSE 0 END), 0)
FROM stock_entries
WHERE item_code=$1 AND entry_date >= COALESCE($2, '-infinity')`, itemCode, nullTime(from)).
		Scan(&receipts, &issues)
	return receipts, issues, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var entry Entry
	var kind string
	var reversalOf *uuid.UUID
	var createdBy *int64
	if err := row.Scan(&entry.ID, &entry.ItemCode, &kind, &entry.Date, &entry.Qty, &entry.UnitCost, &entry.Amount,
		&entry.Supplier, &entry.GRNNumber, &entry.Purpose, &entry.Remarks, &reversalOf, &createdBy, &entry.CreatedAt); err != nil {
		return Entry{}, err
	}
	entry.Kind = EntryKind(kind)
	if reversalOf != nil {
		entry.ReversalOf = *reversalOf
	}
	if createdBy != nil {
		entry.CreatedBy = *createdBy
	}
	return entry, nil
}

func collectEntries(rows pgx.Rows) ([]Entry, error) {
	entries := []Entry{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func nullUUID(id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}
	return id
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func nullKind(kind EntryKind) any {
	if kind == "" {
		return nil
	}
	return string(kind)
}
