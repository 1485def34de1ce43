package reorder

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atlas-ims/atlas-ims/internal/platform/db"
)

// Repository persists reorder rules and suggestions in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const ruleColumns = `id, item_code, supplier, reorder_level, reorder_qty, safety_stock, lead_time_days, created_at, updated_at`

const suggestionColumns = `id, rule_id, item_code, supplier, status, urgency, current_stock, reorder_level, suggested_qty, avg_daily_use, days_to_stockout, note, decided_by, decided_at, created_at, updated_at`

// UpsertRule creates or replaces the rule for an item.
func (r *Repository) UpsertRule(ctx context.Context, input RuleInput) (Rule, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO reorder_rules (id, item_code, supplier, reorder_level, reorder_qty, safety_stock, lead_time_days, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,NOW(),NOW())
ON CONFLICT (item_code) DO UPDATE SET
  supplier=EXCLUDED.supplier,
  reorder_level=EXCLUDED.reorder_level,
  reorder_qty=EXCLUDED.reorder_qty,
  safety_stock=EXCLUDED.safety_stock,
  lead_time_days=EXCLUDED.lead_time_days,
  updated_at=NOW()
RETURNING `+ruleColumns,
		uuid.New(), input.ItemCode, input.Supplier, input.ReorderLevel, input.ReorderQty, input.SafetyStock, input.LeadTimeDays)
	return scanRule(row)
}

// GetRule fetches the rule for one item.
func (r *Repository) GetRule(ctx context.Context, itemCode string) (Rule, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+ruleColumns+` FROM reorder_rules WHERE item_code=$1`, itemCode)
	rule, err := scanRule(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Rule{}, ErrRuleNotFound
		}
		return Rule{}, err
	}
	return rule, nil
}

// ListRules returns every configured rule ordered by item code.
func (r *Repository) ListRules(ctx context.Context) ([]Rule, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+ruleColumns+` FROM reorder_rules ORDER BY item_code ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	rules := []Rule{}
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// DeleteRule removes the rule for an item.
func (r *Repository) DeleteRule(ctx context.Context, itemCode string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM reorder_rules WHERE item_code=$1`, itemCode)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// ReplacePending supersedes any open PENDING suggestion for the item and
// inserts the fresh one in the same transaction, so a concurrent reader never
// sees two open suggestions for one item.
func (r *Repository) ReplacePending(ctx context.Context, s Suggestion) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `UPDATE reorder_suggestions
SET status=$1, updated_at=NOW()
WHERE item_code=$2 AND status=$3`, string(StatusSuperseded), s.ItemCode, string(StatusPending)); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `INSERT INTO reorder_suggestions (`+suggestionColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,NOW(),NOW())`,
			s.ID, s.RuleID, s.ItemCode, s.Supplier, string(s.Status), string(s.Urgency),
			s.CurrentStock, s.ReorderLevel, s.SuggestedQty, s.AvgDailyUse, s.DaysToStockout,
			s.Note, nullInt(s.DecidedBy), s.DecidedAt)
		return err
	})
}

// GetSuggestion fetches one suggestion by ID.
func (r *Repository) GetSuggestion(ctx context.Context, id uuid.UUID) (Suggestion, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+suggestionColumns+` FROM reorder_suggestions WHERE id=$1`, id)
	s, err := scanSuggestion(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Suggestion{}, ErrSuggestionNotFound
		}
		return Suggestion{}, err
	}
	return s, nil
}

// ListSuggestions returns suggestions narrowed by status/urgency, newest first.
func (r *Repository) ListSuggestions(ctx context.Context, filter Filter) ([]Suggestion, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+suggestionColumns+` FROM reorder_suggestions
WHERE ($1::text IS NULL OR status=$1)
  AND ($2::text IS NULL OR urgency=$2)
ORDER BY created_at DESC, item_code ASC`, nullStatus(filter.Status), nullUrgency(filter.Urgency))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	suggestions := []Suggestion{}
	for rows.Next() {
		s, err := scanSuggestion(rows)
		if err != nil {
			return nil, err
		}
		suggestions = append(suggestions, s)
	}
	return suggestions, rows.Err()
}

// UpdateDecision applies an approve/reject/order transition.
func (r *Repository) UpdateDecision(ctx context.Context, id uuid.UUID, status Status, suggestedQty float64, decidedBy int64, note string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE reorder_suggestions
SET status=$2, suggested_qty=$3, decided_by=$4, note=$5, decided_at=$6, updated_at=NOW()
WHERE id=$1`, id, string(status), suggestedQty, nullInt(decidedBy), note, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSuggestionNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (Rule, error) {
	var rule Rule
	if err := row.Scan(&rule.ID, &rule.ItemCode, &rule.Supplier, &rule.ReorderLevel, &rule.ReorderQty,
		&rule.SafetyStock, &rule.LeadTimeDays, &rule.CreatedAt, &rule.UpdatedAt); err != nil {
		return Rule{}, err
	}
	return rule, nil
}

func scanSuggestion(row rowScanner) (Suggestion, error) {
	var s Suggestion
	var status, urgency string
	var decidedBy *int64
	if err := row.Scan(&s.ID, &s.RuleID, &s.ItemCode, &s.Supplier, &status, &urgency,
		&s.CurrentStock, &s.ReorderLevel, &s.SuggestedQty, &s.AvgDailyUse, &s.DaysToStockout,
		&s.Note, &decidedBy, &s.DecidedAt, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return Suggestion{}, err
	}
	s.Status = Status(status)
	s.Urgency = Urgency(urgency)
	if decidedBy != nil {
		s.DecidedBy = *decidedBy
	}
	return s, nil
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullStatus(s Status) any {
	if s == "" {
		return nil
	}
	return string(s)
}

func nullUrgency(u Urgency) any {
	if u == "" {
		return nil
	}
	return string(u)
}
