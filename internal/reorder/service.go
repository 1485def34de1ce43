package reorder

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/atlas-ims/atlas-ims/internal/ledger"
	"github.com/atlas-ims/atlas-ims/internal/shared"
)

// RepositoryPort abstracts rule and suggestion persistence.
type RepositoryPort interface {
	UpsertRule(ctx context.Context, input RuleInput) (Rule, error)
	GetRule(ctx context.Context, itemCode string) (Rule, error)
	ListRules(ctx context.Context) ([]Rule, error)
	DeleteRule(ctx context.Context, itemCode string) error
	ReplacePending(ctx context.Context, s Suggestion) error
	GetSuggestion(ctx context.Context, id uuid.UUID) (Suggestion, error)
	ListSuggestions(ctx context.Context, filter Filter) ([]Suggestion, error)
	UpdateDecision(ctx context.Context, id uuid.UUID, status Status, suggestedQty float64, decidedBy int64, note string, at time.Time) error
}

// LedgerPort exposes the ledger reads an evaluation needs.
type LedgerPort interface {
	ComputeBalance(ctx context.Context, itemCode string, asOf time.Time) (ledger.StockPosition, error)
	WindowAggregates(ctx context.Context, itemCode string, from, to time.Time) (ledger.WindowAggregate, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ApprovalPort abstracts approval history recording.
type ApprovalPort interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
}

// MetricsPort records generated suggestions by urgency.
type MetricsPort interface {
	ObserveSuggestion(urgency string)
}

// ServiceConfig groups tunables and the injected clock.
type ServiceConfig struct {
	WindowDays int
	Now        func() time.Time
}

// Service generates and shepherds reorder suggestions.
type Service struct {
	repo       RepositoryPort
	ledger     LedgerPort
	audit      AuditPort
	approvals  ApprovalPort
	metrics    MetricsPort
	windowDays int
	now        func() time.Time
}

// NewService builds Service. Audit, approvals and metrics may be nil.
func NewService(repo RepositoryPort, ledgerPort LedgerPort, audit AuditPort, approvals ApprovalPort, metrics MetricsPort, cfg ServiceConfig) *Service {
	windowDays := cfg.WindowDays
	if windowDays <= 0 {
		windowDays = 30
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{repo: repo, ledger: ledgerPort, audit: audit, approvals: approvals, metrics: metrics, windowDays: windowDays, now: now}
}

// SaveRule validates and upserts a reorder rule.
func (s *Service) SaveRule(ctx context.Context, actorID int64, input RuleInput) (Rule, error) {
	if input.ItemCode == "" {
		return Rule{}, fmt.Errorf("%w: item code required", ErrInvalidRule)
	}
	if input.ReorderLevel < 0 || input.ReorderQty <= 0 || input.SafetyStock < 0 {
		return Rule{}, fmt.Errorf("%w: levels must be non-negative and quantity positive", ErrInvalidRule)
	}
	if input.LeadTimeDays <= 0 {
		return Rule{}, fmt.Errorf("%w: lead time must be positive", ErrInvalidRule)
	}
	rule, err := s.repo.UpsertRule(ctx, input)
	if err != nil {
		return Rule{}, err
	}
	s.recordAudit(ctx, actorID, "reorder.rule.save", rule.ID, map[string]any{"item_code": rule.ItemCode})
	return rule, nil
}

// ListRules returns all configured rules.
func (s *Service) ListRules(ctx context.Context) ([]Rule, error) {
	return s.repo.ListRules(ctx)
}

// GetRule fetches the rule for one item.
func (s *Service) GetRule(ctx context.Context, itemCode string) (Rule, error) {
	return s.repo.GetRule(ctx, itemCode)
}

// DeleteRule removes a rule.
func (s *Service) DeleteRule(ctx context.Context, actorID int64, itemCode string) error {
	if err := s.repo.DeleteRule(ctx, itemCode); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "reorder.rule.delete", uuid.Nil, map[string]any{"item_code": itemCode})
	return nil
}

// Evaluate checks one item against its rule. It returns nil when the rule
// does not trigger; when it does, any open PENDING suggestion for the item
// is superseded and a fresh one persisted.
func (s *Service) Evaluate(ctx context.Context, itemCode string) (*Suggestion, error) {
	rule, err := s.repo.GetRule(ctx, itemCode)
	if err != nil {
		return nil, err
	}
	return s.evaluateRule(ctx, rule)
}

// EvaluateAll scans every rule. Per-rule failures are reported and do not
// abort the scan.
func (s *Service) EvaluateAll(ctx context.Context) (ScanReport, error) {
	rules, err := s.repo.ListRules(ctx)
	if err != nil {
		return ScanReport{}, err
	}
	report := ScanReport{RulesEvaluated: len(rules)}
	for _, rule := range rules {
		if err := ctx.Err(); err != nil {
			return ScanReport{}, err
		}
		suggestion, err := s.evaluateRule(ctx, rule)
		if err != nil {
			report.Errors = append(report.Errors, ItemError{ItemCode: rule.ItemCode, Reason: err.Error()})
			continue
		}
		if suggestion != nil {
			report.Created++
		}
	}
	return report, nil
}

func (s *Service) evaluateRule(ctx context.Context, rule Rule) (*Suggestion, error) {
	position, err := s.ledger.ComputeBalance(ctx, rule.ItemCode, time.Time{})
	if err != nil {
		return nil, err
	}
	if position.CurrentStock > rule.ReorderLevel {
		return nil, nil
	}

	now := s.now()
	window, err := s.ledger.WindowAggregates(ctx, rule.ItemCode, now.AddDate(0, 0, -s.windowDays), now)
	if err != nil {
		return nil, err
	}

	avgDaily := window.IssuesQty / float64(s.windowDays)
	var daysToStockout *float64
	if avgDaily > 0 && position.CurrentStock > 0 {
		days := position.CurrentStock / avgDaily
		daysToStockout = &days
	}

	suggestion := Suggestion{
		ID:             uuid.New(),
		RuleID:         rule.ID,
		ItemCode:       rule.ItemCode,
		Supplier:       rule.Supplier,
		Status:         StatusPending,
		Urgency:        urgencyFor(position.CurrentStock, rule, avgDaily, daysToStockout),
		CurrentStock:   position.CurrentStock,
		ReorderLevel:   rule.ReorderLevel,
		SuggestedQty:   rule.ReorderQty,
		AvgDailyUse:    avgDaily,
		DaysToStockout: daysToStockout,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.repo.ReplacePending(ctx, suggestion); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.ObserveSuggestion(string(suggestion.Urgency))
	}
	return &suggestion, nil
}

// urgencyFor grades how soon the item runs out relative to the supplier lead
// time. Stock at or below safety stock is critical regardless of velocity;
// no measured consumption means no projected stockout and grades low.
func urgencyFor(currentStock float64, rule Rule, avgDaily float64, daysToStockout *float64) Urgency {
	if currentStock <= rule.SafetyStock {
		return UrgencyCritical
	}
	if daysToStockout == nil {
		if avgDaily > 0 {
			// Consumption with nothing on hand: already out.
			return UrgencyCritical
		}
		return UrgencyLow
	}
	lead := float64(rule.LeadTimeDays)
	switch {
	case *daysToStockout <= lead:
		return UrgencyCritical
	case *daysToStockout <= 2*lead:
		return UrgencyHigh
	case *daysToStockout <= 4*lead:
		return UrgencyMedium
	default:
		return UrgencyLow
	}
}

// Approve moves a PENDING suggestion to APPROVED, optionally overriding the
// suggested quantity.
func (s *Service) Approve(ctx context.Context, id uuid.UUID, actorID int64, qtyOverride float64, note string) (Suggestion, error) {
	if actorID == 0 {
		return Suggestion{}, ErrActorRequired
	}
	if qtyOverride < 0 {
		return Suggestion{}, ErrInvalidQtyOverride
	}
	return s.transition(ctx, id, actorID, StatusPending, StatusApproved, qtyOverride, note, shared.ApprovalApprove)
}

// Reject moves a PENDING suggestion to REJECTED.
func (s *Service) Reject(ctx context.Context, id uuid.UUID, actorID int64, note string) (Suggestion, error) {
	if actorID == 0 {
		return Suggestion{}, ErrActorRequired
	}
	return s.transition(ctx, id, actorID, StatusPending, StatusRejected, 0, note, shared.ApprovalReject)
}

// MarkOrdered moves an APPROVED suggestion to ORDERED.
func (s *Service) MarkOrdered(ctx context.Context, id uuid.UUID, actorID int64) (Suggestion, error) {
	if actorID == 0 {
		return Suggestion{}, ErrActorRequired
	}
	return s.transition(ctx, id, actorID, StatusApproved, StatusOrdered, 0, "", shared.ApprovalOrder)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, actorID int64, from, to Status, qtyOverride float64, note string, action shared.ApprovalAction) (Suggestion, error) {
	suggestion, err := s.repo.GetSuggestion(ctx, id)
	if err != nil {
		return Suggestion{}, err
	}
	if suggestion.Status != from {
		return Suggestion{}, fmt.Errorf("%w: %s cannot move to %s", shared.ErrInvalidState, suggestion.Status, to)
	}
	qty := suggestion.SuggestedQty
	if qtyOverride > 0 {
		qty = qtyOverride
	}
	now := s.now()
	if err := s.repo.UpdateDecision(ctx, id, to, qty, actorID, note, now); err != nil {
		return Suggestion{}, err
	}
	suggestion.Status = to
	suggestion.SuggestedQty = qty
	suggestion.Note = note
	suggestion.DecidedBy = actorID
	suggestion.DecidedAt = &now
	suggestion.UpdatedAt = now

	if s.approvals != nil {
		_ = s.approvals.Record(ctx, shared.ApprovalLog{
			Module:  "reorder",
			RefID:   id,
			ActorID: actorID,
			Action:  action,
			Note:    note,
			At:      now,
		})
	}
	s.recordAudit(ctx, actorID, "reorder.suggestion."+string(to), id, map[string]any{
		"item_code": suggestion.ItemCode,
		"qty":       qty,
	})
	return suggestion, nil
}

// GetSuggestion fetches one suggestion.
func (s *Service) GetSuggestion(ctx context.Context, id uuid.UUID) (Suggestion, error) {
	return s.repo.GetSuggestion(ctx, id)
}

// ListSuggestions returns suggestions narrowed by filter.
func (s *Service) ListSuggestions(ctx context.Context, filter Filter) ([]Suggestion, error) {
	return s.repo.ListSuggestions(ctx, filter)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, refID uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	entityID := "-"
	if refID != uuid.Nil {
		entityID = refID.String()
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "reorder",
		EntityID: entityID,
		Meta:     meta,
		At:       s.now(),
	})
}
