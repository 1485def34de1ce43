package reorder

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status tracks a suggestion through its lifecycle. APPROVED may still move
// to ORDERED; REJECTED, ORDERED and SUPERSEDED are terminal.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusApproved   Status = "APPROVED"
	StatusRejected   Status = "REJECTED"
	StatusOrdered    Status = "ORDERED"
	StatusSuperseded Status = "SUPERSEDED"
)

// Urgency grades how soon a stockout is expected relative to lead time.
type Urgency string

const (
	UrgencyLow      Urgency = "LOW"
	UrgencyMedium   Urgency = "MEDIUM"
	UrgencyHigh     Urgency = "HIGH"
	UrgencyCritical Urgency = "CRITICAL"
)

// Rule is the per-item reorder policy maintained by purchasing staff.
type Rule struct {
	ID           uuid.UUID `json:"id"`
	ItemCode     string    `json:"item_code"`
	Supplier     string    `json:"supplier"`
	ReorderLevel float64   `json:"reorder_level"`
	ReorderQty   float64   `json:"reorder_qty"`
	SafetyStock  float64   `json:"safety_stock"`
	LeadTimeDays int       `json:"lead_time_days"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Suggestion is one generated purchase proposal. DaysToStockout is nil when
// the trailing window shows no consumption.
type Suggestion struct {
	ID             uuid.UUID  `json:"id"`
	RuleID         uuid.UUID  `json:"rule_id"`
	ItemCode       string     `json:"item_code"`
	Supplier       string     `json:"supplier"`
	Status         Status     `json:"status"`
	Urgency        Urgency    `json:"urgency"`
	CurrentStock   float64    `json:"current_stock"`
	ReorderLevel   float64    `json:"reorder_level"`
	SuggestedQty   float64    `json:"suggested_qty"`
	AvgDailyUse    float64    `json:"avg_daily_use"`
	DaysToStockout *float64   `json:"days_to_stockout,omitempty"`
	Note           string     `json:"note,omitempty"`
	DecidedBy      int64      `json:"decided_by,omitempty"`
	DecidedAt      *time.Time `json:"decided_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// RuleInput carries rule create/update fields.
type RuleInput struct {
	ItemCode     string
	Supplier     string
	ReorderLevel float64
	ReorderQty   float64
	SafetyStock  float64
	LeadTimeDays int
}

// Filter narrows suggestion listings.
type Filter struct {
	Status  Status
	Urgency Urgency
}

// ScanReport summarises one catalog evaluation pass.
type ScanReport struct {
	RulesEvaluated int         `json:"rules_evaluated"`
	Created        int         `json:"created"`
	Errors         []ItemError `json:"errors,omitempty"`
}

// ItemError reports one rule's failure inside a scan.
type ItemError struct {
	ItemCode string `json:"item_code"`
	Reason   string `json:"reason"`
}

var (
	ErrRuleNotFound       = errors.New("reorder: rule not found")
	ErrSuggestionNotFound = errors.New("reorder: suggestion not found")
	ErrInvalidRule        = errors.New("reorder: invalid rule")
	ErrActorRequired      = errors.New("reorder: actor required")
	ErrInvalidQtyOverride = errors.New("reorder: quantity override must be positive")
)
