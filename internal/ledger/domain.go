package ledger

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// EntryKind enumerates the three append-only transaction streams.
type EntryKind string

const (
	// EntryKindOpening establishes the starting balance of an item as of a cutoff date.
	EntryKindOpening EntryKind = "OPENING"
	// EntryKindReceipt records inbound quantity and cost (GRN).
	EntryKindReceipt EntryKind = "RECEIPT"
	// EntryKindIssue records consumption/outflow.
	EntryKindIssue EntryKind = "ISSUE"
)

// Entry is one immutable ledger record. Corrections never mutate an entry;
// they append a compensating entry referencing the original via ReversalOf.
type Entry struct {
	ID         uuid.UUID
	ItemCode   string
	Kind       EntryKind
	Date       time.Time
	Qty        float64
	UnitCost   float64
	Amount     float64
	Supplier   string
	GRNNumber  string
	Purpose    string
	Remarks    string
	ReversalOf uuid.UUID
	CreatedBy  int64
	CreatedAt  time.Time
}

// IsReversal reports whether the entry compensates an earlier one.
func (e Entry) IsReversal() bool {
	return e.ReversalOf != uuid.Nil
}

// StockPosition is the derived on-hand picture for one item. It is recomputed
// from the logs on every query, never incrementally mutated.
type StockPosition struct {
	ItemCode      string
	OpeningStock  float64
	OpeningDate   time.Time
	TotalReceipts float64
	TotalIssues   float64
	CurrentStock  float64
	AsOfDate      time.Time
}

// FindingKind enumerates data-integrity finding categories.
type FindingKind string

const (
	// FindingNegativeStock indicates a computed balance below zero.
	FindingNegativeStock FindingKind = "NEGATIVE_STOCK"
	// FindingFutureDated indicates an entry dated beyond today.
	FindingFutureDated FindingKind = "FUTURE_DATED"
	// FindingMissingCostBasis indicates stock on hand with no receipt history.
	FindingMissingCostBasis FindingKind = "MISSING_COST_BASIS"
	// FindingComputationFailed indicates an item whose checks could not run.
	FindingComputationFailed FindingKind = "COMPUTATION_FAILED"
)

// IntegrityFinding is a reportable data-quality condition. Findings never
// abort a run; they are collected and surfaced with enough detail to act on.
type IntegrityFinding struct {
	ItemCode       string      `json:"item_code"`
	Kind           FindingKind `json:"kind"`
	Detail         string      `json:"detail"`
	Expected       float64     `json:"expected"`
	Actual         float64     `json:"actual"`
	Recommendation string      `json:"recommendation"`
}

// AppendInput describes a requested ledger append.
type AppendInput struct {
	ItemCode  string
	Kind      EntryKind
	Date      time.Time
	Qty       float64
	UnitCost  float64
	Amount    float64
	Supplier  string
	GRNNumber string
	Purpose   string
	Remarks   string
	ActorID   int64
}

// WindowAggregate summarises an item's movement inside a trailing window,
// with reversals netted out, plus the latest live receipt/issue dates over the
// whole history.
type WindowAggregate struct {
	ItemCode    string
	ReceiptsQty float64
	IssuesQty   float64
	LastReceipt *time.Time
	LastIssue   *time.Time
}

// EntryFilter scopes entry listings.
type EntryFilter struct {
	ItemCode string
	Kind     EntryKind
	From     time.Time
	To       time.Time
	Limit    int
}

// ErrItemCodeRequired indicates a missing item code.
var ErrItemCodeRequired = errors.New("ledger: item code required")

// ErrInvalidQuantity indicates a quantity outside the allowed range for the entry kind.
var ErrInvalidQuantity = errors.New("ledger: invalid quantity")

// ErrInvalidUnitCost indicates a negative unit cost.
var ErrInvalidUnitCost = errors.New("ledger: unit cost must be >= 0")

// ErrDateRequired indicates a missing entry date.
var ErrDateRequired = errors.New("ledger: entry date required")

// ErrFutureDate indicates an entry dated beyond today.
var ErrFutureDate = errors.New("ledger: entry date must not be in the future")

// ErrUnknownKind indicates an unsupported entry kind.
var ErrUnknownKind = errors.New("ledger: unknown entry kind")

// ErrEntryNotFound indicates a missing entry.
var ErrEntryNotFound = errors.New("ledger: entry not found")

// ErrAlreadyReversed indicates the entry already has a compensating entry.
var ErrAlreadyReversed = errors.New("ledger: entry already reversed")

// ErrReverseReversal indicates an attempt to reverse a compensating entry.
var ErrReverseReversal = errors.New("ledger: cannot reverse a reversal entry")

// ErrOpeningNotReversible indicates opening entries are corrected by appending
// a newer opening entry, not by reversal.
var ErrOpeningNotReversible = errors.New("ledger: opening entries cannot be reversed")
