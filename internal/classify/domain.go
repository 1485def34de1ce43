package classify

import (
	"time"

	"github.com/shopspring/decimal"
)

// ABCClass buckets items by their share of total stock value.
type ABCClass string

const (
	ClassA ABCClass = "A"
	ClassB ABCClass = "B"
	ClassC ABCClass = "C"
)

// MovementClass buckets items by consumption velocity. The constants are
// ordered so that a higher velocity never maps to a lower class.
type MovementClass string

const (
	MovementDead   MovementClass = "DEAD_STOCK"
	MovementSlow   MovementClass = "SLOW_MOVING"
	MovementMedium MovementClass = "MEDIUM_MOVING"
	MovementFast   MovementClass = "FAST_MOVING"
)

// movementRank orders movement classes for monotonicity checks.
func movementRank(c MovementClass) int {
	switch c {
	case MovementFast:
		return 3
	case MovementMedium:
		return 2
	case MovementSlow:
		return 1
	default:
		return 0
	}
}

// RiskLevel grades aging risk.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// Action is the recommended follow-up for an aging risk level.
type Action string

const (
	ActionMonitor   Action = "MONITOR"
	ActionReview    Action = "REVIEW"
	ActionLiquidate Action = "LIQUIDATE"
	ActionWriteoff  Action = "WRITEOFF"
)

// neverMovedDays stands in for "no transaction on record". Downstream
// consumers rely on it sorting after every real age.
const neverMovedDays = 999

// ItemValue feeds the ABC ranking.
type ItemValue struct {
	ItemCode   string
	TotalValue decimal.Decimal
}

// ABCResult is one item's ABC assignment.
type ABCResult struct {
	ItemCode        string   `json:"item_code"`
	Class           ABCClass `json:"class"`
	ValueShare      float64  `json:"value_share"`
	CumulativeShare float64  `json:"cumulative_share"`
}

// MovementResult is one item's movement assignment.
type MovementResult struct {
	Class         MovementClass `json:"class"`
	Velocity      float64       `json:"velocity"`
	TurnoverRatio float64       `json:"turnover_ratio"`
}

// AgingResult is one item's aging and risk assignment.
type AgingResult struct {
	DaysSinceLastTxn  int             `json:"days_since_last_txn"`
	AgeBracket        string          `json:"age_bracket"`
	Risk              RiskLevel       `json:"risk"`
	RecommendedAction Action          `json:"recommended_action"`
	ValuationImpact   decimal.Decimal `json:"valuation_impact"`
}

// Record is the full classification snapshot row for one item.
type Record struct {
	ItemCode          string          `json:"item_code"`
	CurrentStock      float64         `json:"current_stock"`
	TotalValue        decimal.Decimal `json:"total_value"`
	ABCClass          ABCClass        `json:"abc_class"`
	CumulativeShare   float64         `json:"cumulative_share"`
	MovementClass     MovementClass   `json:"movement_class"`
	Velocity          float64         `json:"velocity"`
	TurnoverRatio     float64         `json:"turnover_ratio"`
	DaysSinceLastTxn  int             `json:"days_since_last_txn"`
	AgeBracket        string          `json:"age_bracket"`
	Risk              RiskLevel       `json:"risk"`
	RecommendedAction Action          `json:"recommended_action"`
	ValuationImpact   decimal.Decimal `json:"valuation_impact"`
	ComputedAt        time.Time       `json:"computed_at"`
}

// Filter narrows List output.
type Filter struct {
	ABC      ABCClass
	Movement MovementClass
	Risk     RiskLevel
}

// Config lifts every classification threshold out of the code.
type Config struct {
	WindowDays     int
	ABCAThreshold  float64
	ABCBThreshold  float64
	FastVelocity   float64
	MediumVelocity float64
	Workers        int
	Now            func() time.Time
}

func (c Config) withDefaults() Config {
	if c.WindowDays <= 0 {
		c.WindowDays = 30
	}
	if c.ABCAThreshold <= 0 {
		c.ABCAThreshold = 0.80
	}
	if c.ABCBThreshold <= 0 {
		c.ABCBThreshold = 0.95
	}
	if c.FastVelocity <= 0 {
		c.FastVelocity = 2.0
	}
	if c.MediumVelocity <= 0 {
		c.MediumVelocity = 0.5
	}
	if c.Workers <= 0 {
		c.Workers = 8
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}
