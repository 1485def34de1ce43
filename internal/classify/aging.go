package classify

import (
	"time"

	"github.com/shopspring/decimal"
)

// ClassifyAging grades an item by days since its most recent receipt or
// issue. Items with no transactions on record get the neverMovedDays
// sentinel rather than a null that would poison downstream sorts.
func ClassifyAging(lastReceipt, lastIssue *time.Time, totalValue decimal.Decimal, now time.Time) AgingResult {
	days := neverMovedDays
	if last := latest(lastReceipt, lastIssue); last != nil {
		days = int(now.Sub(*last).Hours() / 24)
		if days < 0 {
			days = 0
		}
	}

	risk := riskFor(days)
	return AgingResult{
		DaysSinceLastTxn:  days,
		AgeBracket:        bracketFor(days),
		Risk:              risk,
		RecommendedAction: actionFor(risk),
		ValuationImpact:   totalValue.Mul(writeDownFactor(risk)).Round(2),
	}
}

func latest(a, b *time.Time) *time.Time {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case b.After(*a):
		return b
	default:
		return a
	}
}

func bracketFor(days int) string {
	switch {
	case days <= 30:
		return "0-30"
	case days <= 60:
		return "31-60"
	case days <= 90:
		return "61-90"
	case days <= 180:
		return "91-180"
	case days <= 365:
		return "181-365"
	default:
		return "365+"
	}
}

func riskFor(days int) RiskLevel {
	switch {
	case days <= 60:
		return RiskLow
	case days <= 120:
		return RiskMedium
	case days <= 365:
		return RiskHigh
	default:
		return RiskCritical
	}
}

func actionFor(risk RiskLevel) Action {
	switch risk {
	case RiskLow:
		return ActionMonitor
	case RiskMedium:
		return ActionReview
	case RiskHigh:
		return ActionLiquidate
	default:
		return ActionWriteoff
	}
}

func writeDownFactor(risk RiskLevel) decimal.Decimal {
	switch risk {
	case RiskLow:
		return decimal.Zero
	case RiskMedium:
		return decimal.NewFromFloat(0.10)
	case RiskHigh:
		return decimal.NewFromFloat(0.25)
	default:
		return decimal.NewFromFloat(0.50)
	}
}
