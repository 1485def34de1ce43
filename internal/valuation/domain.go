package valuation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Method enumerates supported costing conventions.
type Method string

const (
	// MethodWeightedAverage blends all receipt costs into one unit cost.
	MethodWeightedAverage Method = "WEIGHTED_AVG"
	// MethodFIFO prices on-hand stock at the oldest receipt's unit cost.
	MethodFIFO Method = "FIFO"
	// MethodLIFO prices on-hand stock at the newest receipt's unit cost.
	MethodLIFO Method = "LIFO"
)

// ParseMethod normalises a method string.
func ParseMethod(raw string) (Method, error) {
	switch Method(strings.ToUpper(strings.TrimSpace(raw))) {
	case MethodWeightedAverage, "":
		return MethodWeightedAverage, nil
	case MethodFIFO:
		return MethodFIFO, nil
	case MethodLIFO:
		return MethodLIFO, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMethod, raw)
	}
}

// Valuation is the monetary picture of one item's on-hand quantity under one
// costing method. Derived on demand, never stored.
type Valuation struct {
	ItemCode         string          `json:"item_code"`
	Method           Method          `json:"method"`
	Quantity         float64         `json:"quantity"`
	UnitCost         decimal.Decimal `json:"unit_cost"`
	TotalValue       decimal.Decimal `json:"total_value"`
	StockAgeDays     int             `json:"stock_age_days"`
	MissingCostBasis bool            `json:"missing_cost_basis"`
}

// ItemError reports one item's failure inside a catalog run without aborting
// the run for the other items.
type ItemError struct {
	ItemCode string `json:"item_code"`
	Reason   string `json:"reason"`
}

// CatalogReport is the outcome of a full-catalog valuation pass.
type CatalogReport struct {
	Method     Method          `json:"method"`
	Valuations []Valuation     `json:"valuations"`
	Total      decimal.Decimal `json:"total"`
	Errors     []ItemError     `json:"errors,omitempty"`
}

// ErrUnknownMethod indicates an unsupported costing method.
var ErrUnknownMethod = errors.New("valuation: unknown method")
