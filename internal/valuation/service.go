package valuation

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/atlas-ims/atlas-ims/internal/ledger"
)

// LedgerPort exposes the ledger reads the valuation engine needs.
type LedgerPort interface {
	ComputeBalance(ctx context.Context, itemCode string, asOf time.Time) (ledger.StockPosition, error)
	CostLayers(ctx context.Context, itemCode string) ([]ledger.Entry, error)
	ItemCodes(ctx context.Context) ([]string, error)
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	Now     func() time.Time
	Workers int
}

// Service computes monetary valuations from the ledger.
type Service struct {
	ledger  LedgerPort
	costers map[Method]Coster
	now     func() time.Time
	workers int
}

// NewService builds Service.
func NewService(ledgerPort LedgerPort, cfg ServiceConfig) *Service {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 8
	}
	return &Service{ledger: ledgerPort, costers: Costers(), now: now, workers: workers}
}

// Valuate computes one item's valuation under the given method. A missing
// receipt history yields a zero unit cost flagged as MissingCostBasis rather
// than a silently legitimate zero value.
func (s *Service) Valuate(ctx context.Context, itemCode string, method Method) (Valuation, error) {
	if itemCode == "" {
		return Valuation{}, ledger.ErrItemCodeRequired
	}
	coster, ok := s.costers[method]
	if !ok {
		return Valuation{}, ErrUnknownMethod
	}
	position, err := s.ledger.ComputeBalance(ctx, itemCode, time.Time{})
	if err != nil {
		return Valuation{}, err
	}
	layers, err := s.ledger.CostLayers(ctx, itemCode)
	if err != nil {
		return Valuation{}, err
	}
	unitCost := coster.UnitCost(layers)
	qty := decimal.NewFromFloat(position.CurrentStock)
	val := Valuation{
		ItemCode:         itemCode,
		Method:           method,
		Quantity:         position.CurrentStock,
		UnitCost:         unitCost,
		TotalValue:       qty.Mul(unitCost).Round(2),
		MissingCostBasis: len(layers) == 0,
	}
	if len(layers) > 0 {
		newest := layers[len(layers)-1].Date
		val.StockAgeDays = int(s.now().Sub(newest).Hours() / 24)
	}
	return val, nil
}

// ValuateAll runs the catalog in parallel. Items are independent, so the pass
// fans out over a bounded worker pool; one item's bad data is reported and
// does not abort the others.
func (s *Service) ValuateAll(ctx context.Context, method Method) (CatalogReport, error) {
	if _, ok := s.costers[method]; !ok {
		return CatalogReport{}, ErrUnknownMethod
	}
	codes, err := s.ledger.ItemCodes(ctx)
	if err != nil {
		return CatalogReport{}, err
	}

	var mu sync.Mutex
	report := CatalogReport{Method: method, Total: decimal.Zero}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, code := range codes {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			val, err := s.Valuate(ctx, code, method)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Errors = append(report.Errors, ItemError{ItemCode: code, Reason: err.Error()})
				return nil
			}
			report.Valuations = append(report.Valuations, val)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return CatalogReport{}, err
	}
	sort.Slice(report.Valuations, func(i, j int) bool {
		return report.Valuations[i].ItemCode < report.Valuations[j].ItemCode
	})
	sort.Slice(report.Errors, func(i, j int) bool {
		return report.Errors[i].ItemCode < report.Errors[j].ItemCode
	})
	for _, val := range report.Valuations {
		report.Total = report.Total.Add(val.TotalValue)
	}
	return report, nil
}
