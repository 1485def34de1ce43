package classify

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/atlas-ims/atlas-ims/internal/ledger"
	"github.com/atlas-ims/atlas-ims/internal/valuation"
)

// LedgerPort exposes the ledger reads classification needs.
type LedgerPort interface {
	ItemCodes(ctx context.Context) ([]string, error)
	ComputeBalance(ctx context.Context, itemCode string, asOf time.Time) (ledger.StockPosition, error)
	WindowAggregates(ctx context.Context, itemCode string, from, to time.Time) (ledger.WindowAggregate, error)
}

// ValuationPort supplies stock values for the ABC ranking.
type ValuationPort interface {
	Valuate(ctx context.Context, itemCode string, method valuation.Method) (valuation.Valuation, error)
}

// MetricsPort records classification run durations.
type MetricsPort interface {
	ObserveClassificationRun(d time.Duration)
}

// ItemError reports one item's failure inside a refresh run.
type ItemError struct {
	ItemCode string `json:"item_code"`
	Reason   string `json:"reason"`
}

// RunReport summarises one full-catalog refresh.
type RunReport struct {
	Items      int           `json:"items"`
	Errors     []ItemError   `json:"errors,omitempty"`
	Duration   time.Duration `json:"duration"`
	ComputedAt time.Time     `json:"computed_at"`
}

// Service derives classification snapshots from the ledger. Each refresh
// replaces the previous snapshot wholesale; no state leaks between runs.
type Service struct {
	cfg       Config
	ledger    LedgerPort
	valuation ValuationPort
	cache     *Cache
	metrics   MetricsPort

	mu       sync.RWMutex
	snapshot []Record
}

// NewService builds Service. Cache and metrics may be nil.
func NewService(cfg Config, ledgerPort LedgerPort, valuationPort ValuationPort, cache *Cache, metrics MetricsPort) *Service {
	return &Service{cfg: cfg.withDefaults(), ledger: ledgerPort, valuation: valuationPort, cache: cache, metrics: metrics}
}

// RefreshAll recomputes the whole catalog, swaps the in-memory snapshot and
// mirrors it into the versioned cache. Per-item failures are reported, not
// fatal; cancellation stops dispatching remaining items.
func (s *Service) RefreshAll(ctx context.Context) (RunReport, error) {
	start := s.cfg.Now()
	records, itemErrs, err := s.build(ctx)
	if err != nil {
		return RunReport{}, err
	}

	s.mu.Lock()
	s.snapshot = records
	s.mu.Unlock()

	if s.cache != nil {
		if err := s.cache.Bump(ctx); err != nil {
			return RunReport{}, err
		}
		key, err := s.cache.BuildKey(ctx, keySnapshot())
		if err != nil {
			return RunReport{}, err
		}
		var mirrored []Record
		if err := s.cache.FetchJSON(ctx, key, &mirrored, func(context.Context) (interface{}, error) {
			return records, nil
		}); err != nil {
			return RunReport{}, err
		}
	}

	elapsed := time.Since(start)
	if s.metrics != nil {
		s.metrics.ObserveClassificationRun(elapsed)
	}
	return RunReport{Items: len(records), Errors: itemErrs, Duration: elapsed, ComputedAt: start}, nil
}

// List returns the current snapshot narrowed by filter. When no refresh has
// run in this process yet, it loads through the cache, computing on a miss.
func (s *Service) List(ctx context.Context, filter Filter) ([]Record, error) {
	s.mu.RLock()
	records := s.snapshot
	s.mu.RUnlock()

	if records == nil {
		key, err := s.cache.BuildKey(ctx, keySnapshot())
		if err != nil {
			return nil, err
		}
		loader := func(ctx context.Context) (interface{}, error) {
			built, _, err := s.build(ctx)
			return built, err
		}
		if s.cache == nil {
			value, err := loader(ctx)
			if err != nil {
				return nil, err
			}
			records = value.([]Record)
		} else if err := s.cache.FetchJSON(ctx, key, &records, loader); err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.snapshot = records
		s.mu.Unlock()
	}

	out := make([]Record, 0, len(records))
	for _, rec := range records {
		if filter.ABC != "" && rec.ABCClass != filter.ABC {
			continue
		}
		if filter.Movement != "" && rec.MovementClass != filter.Movement {
			continue
		}
		if filter.Risk != "" && rec.Risk != filter.Risk {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

type itemFacts struct {
	code         string
	currentStock float64
	value        valuation.Valuation
	window       ledger.WindowAggregate
}

func (s *Service) build(ctx context.Context) ([]Record, []ItemError, error) {
	now := s.cfg.Now()
	codes, err := s.ledger.ItemCodes(ctx)
	if err != nil {
		return nil, nil, err
	}
	since := now.AddDate(0, 0, -s.cfg.WindowDays)

	var mu sync.Mutex
	facts := make([]itemFacts, 0, len(codes))
	var itemErrs []ItemError

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for _, code := range codes {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			position, err := s.ledger.ComputeBalance(ctx, code, time.Time{})
			if err == nil {
				var window ledger.WindowAggregate
				window, err = s.ledger.WindowAggregates(ctx, code, since, now)
				if err == nil {
					var val valuation.Valuation
					val, err = s.valuation.Valuate(ctx, code, valuation.MethodWeightedAverage)
					if err == nil {
						mu.Lock()
						facts = append(facts, itemFacts{
							code:         code,
							currentStock: position.CurrentStock,
							value:        val,
							window:       window,
						})
						mu.Unlock()
						return nil
					}
				}
			}
			mu.Lock()
			itemErrs = append(itemErrs, ItemError{ItemCode: code, Reason: err.Error()})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	values := make([]ItemValue, 0, len(facts))
	byCode := make(map[string]itemFacts, len(facts))
	for _, f := range facts {
		values = append(values, ItemValue{ItemCode: f.code, TotalValue: f.value.TotalValue})
		byCode[f.code] = f
	}
	abc := ClassifyABC(values, s.cfg.ABCAThreshold, s.cfg.ABCBThreshold)

	records := make([]Record, 0, len(abc))
	for _, rank := range abc {
		f := byCode[rank.ItemCode]
		movement := ClassifyMovement(f.currentStock, f.window.IssuesQty, s.cfg.FastVelocity, s.cfg.MediumVelocity)
		aging := ClassifyAging(f.window.LastReceipt, f.window.LastIssue, f.value.TotalValue, now)
		records = append(records, Record{
			ItemCode:          f.code,
			CurrentStock:      f.currentStock,
			TotalValue:        f.value.TotalValue,
			ABCClass:          rank.Class,
			CumulativeShare:   rank.CumulativeShare,
			MovementClass:     movement.Class,
			Velocity:          movement.Velocity,
			TurnoverRatio:     movement.TurnoverRatio,
			DaysSinceLastTxn:  aging.DaysSinceLastTxn,
			AgeBracket:        aging.AgeBracket,
			Risk:              aging.Risk,
			RecommendedAction: aging.RecommendedAction,
			ValuationImpact:   aging.ValuationImpact,
			ComputedAt:        now,
		})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ItemCode < records[j].ItemCode })
	sort.Slice(itemErrs, func(i, j int) bool { return itemErrs[i].ItemCode < itemErrs[j].ItemCode })
	return records, itemErrs, nil
}
