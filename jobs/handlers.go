package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/atlas-ims/atlas-ims/internal/classify"
	jobmetrics "github.com/atlas-ims/atlas-ims/internal/jobs"
	"github.com/atlas-ims/atlas-ims/internal/ledger"
	"github.com/atlas-ims/atlas-ims/internal/reorder"
)

// Handlers binds the periodic tasks to the engine services.
type Handlers struct {
	logger   *slog.Logger
	classify *classify.Service
	reorder  *reorder.Service
	ledger   *ledger.Service
	metrics  *jobmetrics.Metrics
}

// NewHandlers constructs task handlers.
func NewHandlers(logger *slog.Logger, classifySvc *classify.Service, reorderSvc *reorder.Service, ledgerSvc *ledger.Service, metrics *jobmetrics.Metrics) *Handlers {
	return &Handlers{logger: logger, classify: classifySvc, reorder: reorderSvc, ledger: ledgerSvc, metrics: metrics}
}

// All returns the handler registrations for the worker mux.
func (h *Handlers) All() []TaskHandler {
	return []TaskHandler{
		{Type: TaskClassifyRefresh, Handler: h.HandleClassifyRefresh},
		{Type: TaskReorderScan, Handler: h.HandleReorderScan},
		{Type: TaskLedgerIntegrity, Handler: h.HandleLedgerIntegrity},
	}
}

// HandleClassifyRefresh processes TaskClassifyRefresh tasks.
func (h *Handlers) HandleClassifyRefresh(ctx context.Context, t *asynq.Task) error {
	var payload ScheduledPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := h.metrics.Track(TaskClassifyRefresh)
	report, err := h.classify.RefreshAll(ctx)
	if err != nil {
		h.logger.Error("classification refresh failed", slog.Any("error", err))
		return tracker.End(err)
	}
	_ = tracker.End(nil)
	h.logger.Info("classification refreshed",
		slog.Int("items", report.Items),
		slog.Int("item_errors", len(report.Errors)),
		slog.Duration("duration", report.Duration))
	return nil
}

// HandleReorderScan processes TaskReorderScan tasks.
func (h *Handlers) HandleReorderScan(ctx context.Context, t *asynq.Task) error {
	var payload ScheduledPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := h.metrics.Track(TaskReorderScan)
	report, err := h.reorder.EvaluateAll(ctx)
	if err != nil {
		h.logger.Error("reorder scan failed", slog.Any("error", err))
		return tracker.End(err)
	}
	_ = tracker.End(nil)
	h.logger.Info("reorder scan finished",
		slog.Int("rules", report.RulesEvaluated),
		slog.Int("created", report.Created),
		slog.Int("rule_errors", len(report.Errors)))
	return nil
}

// HandleLedgerIntegrity processes TaskLedgerIntegrity tasks.
func (h *Handlers) HandleLedgerIntegrity(ctx context.Context, t *asynq.Task) error {
	var payload ScheduledPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := h.metrics.Track(TaskLedgerIntegrity)
	findings, err := h.ledger.ScanIntegrity(ctx)
	if err != nil {
		h.logger.Error("ledger integrity scan failed", slog.Any("error", err))
		return tracker.End(err)
	}
	_ = tracker.End(nil)
	if len(findings) == 0 {
		h.logger.Info("ledger integrity scan clean")
		return nil
	}
	for _, finding := range findings {
		h.logger.Warn("ledger integrity finding",
			slog.String("kind", string(finding.Kind)),
			slog.String("item", finding.ItemCode),
			slog.String("detail", finding.Detail))
	}
	return nil
}
