package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/atlas-ims/atlas-ims/internal/classify"
	"github.com/atlas-ims/atlas-ims/internal/ledger"
	"github.com/atlas-ims/atlas-ims/internal/observability"
	"github.com/atlas-ims/atlas-ims/internal/reorder"
	"github.com/atlas-ims/atlas-ims/internal/valuation"
	"github.com/atlas-ims/atlas-ims/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	LedgerHandler    *ledger.Handler
	ValuationHandler *valuation.Handler
	ClassifyHandler  *classify.Handler
	ReorderHandler   *reorder.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with Atlas defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/ledger", params.LedgerHandler.MountRoutes)
	r.Route("/valuation", params.ValuationHandler.MountRoutes)
	r.Route("/classification", params.ClassifyHandler.MountRoutes)
	r.Route("/reorder", params.ReorderHandler.MountRoutes)
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
