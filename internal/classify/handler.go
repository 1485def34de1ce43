package classify

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/atlas-ims/atlas-ims/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the classification module.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs classification handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers classification routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/refresh", h.handleRefresh)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := Filter{
		ABC:      ABCClass(strings.ToUpper(q.Get("abc"))),
		Movement: MovementClass(strings.ToUpper(q.Get("movement"))),
		Risk:     RiskLevel(strings.ToUpper(q.Get("risk"))),
	}
	records, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("classification list failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]interface{}{"records": records})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.RefreshAll(r.Context())
	if err != nil {
		h.logger.Error("classification refresh failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}
