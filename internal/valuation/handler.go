package valuation

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/atlas-ims/atlas-ims/internal/ledger"
	"github.com/atlas-ims/atlas-ims/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the valuation module.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs valuation handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers valuation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleCatalog)
	r.Get("/{item}", h.handleItem)
}

func (h *Handler) handleItem(w http.ResponseWriter, r *http.Request) {
	method, err := ParseMethod(r.URL.Query().Get("method"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	val, err := h.service.Valuate(r.Context(), chi.URLParam(r, "item"), method)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, val)
}

func (h *Handler) handleCatalog(w http.ResponseWriter, r *http.Request) {
	method, err := ParseMethod(r.URL.Query().Get("method"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	report, err := h.service.ValuateAll(r.Context(), method)
	if err != nil {
		h.logger.Error("catalog valuation failed", slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrUnknownMethod), errors.Is(err, ledger.ErrItemCodeRequired):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}
