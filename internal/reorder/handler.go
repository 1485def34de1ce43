package reorder

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/atlas-ims/atlas-ims/internal/platform/httpx"
	"github.com/atlas-ims/atlas-ims/internal/shared"
)

// Handler wires HTTP endpoints for the reorder module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs reorder handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers reorder routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/rules", h.handleListRules)
	r.Get("/rules/{item}", h.handleGetRule)
	r.Put("/rules", h.handleSaveRule)
	r.Delete("/rules/{item}", h.handleDeleteRule)
	r.Get("/suggestions", h.handleListSuggestions)
	r.Post("/suggestions/scan", h.handleScan)
	r.Post("/suggestions/evaluate/{item}", h.handleEvaluate)
	r.Post("/suggestions/{id}/approve", h.handleApprove)
	r.Post("/suggestions/{id}/reject", h.handleReject)
	r.Post("/suggestions/{id}/order", h.handleMarkOrdered)
}

type ruleRequest struct {
	ItemCode     string  `json:"item_code" validate:"required"`
	Supplier     string  `json:"supplier" validate:"required"`
	ReorderLevel float64 `json:"reorder_level" validate:"gte=0"`
	ReorderQty   float64 `json:"reorder_qty" validate:"gt=0"`
	SafetyStock  float64 `json:"safety_stock" validate:"gte=0"`
	LeadTimeDays int     `json:"lead_time_days" validate:"gt=0"`
	ActorID      int64   `json:"actor_id"`
}

type decisionRequest struct {
	ActorID     int64   `json:"actor_id" validate:"required"`
	QtyOverride float64 `json:"qty_override" validate:"gte=0"`
	Note        string  `json:"note"`
}

func (h *Handler) handleSaveRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	rule, err := h.service.SaveRule(r.Context(), req.ActorID, RuleInput{
		ItemCode:     req.ItemCode,
		Supplier:     req.Supplier,
		ReorderLevel: req.ReorderLevel,
		ReorderQty:   req.ReorderQty,
		SafetyStock:  req.SafetyStock,
		LeadTimeDays: req.LeadTimeDays,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.logger.Info("reorder rule saved", slog.String("item", rule.ItemCode))
	httpx.JSON(w, http.StatusOK, rule)
}

func (h *Handler) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.service.ListRules(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"rules": rules})
}

func (h *Handler) handleGetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := h.service.GetRule(r.Context(), chi.URLParam(r, "item"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rule)
}

func (h *Handler) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteRule(r.Context(), actorFromQuery(r), chi.URLParam(r, "item")); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (h *Handler) handleListSuggestions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := Filter{
		Status:  Status(strings.ToUpper(q.Get("status"))),
		Urgency: Urgency(strings.ToUpper(q.Get("urgency"))),
	}
	suggestions, err := h.service.ListSuggestions(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"suggestions": suggestions})
}

func (h *Handler) handleScan(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.EvaluateAll(r.Context())
	if err != nil {
		h.logger.Error("reorder scan failed", slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	suggestion, err := h.service.Evaluate(r.Context(), chi.URLParam(r, "item"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	if suggestion == nil {
		httpx.JSON(w, http.StatusOK, map[string]any{"triggered": false})
		return
	}
	httpx.JSON(w, http.StatusCreated, suggestion)
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	h.handleDecision(w, r, func(req decisionRequest, id uuid.UUID, r *http.Request) (Suggestion, error) {
		return h.service.Approve(r.Context(), id, req.ActorID, req.QtyOverride, req.Note)
	})
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	h.handleDecision(w, r, func(req decisionRequest, id uuid.UUID, r *http.Request) (Suggestion, error) {
		return h.service.Reject(r.Context(), id, req.ActorID, req.Note)
	})
}

func (h *Handler) handleMarkOrdered(w http.ResponseWriter, r *http.Request) {
	h.handleDecision(w, r, func(req decisionRequest, id uuid.UUID, r *http.Request) (Suggestion, error) {
		return h.service.MarkOrdered(r.Context(), id, req.ActorID)
	})
}

func (h *Handler) handleDecision(w http.ResponseWriter, r *http.Request, apply func(decisionRequest, uuid.UUID, *http.Request) (Suggestion, error)) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid suggestion id")
		return
	}
	var req decisionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	suggestion, err := apply(req, id, r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.logger.Info("reorder suggestion updated",
		slog.String("id", suggestion.ID.String()),
		slog.String("status", string(suggestion.Status)))
	httpx.JSON(w, http.StatusOK, suggestion)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrRuleNotFound), errors.Is(err, ErrSuggestionNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidRule),
		errors.Is(err, ErrActorRequired),
		errors.Is(err, ErrInvalidQtyOverride):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrInvalidState):
		httpx.Problem(w, http.StatusConflict, "Invalid State", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}

// actorFromQuery reads the actor from the query since deletes have no body.
func actorFromQuery(r *http.Request) int64 {
	actor, _ := strconv.ParseInt(r.URL.Query().Get("actor_id"), 10, 64)
	return actor
}
