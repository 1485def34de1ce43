package ledger

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/atlas-ims/atlas-ims/internal/platform/httpx"
	"github.com/atlas-ims/atlas-ims/internal/shared"
)

// Handler wires HTTP endpoints for the ledger module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs ledger handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/entries", h.handleAppend)
	r.Post("/entries/import", h.handleImport)
	r.Post("/entries/{id}/reverse", h.handleReverse)
	r.Get("/entries", h.handleListEntries)
	r.Get("/balance/{item}", h.handleBalance)
	r.Get("/integrity", h.handleIntegrity)
}

type appendRequest struct {
	ItemCode  string  `json:"item_code" validate:"required"`
	Kind      string  `json:"kind" validate:"required,oneof=OPENING RECEIPT ISSUE"`
	Date      string  `json:"date" validate:"required,datetime=2006-01-02"`
	Qty       float64 `json:"qty" validate:"gte=0"`
	UnitCost  float64 `json:"unit_cost" validate:"gte=0"`
	Amount    float64 `json:"amount" validate:"gte=0"`
	Supplier  string  `json:"supplier"`
	GRNNumber string  `json:"grn_number"`
	Purpose   string  `json:"purpose"`
	Remarks   string  `json:"remarks"`
	ActorID   int64   `json:"actor_id"`
}

type reverseRequest struct {
	ActorID int64  `json:"actor_id"`
	Remarks string `json:"remarks"`
}

type entryResponse struct {
	ID         string  `json:"id"`
	ItemCode   string  `json:"item_code"`
	Kind       string  `json:"kind"`
	Date       string  `json:"date"`
	Qty        float64 `json:"qty"`
	UnitCost   float64 `json:"unit_cost"`
	Amount     float64 `json:"amount"`
	Supplier   string  `json:"supplier,omitempty"`
	GRNNumber  string  `json:"grn_number,omitempty"`
	Purpose    string  `json:"purpose,omitempty"`
	Remarks    string  `json:"remarks,omitempty"`
	ReversalOf string  `json:"reversal_of,omitempty"`
}

type positionResponse struct {
	ItemCode      string  `json:"item_code"`
	OpeningStock  float64 `json:"opening_stock"`
	OpeningDate   string  `json:"opening_date,omitempty"`
	TotalReceipts float64 `json:"total_receipts"`
	TotalIssues   float64 `json:"total_issues"`
	CurrentStock  float64 `json:"current_stock"`
	AsOfDate      string  `json:"as_of_date"`
}

func (h *Handler) handleAppend(w http.ResponseWriter, r *http.Request) {
	var req appendRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	date, _ := time.Parse("2006-01-02", req.Date)
	entry, err := h.service.Append(r.Context(), AppendInput{
		ItemCode:  req.ItemCode,
		Kind:      EntryKind(req.Kind),
		Date:      date,
		Qty:       req.Qty,
		UnitCost:  req.UnitCost,
		Amount:    req.Amount,
		Supplier:  req.Supplier,
		GRNNumber: req.GRNNumber,
		Purpose:   req.Purpose,
		Remarks:   req.Remarks,
		ActorID:   req.ActorID,
	})
	if err != nil {
		h.logger.Warn("ledger append rejected", slog.String("item", req.ItemCode), slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	h.logger.Info("ledger entry appended",
		slog.String("item", entry.ItemCode),
		slog.String("kind", string(entry.Kind)),
		slog.Float64("qty", entry.Qty))
	httpx.JSON(w, http.StatusCreated, toEntryResponse(entry))
}

func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	var actorID int64
	if raw := r.URL.Query().Get("actor_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid actor_id")
			return
		}
		actorID = id
	}
	report, err := h.service.ImportCSV(r.Context(), r.Body, actorID)
	if err != nil {
		if errors.Is(err, ErrEmptyImport) {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
		h.logger.Warn("csv import failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusBadRequest, "Malformed Body", err.Error())
		return
	}
	h.logger.Info("csv import finished",
		slog.Int("appended", report.Appended),
		slog.Int("rejected", len(report.Rejected)))
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) handleReverse(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid entry id")
		return
	}
	var req reverseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Body", err.Error())
		return
	}
	entry, err := h.service.Reverse(r.Context(), id, req.ActorID, req.Remarks)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toEntryResponse(entry))
}

func (h *Handler) handleListEntries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := EntryFilter{ItemCode: q.Get("item"), Kind: EntryKind(q.Get("kind"))}
	if from := q.Get("from"); from != "" {
		t, err := time.Parse("2006-01-02", from)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid from date")
			return
		}
		filter.From = t
	}
	if to := q.Get("to"); to != "" {
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid to date")
			return
		}
		filter.To = t
	}
	entries, err := h.service.ListEntries(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]entryResponse, 0, len(entries))
	for _, entry := range entries {
		out = append(out, toEntryResponse(entry))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": out, "pagination": shared.NewPagination(1, len(out), len(out))})
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	item := chi.URLParam(r, "item")
	var asOf time.Time
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid as_of date")
			return
		}
		asOf = t
	}
	position, err := h.service.ComputeBalance(r.Context(), item, asOf)
	if err != nil {
		h.respondError(w, err)
		return
	}
	resp := positionResponse{
		ItemCode:      position.ItemCode,
		OpeningStock:  position.OpeningStock,
		TotalReceipts: position.TotalReceipts,
		TotalIssues:   position.TotalIssues,
		CurrentStock:  position.CurrentStock,
		AsOfDate:      position.AsOfDate.Format("2006-01-02"),
	}
	if !position.OpeningDate.IsZero() {
		resp.OpeningDate = position.OpeningDate.Format("2006-01-02")
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) handleIntegrity(w http.ResponseWriter, r *http.Request) {
	findings, err := h.service.ScanIntegrity(r.Context())
	if err != nil {
		h.logger.Error("integrity scan failed", slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"findings": findings, "count": len(findings)})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrEntryNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrItemCodeRequired),
		errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrInvalidUnitCost),
		errors.Is(err, ErrDateRequired),
		errors.Is(err, ErrFutureDate),
		errors.Is(err, ErrUnknownKind):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrAlreadyReversed),
		errors.Is(err, ErrReverseReversal),
		errors.Is(err, ErrOpeningNotReversible):
		httpx.Problem(w, http.StatusConflict, "Invalid State", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}

func toEntryResponse(entry Entry) entryResponse {
	resp := entryResponse{
		ID:        entry.ID.String(),
		ItemCode:  entry.ItemCode,
		Kind:      string(entry.Kind),
		Date:      entry.Date.Format("2006-01-02"),
		Qty:       entry.Qty,
		UnitCost:  entry.UnitCost,
		Amount:    entry.Amount,
		Supplier:  entry.Supplier,
		GRNNumber: entry.GRNNumber,
		Purpose:   entry.Purpose,
		Remarks:   entry.Remarks,
	}
	if entry.IsReversal() {
		resp.ReversalOf = entry.ReversalOf.String()
	}
	return resp
}
