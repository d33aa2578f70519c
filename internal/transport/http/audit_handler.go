package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	apperrors "cwtcli/internal/errors"
	"cwtcli/pkg/contracts/domain"
)

// AuditReader is the read surface over persisted load audits
type AuditReader interface {
	GetAudit(ctx context.Context, runID string) (*domain.LoadAudit, error)
	ListAudits(ctx context.Context, limit int) ([]domain.LoadAudit, error)
}

// AuditHandler serves the load-audit history endpoints
type AuditHandler struct {
	store        AuditReader
	logger       *slog.Logger
	errorHandler *apperrors.ErrorHandler
}

// NewAuditHandler creates the audit handler
func NewAuditHandler(store AuditReader, logger *slog.Logger, errorHandler *apperrors.ErrorHandler) *AuditHandler {
	return &AuditHandler{
		store:        store,
		logger:       logger.With(slog.String("component", "audit_handler")),
		errorHandler: errorHandler,
	}
}

// Routes returns the audit routes
func (h *AuditHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Get("/", h.ListAudits)
	r.Get("/{runID}", h.GetAudit)

	return r
}

// ListAudits returns recent load runs, newest first
func (h *AuditHandler) ListAudits(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			h.errorHandler.HandleError(w, r, apperrors.NewValidationFailure("limit", "must be an integer in [1, 500]"))
			return
		}
		limit = parsed
	}

	audits, err := h.store.ListAudits(r.Context(), limit)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{"audits": audits, "count": len(audits)})
}

// GetAudit returns one load run by its identifier
func (h *AuditHandler) GetAudit(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if _, err := uuid.Parse(runID); err != nil {
		h.errorHandler.HandleError(w, r, apperrors.NewValidationFailure("run_id", "must be a UUID"))
		return
	}

	audit, err := h.store.GetAudit(r.Context(), runID)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	if audit == nil {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, &apperrors.Problem{
			Type:   "audit-not-found",
			Title:  "Unknown load run",
			Status: http.StatusNotFound,
			Detail: "no load run with id " + runID,
		})
		return
	}
	render.JSON(w, r, audit)
}
