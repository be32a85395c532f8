// Package handler exposes the form insights endpoint.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"formhub/internal/insights"
	"formhub/internal/platform/middleware"
	"formhub/pkg/outcome"
	"formhub/pkg/platform/respond"
)

// Service defines the insight operations the handler needs.
type Service interface {
	FormMetrics(ctx context.Context, formID uuid.UUID, userID uuid.UUID) (outcome.Result[*insights.FormMetricsView], error)
}

// Handler exposes insight endpoints.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs an insights handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts insight endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/forms/{formID}/insights", h.HandleFormMetrics)
}

// HandleFormMetrics handles GET /forms/{formID}/insights.
func (h *Handler) HandleFormMetrics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	formID, err := uuid.Parse(chi.URLParam(r, "formID"))
	if err != nil {
		respond.WriteBadRequest(w, "invalid formID")
		return
	}
	userID, _ := middleware.GetUserID(ctx)

	result, err := h.service.FormMetrics(ctx, formID, userID)
	if err != nil {
		respond.WriteInternalError(w, h.logger, err, middleware.GetRequestID(ctx))
		return
	}
	respond.WriteResult(w, result)
}
