// Package handler wires form endpoints to the forms service.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"formhub/internal/forms/models"
	"formhub/internal/forms/service"
	"formhub/internal/forms/store"
	"formhub/internal/platform/middleware"
	"formhub/pkg/outcome"
	"formhub/pkg/platform/respond"
)

// Service defines the form operations the handler needs.
type Service interface {
	Upsert(ctx context.Context, req service.UpsertRequest, userID uuid.UUID) (outcome.Result[*service.FormAdminView], error)
	GetByID(ctx context.Context, formID uuid.UUID, userID uuid.UUID) (outcome.Result[*service.FormAdminView], error)
	ListByUser(ctx context.Context, userID uuid.UUID, filter store.ListFilter) (outcome.Result[[]service.FormSummaryView], error)
	GetLinkableForms(ctx context.Context, formID uuid.UUID, userID uuid.UUID) (outcome.Result[[]service.LinkableFormView], error)
	Delete(ctx context.Context, formID uuid.UUID, userID uuid.UUID) (outcome.Result[struct{}], error)
	Link(ctx context.Context, parentID, childID uuid.UUID, userID uuid.UUID) (outcome.Result[struct{}], error)
	Unlink(ctx context.Context, parentID uuid.UUID, userID uuid.UUID) (outcome.Result[struct{}], error)
	Display(ctx context.Context, formID uuid.UUID, viewerID uuid.UUID) (outcome.Result[*service.DisplayView], error)
}

// Handler exposes form endpoints.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a forms handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts form endpoints on the router. Display is the only endpoint
// open to anonymous callers; everything else assumes OptionalAuth ran and
// lets the service reject missing identities.
func (h *Handler) Register(r chi.Router) {
	r.Post("/forms", h.HandleUpsert)
	r.Get("/forms", h.HandleList)
	r.Get("/forms/{formID}", h.HandleGet)
	r.Delete("/forms/{formID}", h.HandleDelete)
	r.Get("/forms/{formID}/linkable", h.HandleLinkable)
	r.Get("/forms/{formID}/display", h.HandleDisplay)
	r.Post("/forms/{formID}/link/{childID}", h.HandleLink)
	r.Delete("/forms/{formID}/link", h.HandleUnlink)
}

// HandleUpsert handles POST /forms.
func (h *Handler) HandleUpsert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	userID, _ := middleware.GetUserID(ctx)

	req, ok := respond.DecodeJSON[service.UpsertRequest](w, r)
	if !ok {
		return
	}

	result, err := h.service.Upsert(ctx, req, userID)
	if err != nil {
		respond.WriteInternalError(w, h.logger, err, middleware.GetRequestID(ctx))
		return
	}
	if result.Status.OK() {
		h.logger.InfoContext(ctx, "form upserted",
			"form_id", result.Data.ID,
			"user_id", userID,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetRequestID(ctx),
		)
	}
	respond.WriteResult(w, result)
}

// HandleList handles GET /forms.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, _ := middleware.GetUserID(ctx)

	filter := store.ListFilter{
		Search: r.URL.Query().Get("search"),
		Limit:  queryInt(r, "limit"),
		Offset: queryInt(r, "offset"),
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := models.FormStatus(raw)
		if !status.Valid() || status == models.StatusDeleted {
			respond.WriteBadRequest(w, "invalid status filter")
			return
		}
		filter.Status = &status
	}

	result, err := h.service.ListByUser(ctx, userID, filter)
	if err != nil {
		respond.WriteInternalError(w, h.logger, err, middleware.GetRequestID(ctx))
		return
	}
	respond.WriteResult(w, result)
}

// HandleGet handles GET /forms/{formID}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	formID, ok := pathUUID(w, r, "formID")
	if !ok {
		return
	}
	userID, _ := middleware.GetUserID(ctx)

	result, err := h.service.GetByID(ctx, formID, userID)
	if err != nil {
		respond.WriteInternalError(w, h.logger, err, middleware.GetRequestID(ctx))
		return
	}
	respond.WriteResult(w, result)
}

// HandleDelete handles DELETE /forms/{formID}.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	formID, ok := pathUUID(w, r, "formID")
	if !ok {
		return
	}
	userID, _ := middleware.GetUserID(ctx)

	result, err := h.service.Delete(ctx, formID, userID)
	if err != nil {
		respond.WriteInternalError(w, h.logger, err, middleware.GetRequestID(ctx))
		return
	}
	respond.WriteResult(w, result)
}

// HandleLinkable handles GET /forms/{formID}/linkable.
func (h *Handler) HandleLinkable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	formID, ok := pathUUID(w, r, "formID")
	if !ok {
		return
	}
	userID, _ := middleware.GetUserID(ctx)

	result, err := h.service.GetLinkableForms(ctx, formID, userID)
	if err != nil {
		respond.WriteInternalError(w, h.logger, err, middleware.GetRequestID(ctx))
		return
	}
	respond.WriteResult(w, result)
}

// HandleDisplay handles GET /forms/{formID}/display. Anonymous viewers are
// welcome; the service decides what they may see.
func (h *Handler) HandleDisplay(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	formID, ok := pathUUID(w, r, "formID")
	if !ok {
		return
	}
	viewerID, _ := middleware.GetUserID(ctx)

	result, err := h.service.Display(ctx, formID, viewerID)
	if err != nil {
		respond.WriteInternalError(w, h.logger, err, middleware.GetRequestID(ctx))
		return
	}
	respond.WriteResult(w, result)
}

// HandleLink handles POST /forms/{formID}/link/{childID}.
func (h *Handler) HandleLink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	parentID, ok := pathUUID(w, r, "formID")
	if !ok {
		return
	}
	childID, ok := pathUUID(w, r, "childID")
	if !ok {
		return
	}
	userID, _ := middleware.GetUserID(ctx)

	result, err := h.service.Link(ctx, parentID, childID, userID)
	if err != nil {
		respond.WriteInternalError(w, h.logger, err, middleware.GetRequestID(ctx))
		return
	}
	respond.WriteResult(w, result)
}

// HandleUnlink handles DELETE /forms/{formID}/link.
func (h *Handler) HandleUnlink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	parentID, ok := pathUUID(w, r, "formID")
	if !ok {
		return
	}
	userID, _ := middleware.GetUserID(ctx)

	result, err := h.service.Unlink(ctx, parentID, userID)
	if err != nil {
		respond.WriteInternalError(w, h.logger, err, middleware.GetRequestID(ctx))
		return
	}
	respond.WriteResult(w, result)
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		respond.WriteBadRequest(w, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(r *http.Request, name string) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0
	}
	return value
}
