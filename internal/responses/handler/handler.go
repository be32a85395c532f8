// Package handler wires response endpoints to the responses service.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"formhub/internal/platform/middleware"
	"formhub/internal/responses/models"
	"formhub/internal/responses/service"
	"formhub/internal/responses/store"
	"formhub/pkg/outcome"
	"formhub/pkg/platform/respond"
)

// Service defines the response operations the handler needs.
type Service interface {
	Submit(ctx context.Context, formID uuid.UUID, req service.SubmitRequest, userID uuid.UUID) (outcome.Result[*service.ResponseView], error)
	GetByID(ctx context.Context, responseID uuid.UUID, userID uuid.UUID) (outcome.Result[*service.ResponseView], error)
	ListByForm(ctx context.Context, formID uuid.UUID, userID uuid.UUID, filter store.ListFilter) (outcome.Result[*service.FormResponsesView], error)
	UpdateStatus(ctx context.Context, responseID uuid.UUID, decision models.ResponseStatus, note *string, reviewerID uuid.UUID) (outcome.Result[*service.ResponseView], error)
	Archive(ctx context.Context, responseID uuid.UUID, userID uuid.UUID) (outcome.Result[*service.ResponseView], error)
}

// Handler exposes response endpoints.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a responses handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts response endpoints on the router. Submit is open to
// anonymous callers; the service decides per form.
func (h *Handler) Register(r chi.Router) {
	r.Post("/forms/{formID}/responses", h.HandleSubmit)
	r.Get("/forms/{formID}/responses", h.HandleList)
	r.Get("/responses/{responseID}", h.HandleGet)
	r.Put("/responses/{responseID}/status", h.HandleUpdateStatus)
	r.Post("/responses/{responseID}/archive", h.HandleArchive)
}

// HandleSubmit handles POST /forms/{formID}/responses.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	formID, ok := pathUUID(w, r, "formID")
	if !ok {
		return
	}
	userID, _ := middleware.GetUserID(ctx)

	req, ok := respond.DecodeJSON[service.SubmitRequest](w, r)
	if !ok {
		return
	}

	result, err := h.service.Submit(ctx, formID, req, userID)
	if err != nil {
		respond.WriteInternalError(w, h.logger, err, middleware.GetRequestID(ctx))
		return
	}
	respond.WriteResult(w, result)
}

// HandleList handles GET /forms/{formID}/responses.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	formID, ok := pathUUID(w, r, "formID")
	if !ok {
		return
	}
	userID, _ := middleware.GetUserID(ctx)

	query := r.URL.Query()
	filter := store.ListFilter{
		IncludeArchived: query.Get("includeArchived") == "true",
		Limit:           queryInt(r, "limit"),
		Offset:          queryInt(r, "offset"),
	}
	if raw := query.Get("status"); raw != "" {
		status := models.ResponseStatus(raw)
		if !status.Valid() {
			respond.WriteBadRequest(w, "invalid status filter")
			return
		}
		filter.Status = &status
	}
	if raw := query.Get("anonymous"); raw != "" {
		anonymous := raw == "true"
		filter.Anonymous = &anonymous
	}

	result, err := h.service.ListByForm(ctx, formID, userID, filter)
	if err != nil {
		respond.WriteInternalError(w, h.logger, err, middleware.GetRequestID(ctx))
		return
	}
	respond.WriteResult(w, result)
}

// HandleGet handles GET /responses/{responseID}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	responseID, ok := pathUUID(w, r, "responseID")
	if !ok {
		return
	}
	userID, _ := middleware.GetUserID(ctx)

	result, err := h.service.GetByID(ctx, responseID, userID)
	if err != nil {
		respond.WriteInternalError(w, h.logger, err, middleware.GetRequestID(ctx))
		return
	}
	respond.WriteResult(w, result)
}

// updateStatusRequest is the review decision payload.
type updateStatusRequest struct {
	Status models.ResponseStatus `json:"status"`
	Note   *string               `json:"note,omitempty"`
}

// HandleUpdateStatus handles PUT /responses/{responseID}/status.
func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	responseID, ok := pathUUID(w, r, "responseID")
	if !ok {
		return
	}
	userID, _ := middleware.GetUserID(ctx)

	req, ok := respond.DecodeJSON[updateStatusRequest](w, r)
	if !ok {
		return
	}

	result, err := h.service.UpdateStatus(ctx, responseID, req.Status, req.Note, userID)
	if err != nil {
		respond.WriteInternalError(w, h.logger, err, middleware.GetRequestID(ctx))
		return
	}
	if result.Status.OK() {
		h.logger.InfoContext(ctx, "response reviewed",
			"response_id", responseID,
			"decision", req.Status,
			"reviewer_id", userID,
			"request_id", middleware.GetRequestID(ctx),
		)
	}
	respond.WriteResult(w, result)
}

// HandleArchive handles POST /responses/{responseID}/archive.
func (h *Handler) HandleArchive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	responseID, ok := pathUUID(w, r, "responseID")
	if !ok {
		return
	}
	userID, _ := middleware.GetUserID(ctx)

	result, err := h.service.Archive(ctx, responseID, userID)
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
