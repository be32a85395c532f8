// Package handler exposes component group endpoints.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"formhub/internal/groups/service"
	"formhub/internal/groups/store"
	"formhub/internal/platform/middleware"
	"formhub/pkg/outcome"
	"formhub/pkg/platform/respond"
)

// Service defines the group operations the handler needs.
type Service interface {
	Upsert(ctx context.Context, req service.UpsertRequest, userID uuid.UUID) (outcome.Result[*service.GroupView], error)
	GetByID(ctx context.Context, groupID uuid.UUID, userID uuid.UUID) (outcome.Result[*service.GroupView], error)
	List(ctx context.Context, userID uuid.UUID, filter store.ListFilter) (outcome.Result[[]service.GroupView], error)
	Delete(ctx context.Context, groupID uuid.UUID, userID uuid.UUID) (outcome.Result[struct{}], error)
}

// Handler exposes group endpoints. All routes require an authenticated user.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a groups handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts group endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/groups", h.HandleUpsert)
	r.Get("/groups", h.HandleList)
	r.Get("/groups/{groupID}", h.HandleGet)
	r.Delete("/groups/{groupID}", h.HandleDelete)
}

// HandleUpsert handles POST /groups.
func (h *Handler) HandleUpsert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
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
		h.logger.InfoContext(ctx, "group saved",
			"group_id", result.Data.ID,
			"user_id", userID,
			"request_id", middleware.GetRequestID(ctx),
		)
	}
	respond.WriteResult(w, result)
}

// HandleList handles GET /groups.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, _ := middleware.GetUserID(ctx)

	filter := store.ListFilter{
		Search: r.URL.Query().Get("search"),
		Limit:  queryInt(r, "limit"),
		Offset: queryInt(r, "offset"),
	}

	result, err := h.service.List(ctx, userID, filter)
	if err != nil {
		respond.WriteInternalError(w, h.logger, err, middleware.GetRequestID(ctx))
		return
	}
	respond.WriteResult(w, result)
}

// HandleGet handles GET /groups/{groupID}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	groupID, ok := pathUUID(w, r, "groupID")
	if !ok {
		return
	}
	userID, _ := middleware.GetUserID(ctx)

	result, err := h.service.GetByID(ctx, groupID, userID)
	if err != nil {
		respond.WriteInternalError(w, h.logger, err, middleware.GetRequestID(ctx))
		return
	}
	respond.WriteResult(w, result)
}

// HandleDelete handles DELETE /groups/{groupID}.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	groupID, ok := pathUUID(w, r, "groupID")
	if !ok {
		return
	}
	userID, _ := middleware.GetUserID(ctx)

	result, err := h.service.Delete(ctx, groupID, userID)
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
