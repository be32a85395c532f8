package httptransport_test

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"formhub/internal/platform/middleware"
	"formhub/internal/platform/middleware/mocks"
	httptransport "formhub/internal/transport/http"
)

// echoHandler registers a route that reports the caller's identity.
type echoHandler struct{ path string }

func (h echoHandler) Register(r chi.Router) {
	r.Get(h.path, func(w http.ResponseWriter, r *http.Request) {
		if userID, ok := middleware.GetUserID(r.Context()); ok {
			_, _ = w.Write([]byte(userID.String()))
			return
		}
		_, _ = w.Write([]byte("anonymous"))
	})
}

func newRouter(t *testing.T) (http.Handler, *mocks.MockTokenValidator) {
	t.Helper()
	validator := mocks.NewMockTokenValidator(gomock.NewController(t))
	router := httptransport.NewRouter(httptransport.Deps{
		Logger:        slog.New(slog.DiscardHandler),
		Validator:     validator,
		Public:        []httptransport.Registrar{echoHandler{path: "/public"}},
		Authenticated: []httptransport.Registrar{echoHandler{path: "/private"}},
	})
	return router, validator
}

func TestHealthz(t *testing.T) {
	router, _ := newRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	router, _ := newRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPublicRouteAllowsAnonymous(t *testing.T) {
	router, _ := newRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/public", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "anonymous", rec.Body.String())
}

func TestAuthenticatedRouteRejectsAnonymous(t *testing.T) {
	router, _ := newRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/private", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBearerTokenResolvesIdentity(t *testing.T) {
	router, validator := newRouter(t)
	userID := uuid.New()
	validator.EXPECT().ValidateToken("token-123").Return(userID, nil).Times(2)

	for _, path := range []string{"/api/public", "/api/private"} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer token-123")
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, userID.String(), rec.Body.String(), path)
	}
}
