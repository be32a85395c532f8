// Package httptransport assembles the HTTP router. It should delegate to
// domain services without embedding business logic so transport concerns
// remain isolated.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	platformmetrics "formhub/internal/platform/metrics"
	"formhub/internal/platform/middleware"
)

// Registrar is implemented by feature handlers that mount their own routes.
type Registrar interface {
	Register(r chi.Router)
}

// Deps carries everything the router needs wired in from main.
type Deps struct {
	Logger    *slog.Logger
	Metrics   *platformmetrics.Metrics
	Validator middleware.TokenValidator

	// Public handlers serve anonymous callers too; the services decide
	// per form whether anonymity is acceptable.
	Public []Registrar
	// Authenticated handlers sit behind RequireAuth.
	Authenticated []Registrar
}

const requestTimeout = 30 * time.Second

// NewRouter wires the middleware chain and mounts all endpoints under /api.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.Timeout(requestTimeout))
	if deps.Metrics != nil {
		r.Use(middleware.LatencyMiddleware(deps.Metrics))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(api chi.Router) {
		api.Use(middleware.ContentTypeJSON)
		api.Use(middleware.OptionalAuth(deps.Validator, deps.Logger))

		for _, h := range deps.Public {
			h.Register(api)
		}

		api.Group(func(authed chi.Router) {
			authed.Use(middleware.RequireAuth(deps.Logger))
			for _, h := range deps.Authenticated {
				h.Register(authed)
			}
		})
	})

	return r
}
