// Package httpapi assembles the public HTTP surface: health probes, metrics
// and the authenticated /api routes.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"crvs/internal/platform/metrics"
	"crvs/internal/platform/middleware"
	"crvs/pkg/platform/httputil"
	authmw "crvs/pkg/platform/middleware/auth"
	"crvs/pkg/platform/middleware/metadata"
	"crvs/pkg/platform/middleware/requesttime"
)

// Routes is implemented by feature handlers mounted under /api.
type Routes interface {
	Register(r chi.Router)
}

// ReadinessCheck reports whether a backing service is usable.
type ReadinessCheck func(ctx context.Context) error

type Dependencies struct {
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
	Gatherer       prometheus.Gatherer
	Validator      authmw.JWTValidator
	RequestTimeout time.Duration
	TrustProxy     bool
	Readiness      map[string]ReadinessCheck
	API            []Routes
}

// NewRouter wires the middleware chain and every route.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(metadata.ClientMetadata(deps.TrustProxy))
	r.Use(middleware.Logger(deps.Logger, deps.Metrics))
	r.Use(middleware.Recovery(deps.Logger, deps.Metrics))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", readiness(deps.Readiness))
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(api chi.Router) {
		api.Use(middleware.Timeout(deps.RequestTimeout))
		api.Use(middleware.ContentTypeJSON)
		api.Use(requesttime.Middleware)
		api.Use(authmw.RequireAuth(deps.Validator, deps.Logger))
		for _, routes := range deps.API {
			routes.Register(api)
		}
	})
	return r
}

func readiness(checks map[string]ReadinessCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		failed := map[string]string{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				failed[name] = err.Error()
			}
		}
		if len(failed) > 0 {
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failed": failed})
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
