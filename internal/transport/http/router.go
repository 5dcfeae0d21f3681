package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"remedia/pkg/platform/httputil"
	"remedia/pkg/platform/middleware/actor"
	"remedia/pkg/platform/middleware/requesttime"
	"remedia/pkg/requestcontext"
)

// HealthCheck reports readiness of a backing dependency.
type HealthCheck func(ctx context.Context) error

// NewRouter assembles the full HTTP surface: API endpoints, health, and
// Prometheus metrics.
func NewRouter(h *Handler, checks map[string]HealthCheck) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(requestIDToContext)
	r.Use(chimiddleware.Recoverer)
	r.Use(requesttime.Middleware)
	r.Use(actor.Middleware)

	r.Get("/healthz", handleHealth(checks))
	r.Handle("/metrics", promhttp.Handler())

	h.Register(r)
	return r
}

// requestIDToContext copies chi's request ID into the transport-independent
// request context so services and workers log the same identifier.
func requestIDToContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := chimiddleware.GetReqID(r.Context())
		ctx := requestcontext.WithRequestID(r.Context(), reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func handleHealth(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		body := make(map[string]string, len(checks)+1)
		body["status"] = "ok"
		for name, check := range checks {
			if err := check(r.Context()); err != nil {
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
				body[name] = err.Error()
				continue
			}
			body[name] = "ok"
		}
		httputil.WriteJSON(w, status, body)
	}
}
