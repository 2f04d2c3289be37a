// Package httptransport is the thin HTTP layer over the authentication
// pipeline. Handlers delegate to the service and translate outcomes; no
// business logic lives here.
package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"riftgate/internal/platform/metrics"
	id "riftgate/pkg/domain"
)

// Deps collects the router's dependencies.
type Deps struct {
	Authn   AuthnService
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	// Sessions guards the audit and quarantine endpoints when set; without it
	// those endpoints are open, which is acceptable only behind a trusted
	// ingress.
	Sessions SessionValidator
	// Healthy reports whether the audit chain is reachable and verifies.
	Healthy func(r *http.Request) bool
}

// NewRouter wires middleware and all public endpoints.
func NewRouter(deps Deps) chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(RequestID)
	r.Use(ClientMetadata)
	r.Use(Observe(deps.Metrics))

	h := NewHandler(deps.Authn, deps.Logger)
	r.Post("/v1/authenticate", h.HandleAuthenticate)

	r.Group(func(g chi.Router) {
		if deps.Sessions != nil {
			g.Use(RequireSession(deps.Sessions, id.GradeFull, deps.Logger))
		}
		g.Get("/v1/audit/records", h.HandleAuditRange)
		g.Get("/v1/quarantine", h.HandleQuarantineList)
		g.Delete("/v1/quarantine/{profileID}", h.HandleQuarantineRelease)
	})

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if deps.Healthy != nil && !deps.Healthy(req) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("audit chain unhealthy"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}
