package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/pixelbridge/conversion-bridge/internal/domain"
	"github.com/pixelbridge/conversion-bridge/internal/metrics"
	"github.com/pixelbridge/conversion-bridge/internal/security"
)

type RouterDeps struct {
	Cache     domain.CacheRepository
	Handler   *Handler
	Verifier  security.OperatorVerifier
	RateLimit RateLimitOptions
}

func NewRouter(d RouterDeps) http.Handler {
	if d.Cache == nil {
		panic("rest.NewRouter: nil cache")
	}
	if d.Handler == nil {
		panic("rest.NewRouter: nil handler")
	}
	if d.Verifier == nil {
		panic("rest.NewRouter: nil verifier")
	}

	r := chi.NewRouter()

	// Request ID + structured access log
	r.Use(RequestID)
	r.Use(HTTPLogger)

	// Panic recovery
	r.Use(chimw.Recoverer)

	// Cross-cutting
	r.Use(RateLimit(d.Cache, d.RateLimit))
	r.Use(SecurityHeaders)

	r.Get("/healthz", d.Handler.Healthz)
	r.Handle("/metrics", metrics.Handler())

	// Ingestion surface; authenticated by the credential token in the URL
	// or body, not by operator auth.
	r.Post("/webhook", d.Handler.Webhook)
	r.Get("/script.js", d.Handler.Script)

	// The browser path is called cross-origin from customer sites.
	r.Group(func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Requested-With", "Origin"},
			MaxAge:         86400,
		}))
		r.Post("/api/track", d.Handler.Track)
		r.Options("/api/track", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	// Operator surface: setup wizard backend and pairing dashboard.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(OperatorAuth(d.Verifier))

		r.Post("/setup/token", d.Handler.SetupToken)
		r.Get("/setup/verify", d.Handler.SetupVerify)
		r.Get("/stats", d.Handler.Stats)
	})

	return r
}
