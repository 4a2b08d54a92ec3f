package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/captionly/captionly/pkg/ratelimit"
)

// RouterOptions configures optional router features.
type RouterOptions struct {
	// GenerateLimiter, if set, rate limits the generate endpoint per user.
	// This is burst protection for the LLM backend, separate from quota
	// enforcement.
	GenerateLimiter *ratelimit.FixedWindow

	// HealthChecks are probed by GET /health.
	HealthChecks map[string]HealthCheck
}

// Router assembles the HTTP API.
func Router(h *Handler, log *slog.Logger, opts RouterOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(RequestLogger(log))
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", h.handleHealth(opts.HealthChecks))

	// Webhook is authenticated by signature, not by user identity.
	r.Post("/webhooks/paddle", h.handleWebhook)

	r.Group(func(r chi.Router) {
		r.Use(RequireAuth)

		r.Route("/api", func(r chi.Router) {
			gen := r
			if opts.GenerateLimiter != nil {
				gen = r.With(ratelimit.Middleware(opts.GenerateLimiter, userKey))
			}
			gen.Post("/generate", h.handleGenerate)
			r.Get("/usage", h.handleUsage)
		})

		r.Route("/billing", func(r chi.Router) {
			r.Get("/subscription", h.handleSubscription)
			r.Post("/checkout", h.handleCheckout)
			r.Post("/portal", h.handlePortal)
		})
	})

	return r
}

// userKey keys rate limiting by authenticated user.
func userKey(r *http.Request) string {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		return ""
	}
	return id.UserID.String()
}
