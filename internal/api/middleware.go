package api

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"

	"github.com/zombar/guardian/internal/apperr"
	"github.com/zombar/guardian/internal/auth"
	"github.com/zombar/guardian/internal/metrics"
	"github.com/zombar/guardian/internal/ratelimit"
	"github.com/zombar/guardian/pkg/tracing"
)

// authenticate requires a valid bearer token and stores the principal
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := auth.BearerToken(r)
		if token == "" {
			h.respondAppError(w, r, apperr.Newf(apperr.Authentication, "missing authorization header"))
			return
		}

		p, err := h.Verifier.Verify(token)
		if err != nil {
			h.respondAppError(w, r, err)
			return
		}

		tracing.SetSpanAttributes(r.Context(), attribute.Bool("auth.service_role", p.IsService()))
		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
	})
}

// rateLimit enforces the per-function budget for the calling client. A
// limiter backend failure lets the request through.
func (h *Handler) rateLimit(function string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.Limiter == nil {
			next.ServeHTTP(w, r)
			return
		}

		allowed, err := h.Limiter.Allow(r.Context(), function, ratelimit.ClientKey(r))
		if err != nil {
			h.Logger.Warn("rate limiter unavailable, allowing request",
				"function", function,
				"error", apperr.Redact(err.Error()),
			)
			next.ServeHTTP(w, r)
			return
		}
		if !allowed {
			metrics.RateLimited.WithLabelValues(function).Inc()
			w.Header().Set("Retry-After", "60")
			h.respondAppError(w, r, apperr.Newf(apperr.RateLimit, "rate limit exceeded for %s", function))
			return
		}

		next.ServeHTTP(w, r)
	})
}
