package auth

import (
	"log/slog"
	"net/http"

	"github.com/bruecke-dev/bruecke/pkg/api"
	"github.com/bruecke-dev/bruecke/pkg/observability"
	"github.com/bruecke-dev/bruecke/pkg/storage"
	"github.com/bruecke-dev/bruecke/pkg/transport"
)

// DefaultBypassEndpoints lists paths that skip authentication.
var DefaultBypassEndpoints = []string{"/healthz", "/metrics"}

// Middleware builds HTTP middleware from an auth chain and an optional
// rate limiter. Bypass paths skip the chain entirely. On success the
// identity and tenant scope are injected into the request context.
func Middleware(chain *Chain, limiter RateLimiter, logger *slog.Logger, bypassEndpoints []string) transport.Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	bypass := make(map[string]bool, len(bypassEndpoints))
	for _, ep := range bypassEndpoints {
		bypass[ep] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if bypass[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			result := chain.Authenticate(r.Context(), r)

			if result.Decision != Allow || result.Identity == nil {
				logger.Warn("authentication failed",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
					"error", result.Err)
				transport.WriteErrorResponse(w,
					api.NewInvalidRequestError("", "authentication required"),
					http.StatusUnauthorized)
				return
			}

			if result.Identity.Subject == "" {
				logger.Error("authenticator returned identity with empty subject")
				transport.WriteAPIError(w, api.NewServerError("internal authentication error"))
				return
			}

			if limiter != nil {
				if err := limiter.Allow(r.Context(), result.Identity); err != nil {
					logger.Warn("rate limit exceeded",
						"subject", result.Identity.Subject,
						"tier", result.Identity.ServiceTier)
					observability.RateLimitRejectedTotal.WithLabelValues(result.Identity.ServiceTier).Inc()
					transport.WriteAPIError(w, api.NewTooManyRequestsError("rate limit exceeded"))
					return
				}
			}

			ctx := SetIdentity(r.Context(), result.Identity)
			if tenantID := result.Identity.TenantID(); tenantID != "" {
				ctx = storage.SetTenant(ctx, tenantID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
