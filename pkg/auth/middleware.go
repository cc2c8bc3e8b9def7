package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/rhuss/odin/pkg/api"
	"github.com/rhuss/odin/pkg/debug"
	"github.com/rhuss/odin/pkg/observability"
	"github.com/rhuss/odin/pkg/storage"
)

// DefaultBypassPaths skip authentication.
var DefaultBypassPaths = []string{"/healthz", "/readyz", "/metrics"}

// Middleware authenticates every request not on the bypass list, enforces
// scopes and the optional rate limit, and stores the identity and tenant
// in the request context.
func Middleware(chain *Chain, limiter RateLimiter, bypassPaths []string) func(http.Handler) http.Handler {
	bypass := make(map[string]bool, len(bypassPaths))
	for _, p := range bypassPaths {
		bypass[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if bypass[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			res := chain.Authenticate(r.Context(), r)
			if res.Decision != Yes || res.Identity == nil {
				slog.Warn("authentication failed",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
					"error", res.Err,
				)
				w.Header().Set("WWW-Authenticate", `Bearer realm="odata"`)
				writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", ErrUnauthenticated.Error())
				return
			}

			id := res.Identity
			if id.Subject == "" {
				slog.Error("authenticator returned identity with empty subject")
				writeError(w, http.StatusInternalServerError, "AUTHENTICATION_ERROR", "internal authentication error")
				return
			}
			debug.Log(debug.Auth, "authenticated", "subject", id.Subject, "tenant", id.Tenant, "path", r.URL.Path)

			if !id.Permits(r.Method) {
				slog.Warn("request outside granted scopes",
					"subject", id.Subject,
					"method", r.Method,
					"scopes", id.Scopes,
				)
				writeError(w, http.StatusForbidden, "FORBIDDEN", ErrForbidden.Error())
				return
			}

			if limiter != nil {
				if err := limiter.Allow(r.Context(), id); err != nil {
					tier := id.Tier
					if tier == "" {
						tier = DefaultTier
					}
					slog.Warn("rate limit exceeded", "subject", id.Subject, "tier", tier)
					observability.RateLimitRejectedTotal.WithLabelValues(tier).Inc()
					w.Header().Set("Retry-After", "1")
					writeError(w, http.StatusTooManyRequests, "TOO_MANY_REQUESTS", err.Error())
					return
				}
			}

			ctx := WithIdentity(r.Context(), id)
			if id.Tenant != "" {
				ctx = storage.WithTenant(ctx, id.Tenant)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// writeError writes an OData JSON error document.
func writeError(w http.ResponseWriter, status int, code, message string) {
	body, err := json.Marshal(api.ErrorResponse{Error: &api.ServerError{Code: code, Message: message}})
	if err != nil {
		body = []byte(api.FallbackErrorBody)
	}
	w.Header().Set(api.HeaderContentType, "application/json;odata.metadata=minimal")
	w.Header().Set(api.HeaderODataVersion, api.ODataVersion)
	w.Header().Set(api.HeaderContentLength, strconv.Itoa(len(body)))
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
