package middleware

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"rigshop-api/internal/model"
	"rigshop-api/pkg/apierror"
)

// PrincipalKey is the context key for the authenticated principal.
const PrincipalKey contextKey = "principal"

// Headers set by the API gateway after it has authenticated the caller.
const (
	HeaderToken     = "X-Token"
	HeaderUserID    = "X-User-ID"
	HeaderUserRole  = "X-User-Role"
	HeaderUserEmail = "X-User-Email"
)

// TokenValidator resolves a session token to its principal.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*model.Principal, error)
}

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	// Tokens validates X-Token sessions. Nil disables session tokens.
	Tokens TokenValidator
	// TrustGateway accepts identity headers injected by the gateway.
	TrustGateway bool
	Logger       *zap.Logger
}

// NewAuthMiddleware creates an authentication middleware.
// A session token wins over gateway headers; requests with neither are rejected.
func NewAuthMiddleware(cfg AuthConfig) func(http.Handler) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("auth")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token := r.Header.Get(HeaderToken); token != "" && cfg.Tokens != nil {
				principal, err := cfg.Tokens.ValidateToken(r.Context(), token)
				if err != nil {
					LoggerFrom(r.Context(), logger).Debug("token rejected", zap.Error(err))
					writeError(w, apierror.Unauthorized("Invalid or expired token"))
					return
				}
				next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), *principal)))
				return
			}

			if cfg.TrustGateway {
				if userID := strings.TrimSpace(r.Header.Get(HeaderUserID)); userID != "" {
					principal := model.Principal{
						UserID: userID,
						Email:  r.Header.Get(HeaderUserEmail),
						Role:   model.ParseRole(r.Header.Get(HeaderUserRole)),
					}
					next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
					return
				}
			}

			writeError(w, apierror.Unauthorized("Authentication required. Use the X-Token header."))
		})
	}
}

// RequireAdmin rejects principals without the admin role.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := PrincipalFromContext(r.Context())
		if !ok {
			writeError(w, apierror.Unauthorized(""))
			return
		}
		if !principal.IsAdmin() {
			writeError(w, apierror.Forbidden("Admin role required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// WithPrincipal stores the principal in ctx.
func WithPrincipal(ctx context.Context, principal model.Principal) context.Context {
	return context.WithValue(ctx, PrincipalKey, principal)
}

// PrincipalFromContext retrieves the authenticated principal from ctx.
func PrincipalFromContext(ctx context.Context) (model.Principal, bool) {
	p, ok := ctx.Value(PrincipalKey).(model.Principal)
	return p, ok
}

// writeError writes an API error response.
func writeError(w http.ResponseWriter, err *apierror.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.StatusCode)
	w.Write(err.ToJSON())
}
