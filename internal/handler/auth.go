package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"rigshop-api/internal/middleware"
	"rigshop-api/internal/model"
	"rigshop-api/internal/service"
	"rigshop-api/pkg/apierror"
	"rigshop-api/pkg/response"
)

// SessionStore is the subset of the token service the auth endpoints use.
type SessionStore interface {
	GenerateToken(ctx context.Context, principal model.Principal) (string, error)
	RefreshToken(ctx context.Context, token string) (time.Time, error)
	RevokeToken(ctx context.Context, token string) error
	TTL() time.Duration
}

// AuthHandler handles session-related HTTP requests.
type AuthHandler struct {
	sessions SessionStore
	logger   *zap.Logger
}

// NewAuthHandler creates a new auth handler. sessions may be nil when Redis is not configured.
func NewAuthHandler(sessions SessionStore, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{sessions: sessions, logger: logger.Named("auth_handler")}
}

// Me handles GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	response.OK(w, p)
}

// IssueTokenRequest is the body of POST /api/admin/tokens.
type IssueTokenRequest struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// TokenResponse represents the response for token generation.
type TokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}

// IssueToken handles POST /api/admin/tokens
func (h *AuthHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}

	var req IssueTokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	token, err := h.sessions.GenerateToken(r.Context(), model.Principal{
		UserID: req.UserID,
		Email:  req.Email,
		Role:   model.ParseRole(req.Role),
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	response.Created(w, TokenResponse{
		Token:     token,
		ExpiresIn: int(h.sessions.TTL().Seconds()),
	})
}

// RefreshToken handles POST /api/auth/refresh
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	token := r.Header.Get(middleware.HeaderToken)
	if token == "" {
		response.Error(w, apierror.BadRequest("X-Token header required"))
		return
	}

	expiresAt, err := h.sessions.RefreshToken(r.Context(), token)
	if errors.Is(err, service.ErrInvalidToken) {
		response.Error(w, apierror.Unauthorized(err.Error()))
		return
	}
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	response.OK(w, map[string]interface{}{
		"status":     "refreshed",
		"expires_at": expiresAt,
	})
}

// RevokeToken handles POST /api/auth/revoke
func (h *AuthHandler) RevokeToken(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	token := r.Header.Get(middleware.HeaderToken)
	if token == "" {
		response.Error(w, apierror.BadRequest("X-Token header required"))
		return
	}

	if err := h.sessions.RevokeToken(r.Context(), token); err != nil {
		h.logger.Error("failed to revoke token", zap.Error(err))
		response.Error(w, apierror.InternalError("failed to revoke token"))
		return
	}

	response.NoContent(w)
}

func (h *AuthHandler) available(w http.ResponseWriter) bool {
	if h.sessions == nil {
		response.Error(w, apierror.ServiceUnavailable("session store is not configured"))
		return false
	}
	return true
}
