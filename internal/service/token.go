package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"rigshop-api/internal/model"
)

const (
	// TokenPrefix is the prefix for all session tokens
	TokenPrefix = "rsk_"

	// TokenRedisKeyPrefix is the Redis key prefix for tokens
	TokenRedisKeyPrefix = "rigshop:session:"
)

// ErrInvalidToken is returned for malformed, unknown or expired session tokens.
var ErrInvalidToken = errors.New("invalid or expired token")

// TokenService stores sessions in Redis and resolves tokens to principals.
// Sessions are normally minted by the external auth service; GenerateToken serves seeding and tests.
type TokenService struct {
	redis  redis.UniversalClient
	ttl    time.Duration
	logger *zap.Logger
}

// NewTokenService creates a new token service.
func NewTokenService(redisClient redis.UniversalClient, ttl time.Duration, logger *zap.Logger) *TokenService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenService{
		redis:  redisClient,
		ttl:    ttl,
		logger: logger.Named("token"),
	}
}

// GenerateToken creates a new session token for the principal and stores it in Redis.
func (s *TokenService) GenerateToken(ctx context.Context, principal model.Principal) (string, error) {
	if principal.UserID == "" {
		return "", invalid("user id is required")
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	token := TokenPrefix + hex.EncodeToString(tokenBytes)

	now := time.Now().UTC()
	session := model.Session{Principal: principal, CreatedAt: now, ExpiresAt: now.Add(s.ttl)}
	data, err := json.Marshal(session)
	if err != nil {
		return "", fmt.Errorf("failed to serialize session: %w", err)
	}

	if err := s.redis.Set(ctx, TokenRedisKeyPrefix+token, data, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to store token: %w", err)
	}

	s.logger.Info("session created",
		zap.String("user_id", principal.UserID), zap.String("role", string(principal.Role)), zap.Time("expires_at", session.ExpiresAt))
	return token, nil
}

// ValidateToken returns the principal of a live session.
func (s *TokenService) ValidateToken(ctx context.Context, token string) (*model.Principal, error) {
	if !strings.HasPrefix(token, TokenPrefix) {
		return nil, ErrInvalidToken
	}

	key := TokenRedisKeyPrefix + token
	data, err := s.redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	var session model.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to parse session: %w", err)
	}

	if time.Now().After(session.ExpiresAt) {
		s.redis.Del(ctx, key)
		return nil, ErrInvalidToken
	}
	if session.UserID == "" {
		return nil, ErrInvalidToken
	}

	principal := session.Principal
	principal.Role = model.ParseRole(string(principal.Role))
	return &principal, nil
}

// RefreshToken extends a live session by the configured TTL.
func (s *TokenService) RefreshToken(ctx context.Context, token string) (time.Time, error) {
	principal, err := s.ValidateToken(ctx, token)
	if err != nil {
		return time.Time{}, err
	}

	now := time.Now().UTC()
	session := model.Session{Principal: *principal, CreatedAt: now, ExpiresAt: now.Add(s.ttl)}
	data, err := json.Marshal(session)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to serialize session: %w", err)
	}
	if err := s.redis.Set(ctx, TokenRedisKeyPrefix+token, data, s.ttl).Err(); err != nil {
		return time.Time{}, fmt.Errorf("failed to refresh token: %w", err)
	}
	return session.ExpiresAt, nil
}

// TTL returns the lifetime of new and refreshed sessions.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// RevokeToken deletes a token from Redis.
func (s *TokenService) RevokeToken(ctx context.Context, token string) error {
	if err := s.redis.Del(ctx, TokenRedisKeyPrefix+token).Err(); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}
