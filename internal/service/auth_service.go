package service

import (
	"context"
	"strings"
	"time"

	"github.com/spec-kit/ticket-importer/internal/auth"
	"github.com/spec-kit/ticket-importer/internal/config"
	apperrors "github.com/spec-kit/ticket-importer/pkg/util/errorutil"
)

// AuthService logs in the configured operator.
type AuthService struct {
	operator     string
	passwordHash string
	tokenMgr     *auth.TokenManager
}

// NewAuthService builds the service.
func NewAuthService(cfg config.AuthConfig) *AuthService {
	return &AuthService{
		operator:     cfg.OperatorUser,
		passwordHash: cfg.OperatorPasswordHash,
		tokenMgr:     auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTLMinutes),
	}
}

// TokenManager exposes token manager for middleware.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}

// Login checks the operator credentials and issues an access token.
func (s *AuthService) Login(_ context.Context, username, password string) (string, time.Time, error) {
	if strings.TrimSpace(s.passwordHash) == "" {
		return "", time.Time{}, apperrors.NewServiceUnavailable("operator login not configured", nil)
	}
	userOK := auth.EqualUser(username, s.operator)
	passErr := auth.ComparePassword(s.passwordHash, password)
	if !userOK || passErr != nil {
		return "", time.Time{}, apperrors.NewUnauthorized("invalid credentials")
	}
	return s.tokenMgr.GenerateToken(s.operator)
}
