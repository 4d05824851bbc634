package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/identity-service/internal/auth"
	"github.com/spec-kit/identity-service/internal/config"
	"github.com/spec-kit/identity-service/internal/credential"
	"github.com/spec-kit/identity-service/internal/domain"
	apperrors "github.com/spec-kit/identity-service/pkg/util"
)

// AuthService coordinates registration and login flows. Login is the
// session-establishment path: it always runs a reconciliation pass and
// issues the token from the stored role, never the possibly stale claim.
type AuthService struct {
	gateway   credential.Gateway
	lifecycle *LifecycleService
	sync      *SyncService
	tokenMgr  *auth.TokenManager
	logger    *zap.Logger
}

// NewAuthService builds the service.
func NewAuthService(cfg config.Config, gateway credential.Gateway, lifecycle *LifecycleService, sync *SyncService, logger *zap.Logger) *AuthService {
	return &AuthService{
		gateway:   gateway,
		lifecycle: lifecycle,
		sync:      sync,
		tokenMgr:  auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes),
		logger:    logger,
	}
}

// Register creates a credential and its profile, then opens a session.
// A failed profile write compensates by deleting the fresh credential: a
// stranded credential would permanently occupy the email in the provider
// while every login for it dead-ends on the missing profile.
func (s *AuthService) Register(ctx context.Context, displayName, email, password string) (*domain.Profile, string, time.Time, error) {
	cred, err := s.gateway.Create(ctx, email, password)
	if err != nil {
		return nil, "", time.Time{}, err
	}

	profile, err := s.lifecycle.EnsureProfile(ctx, cred, displayName)
	if err != nil {
		if delErr := s.gateway.Delete(ctx, cred.ID); delErr != nil {
			s.logger.Error("credential cleanup failed after profile failure",
				zap.String("credential_id", cred.ID), zap.Error(delErr))
		}
		return nil, "", time.Time{}, err
	}

	token, exp, err := s.tokenMgr.GenerateToken(profile.ID, profile.Email, profile.Role)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	return profile, token, exp, nil
}

// Login authenticates against the identity provider, lazily ensures the
// profile exists, reconciles claims and issues a session token.
func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.Profile, string, time.Time, error) {
	cred, err := s.gateway.GetByEmail(ctx, email)
	if err != nil {
		if apperrors.IsCode(err, apperrors.CodeNotFound) {
			return nil, "", time.Time{}, apperrors.NewUnauthorized("invalid credentials")
		}
		return nil, "", time.Time{}, err
	}
	if err := s.gateway.VerifyPassword(ctx, cred.ID, password); err != nil {
		return nil, "", time.Time{}, err
	}

	profile, err := s.lifecycle.EnsureProfile(ctx, cred, "")
	if err != nil {
		return nil, "", time.Time{}, err
	}

	if profile.Status != domain.ProfileStatusActive {
		return nil, "", time.Time{}, apperrors.NewForbidden("not permitted")
	}

	if _, err := s.sync.Reconcile(ctx, profile.ID); err != nil {
		s.logger.Warn("reconciliation failed on login", zap.String("profile_id", profile.ID), zap.Error(err))
	}

	token, exp, err := s.tokenMgr.GenerateToken(profile.ID, profile.Email, profile.Role)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	return profile, token, exp, nil
}

// SessionFor opens a session for an already-bound profile, used right
// after invitation acceptance.
func (s *AuthService) SessionFor(profile *domain.Profile) (string, time.Time, error) {
	return s.tokenMgr.GenerateToken(profile.ID, profile.Email, profile.Role)
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}
