package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/identity-service/internal/credential"
	"github.com/spec-kit/identity-service/internal/domain"
	"github.com/spec-kit/identity-service/internal/events"
	"github.com/spec-kit/identity-service/internal/repository"
)

// SyncReport describes the outcome of one reconciliation pass.
type SyncReport struct {
	ProfileID   string
	StoredRole  domain.Role
	ClaimedRole domain.Role
	Drift       bool
	Repaired    bool
}

// InSync reports whether the claim matches the stored role after the pass.
func (r SyncReport) InSync() bool {
	return !r.Drift || r.Repaired
}

// SyncService is the repair loop between stored role and claimed role.
// The profile store always wins; the claim is a cache with lag. It runs on
// every session establishment and after every role or status mutation.
type SyncService struct {
	profiles   repository.ProfileRepository
	gateway    credential.Gateway
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewSyncService builds the synchronizer.
func NewSyncService(profiles repository.ProfileRepository, gateway credential.Gateway, dispatcher events.Dispatcher, logger *zap.Logger) *SyncService {
	return &SyncService{profiles: profiles, gateway: gateway, dispatcher: dispatcher, logger: logger}
}

// Reconcile compares the stored role against the credential's claimed role
// and overwrites the claim when they differ. A failed repair is a warning,
// never an error: callers proceed on the stored role for this request and
// the next pass tries again. Only profile store failures are fatal.
func (s *SyncService) Reconcile(ctx context.Context, id string) (SyncReport, error) {
	profile, err := s.profiles.GetByID(ctx, id)
	if err != nil {
		return SyncReport{ProfileID: id}, err
	}

	report := SyncReport{ProfileID: id, StoredRole: profile.Role}

	claims, err := s.gateway.GetClaims(ctx, id)
	if err != nil {
		report.Drift = true
		s.logger.Warn("claims read failed; stored role remains authoritative",
			zap.String("profile_id", id), zap.Error(err))
		return report, nil
	}
	report.ClaimedRole = claims.Role

	if claims.Role == profile.Role {
		return report, nil
	}
	report.Drift = true

	if err := s.gateway.SetClaims(ctx, id, domain.Claims{Role: profile.Role}); err != nil {
		s.logger.Warn("claims repair failed; will retry on next pass",
			zap.String("profile_id", id),
			zap.String("stored_role", string(profile.Role)),
			zap.String("claimed_role", string(claims.Role)),
			zap.Error(err))
		return report, nil
	}

	// Re-read to confirm the overwrite took.
	confirmed, err := s.gateway.GetClaims(ctx, id)
	if err != nil || confirmed.Role != profile.Role {
		s.logger.Warn("claims repair unconfirmed",
			zap.String("profile_id", id), zap.Error(err))
		return report, nil
	}
	report.Repaired = true

	s.publish(ctx, profile, claims.Role)
	return report, nil
}

func (s *SyncService) publish(ctx context.Context, profile *domain.Profile, staleRole domain.Role) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventClaimsRepaired,
		ProfileID: profile.ID,
		Email:     profile.Email,
		Timestamp: time.Now().UTC(),
		Payload: events.ClaimsRepairedPayload{
			StoredRole:  profile.Role,
			ClaimedRole: staleRole,
		},
	})
}
