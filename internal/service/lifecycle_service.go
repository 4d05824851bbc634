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
	apperrors "github.com/spec-kit/identity-service/pkg/util"
)

// LifecycleService owns profile creation, role/status mutation and
// deletion. Every two-step operation writes the profile store first; a
// failed claims write afterwards degrades the result instead of rolling
// back, because the store is already durable and authoritative.
type LifecycleService struct {
	profiles   repository.ProfileRepository
	gateway    credential.Gateway
	sync       *SyncService
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewLifecycleService builds the service.
func NewLifecycleService(profiles repository.ProfileRepository, gateway credential.Gateway, sync *SyncService, dispatcher events.Dispatcher, logger *zap.Logger) *LifecycleService {
	return &LifecycleService{profiles: profiles, gateway: gateway, sync: sync, dispatcher: dispatcher, logger: logger}
}

// EnsureProfile is the idempotent get-or-create for an authenticated
// credential. The create path is a conditional insert, so N concurrent
// calls for the same new identity yield exactly one profile. On the
// existing path it refreshes lastLogin with a targeted touch that cannot
// clobber a concurrent role or status change.
func (s *LifecycleService) EnsureProfile(ctx context.Context, cred *domain.CredentialRef, displayName string) (*domain.Profile, error) {
	now := time.Now().UTC()
	candidate := &domain.Profile{
		ID:            cred.ID,
		Email:         cred.Email,
		DisplayName:   displayName,
		Role:          domain.RoleUser,
		Status:        domain.ProfileStatusActive,
		EmailVerified: cred.EmailVerified,
		LastLogin:     &now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	created, err := s.profiles.CreateIfAbsent(ctx, candidate)
	if err != nil {
		return nil, err
	}

	if created {
		// Claims lag here is repaired by the synchronizer on the next
		// session; the profile write is never rolled back.
		if err := s.gateway.SetClaims(ctx, cred.ID, domain.Claims{Role: domain.RoleUser}); err != nil {
			s.logger.Warn("claims propagation failed on profile creation",
				zap.String("profile_id", cred.ID), zap.Error(err))
		}
		s.publish(ctx, events.EventUserRegistered, candidate, nil)
		return candidate, nil
	}

	profile, err := s.profiles.GetByID(ctx, cred.ID)
	if err != nil {
		if apperrors.IsCode(err, apperrors.CodeNotFound) {
			// The insert lost to a row under a different id holding this
			// email, e.g. a pending invitation. Surface the occupant so
			// callers can react instead of reporting a phantom NOT_FOUND.
			return nil, s.emailOccupied(ctx, cred.Email)
		}
		return nil, err
	}

	if err := s.profiles.TouchLastLogin(ctx, profile.ID, now); err != nil {
		// lastLogin is bookkeeping; a failed refresh must not block login.
		s.logger.Warn("last login refresh failed", zap.String("profile_id", profile.ID), zap.Error(err))
	} else {
		profile.LastLogin = &now
		profile.UpdatedAt = now
	}
	return profile, nil
}

// emailOccupied reports which profile holds the email after a lost insert.
func (s *LifecycleService) emailOccupied(ctx context.Context, email string) error {
	occupant, err := s.profiles.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	return apperrors.NewAlreadyExists("profile", map[string]any{
		"email":  email,
		"status": string(occupant.Status),
	})
}

// SetRole changes the stored role, then runs the synchronizer to push the
// claim. A failed push downgrades to PARTIAL_SUCCESS: the store already
// holds the new role and repair happens on the next pass.
func (s *LifecycleService) SetRole(ctx context.Context, id string, role domain.Role) (*domain.Profile, error) {
	if !role.Valid() {
		return nil, apperrors.NewValidationError("unknown role", map[string]any{"role": role})
	}

	profile, err := s.profiles.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	oldRole := profile.Role
	profile.Role = role
	profile.UpdatedAt = time.Now().UTC()
	if err := s.profiles.Update(ctx, profile); err != nil {
		return nil, err
	}

	s.publish(ctx, events.EventRoleChanged, profile, events.RoleChangedPayload{OldRole: oldRole, NewRole: role})

	report, err := s.sync.Reconcile(ctx, id)
	if err != nil || !report.InSync() {
		return profile, apperrors.NewPartialSuccess("role updated; claims propagation pending", err)
	}
	return profile, nil
}

// SetStatus changes the stored status. Status is not mirrored into claims,
// but the pass still repairs any role drift it finds.
func (s *LifecycleService) SetStatus(ctx context.Context, id string, status domain.ProfileStatus) (*domain.Profile, error) {
	if !status.Valid() {
		return nil, apperrors.NewValidationError("unknown status", map[string]any{"status": status})
	}

	profile, err := s.profiles.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	oldStatus := profile.Status
	profile.Status = status
	profile.UpdatedAt = time.Now().UTC()
	if err := s.profiles.Update(ctx, profile); err != nil {
		return nil, err
	}

	s.publish(ctx, events.EventStatusChanged, profile, events.StatusChangedPayload{OldStatus: oldStatus, NewStatus: status})

	report, err := s.sync.Reconcile(ctx, id)
	if err != nil || !report.InSync() {
		return profile, apperrors.NewPartialSuccess("status updated; claims propagation pending", err)
	}
	return profile, nil
}

// DeleteUser removes the credential first, then the profile. An orphaned
// profile without a credential is harmless and reapable; an orphaned
// credential would let a deleted user keep authenticating, so a credential
// deletion failure aborts with the profile intact.
func (s *LifecycleService) DeleteUser(ctx context.Context, id string) error {
	profile, err := s.profiles.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.gateway.Delete(ctx, id); err != nil {
		// Invitation-created profiles have no credential yet; nothing to
		// delete is fine. Anything else aborts before touching the profile.
		if !apperrors.IsCode(err, apperrors.CodeNotFound) {
			return err
		}
	}

	if err := s.profiles.Delete(ctx, id); err != nil {
		return err
	}

	s.publish(ctx, events.EventUserDeleted, profile, nil)
	return nil
}

// ListUsers returns every profile for the administrative role sweep.
func (s *LifecycleService) ListUsers(ctx context.Context) ([]*domain.Profile, error) {
	return s.profiles.List(ctx)
}

// GetUser returns a single profile.
func (s *LifecycleService) GetUser(ctx context.Context, id string) (*domain.Profile, error) {
	return s.profiles.GetByID(ctx, id)
}

func (s *LifecycleService) publish(ctx context.Context, eventType events.EventType, profile *domain.Profile, payload interface{}) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		ProfileID: profile.ID,
		Email:     profile.Email,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	})
}
