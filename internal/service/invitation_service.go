package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/identity-service/internal/credential"
	"github.com/spec-kit/identity-service/internal/domain"
	"github.com/spec-kit/identity-service/internal/events"
	"github.com/spec-kit/identity-service/internal/repository"
	apperrors "github.com/spec-kit/identity-service/pkg/util"
)

// invitationTokenBytes gives 256 bits of entropy; collisions are
// negligible over the lifetime of any invite.
const invitationTokenBytes = 32

// Notifier delivers invitations out-of-band. Any error is treated as
// delivery failure and triggers the compensating delete.
type Notifier interface {
	SendInvitation(ctx context.Context, email, token string) error
}

// InviteResult reports either a fresh invitation or the profile that
// already occupies the email.
type InviteResult struct {
	Profile       *domain.Profile
	AlreadyExists bool
	ExistingEmail string
	ExistingRole  domain.Role
}

// InvitationService pre-provisions credential-less profiles and later
// binds an accepting credential to them.
type InvitationService struct {
	profiles   repository.ProfileRepository
	gateway    credential.Gateway
	notifier   Notifier
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewInvitationService builds the service.
func NewInvitationService(profiles repository.ProfileRepository, gateway credential.Gateway, notifier Notifier, dispatcher events.Dispatcher, logger *zap.Logger) *InvitationService {
	return &InvitationService{profiles: profiles, gateway: gateway, notifier: notifier, dispatcher: dispatcher, logger: logger}
}

// Invite creates an INVITED profile for an email not yet known to the
// system and delivers the invitation. The store write precedes delivery so
// concurrent invites to the same address resolve at the store; a delivery
// failure compensates by deleting the profile so no unreachable invitation
// lingers.
func (s *InvitationService) Invite(ctx context.Context, inviterID, email string, role domain.Role) (*InviteResult, error) {
	if email == "" {
		return nil, apperrors.NewValidationError("email required", nil)
	}
	if !role.Valid() {
		return nil, apperrors.NewValidationError("unknown role", map[string]any{"role": role})
	}

	if existing, err := s.profiles.GetByEmail(ctx, email); err == nil {
		return &InviteResult{AlreadyExists: true, ExistingEmail: existing.Email, ExistingRole: existing.Role}, nil
	} else if !apperrors.IsCode(err, apperrors.CodeNotFound) {
		return nil, err
	}

	token, err := newInvitationToken()
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	now := time.Now().UTC()
	profile := &domain.Profile{
		ID:              uuid.NewString(), // surrogate until a credential binds
		Email:           email,
		Role:            role,
		Status:          domain.ProfileStatusInvited,
		InvitedBy:       &inviterID,
		InvitationToken: &token,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	created, err := s.profiles.CreateIfAbsent(ctx, profile)
	if err != nil {
		return nil, err
	}
	if !created {
		// Lost a race with a concurrent invite for the same address.
		existing, err := s.profiles.GetByEmail(ctx, email)
		if err != nil {
			return nil, err
		}
		return &InviteResult{AlreadyExists: true, ExistingEmail: existing.Email, ExistingRole: existing.Role}, nil
	}

	if err := s.notifier.SendInvitation(ctx, email, token); err != nil {
		if delErr := s.profiles.Delete(ctx, profile.ID); delErr != nil {
			s.logger.Error("compensating delete failed after notification failure",
				zap.String("profile_id", profile.ID), zap.Error(delErr))
		}
		return nil, apperrors.NewNotificationFailed(err)
	}

	s.publish(ctx, events.EventUserInvited, profile, events.UserInvitedPayload{InvitedBy: inviterID, Role: role})
	return &InviteResult{Profile: profile}, nil
}

// Accept consumes an invitation: it registers (or adopts) a credential for
// the email, rebinds the profile id to the credential id through a single
// conditional update keyed on the token, then propagates the AUTHOR role
// to claims. Every mismatch surfaces as the same INVALID_INVITATION.
func (s *InvitationService) Accept(ctx context.Context, email, token, password string) (*domain.Profile, error) {
	if email == "" || token == "" || password == "" {
		return nil, apperrors.NewInvalidInvitation()
	}

	// Cheap pre-check; the conditional update below remains the guard.
	pending, err := s.profiles.GetByEmail(ctx, email)
	if err != nil {
		if apperrors.IsCode(err, apperrors.CodeNotFound) {
			return nil, apperrors.NewInvalidInvitation()
		}
		return nil, err
	}
	if pending.Status != domain.ProfileStatusInvited {
		return nil, apperrors.NewInvalidInvitation()
	}

	cred, createdCredential, err := s.obtainCredential(ctx, email, password)
	if err != nil {
		return nil, err
	}

	profile, err := s.profiles.AcceptByToken(ctx, email, token, cred.ID, domain.RoleAuthor, time.Now().UTC())
	if err != nil {
		if createdCredential {
			if delErr := s.gateway.Delete(ctx, cred.ID); delErr != nil {
				s.logger.Warn("credential cleanup failed after rejected acceptance",
					zap.String("credential_id", cred.ID), zap.Error(delErr))
			}
		}
		if apperrors.IsCode(err, apperrors.CodeNotFound) {
			return nil, apperrors.NewInvalidInvitation()
		}
		return nil, err
	}

	if err := s.gateway.SetClaims(ctx, cred.ID, domain.Claims{Role: domain.RoleAuthor}); err != nil {
		s.logger.Warn("claims propagation failed on acceptance",
			zap.String("profile_id", profile.ID), zap.Error(err))
	}

	s.publish(ctx, events.EventInvitationAccepted, profile, events.InvitationAcceptedPayload{Role: profile.Role})
	return profile, nil
}

// obtainCredential creates a credential for the email, or adopts an
// existing one after verifying the supplied password. The existing-email
// case covers a racing invite whose recipient already registered.
func (s *InvitationService) obtainCredential(ctx context.Context, email, password string) (*domain.CredentialRef, bool, error) {
	cred, err := s.gateway.Create(ctx, email, password)
	if err == nil {
		return cred, true, nil
	}
	if !apperrors.IsCode(err, apperrors.CodeAlreadyExists) {
		return nil, false, err
	}

	cred, err = s.gateway.GetByEmail(ctx, email)
	if err != nil {
		return nil, false, err
	}
	if err := s.gateway.VerifyPassword(ctx, cred.ID, password); err != nil {
		return nil, false, err
	}
	return cred, false, nil
}

func (s *InvitationService) publish(ctx context.Context, eventType events.EventType, profile *domain.Profile, payload interface{}) {
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

func newInvitationToken() (string, error) {
	buf := make([]byte, invitationTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
