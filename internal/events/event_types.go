package events

import (
	"time"

	"github.com/spec-kit/identity-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventUserRegistered     EventType = "user_registered"
	EventRoleChanged        EventType = "role_changed"
	EventStatusChanged      EventType = "status_changed"
	EventUserInvited        EventType = "user_invited"
	EventInvitationAccepted EventType = "invitation_accepted"
	EventUserDeleted        EventType = "user_deleted"
	EventClaimsRepaired     EventType = "claims_repaired"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	ProfileID string      `json:"profile_id"`
	Email     string      `json:"email"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// RoleChangedPayload payload.
type RoleChangedPayload struct {
	OldRole domain.Role `json:"old_role"`
	NewRole domain.Role `json:"new_role"`
}

// StatusChangedPayload payload.
type StatusChangedPayload struct {
	OldStatus domain.ProfileStatus `json:"old_status"`
	NewStatus domain.ProfileStatus `json:"new_status"`
}

// UserInvitedPayload payload.
type UserInvitedPayload struct {
	InvitedBy string      `json:"invited_by"`
	Role      domain.Role `json:"role"`
}

// InvitationAcceptedPayload payload.
type InvitationAcceptedPayload struct {
	Role domain.Role `json:"role"`
}

// ClaimsRepairedPayload payload.
type ClaimsRepairedPayload struct {
	StoredRole  domain.Role `json:"stored_role"`
	ClaimedRole domain.Role `json:"claimed_role"`
}
