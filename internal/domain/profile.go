package domain

import "time"

// ProfileStatus represents lifecycle states for a profile.
type ProfileStatus string

const (
	ProfileStatusActive   ProfileStatus = "ACTIVE"
	ProfileStatusInactive ProfileStatus = "INACTIVE"
	ProfileStatusPending  ProfileStatus = "PENDING"
	ProfileStatusInvited  ProfileStatus = "INVITED"
	ProfileStatusBlocked  ProfileStatus = "BLOCKED"
)

// Valid reports whether s is a known status.
func (s ProfileStatus) Valid() bool {
	switch s {
	case ProfileStatusActive, ProfileStatusInactive, ProfileStatusPending,
		ProfileStatusInvited, ProfileStatusBlocked:
		return true
	}
	return false
}

// ParseProfileStatus validates a raw status string.
func ParseProfileStatus(raw string) (ProfileStatus, bool) {
	s := ProfileStatus(raw)
	return s, s.Valid()
}

// Profile is the durable record of a person's role and status. It is the
// source of truth; the credential's claims are a low-latency mirror of Role.
//
// ID equals the bound credential id once one exists. An INVITED profile has
// a store-generated surrogate id and a non-nil InvitationToken; the token
// is cleared exactly on acceptance.
type Profile struct {
	ID              string
	Email           string
	DisplayName     string
	PhotoURL        string
	Role            Role
	Status          ProfileStatus
	InvitedBy       *string
	InvitationToken *string
	EmailVerified   bool
	LastLogin       *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
