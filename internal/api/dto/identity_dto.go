package dto

import (
	"time"

	"github.com/spec-kit/identity-service/internal/domain"
)

// RegisterRequest payload for new accounts.
type RegisterRequest struct {
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Password    string `json:"password"`
}

// LoginRequest payload for login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AcceptInvitationRequest payload for redeeming an invitation.
type AcceptInvitationRequest struct {
	Email    string `json:"email"`
	Token    string `json:"token"`
	Password string `json:"password"`
}

// InviteRequest payload for administrative invitations.
type InviteRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// SetRoleRequest payload.
type SetRoleRequest struct {
	Role string `json:"role"`
}

// SetStatusRequest payload.
type SetStatusRequest struct {
	Status string `json:"status"`
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ProfileResponse is the external view of a profile. The invitation token
// is never rendered.
type ProfileResponse struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	DisplayName   string     `json:"display_name,omitempty"`
	PhotoURL      string     `json:"photo_url,omitempty"`
	Role          string     `json:"role"`
	Status        string     `json:"status"`
	InvitedBy     *string    `json:"invited_by,omitempty"`
	EmailVerified bool       `json:"email_verified"`
	LastLogin     *time.Time `json:"last_login,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// FromProfile maps a domain profile to its response shape.
func FromProfile(p *domain.Profile) ProfileResponse {
	return ProfileResponse{
		ID:            p.ID,
		Email:         p.Email,
		DisplayName:   p.DisplayName,
		PhotoURL:      p.PhotoURL,
		Role:          string(p.Role),
		Status:        string(p.Status),
		InvitedBy:     p.InvitedBy,
		EmailVerified: p.EmailVerified,
		LastLogin:     p.LastLogin,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

// FromProfiles maps a list of profiles.
func FromProfiles(profiles []*domain.Profile) []ProfileResponse {
	out := make([]ProfileResponse, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, FromProfile(p))
	}
	return out
}
