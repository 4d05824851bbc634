package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/identity-service/internal/domain"
	"github.com/spec-kit/identity-service/internal/repository"
	apperrors "github.com/spec-kit/identity-service/pkg/util"
)

const principalKey = "auth_principal"

// Principal represents the authenticated caller: the profile (stored role,
// authoritative) plus the claims carried by the session token (cheap,
// possibly stale).
type Principal struct {
	Profile     *domain.Profile
	TokenClaims *SessionClaims
}

// StoredRole returns the authoritative role from the profile store.
func (p *Principal) StoredRole() domain.Role {
	return p.Profile.Role
}

// ClaimedRole returns the role claim the session was issued with.
func (p *Principal) ClaimedRole() domain.Role {
	return p.TokenClaims.Role
}

// AuthMiddleware validates bearer tokens and loads principals.
type AuthMiddleware struct {
	tokens   *TokenManager
	profiles repository.ProfileRepository
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager, profiles repository.ProfileRepository) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, profiles: profiles}
}

// Handle enforces authentication for protected routes. The profile is
// loaded on every request so administrative decisions see the stored role,
// not the claim snapshot inside the token.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(parts[1])
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}

	profile, err := m.profiles.GetByID(c.UserContext(), claims.CredentialID())
	if err != nil {
		if apperrors.IsCode(err, apperrors.CodeNotFound) {
			return apperrors.NewUnauthorized("unknown identity")
		}
		return apperrors.MapError(err)
	}

	if profile.Status != domain.ProfileStatusActive {
		return apperrors.NewForbidden("not permitted")
	}

	c.Locals(principalKey, &Principal{Profile: profile, TokenClaims: claims})
	return c.Next()
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}
