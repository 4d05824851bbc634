package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/identity-service/internal/domain"
	apperrors "github.com/spec-kit/identity-service/pkg/util"
)

// CanAccess answers allow/deny for claim-based checks. It is the cheap
// path: peripheral callers pass the session's claims and tolerate brief
// staleness until the synchronizer catches up.
func CanAccess(claims domain.Claims, required domain.Role) bool {
	return claims.Role.HasMinimum(required)
}

// RequireRole blocks callers whose stored role is below required.
// Administrative operations go through this gate, which consults the
// profile loaded by the middleware rather than the token claim.
func RequireRole(required domain.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if !principal.StoredRole().HasMinimum(required) {
			return apperrors.NewForbidden("not permitted")
		}
		return c.Next()
	}
}

// RequireAuthenticated ensures a caller is signed in, with no role floor.
func RequireAuthenticated() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := PrincipalFromContext(c); !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		return c.Next()
	}
}
