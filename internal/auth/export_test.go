package auth

import "github.com/gofiber/fiber/v2"

// SetPrincipalForTest injects a principal directly, bypassing token
// validation.
func SetPrincipalForTest(c *fiber.Ctx, principal *Principal) {
	c.Locals(principalKey, principal)
}
