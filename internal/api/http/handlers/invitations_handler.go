package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/identity-service/internal/api/dto"
	"github.com/spec-kit/identity-service/internal/auth"
	"github.com/spec-kit/identity-service/internal/domain"
	"github.com/spec-kit/identity-service/internal/service"
)

// InvitationsHandler exposes administrative invitation operations.
type InvitationsHandler struct {
	invitations *service.InvitationService
}

// NewInvitationsHandler constructs handler.
func NewInvitationsHandler(invitations *service.InvitationService) *InvitationsHandler {
	return &InvitationsHandler{invitations: invitations}
}

// Invite handles POST /admin/invitations.
func (h *InvitationsHandler) Invite(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
	}

	var req dto.InviteRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	role, okRole := domain.ParseRole(req.Role)
	if !okRole {
		return fiber.NewError(http.StatusBadRequest, "unknown role")
	}

	result, err := h.invitations.Invite(c.UserContext(), principal.Profile.ID, req.Email, role)
	if err != nil {
		return err
	}

	if result.AlreadyExists {
		return c.JSON(fiber.Map{
			"data": fiber.Map{
				"already_exists": true,
				"email":          result.ExistingEmail,
				"role":           string(result.ExistingRole),
			},
		})
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"data": fiber.Map{
			"profile": dto.FromProfile(result.Profile),
		},
	})
}
