package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/identity-service/internal/api/dto"
	"github.com/spec-kit/identity-service/internal/domain"
	"github.com/spec-kit/identity-service/internal/service"
	apperrors "github.com/spec-kit/identity-service/pkg/util"
)

// UsersHandler exposes administrative user operations.
type UsersHandler struct {
	lifecycle *service.LifecycleService
}

// NewUsersHandler constructs handler.
func NewUsersHandler(lifecycle *service.LifecycleService) *UsersHandler {
	return &UsersHandler{lifecycle: lifecycle}
}

// List handles GET /admin/users.
func (h *UsersHandler) List(c *fiber.Ctx) error {
	profiles, err := h.lifecycle.ListUsers(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromProfiles(profiles)})
}

// Get handles GET /admin/users/:id.
func (h *UsersHandler) Get(c *fiber.Ctx) error {
	profile, err := h.lifecycle.GetUser(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromProfile(profile)})
}

// SetRole handles PUT /admin/users/:id/role.
func (h *UsersHandler) SetRole(c *fiber.Ctx) error {
	var req dto.SetRoleRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	role, ok := domain.ParseRole(req.Role)
	if !ok {
		return fiber.NewError(http.StatusBadRequest, "unknown role")
	}

	profile, err := h.lifecycle.SetRole(c.UserContext(), c.Params("id"), role)
	return renderMutation(c, profile, err)
}

// SetStatus handles PUT /admin/users/:id/status.
func (h *UsersHandler) SetStatus(c *fiber.Ctx) error {
	var req dto.SetStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	status, ok := domain.ParseProfileStatus(req.Status)
	if !ok {
		return fiber.NewError(http.StatusBadRequest, "unknown status")
	}

	profile, err := h.lifecycle.SetStatus(c.UserContext(), c.Params("id"), status)
	return renderMutation(c, profile, err)
}

// Delete handles DELETE /admin/users/:id.
func (h *UsersHandler) Delete(c *fiber.Ctx) error {
	if err := h.lifecycle.DeleteUser(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// renderMutation renders a mutation result, mapping PARTIAL_SUCCESS to a
// 207 with the durable profile plus a warning instead of a failure.
func renderMutation(c *fiber.Ctx, profile *domain.Profile, err error) error {
	if err == nil {
		return c.JSON(fiber.Map{"data": dto.FromProfile(profile)})
	}
	if apperrors.IsCode(err, apperrors.CodePartialSuccess) {
		return c.Status(http.StatusMultiStatus).JSON(fiber.Map{
			"data":    dto.FromProfile(profile),
			"warning": apperrors.ToDomainError(err).Message,
		})
	}
	return err
}
