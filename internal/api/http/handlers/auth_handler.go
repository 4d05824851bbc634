package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/identity-service/internal/api/dto"
	"github.com/spec-kit/identity-service/internal/auth"
	"github.com/spec-kit/identity-service/internal/service"
)

// AuthHandler exposes session endpoints.
type AuthHandler struct {
	auth        *service.AuthService
	invitations *service.InvitationService
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService, invitations *service.InvitationService) *AuthHandler {
	return &AuthHandler{auth: authService, invitations: invitations}
}

// Register handles POST /auth/register.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if req.Email == "" || req.Password == "" {
		return fiber.NewError(http.StatusBadRequest, "email and password required")
	}

	profile, token, exp, err := h.auth.Register(c.UserContext(), req.DisplayName, req.Email, req.Password)
	if err != nil {
		return err
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"data": fiber.Map{
			"profile": dto.FromProfile(profile),
			"auth":    dto.AuthResponse{Token: token, ExpiresAt: exp},
		},
	})
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if req.Email == "" || req.Password == "" {
		return fiber.NewError(http.StatusBadRequest, "email and password required")
	}

	profile, token, exp, err := h.auth.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"profile": dto.FromProfile(profile),
			"auth":    dto.AuthResponse{Token: token, ExpiresAt: exp},
		},
	})
}

// AcceptInvitation handles POST /auth/invitations/accept.
func (h *AuthHandler) AcceptInvitation(c *fiber.Ctx) error {
	var req dto.AcceptInvitationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}

	profile, err := h.invitations.Accept(c.UserContext(), req.Email, req.Token, req.Password)
	if err != nil {
		return err
	}

	token, exp, err := h.auth.SessionFor(profile)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"profile": dto.FromProfile(profile),
			"auth":    dto.AuthResponse{Token: token, ExpiresAt: exp},
		},
	})
}

// Me handles GET /auth/me.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
	}
	return c.JSON(fiber.Map{"data": dto.FromProfile(principal.Profile)})
}
