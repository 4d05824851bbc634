package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/identity-service/internal/auth"
	"github.com/spec-kit/identity-service/internal/domain"
	apperrors "github.com/spec-kit/identity-service/pkg/util"
)

// stubRepo serves a single profile by id.
type stubRepo struct {
	profile *domain.Profile
}

func (s *stubRepo) CreateIfAbsent(context.Context, *domain.Profile) (bool, error) {
	return false, nil
}

func (s *stubRepo) GetByID(_ context.Context, id string) (*domain.Profile, error) {
	if s.profile == nil || s.profile.ID != id {
		return nil, apperrors.NewNotFound("profile", map[string]any{"id": id})
	}
	cp := *s.profile
	return &cp, nil
}

func (s *stubRepo) GetByEmail(context.Context, string) (*domain.Profile, error) {
	return nil, apperrors.NewNotFound("profile", nil)
}

func (s *stubRepo) Update(context.Context, *domain.Profile) error { return nil }

func (s *stubRepo) TouchLastLogin(context.Context, string, time.Time) error { return nil }

func (s *stubRepo) AcceptByToken(context.Context, string, string, string, domain.Role, time.Time) (*domain.Profile, error) {
	return nil, apperrors.NewNotFound("profile", nil)
}

func (s *stubRepo) Delete(context.Context, string) error { return nil }

func (s *stubRepo) List(context.Context) ([]*domain.Profile, error) {
	return nil, nil
}

func middlewareApp(t *testing.T, tm *auth.TokenManager, profile *domain.Profile) *fiber.App {
	t.Helper()
	app := newGateTestApp()
	mw := auth.NewAuthMiddleware(tm, &stubRepo{profile: profile})
	app.Get("/", mw.Handle, func(c *fiber.Ctx) error {
		principal, ok := auth.PrincipalFromContext(c)
		require.True(t, ok)
		return c.JSON(fiber.Map{"role": principal.StoredRole()})
	})
	return app
}

func TestAuthMiddlewareLoadsStoredRole(t *testing.T) {
	tm := auth.NewTokenManager("secret", 5)
	// Token was issued when the role claim said USER; the store has since
	// promoted the profile.
	token, _, err := tm.GenerateToken("cred-1", "alice@example.org", domain.RoleUser)
	require.NoError(t, err)

	profile := &domain.Profile{ID: "cred-1", Email: "alice@example.org", Role: domain.RoleAdmin, Status: domain.ProfileStatusActive}
	app := middlewareApp(t, tm, profile)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestAuthMiddlewareRejectsMissingHeader(t *testing.T) {
	tm := auth.NewTokenManager("secret", 5)
	app := middlewareApp(t, tm, nil)

	res, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestAuthMiddlewareRejectsBlockedProfile(t *testing.T) {
	tm := auth.NewTokenManager("secret", 5)
	token, _, err := tm.GenerateToken("cred-1", "alice@example.org", domain.RoleUser)
	require.NoError(t, err)

	profile := &domain.Profile{ID: "cred-1", Email: "alice@example.org", Role: domain.RoleUser, Status: domain.ProfileStatusBlocked}
	app := middlewareApp(t, tm, profile)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
}

func TestAuthMiddlewareRejectsUnknownIdentity(t *testing.T) {
	tm := auth.NewTokenManager("secret", 5)
	token, _, err := tm.GenerateToken("cred-404", "ghost@example.org", domain.RoleUser)
	require.NoError(t, err)

	app := middlewareApp(t, tm, nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}
