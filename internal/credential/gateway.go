package credential

import (
	"context"

	"github.com/spec-kit/identity-service/internal/domain"
)

// Gateway wraps the external identity provider. Every call is a remote
// call with availability independent of the profile store; callers must
// tolerate one side failing after the other succeeded.
type Gateway interface {
	// Create registers a credential for the email. Fails with
	// ALREADY_EXISTS when the email is already bound.
	Create(ctx context.Context, email, password string) (*domain.CredentialRef, error)
	// Delete removes the credential. Fails with NOT_FOUND when absent.
	Delete(ctx context.Context, id string) error
	GetByEmail(ctx context.Context, email string) (*domain.CredentialRef, error)
	// SetClaims overwrites the out-of-band claims attached to the
	// credential. Fails with NOT_FOUND or PROVIDER_UNAVAILABLE.
	SetClaims(ctx context.Context, id string, claims domain.Claims) error
	GetClaims(ctx context.Context, id string) (domain.Claims, error)
	// VerifyPassword checks a login attempt against the stored secret.
	VerifyPassword(ctx context.Context, id, password string) error
}
