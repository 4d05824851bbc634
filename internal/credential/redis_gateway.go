package credential

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/identity-service/internal/auth"
	"github.com/spec-kit/identity-service/internal/domain"
	apperrors "github.com/spec-kit/identity-service/pkg/util"
)

const (
	credKeyPrefix  = "cred:"
	emailKeyPrefix = "cred:email:"
)

// redisGateway implements Gateway against the provider's Redis-backed
// credential store. One hash per credential plus an email index; the role
// claim lives in the hash so claims reads skip the profile store entirely.
type redisGateway struct {
	client     *redis.Client
	bcryptCost int
	opTimeout  time.Duration
}

// NewRedisGateway builds the production gateway.
func NewRedisGateway(client *redis.Client, bcryptCost int, opTimeout time.Duration) Gateway {
	if opTimeout <= 0 {
		opTimeout = 2 * time.Second
	}
	return &redisGateway{client: client, bcryptCost: bcryptCost, opTimeout: opTimeout}
}

func (g *redisGateway) Create(ctx context.Context, email, password string) (*domain.CredentialRef, error) {
	ctx, cancel := g.bound(ctx)
	defer cancel()

	hash, err := auth.HashPassword(password, g.bcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	id := uuid.NewString()

	// The email index is the uniqueness guard; SETNX makes concurrent
	// creates for the same address race safely.
	set, err := g.client.SetNX(ctx, emailKeyPrefix+email, id, 0).Result()
	if err != nil {
		return nil, apperrors.NewProviderUnavailable(err)
	}
	if !set {
		return nil, apperrors.NewAlreadyExists("credential", map[string]any{"email": email})
	}

	fields := map[string]any{
		"id":             id,
		"email":          email,
		"password_hash":  hash,
		"email_verified": "0",
		"role":           string(domain.RoleUser),
	}
	if err := g.client.HSet(ctx, credKeyPrefix+id, fields).Err(); err != nil {
		_ = g.client.Del(ctx, emailKeyPrefix+email).Err()
		return nil, apperrors.NewProviderUnavailable(err)
	}

	return &domain.CredentialRef{ID: id, Email: email}, nil
}

func (g *redisGateway) Delete(ctx context.Context, id string) error {
	ctx, cancel := g.bound(ctx)
	defer cancel()

	email, err := g.client.HGet(ctx, credKeyPrefix+id, "email").Result()
	if err == redis.Nil {
		return apperrors.NewNotFound("credential", map[string]any{"id": id})
	}
	if err != nil {
		return apperrors.NewProviderUnavailable(err)
	}

	pipe := g.client.TxPipeline()
	pipe.Del(ctx, credKeyPrefix+id)
	pipe.Del(ctx, emailKeyPrefix+email)
	if _, err := pipe.Exec(ctx); err != nil {
		return apperrors.NewProviderUnavailable(err)
	}
	return nil
}

func (g *redisGateway) GetByEmail(ctx context.Context, email string) (*domain.CredentialRef, error) {
	ctx, cancel := g.bound(ctx)
	defer cancel()

	id, err := g.client.Get(ctx, emailKeyPrefix+email).Result()
	if err == redis.Nil {
		return nil, apperrors.NewNotFound("credential", map[string]any{"email": email})
	}
	if err != nil {
		return nil, apperrors.NewProviderUnavailable(err)
	}
	return g.get(ctx, id)
}

func (g *redisGateway) SetClaims(ctx context.Context, id string, claims domain.Claims) error {
	ctx, cancel := g.bound(ctx)
	defer cancel()

	exists, err := g.client.Exists(ctx, credKeyPrefix+id).Result()
	if err != nil {
		return apperrors.NewProviderUnavailable(err)
	}
	if exists == 0 {
		return apperrors.NewNotFound("credential", map[string]any{"id": id})
	}
	if err := g.client.HSet(ctx, credKeyPrefix+id, "role", string(claims.Role)).Err(); err != nil {
		return apperrors.NewProviderUnavailable(err)
	}
	return nil
}

func (g *redisGateway) GetClaims(ctx context.Context, id string) (domain.Claims, error) {
	ctx, cancel := g.bound(ctx)
	defer cancel()

	role, err := g.client.HGet(ctx, credKeyPrefix+id, "role").Result()
	if err == redis.Nil {
		return domain.Claims{}, apperrors.NewNotFound("credential", map[string]any{"id": id})
	}
	if err != nil {
		return domain.Claims{}, apperrors.NewProviderUnavailable(err)
	}
	return domain.Claims{Role: domain.Role(role)}, nil
}

func (g *redisGateway) VerifyPassword(ctx context.Context, id, password string) error {
	ctx, cancel := g.bound(ctx)
	defer cancel()

	hash, err := g.client.HGet(ctx, credKeyPrefix+id, "password_hash").Result()
	if err == redis.Nil {
		return apperrors.NewNotFound("credential", map[string]any{"id": id})
	}
	if err != nil {
		return apperrors.NewProviderUnavailable(err)
	}
	if err := auth.ComparePassword(hash, password); err != nil {
		return apperrors.NewUnauthorized("invalid credentials")
	}
	return nil
}

func (g *redisGateway) get(ctx context.Context, id string) (*domain.CredentialRef, error) {
	fields, err := g.client.HGetAll(ctx, credKeyPrefix+id).Result()
	if err != nil {
		return nil, apperrors.NewProviderUnavailable(err)
	}
	if len(fields) == 0 {
		return nil, apperrors.NewNotFound("credential", map[string]any{"id": id})
	}
	return &domain.CredentialRef{
		ID:            fields["id"],
		Email:         fields["email"],
		EmailVerified: fields["email_verified"] == "1",
	}, nil
}

func (g *redisGateway) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, g.opTimeout)
}
