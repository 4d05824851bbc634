package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/identity-service/internal/domain"
	apperrors "github.com/spec-kit/identity-service/pkg/util"
)

// ProfileRepository defines persistence access for profiles. The store is
// the source of truth for role and status; claims held by the identity
// provider mirror it with lag. Missing rows surface as NOT_FOUND domain
// errors; the pgx error types never cross this boundary.
type ProfileRepository interface {
	// CreateIfAbsent inserts the profile unless a row with the same id or
	// email already exists. It reports whether a row was created, closing
	// the check-then-act race between concurrent creators.
	CreateIfAbsent(ctx context.Context, profile *domain.Profile) (bool, error)
	GetByID(ctx context.Context, id string) (*domain.Profile, error)
	GetByEmail(ctx context.Context, email string) (*domain.Profile, error)
	Update(ctx context.Context, profile *domain.Profile) error
	// TouchLastLogin refreshes only the login bookkeeping columns. Login
	// paths must use this instead of Update so they cannot clobber a role
	// or status change racing in from an administrator.
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
	// AcceptByToken atomically consumes an invitation: the row matching
	// email+token in INVITED state is rebound to credentialID with the
	// given role, activated, and its token cleared. Returns NOT_FOUND
	// when no such row exists, which includes already-consumed tokens.
	AcceptByToken(ctx context.Context, email, token, credentialID string, role domain.Role, now time.Time) (*domain.Profile, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*domain.Profile, error)
}

type profileRepository struct {
	pool *pgxpool.Pool
}

// NewProfileRepository returns a Postgres-backed implementation.
func NewProfileRepository(pool *pgxpool.Pool) ProfileRepository {
	return &profileRepository{pool: pool}
}

const profileColumns = `id, email, display_name, photo_url, role, status,
        invited_by, invitation_token, email_verified, last_login, created_at, updated_at`

func (r *profileRepository) CreateIfAbsent(ctx context.Context, profile *domain.Profile) (bool, error) {
	const query = `
        INSERT INTO profiles (id, email, display_name, photo_url, role, status,
            invited_by, invitation_token, email_verified, last_login, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
        ON CONFLICT DO NOTHING`

	cmd, err := r.pool.Exec(ctx, query,
		profile.ID,
		profile.Email,
		profile.DisplayName,
		profile.PhotoURL,
		profile.Role,
		profile.Status,
		profile.InvitedBy,
		profile.InvitationToken,
		profile.EmailVerified,
		profile.LastLogin,
		profile.CreatedAt,
		profile.UpdatedAt,
	)
	if err != nil {
		return false, mapStoreError(err)
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *profileRepository) GetByID(ctx context.Context, id string) (*domain.Profile, error) {
	const query = `SELECT ` + profileColumns + ` FROM profiles WHERE id=$1`
	return r.scanOne(r.pool.QueryRow(ctx, query, id), map[string]any{"id": id})
}

func (r *profileRepository) GetByEmail(ctx context.Context, email string) (*domain.Profile, error) {
	const query = `SELECT ` + profileColumns + ` FROM profiles WHERE email=$1`
	return r.scanOne(r.pool.QueryRow(ctx, query, email), map[string]any{"email": email})
}

func (r *profileRepository) Update(ctx context.Context, profile *domain.Profile) error {
	const query = `
        UPDATE profiles
        SET email=$1, display_name=$2, photo_url=$3, role=$4, status=$5,
            invited_by=$6, invitation_token=$7, email_verified=$8, last_login=$9, updated_at=$10
        WHERE id=$11`

	cmd, err := r.pool.Exec(ctx, query,
		profile.Email,
		profile.DisplayName,
		profile.PhotoURL,
		profile.Role,
		profile.Status,
		profile.InvitedBy,
		profile.InvitationToken,
		profile.EmailVerified,
		profile.LastLogin,
		profile.UpdatedAt,
		profile.ID,
	)
	if err != nil {
		return mapStoreError(err)
	}
	if cmd.RowsAffected() == 0 {
		return apperrors.NewNotFound("profile", map[string]any{"id": profile.ID})
	}
	return nil
}

func (r *profileRepository) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE profiles SET last_login=$1, updated_at=$2 WHERE id=$3`

	cmd, err := r.pool.Exec(ctx, query, at, at, id)
	if err != nil {
		return mapStoreError(err)
	}
	if cmd.RowsAffected() == 0 {
		return apperrors.NewNotFound("profile", map[string]any{"id": id})
	}
	return nil
}

func (r *profileRepository) AcceptByToken(ctx context.Context, email, token, credentialID string, role domain.Role, now time.Time) (*domain.Profile, error) {
	const query = `
        UPDATE profiles
        SET id=$1, role=$2, status=$3, invitation_token=NULL, email_verified=TRUE, updated_at=$4
        WHERE email=$5 AND invitation_token=$6 AND status=$7
        RETURNING ` + profileColumns

	return r.scanOne(r.pool.QueryRow(ctx, query,
		credentialID,
		role,
		domain.ProfileStatusActive,
		now,
		email,
		token,
		domain.ProfileStatusInvited,
	), map[string]any{"email": email})
}

func (r *profileRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM profiles WHERE id=$1`, id)
	if err != nil {
		return mapStoreError(err)
	}
	if cmd.RowsAffected() == 0 {
		return apperrors.NewNotFound("profile", map[string]any{"id": id})
	}
	return nil
}

func (r *profileRepository) List(ctx context.Context) ([]*domain.Profile, error) {
	const query = `SELECT ` + profileColumns + ` FROM profiles ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, mapStoreError(err)
	}
	defer rows.Close()

	var profiles []*domain.Profile
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, profile)
	}
	if err := rows.Err(); err != nil {
		return nil, mapStoreError(err)
	}
	return profiles, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *profileRepository) scanOne(row pgx.Row, details map[string]any) (*domain.Profile, error) {
	profile, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("profile", details)
		}
		return nil, err
	}
	return profile, nil
}

func scanProfile(row rowScanner) (*domain.Profile, error) {
	var profile domain.Profile
	if err := row.Scan(
		&profile.ID,
		&profile.Email,
		&profile.DisplayName,
		&profile.PhotoURL,
		&profile.Role,
		&profile.Status,
		&profile.InvitedBy,
		&profile.InvitationToken,
		&profile.EmailVerified,
		&profile.LastLogin,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pgx.ErrNoRows
		}
		return nil, mapStoreError(err)
	}
	return &profile, nil
}

// mapStoreError classifies store failures: unique violations become
// AlreadyExists, anything else is StoreUnavailable.
func mapStoreError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return apperrors.NewAlreadyExists("profile", map[string]any{"constraint": pgErr.ConstraintName})
	}
	return apperrors.NewStoreUnavailable(err)
}
