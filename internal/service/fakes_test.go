package service_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/identity-service/internal/domain"
	apperrors "github.com/spec-kit/identity-service/pkg/util"
)

// fakeProfileRepo is an in-memory profile store with the same conditional
// write semantics as the Postgres implementation.
type fakeProfileRepo struct {
	mu      sync.Mutex
	rows    map[string]*domain.Profile
	failAll bool
	failDel bool

	// afterGet runs after GetByID returns, outside the lock. Tests use it
	// to interleave a write between a read and the follow-up update.
	afterGet func()
}

func newFakeProfileRepo() *fakeProfileRepo {
	return &fakeProfileRepo{rows: map[string]*domain.Profile{}}
}

func (r *fakeProfileRepo) clone(p *domain.Profile) *domain.Profile {
	cp := *p
	return &cp
}

func (r *fakeProfileRepo) CreateIfAbsent(_ context.Context, profile *domain.Profile) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAll {
		return false, apperrors.NewStoreUnavailable(errors.New("store down"))
	}
	if _, ok := r.rows[profile.ID]; ok {
		return false, nil
	}
	for _, row := range r.rows {
		if row.Email == profile.Email {
			return false, nil
		}
	}
	r.rows[profile.ID] = r.clone(profile)
	return true, nil
}

func (r *fakeProfileRepo) GetByID(_ context.Context, id string) (*domain.Profile, error) {
	r.mu.Lock()
	if r.failAll {
		r.mu.Unlock()
		return nil, apperrors.NewStoreUnavailable(errors.New("store down"))
	}
	row, ok := r.rows[id]
	if !ok {
		r.mu.Unlock()
		return nil, apperrors.NewNotFound("profile", map[string]any{"id": id})
	}
	result := r.clone(row)
	r.mu.Unlock()
	if r.afterGet != nil {
		r.afterGet()
	}
	return result, nil
}

func (r *fakeProfileRepo) GetByEmail(_ context.Context, email string) (*domain.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAll {
		return nil, apperrors.NewStoreUnavailable(errors.New("store down"))
	}
	for _, row := range r.rows {
		if row.Email == email {
			return r.clone(row), nil
		}
	}
	return nil, apperrors.NewNotFound("profile", map[string]any{"email": email})
}

func (r *fakeProfileRepo) Update(_ context.Context, profile *domain.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAll {
		return apperrors.NewStoreUnavailable(errors.New("store down"))
	}
	if _, ok := r.rows[profile.ID]; !ok {
		return apperrors.NewNotFound("profile", map[string]any{"id": profile.ID})
	}
	r.rows[profile.ID] = r.clone(profile)
	return nil
}

func (r *fakeProfileRepo) TouchLastLogin(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAll {
		return apperrors.NewStoreUnavailable(errors.New("store down"))
	}
	row, ok := r.rows[id]
	if !ok {
		return apperrors.NewNotFound("profile", map[string]any{"id": id})
	}
	touched := at
	row.LastLogin = &touched
	row.UpdatedAt = at
	return nil
}

func (r *fakeProfileRepo) AcceptByToken(_ context.Context, email, token, credentialID string, role domain.Role, now time.Time) (*domain.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAll {
		return nil, apperrors.NewStoreUnavailable(errors.New("store down"))
	}
	for id, row := range r.rows {
		if row.Email != email || row.Status != domain.ProfileStatusInvited {
			continue
		}
		if row.InvitationToken == nil || *row.InvitationToken != token {
			continue
		}
		updated := r.clone(row)
		updated.ID = credentialID
		updated.Role = role
		updated.Status = domain.ProfileStatusActive
		updated.InvitationToken = nil
		updated.EmailVerified = true
		updated.UpdatedAt = now
		delete(r.rows, id)
		r.rows[credentialID] = updated
		return r.clone(updated), nil
	}
	return nil, apperrors.NewNotFound("profile", map[string]any{"email": email})
}

func (r *fakeProfileRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAll || r.failDel {
		return apperrors.NewStoreUnavailable(errors.New("store down"))
	}
	if _, ok := r.rows[id]; !ok {
		return apperrors.NewNotFound("profile", map[string]any{"id": id})
	}
	delete(r.rows, id)
	return nil
}

func (r *fakeProfileRepo) List(_ context.Context) ([]*domain.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAll {
		return nil, apperrors.NewStoreUnavailable(errors.New("store down"))
	}
	out := make([]*domain.Profile, 0, len(r.rows))
	for _, row := range r.rows {
		out = append(out, r.clone(row))
	}
	return out, nil
}

func (r *fakeProfileRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

type fakeCredential struct {
	email    string
	password string
	claims   domain.Claims
}

// fakeGateway is an in-memory identity provider with switchable failures
// per operation to simulate its independent availability.
type fakeGateway struct {
	mu            sync.Mutex
	creds         map[string]*fakeCredential
	byEmail       map[string]string
	failSetClaims bool
	failDelete    bool
	setClaimsCall int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{creds: map[string]*fakeCredential{}, byEmail: map[string]string{}}
}

func (g *fakeGateway) seed(id, email, password string, role domain.Role) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.creds[id] = &fakeCredential{email: email, password: password, claims: domain.Claims{Role: role}}
	g.byEmail[email] = id
}

func (g *fakeGateway) Create(_ context.Context, email, password string) (*domain.CredentialRef, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.byEmail[email]; ok {
		return nil, apperrors.NewAlreadyExists("credential", map[string]any{"email": email})
	}
	id := uuid.NewString()
	g.creds[id] = &fakeCredential{email: email, password: password, claims: domain.Claims{Role: domain.RoleUser}}
	g.byEmail[email] = id
	return &domain.CredentialRef{ID: id, Email: email}, nil
}

func (g *fakeGateway) Delete(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failDelete {
		return apperrors.NewProviderUnavailable(errors.New("provider down"))
	}
	cred, ok := g.creds[id]
	if !ok {
		return apperrors.NewNotFound("credential", map[string]any{"id": id})
	}
	delete(g.byEmail, cred.email)
	delete(g.creds, id)
	return nil
}

func (g *fakeGateway) GetByEmail(_ context.Context, email string) (*domain.CredentialRef, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id, ok := g.byEmail[email]
	if !ok {
		return nil, apperrors.NewNotFound("credential", map[string]any{"email": email})
	}
	return &domain.CredentialRef{ID: id, Email: email}, nil
}

func (g *fakeGateway) SetClaims(_ context.Context, id string, claims domain.Claims) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.setClaimsCall++
	if g.failSetClaims {
		return apperrors.NewProviderUnavailable(errors.New("provider down"))
	}
	cred, ok := g.creds[id]
	if !ok {
		return apperrors.NewNotFound("credential", map[string]any{"id": id})
	}
	cred.claims = claims
	return nil
}

func (g *fakeGateway) GetClaims(_ context.Context, id string) (domain.Claims, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	cred, ok := g.creds[id]
	if !ok {
		return domain.Claims{}, apperrors.NewNotFound("credential", map[string]any{"id": id})
	}
	return cred.claims, nil
}

func (g *fakeGateway) VerifyPassword(_ context.Context, id, password string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	cred, ok := g.creds[id]
	if !ok {
		return apperrors.NewNotFound("credential", map[string]any{"id": id})
	}
	if cred.password != password {
		return apperrors.NewUnauthorized("invalid credentials")
	}
	return nil
}

func (g *fakeGateway) claimsFor(id string) (domain.Claims, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	cred, ok := g.creds[id]
	if !ok {
		return domain.Claims{}, false
	}
	return cred.claims, true
}

func (g *fakeGateway) hasCredential(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.creds[id]
	return ok
}

// fakeNotifier records deliveries and can be told to fail.
type fakeNotifier struct {
	mu   sync.Mutex
	sent []string
	fail bool
}

func (n *fakeNotifier) SendInvitation(_ context.Context, email, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return errors.New("smtp unreachable")
	}
	n.sent = append(n.sent, email+":"+token)
	return nil
}
