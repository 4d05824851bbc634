package service_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/identity-service/internal/domain"
	"github.com/spec-kit/identity-service/internal/service"
	apperrors "github.com/spec-kit/identity-service/pkg/util"
)

func newLifecycle(repo *fakeProfileRepo, gateway *fakeGateway) (*service.LifecycleService, *service.SyncService) {
	logger := zap.NewNop()
	sync := service.NewSyncService(repo, gateway, nil, logger)
	return service.NewLifecycleService(repo, gateway, sync, nil, logger), sync
}

func TestEnsureProfileCreatesWithDefaults(t *testing.T) {
	repo := newFakeProfileRepo()
	gateway := newFakeGateway()
	gateway.seed("cred-1", "alice@example.org", "pw", domain.RoleGuest)
	lifecycle, _ := newLifecycle(repo, gateway)

	profile, err := lifecycle.EnsureProfile(context.Background(), &domain.CredentialRef{ID: "cred-1", Email: "alice@example.org"}, "Alice")
	require.NoError(t, err)

	assert.Equal(t, "cred-1", profile.ID)
	assert.Equal(t, domain.RoleUser, profile.Role)
	assert.Equal(t, domain.ProfileStatusActive, profile.Status)
	require.NotNil(t, profile.LastLogin)

	claims, ok := gateway.claimsFor("cred-1")
	require.True(t, ok)
	assert.Equal(t, domain.RoleUser, claims.Role)
}

func TestEnsureProfileConcurrentCallsCreateOne(t *testing.T) {
	repo := newFakeProfileRepo()
	gateway := newFakeGateway()
	gateway.seed("cred-1", "alice@example.org", "pw", domain.RoleUser)
	lifecycle, _ := newLifecycle(repo, gateway)

	cred := &domain.CredentialRef{ID: "cred-1", Email: "alice@example.org"}

	var wg sync.WaitGroup
	errs := make([]error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = lifecycle.EnsureProfile(context.Background(), cred, "")
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, 1, repo.count())

	profile, err := repo.GetByID(context.Background(), "cred-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, profile.Role)
	assert.Equal(t, domain.ProfileStatusActive, profile.Status)
}

func TestEnsureProfileStoreFailureAborts(t *testing.T) {
	repo := newFakeProfileRepo()
	repo.failAll = true
	gateway := newFakeGateway()
	lifecycle, _ := newLifecycle(repo, gateway)

	_, err := lifecycle.EnsureProfile(context.Background(), &domain.CredentialRef{ID: "cred-1", Email: "a@b.c"}, "")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeStoreUnavailable))
	assert.Zero(t, gateway.setClaimsCall, "claims must not be touched when the store write fails")
}

func TestEnsureProfileClaimsFailureIsNotFatal(t *testing.T) {
	repo := newFakeProfileRepo()
	gateway := newFakeGateway()
	gateway.seed("cred-1", "alice@example.org", "pw", domain.RoleGuest)
	gateway.failSetClaims = true
	lifecycle, _ := newLifecycle(repo, gateway)

	profile, err := lifecycle.EnsureProfile(context.Background(), &domain.CredentialRef{ID: "cred-1", Email: "alice@example.org"}, "")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, profile.Role)
	assert.Equal(t, 1, repo.count())
}

func TestSetRolePartialSuccessThenRepairedBySync(t *testing.T) {
	repo := newFakeProfileRepo()
	gateway := newFakeGateway()
	gateway.seed("cred-1", "alice@example.org", "pw", domain.RoleUser)
	lifecycle, syncService := newLifecycle(repo, gateway)

	_, err := lifecycle.EnsureProfile(context.Background(), &domain.CredentialRef{ID: "cred-1", Email: "alice@example.org"}, "")
	require.NoError(t, err)

	gateway.failSetClaims = true
	profile, err := lifecycle.SetRole(context.Background(), "cred-1", domain.RoleEditor)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodePartialSuccess))
	assert.Equal(t, domain.RoleEditor, profile.Role)

	stored, err := repo.GetByID(context.Background(), "cred-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleEditor, stored.Role, "stored role must be durable despite claims failure")

	claims, _ := gateway.claimsFor("cred-1")
	assert.NotEqual(t, domain.RoleEditor, claims.Role, "claim still stale")

	// Provider recovers; the next pass converges claims on the stored role.
	gateway.failSetClaims = false
	report, err := syncService.Reconcile(context.Background(), "cred-1")
	require.NoError(t, err)
	assert.True(t, report.Drift)
	assert.True(t, report.Repaired)

	claims, _ = gateway.claimsFor("cred-1")
	assert.Equal(t, domain.RoleEditor, claims.Role)
}

func TestSetRoleUnknownProfile(t *testing.T) {
	repo := newFakeProfileRepo()
	gateway := newFakeGateway()
	lifecycle, _ := newLifecycle(repo, gateway)

	_, err := lifecycle.SetRole(context.Background(), "missing", domain.RoleAdmin)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}

func TestSetStatusPropagates(t *testing.T) {
	repo := newFakeProfileRepo()
	gateway := newFakeGateway()
	gateway.seed("cred-1", "alice@example.org", "pw", domain.RoleUser)
	lifecycle, _ := newLifecycle(repo, gateway)

	_, err := lifecycle.EnsureProfile(context.Background(), &domain.CredentialRef{ID: "cred-1", Email: "alice@example.org"}, "")
	require.NoError(t, err)

	profile, err := lifecycle.SetStatus(context.Background(), "cred-1", domain.ProfileStatusBlocked)
	require.NoError(t, err)
	assert.Equal(t, domain.ProfileStatusBlocked, profile.Status)
}

func TestDeleteUserCredentialFailureLeavesProfile(t *testing.T) {
	repo := newFakeProfileRepo()
	gateway := newFakeGateway()
	gateway.seed("cred-1", "alice@example.org", "pw", domain.RoleUser)
	lifecycle, _ := newLifecycle(repo, gateway)

	_, err := lifecycle.EnsureProfile(context.Background(), &domain.CredentialRef{ID: "cred-1", Email: "alice@example.org"}, "")
	require.NoError(t, err)

	gateway.failDelete = true
	err = lifecycle.DeleteUser(context.Background(), "cred-1")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeProviderUnavailable))

	_, err = repo.GetByID(context.Background(), "cred-1")
	assert.NoError(t, err, "profile must survive a failed credential deletion")
	assert.True(t, gateway.hasCredential("cred-1"))
}

func TestDeleteUserRemovesBothSides(t *testing.T) {
	repo := newFakeProfileRepo()
	gateway := newFakeGateway()
	gateway.seed("cred-1", "alice@example.org", "pw", domain.RoleUser)
	lifecycle, _ := newLifecycle(repo, gateway)

	_, err := lifecycle.EnsureProfile(context.Background(), &domain.CredentialRef{ID: "cred-1", Email: "alice@example.org"}, "")
	require.NoError(t, err)

	require.NoError(t, lifecycle.DeleteUser(context.Background(), "cred-1"))
	assert.Zero(t, repo.count())
	assert.False(t, gateway.hasCredential("cred-1"))
}

func TestDeleteUserWithoutCredential(t *testing.T) {
	// Invitation-created profiles have no credential yet; deletion must
	// still reap them.
	repo := newFakeProfileRepo()
	gateway := newFakeGateway()
	lifecycle, _ := newLifecycle(repo, gateway)

	token := "tok"
	inviter := "admin-1"
	created, err := repo.CreateIfAbsent(context.Background(), &domain.Profile{
		ID:              "surrogate-1",
		Email:           "invitee@example.org",
		Role:            domain.RoleAuthor,
		Status:          domain.ProfileStatusInvited,
		InvitedBy:       &inviter,
		InvitationToken: &token,
	})
	require.NoError(t, err)
	require.True(t, created)

	require.NoError(t, lifecycle.DeleteUser(context.Background(), "surrogate-1"))
	assert.Zero(t, repo.count())
}

func TestEnsureProfileEmailHeldByInvitation(t *testing.T) {
	repo := newFakeProfileRepo()
	gateway := newFakeGateway()
	gateway.seed("cred-9", "writer@example.org", "pw", domain.RoleUser)
	lifecycle, _ := newLifecycle(repo, gateway)

	token := "tok"
	inviter := "admin-1"
	created, err := repo.CreateIfAbsent(context.Background(), &domain.Profile{
		ID:              "surrogate-1",
		Email:           "writer@example.org",
		Role:            domain.RoleAuthor,
		Status:          domain.ProfileStatusInvited,
		InvitedBy:       &inviter,
		InvitationToken: &token,
	})
	require.NoError(t, err)
	require.True(t, created)

	// The insert loses to the invited row's email; the caller must learn
	// who occupies the address, not get a phantom NOT_FOUND.
	_, err = lifecycle.EnsureProfile(context.Background(), &domain.CredentialRef{ID: "cred-9", Email: "writer@example.org"}, "")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeAlreadyExists))
	assert.Equal(t, 1, repo.count(), "the invited profile stays the only record")
}

func TestEnsureProfileRefreshPreservesConcurrentRoleChange(t *testing.T) {
	repo := newFakeProfileRepo()
	gateway := newFakeGateway()
	gateway.seed("cred-1", "alice@example.org", "pw", domain.RoleUser)
	lifecycle, _ := newLifecycle(repo, gateway)

	cred := &domain.CredentialRef{ID: "cred-1", Email: "alice@example.org"}
	_, err := lifecycle.EnsureProfile(context.Background(), cred, "")
	require.NoError(t, err)

	// An administrator promotes the profile between the login's read and
	// its lastLogin refresh.
	repo.afterGet = func() {
		repo.afterGet = nil
		stored, err := repo.GetByID(context.Background(), "cred-1")
		require.NoError(t, err)
		stored.Role = domain.RoleEditor
		require.NoError(t, repo.Update(context.Background(), stored))
	}

	_, err = lifecycle.EnsureProfile(context.Background(), cred, "")
	require.NoError(t, err)

	stored, err := repo.GetByID(context.Background(), "cred-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleEditor, stored.Role, "login bookkeeping must not revert the promotion")
	require.NotNil(t, stored.LastLogin)
}
