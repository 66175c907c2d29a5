package admin

import (
	"context"
	"testing"

	"github.com/corpalert/corpalert-backend/internal/testdb"
	"github.com/corpalert/corpalert-backend/internal/users"
	"github.com/corpalert/corpalert-backend/pkg/db/models"
	"github.com/corpalert/corpalert-backend/pkg/enums"
	pkgerrors "github.com/corpalert/corpalert-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (Service, *users.Repository) {
	t.Helper()
	repo := users.NewRepository(testdb.Open(t).DB())
	svc, err := NewService(repo)
	require.NoError(t, err)
	return svc, repo
}

func create(t *testing.T, repo *users.Repository, role enums.Role, email string, approved bool) *models.User {
	t.Helper()
	user, err := repo.Create(context.Background(), users.CreateUserDTO{
		Email: email, PasswordHash: "hash", FirstName: "F", LastName: "L", Role: role, IsApproved: approved,
	})
	require.NoError(t, err)
	return user
}

func TestListUsersHidesAdmins(t *testing.T) {
	svc, repo := setup(t)
	create(t, repo, enums.RoleAdmin, "admin@example.com", true)
	create(t, repo, enums.RoleFarmer, "farmer@example.com", true)
	create(t, repo, enums.RoleAgronomist, "agro@example.com", false)

	listed, err := svc.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, listed, 2)
	for _, u := range listed {
		assert.NotEqual(t, enums.RoleAdmin, u.Role)
	}
}

func TestDeleteUser(t *testing.T) {
	svc, repo := setup(t)
	ctx := context.Background()
	adminUser := create(t, repo, enums.RoleAdmin, "admin@example.com", true)
	farmer := create(t, repo, enums.RoleFarmer, "farmer@example.com", true)

	assert.True(t, pkgerrors.IsCode(svc.DeleteUser(ctx, adminUser.ID), pkgerrors.CodeForbidden))
	assert.True(t, pkgerrors.IsCode(svc.DeleteUser(ctx, uuid.New()), pkgerrors.CodeNotFound))

	require.NoError(t, svc.DeleteUser(ctx, farmer.ID))
	_, err := repo.FindByID(ctx, farmer.ID)
	assert.Error(t, err)
}

func TestApproveUser(t *testing.T) {
	svc, repo := setup(t)
	ctx := context.Background()
	agro := create(t, repo, enums.RoleAgronomist, "agro@example.com", false)
	farmer := create(t, repo, enums.RoleFarmer, "farmer@example.com", true)

	approved, err := svc.ApproveUser(ctx, agro.ID)
	require.NoError(t, err)
	assert.True(t, approved.IsApproved)

	_, err = svc.ApproveUser(ctx, agro.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.ApproveUser(ctx, farmer.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.ApproveUser(ctx, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
