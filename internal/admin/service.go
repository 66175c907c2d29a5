// Package admin implements account moderation for administrators.
package admin

import (
	"context"
	"errors"

	"github.com/corpalert/corpalert-backend/internal/users"
	"github.com/corpalert/corpalert-backend/pkg/db/models"
	"github.com/corpalert/corpalert-backend/pkg/enums"
	pkgerrors "github.com/corpalert/corpalert-backend/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Service interface {
	ListUsers(ctx context.Context) ([]users.UserDTO, error)
	DeleteUser(ctx context.Context, id uuid.UUID) error
	ApproveUser(ctx context.Context, id uuid.UUID) (*users.UserDTO, error)
}

type repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	ListExcludingRole(ctx context.Context, role enums.Role) ([]models.User, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	Approve(ctx context.Context, id uuid.UUID) (bool, error)
}

type service struct {
	repo repository
}

func NewService(repo repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "users repository required")
	}
	return &service{repo: repo}, nil
}

// ListUsers returns every non-admin account.
func (s *service) ListUsers(ctx context.Context) ([]users.UserDTO, error) {
	rows, err := s.repo.ListExcludingRole(ctx, enums.RoleAdmin)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list users")
	}
	out := make([]users.UserDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *users.FromModel(&rows[i]))
	}
	return out, nil
}

func (s *service) DeleteUser(ctx context.Context, id uuid.UUID) error {
	user, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if user.Role == enums.RoleAdmin {
		return pkgerrors.New(pkgerrors.CodeForbidden, "cannot delete admin user")
	}
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete user")
	}
	if !deleted {
		return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}
	return nil
}

func (s *service) ApproveUser(ctx context.Context, id uuid.UUID) (*users.UserDTO, error) {
	user, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.Role != enums.RoleAgronomist {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "only agronomist users can be approved")
	}
	if user.IsApproved {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user is already approved")
	}
	changed, err := s.repo.Approve(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "approve user")
	}
	if !changed {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user is already approved")
	}
	user.IsApproved = true
	return users.FromModel(user), nil
}

func (s *service) find(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
	}
	return user, nil
}
