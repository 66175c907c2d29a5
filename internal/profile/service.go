// Package profile serves the signed-in user's own account.
package profile

import (
	"context"
	"errors"
	"strings"

	"github.com/corpalert/corpalert-backend/internal/users"
	"github.com/corpalert/corpalert-backend/pkg/config"
	"github.com/corpalert/corpalert-backend/pkg/db/models"
	"github.com/corpalert/corpalert-backend/pkg/enums"
	pkgerrors "github.com/corpalert/corpalert-backend/pkg/errors"
	"github.com/corpalert/corpalert-backend/pkg/security"
	"github.com/corpalert/corpalert-backend/pkg/types"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UpdateRequest carries the editable profile fields. Crops are ignored unless the user farms.
type UpdateRequest struct {
	FirstName       *string               `json:"first_name,omitempty" validate:"omitempty,min=1,max=50"`
	LastName        *string               `json:"last_name,omitempty" validate:"omitempty,min=1,max=50"`
	Location        *types.GeographyPoint `json:"location,omitempty"`
	SubscribedCrops *[]string             `json:"subscribed_crops,omitempty"`
}

func (r UpdateRequest) isEmpty() bool {
	return r.FirstName == nil && r.LastName == nil && r.Location == nil && r.SubscribedCrops == nil
}

// ChangePasswordRequest is the body of the password endpoint.
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8"`
}

type Service interface {
	Get(ctx context.Context, userID uuid.UUID) (*types.UserProfile, error)
	Update(ctx context.Context, userID uuid.UUID, req UpdateRequest) (*types.UserProfile, error)
	ChangePassword(ctx context.Context, userID uuid.UUID, req ChangePasswordRequest) error
}

type repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, dto users.UpdateProfileDTO) (bool, error)
	UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error
}

type service struct {
	repo        repository
	passwordCfg config.PasswordConfig
}

func NewService(repo repository, passwordCfg config.PasswordConfig) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "users repository required")
	}
	return &service{repo: repo, passwordCfg: passwordCfg}, nil
}

func (s *service) Get(ctx context.Context, userID uuid.UUID) (*types.UserProfile, error) {
	user, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	profile := user.ToProfile()
	return &profile, nil
}

func (s *service) Update(ctx context.Context, userID uuid.UUID, req UpdateRequest) (*types.UserProfile, error) {
	if req.isEmpty() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no input data provided")
	}
	user, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	dto := users.UpdateProfileDTO{Location: req.Location}
	if req.FirstName != nil {
		v := strings.TrimSpace(*req.FirstName)
		if v == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "first_name cannot be blank")
		}
		dto.FirstName = &v
	}
	if req.LastName != nil {
		v := strings.TrimSpace(*req.LastName)
		if v == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "last_name cannot be blank")
		}
		dto.LastName = &v
	}
	if req.Location != nil {
		if err := req.Location.Validate(); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid location")
		}
	}
	if req.SubscribedCrops != nil && user.Role == enums.RoleFarmer {
		crops := users.NormalizeCrops(*req.SubscribedCrops)
		dto.SubscribedCrops = &crops
	}

	found, err := s.repo.UpdateProfile(ctx, userID, dto)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to update profile")
	}
	if !found {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}
	return s.Get(ctx, userID)
}

func (s *service) ChangePassword(ctx context.Context, userID uuid.UUID, req ChangePasswordRequest) error {
	user, err := s.load(ctx, userID)
	if err != nil {
		return err
	}
	ok, err := security.VerifyPassword(req.OldPassword, user.PasswordHash)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "old password is incorrect")
	}
	if err := security.CheckPasswordPolicy(req.NewPassword); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error()).
			WithDetails(map[string]string{"new_password": err.Error()})
	}
	hash, err := security.HashPassword(req.NewPassword, s.passwordCfg)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}
	if err := s.repo.UpdatePasswordHash(ctx, userID, hash); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to update password")
	}
	return nil
}

func (s *service) load(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing user")
	}
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
	}
	return user, nil
}
