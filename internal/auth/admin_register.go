package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/corpalert/corpalert-backend/internal/users"
	"github.com/corpalert/corpalert-backend/pkg/config"
	"github.com/corpalert/corpalert-backend/pkg/enums"
	pkgerrors "github.com/corpalert/corpalert-backend/pkg/errors"
	"github.com/corpalert/corpalert-backend/pkg/security"
	"gorm.io/gorm"
)

// AdminSeeder makes sure the configured administrator account exists.
type AdminSeeder interface {
	EnsureAdmin(ctx context.Context, cfg config.AdminConfig) (*users.UserDTO, bool, error)
}

// AdminSeederParams names the dependencies for the admin seeding flow.
type AdminSeederParams struct {
	DB             txRunner
	PasswordConfig config.PasswordConfig
}

type adminSeeder struct {
	db          txRunner
	passwordCfg config.PasswordConfig
}

// NewAdminSeeder builds an admin seeder.
func NewAdminSeeder(params AdminSeederParams) (AdminSeeder, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "database client required")
	}
	return &adminSeeder{
		db:          params.DB,
		passwordCfg: params.PasswordConfig,
	}, nil
}

// EnsureAdmin creates the admin when no account holds the email yet. The bool
// reports whether a row was created. An existing non-admin account is a conflict.
func (s *adminSeeder) EnsureAdmin(ctx context.Context, cfg config.AdminConfig) (*users.UserDTO, bool, error) {
	email := users.NormalizeEmail(cfg.Email)
	if email == "" || cfg.Password == "" {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "admin email and password are required")
	}
	firstName := strings.TrimSpace(cfg.FirstName)
	lastName := strings.TrimSpace(cfg.LastName)
	if firstName == "" || lastName == "" {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "admin first and last name are required")
	}

	var (
		out     *users.UserDTO
		created bool
	)
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		userRepo := users.NewRepository(tx)

		existing, err := userRepo.FindByEmail(ctx, email)
		switch {
		case err == nil:
			if existing.Role != enums.RoleAdmin {
				return pkgerrors.New(pkgerrors.CodeConflict, "email belongs to a non-admin account")
			}
			out = users.FromModel(existing)
			return nil
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check admin email")
		}

		passwordHash, err := security.HashPassword(cfg.Password, s.passwordCfg)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
		}
		user, err := userRepo.Create(ctx, users.CreateUserDTO{
			Email:        email,
			PasswordHash: passwordHash,
			FirstName:    firstName,
			LastName:     lastName,
			Role:         enums.RoleAdmin,
			IsApproved:   true,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create admin")
		}
		out = users.FromModel(user)
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, created, nil
}
