package users

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/corpalert/corpalert-backend/pkg/db/models"
	dbtypes "github.com/corpalert/corpalert-backend/pkg/db/types"
	"github.com/corpalert/corpalert-backend/pkg/enums"
	"github.com/corpalert/corpalert-backend/pkg/types"
)

// UserDTO is the admin-facing shape: the public profile plus account timestamps.
type UserDTO struct {
	types.UserProfile
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// CreateUserDTO holds the data required by the repo to persist a new user.
type CreateUserDTO struct {
	Email           string
	PasswordHash    string
	FirstName       string
	LastName        string
	Role            enums.Role
	IsApproved      bool
	SubscribedCrops []string
	Location        *types.GeographyPoint
}

// UpdateProfileDTO lists the profile columns a user may change. Nil fields are skipped.
type UpdateProfileDTO struct {
	FirstName       *string
	LastName        *string
	Location        *types.GeographyPoint
	SubscribedCrops *[]string
}

func (u UpdateProfileDTO) columns() map[string]any {
	cols := map[string]any{}
	if u.FirstName != nil {
		cols["first_name"] = *u.FirstName
	}
	if u.LastName != nil {
		cols["last_name"] = *u.LastName
	}
	if u.Location != nil {
		cols["location"] = *u.Location
	}
	if u.SubscribedCrops != nil {
		cols["subscribed_crops"] = dbtypes.StringArray(append([]string{}, (*u.SubscribedCrops)...))
	}
	return cols
}

func FromModel(u *models.User) *UserDTO {
	if u == nil {
		return nil
	}
	return &UserDTO{
		UserProfile: u.ToProfile(),
		LastLoginAt: u.LastLoginAt,
		CreatedAt:   u.CreatedAt,
	}
}

func (c CreateUserDTO) ToModel() *models.User {
	crops := dbtypes.StringArray{}
	if c.SubscribedCrops != nil {
		crops = append(crops, c.SubscribedCrops...)
	}
	var location *types.GeographyPoint
	if c.Location != nil {
		loc := *c.Location
		location = &loc
	}
	return &models.User{
		ID:              uuid.New(),
		Email:           NormalizeEmail(c.Email),
		PasswordHash:    c.PasswordHash,
		FirstName:       c.FirstName,
		LastName:        c.LastName,
		Role:            c.Role,
		IsApproved:      c.IsApproved,
		SubscribedCrops: crops,
		Location:        location,
	}
}

// NormalizeEmail lower-cases and trims an address; emails are stored that way.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

const maxCropLength = 64

// NormalizeCrops trims crop names and drops blanks and duplicates, keeping order.
func NormalizeCrops(crops []string) []string {
	out := make([]string, 0, len(crops))
	seen := make(map[string]struct{}, len(crops))
	for _, raw := range crops {
		crop := strings.TrimSpace(raw)
		if crop == "" {
			continue
		}
		if len(crop) > maxCropLength {
			crop = crop[:maxCropLength]
		}
		if _, dup := seen[crop]; dup {
			continue
		}
		seen[crop] = struct{}{}
		out = append(out, crop)
	}
	return out
}
