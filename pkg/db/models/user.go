package models

import (
	"time"

	dbtypes "github.com/corpalert/corpalert-backend/pkg/db/types"
	"github.com/corpalert/corpalert-backend/pkg/enums"
	"github.com/corpalert/corpalert-backend/pkg/types"
	"github.com/google/uuid"
)

// User represents a CorpAlert account.
type User struct {
	ID              uuid.UUID             `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Email           string                `gorm:"type:text;not null;uniqueIndex"`
	PasswordHash    string                `gorm:"column:password_hash;not null"`
	FirstName       string                `gorm:"column:first_name;not null"`
	LastName        string                `gorm:"column:last_name;not null"`
	Role            enums.Role            `gorm:"column:role;type:user_role;not null"`
	IsApproved      bool                  `gorm:"column:is_approved;not null;default:false"`
	SubscribedCrops dbtypes.StringArray   `gorm:"type:text[];column:subscribed_crops;not null;default:'{}'"`
	Location        *types.GeographyPoint `gorm:"type:geography(Point,4326);column:location"`
	LastLoginAt     *time.Time            `gorm:"column:last_login_at"`
	CreatedAt       time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

// ToProfile projects the account onto the public profile shape.
func (u User) ToProfile() types.UserProfile {
	profile := types.UserProfile{
		ID:         u.ID.String(),
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		Email:      u.Email,
		Role:       u.Role,
		IsApproved: u.IsApproved,
	}
	if u.Role == enums.RoleFarmer {
		profile.SubscribedCrops = append([]string{}, u.SubscribedCrops...)
	}
	if u.Location != nil {
		loc := *u.Location
		profile.Location = &loc
	}
	return profile
}

// CanCreateAlert reports whether the account may publish alerts.
func (u User) CanCreateAlert() bool {
	return u.Role == enums.RoleAgronomist && u.IsApproved
}
