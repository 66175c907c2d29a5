package models

import (
	"time"

	"github.com/corpalert/corpalert-backend/pkg/enums"
	"github.com/corpalert/corpalert-backend/pkg/types"
	"github.com/google/uuid"
)

// Alert is a geolocated crop threat published by an agronomist.
type Alert struct {
	ID          uuid.UUID            `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Title       string               `gorm:"column:title;not null"`
	Description string               `gorm:"column:description;not null;default:''"`
	Severity    enums.AlertSeverity  `gorm:"column:severity;type:alert_severity;not null"`
	AlertType   enums.AlertType      `gorm:"column:alert_type;type:alert_type;not null"`
	CropType    string               `gorm:"column:crop_type;not null"`
	Location    types.GeographyPoint `gorm:"type:geography(Point,4326);column:location;not null"`
	CreatorID   uuid.UUID            `gorm:"type:uuid;column:creator_id;not null"`
	Creator     *User                `gorm:"foreignKey:CreatorID"`
	ExpiresAt   time.Time            `gorm:"column:expires_at;not null"`
	CreatedAt   time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

// IsExpired reports whether the alert's expiry lies before now.
func (a Alert) IsExpired(now time.Time) bool {
	return a.ExpiresAt.Before(now)
}
