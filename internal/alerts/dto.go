package alerts

import (
	"time"

	"github.com/corpalert/corpalert-backend/pkg/db/models"
	"github.com/corpalert/corpalert-backend/pkg/enums"
	"github.com/corpalert/corpalert-backend/pkg/types"
	"github.com/google/uuid"
)

const (
	maxTitleLength       = 100
	DefaultSearchRadiusM = 10000
)

// Actor identifies who performs an alert operation.
type Actor struct {
	UserID uuid.UUID
	Role   enums.Role
}

// CreateRequest is the body of POST /api/alerts.
type CreateRequest struct {
	Title       string                `json:"title" validate:"required,max=100"`
	Description string                `json:"description,omitempty"`
	Severity    enums.AlertSeverity   `json:"severity" validate:"required,oneof=low medium high"`
	AlertType   enums.AlertType       `json:"alert_type" validate:"required,oneof=pest disease weather"`
	CropType    string                `json:"crop_type" validate:"required,max=50"`
	ExpiresAt   time.Time             `json:"expires_at" validate:"required"`
	Location    *types.GeographyPoint `json:"location" validate:"required"`
}

// UpdateRequest patches an alert; nil fields are left alone.
type UpdateRequest struct {
	Title       *string               `json:"title,omitempty" validate:"omitempty,max=100"`
	Description *string               `json:"description,omitempty"`
	Severity    *enums.AlertSeverity  `json:"severity,omitempty" validate:"omitempty,oneof=low medium high"`
	AlertType   *enums.AlertType      `json:"alert_type,omitempty" validate:"omitempty,oneof=pest disease weather"`
	CropType    *string               `json:"crop_type,omitempty" validate:"omitempty,max=50"`
	ExpiresAt   *time.Time            `json:"expires_at,omitempty"`
	Location    *types.GeographyPoint `json:"location,omitempty"`
}

func (r UpdateRequest) isEmpty() bool {
	return r.Title == nil && r.Description == nil && r.Severity == nil && r.AlertType == nil &&
		r.CropType == nil && r.ExpiresAt == nil && r.Location == nil
}

// SearchRequest finds active alerts for a crop around a point. Radius is in metres.
type SearchRequest struct {
	Location *types.GeographyPoint `json:"location"`
	CropType string                `json:"crop_type"`
	Radius   *float64              `json:"radius,omitempty"`
}

// AlertDTO is the transport shape of an alert.
type AlertDTO struct {
	ID          uuid.UUID            `json:"id"`
	Title       string               `json:"title"`
	Description string               `json:"description"`
	Severity    enums.AlertSeverity  `json:"severity"`
	AlertType   enums.AlertType      `json:"alert_type"`
	CropType    string               `json:"crop_type"`
	Location    types.GeographyPoint `json:"location"`
	CreatorID   uuid.UUID            `json:"creator_id"`
	CreatorName string               `json:"creator_name,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	ExpiresAt   time.Time            `json:"expires_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

func FromModel(a *models.Alert) *AlertDTO {
	if a == nil {
		return nil
	}
	dto := &AlertDTO{
		ID:          a.ID,
		Title:       a.Title,
		Description: a.Description,
		Severity:    a.Severity,
		AlertType:   a.AlertType,
		CropType:    a.CropType,
		Location:    a.Location,
		CreatorID:   a.CreatorID,
		CreatedAt:   a.CreatedAt,
		ExpiresAt:   a.ExpiresAt,
		UpdatedAt:   a.UpdatedAt,
	}
	if a.Creator != nil {
		dto.CreatorName = a.Creator.FirstName + " " + a.Creator.LastName
	}
	return dto
}

func fromModels(rows []models.Alert) []AlertDTO {
	out := make([]AlertDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *FromModel(&rows[i]))
	}
	return out
}
