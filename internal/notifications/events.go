// Package notifications pushes alert events to farmers over websockets.
package notifications

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/corpalert/corpalert-backend/pkg/db/models"
	"github.com/corpalert/corpalert-backend/pkg/enums"
	"github.com/google/uuid"
)

// Envelope is the unit carried over the broker and written to sockets.
type Envelope struct {
	Room    string                  `json:"room"`
	Event   enums.NotificationEvent `json:"event"`
	Payload json.RawMessage         `json:"payload"`
}

// Frame is what a websocket client receives.
type Frame struct {
	Event   enums.NotificationEvent `json:"event"`
	Payload json.RawMessage         `json:"payload"`
}

// NewAlertPayload is sent with new_alert_notification. Location is [lng, lat].
type NewAlertPayload struct {
	AlertID     uuid.UUID           `json:"alert_id"`
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Severity    enums.AlertSeverity `json:"severity"`
	AlertType   enums.AlertType     `json:"alert_type"`
	CropType    string              `json:"crop_type"`
	CreatedAt   time.Time           `json:"created_at"`
	ExpiresAt   time.Time           `json:"expires_at"`
	Location    [2]float64          `json:"location"`
	CreatorName string              `json:"creator_name"`
}

// AlertUpdatePayload is sent with alert_update_notification.
type AlertUpdatePayload struct {
	AlertID    uuid.UUID             `json:"alert_id"`
	Title      string                `json:"title"`
	UpdateType enums.AlertUpdateKind `json:"update_type"`
	Message    string                `json:"message"`
}

// RoomFor names the per-user room.
func RoomFor(userID uuid.UUID) string {
	return "user_" + userID.String()
}

func newAlertPayload(alert models.Alert) NewAlertPayload {
	payload := NewAlertPayload{
		AlertID:     alert.ID,
		Title:       alert.Title,
		Description: alert.Description,
		Severity:    alert.Severity,
		AlertType:   alert.AlertType,
		CropType:    alert.CropType,
		CreatedAt:   alert.CreatedAt.UTC(),
		ExpiresAt:   alert.ExpiresAt.UTC(),
		Location:    [2]float64{alert.Location.Lng, alert.Location.Lat},
	}
	if alert.Creator != nil {
		payload.CreatorName = alert.Creator.FirstName + " " + alert.Creator.LastName
	}
	return payload
}

func alertUpdatePayload(alert models.Alert, kind enums.AlertUpdateKind) AlertUpdatePayload {
	return AlertUpdatePayload{
		AlertID:    alert.ID,
		Title:      alert.Title,
		UpdateType: kind,
		Message:    fmt.Sprintf("Alert '%s' has been %s", alert.Title, kind),
	}
}

func newEnvelope(room string, event enums.NotificationEvent, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", event, err)
	}
	return Envelope{Room: room, Event: event, Payload: raw}, nil
}
