package enums

import "fmt"

// AlertSeverity grades how urgent an alert is.
type AlertSeverity string

const (
	AlertSeverityLow    AlertSeverity = "low"
	AlertSeverityMedium AlertSeverity = "medium"
	AlertSeverityHigh   AlertSeverity = "high"
)

var validAlertSeverities = []AlertSeverity{
	AlertSeverityLow,
	AlertSeverityMedium,
	AlertSeverityHigh,
}

func (s AlertSeverity) String() string {
	return string(s)
}

func (s AlertSeverity) IsValid() bool {
	for _, candidate := range validAlertSeverities {
		if candidate == s {
			return true
		}
	}
	return false
}

func ParseAlertSeverity(value string) (AlertSeverity, error) {
	for _, candidate := range validAlertSeverities {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid alert severity %q", value)
}

// AlertType classifies the threat an alert describes.
type AlertType string

const (
	AlertTypePest    AlertType = "pest"
	AlertTypeDisease AlertType = "disease"
	AlertTypeWeather AlertType = "weather"
)

var validAlertTypes = []AlertType{
	AlertTypePest,
	AlertTypeDisease,
	AlertTypeWeather,
}

func (t AlertType) String() string {
	return string(t)
}

func (t AlertType) IsValid() bool {
	for _, candidate := range validAlertTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

func ParseAlertType(value string) (AlertType, error) {
	for _, candidate := range validAlertTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid alert type %q", value)
}

// NotificationEvent names the realtime events pushed to farmers.
type NotificationEvent string

const (
	NotificationEventNewAlert    NotificationEvent = "new_alert_notification"
	NotificationEventAlertUpdate NotificationEvent = "alert_update_notification"
)

// AlertUpdateKind describes what happened to an alert in an update notification.
type AlertUpdateKind string

const (
	AlertUpdateKindUpdated AlertUpdateKind = "updated"
	AlertUpdateKindDeleted AlertUpdateKind = "deleted"
)
