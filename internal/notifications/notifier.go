package notifications

import (
	"context"
	"strings"

	"github.com/corpalert/corpalert-backend/pkg/db/models"
	"github.com/corpalert/corpalert-backend/pkg/enums"
	"github.com/corpalert/corpalert-backend/pkg/logger"
	"github.com/corpalert/corpalert-backend/pkg/metrics"
	"go.uber.org/multierr"
)

// DefaultRadiusMeters bounds how far from an alert a farmer may be and still be notified.
const DefaultRadiusMeters = 10000

type recipientLister interface {
	ListApprovedFarmersWithLocation(ctx context.Context) ([]models.User, error)
}

type NotifierParams struct {
	Users        recipientLister
	Broker       Broker
	RadiusMeters float64
	Metrics      *metrics.NotificationMetrics
	Logger       *logger.Logger
}

// Notifier resolves the farmers affected by an alert and publishes one envelope per room.
type Notifier struct {
	users   recipientLister
	broker  Broker
	radius  float64
	metrics *metrics.NotificationMetrics
	logg    *logger.Logger
}

func NewNotifier(params NotifierParams) *Notifier {
	radius := params.RadiusMeters
	if radius <= 0 {
		radius = DefaultRadiusMeters
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Notifier{
		users:   params.Users,
		broker:  params.Broker,
		radius:  radius,
		metrics: params.Metrics,
		logg:    logg,
	}
}

func (n *Notifier) AlertCreated(ctx context.Context, alert models.Alert) error {
	return n.fanOut(ctx, alert, enums.NotificationEventNewAlert, newAlertPayload(alert))
}

func (n *Notifier) AlertChanged(ctx context.Context, alert models.Alert, kind enums.AlertUpdateKind) error {
	return n.fanOut(ctx, alert, enums.NotificationEventAlertUpdate, alertUpdatePayload(alert, kind))
}

// Recipients returns approved farmers subscribed to the alert's crop within the radius.
func (n *Notifier) Recipients(ctx context.Context, alert models.Alert) ([]models.User, error) {
	farmers, err := n.users.ListApprovedFarmersWithLocation(ctx)
	if err != nil {
		return nil, err
	}
	crop := strings.TrimSpace(alert.CropType)
	out := make([]models.User, 0, len(farmers))
	for _, farmer := range farmers {
		if farmer.Location == nil || !farmer.SubscribedCrops.Contains(crop) {
			continue
		}
		if alert.Location.DistanceMeters(*farmer.Location) <= n.radius {
			out = append(out, farmer)
		}
	}
	return out, nil
}

func (n *Notifier) fanOut(ctx context.Context, alert models.Alert, event enums.NotificationEvent, payload any) error {
	recipients, err := n.Recipients(ctx, alert)
	if err != nil {
		return err
	}

	var errs error
	sent := 0
	for _, farmer := range recipients {
		env, err := newEnvelope(RoomFor(farmer.ID), event, payload)
		if err != nil {
			return err
		}
		if err := n.broker.Publish(ctx, env); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		sent++
	}
	n.metrics.IncPublished(string(event), sent)

	ctx = n.logg.WithFields(ctx, map[string]any{
		"alert_id":   alert.ID.String(),
		"event":      string(event),
		"recipients": len(recipients),
		"published":  sent,
	})
	n.logg.Info(ctx, "notifications.fanned_out")
	return errs
}
