package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/corpalert/corpalert-backend/internal/testdb"
	"github.com/corpalert/corpalert-backend/internal/users"
	"github.com/corpalert/corpalert-backend/pkg/db/models"
	"github.com/corpalert/corpalert-backend/pkg/enums"
	"github.com/corpalert/corpalert-backend/pkg/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingBroker struct {
	mu   sync.Mutex
	sent []Envelope
	fail map[string]bool
}

func (b *recordingBroker) Publish(_ context.Context, env Envelope) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail[env.Room] {
		return errors.New("broker unavailable")
	}
	b.sent = append(b.sent, env)
	return nil
}

func (b *recordingBroker) rooms() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.sent))
	for _, env := range b.sent {
		out = append(out, env.Room)
	}
	return out
}

type notifierFixture struct {
	notifier *Notifier
	broker   *recordingBroker
	near     *models.User
	alert    models.Alert
}

func newNotifierFixture(t *testing.T) *notifierFixture {
	t.Helper()
	ctx := context.Background()
	repo := users.NewRepository(testdb.Open(t).DB())

	mk := func(email string, role enums.Role, approved bool, crops []string, loc *types.GeographyPoint) *models.User {
		u, err := repo.Create(ctx, users.CreateUserDTO{
			Email: email, PasswordHash: "hash", FirstName: "Achieng", LastName: "Otieno",
			Role: role, IsApproved: approved, SubscribedCrops: crops, Location: loc,
		})
		require.NoError(t, err)
		return u
	}

	farm := &types.GeographyPoint{Lat: -1.2921, Lng: 36.8219}
	nearby := &types.GeographyPoint{Lat: -1.30, Lng: 36.83}
	kisumu := &types.GeographyPoint{Lat: -0.0917, Lng: 34.7680}

	near := mk("near@example.com", enums.RoleFarmer, true, []string{"maize", "beans"}, nearby)
	mk("far@example.com", enums.RoleFarmer, true, []string{"maize"}, kisumu)
	mk("tea@example.com", enums.RoleFarmer, true, []string{"tea"}, nearby)
	mk("nowhere@example.com", enums.RoleFarmer, true, []string{"maize"}, nil)
	mk("agro@example.com", enums.RoleAgronomist, true, nil, nearby)
	creator := mk("creator@example.com", enums.RoleAgronomist, true, nil, farm)

	broker := &recordingBroker{fail: map[string]bool{}}
	return &notifierFixture{
		notifier: NewNotifier(NotifierParams{Users: repo, Broker: broker}),
		broker:   broker,
		near:     near,
		alert: models.Alert{
			ID:          uuid.New(),
			Title:       "Stem borer",
			Description: "Inspect stalks",
			Severity:    enums.AlertSeverityMedium,
			AlertType:   enums.AlertTypePest,
			CropType:    "maize",
			Location:    *farm,
			CreatorID:   creator.ID,
			Creator:     creator,
			CreatedAt:   time.Now().UTC(),
			ExpiresAt:   time.Now().UTC().Add(24 * time.Hour),
		},
	}
}

func TestRecipientsFilterByCropAndDistance(t *testing.T) {
	f := newNotifierFixture(t)
	got, err := f.notifier.Recipients(context.Background(), f.alert)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, f.near.ID, got[0].ID)
}

func TestAlertCreatedPublishesNewAlertPayload(t *testing.T) {
	f := newNotifierFixture(t)
	require.NoError(t, f.notifier.AlertCreated(context.Background(), f.alert))

	require.Equal(t, []string{"user_" + f.near.ID.String()}, f.broker.rooms())
	env := f.broker.sent[0]
	assert.Equal(t, enums.NotificationEventNewAlert, env.Event)

	var payload NewAlertPayload
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, f.alert.ID, payload.AlertID)
	assert.Equal(t, [2]float64{36.8219, -1.2921}, payload.Location)
	assert.Equal(t, "Achieng Otieno", payload.CreatorName)
}

func TestAlertChangedMessage(t *testing.T) {
	f := newNotifierFixture(t)
	require.NoError(t, f.notifier.AlertChanged(context.Background(), f.alert, enums.AlertUpdateKindDeleted))

	require.Len(t, f.broker.sent, 1)
	var payload AlertUpdatePayload
	require.NoError(t, json.Unmarshal(f.broker.sent[0].Payload, &payload))
	assert.Equal(t, enums.AlertUpdateKindDeleted, payload.UpdateType)
	assert.Equal(t, "Alert 'Stem borer' has been deleted", payload.Message)
}

func TestFanOutReportsBrokerFailures(t *testing.T) {
	f := newNotifierFixture(t)
	f.broker.fail[RoomFor(f.near.ID)] = true
	err := f.notifier.AlertCreated(context.Background(), f.alert)
	assert.Error(t, err)
	assert.Empty(t, f.broker.rooms())
}
