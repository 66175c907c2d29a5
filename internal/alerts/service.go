// Package alerts manages crop alerts published by agronomists.
package alerts

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/corpalert/corpalert-backend/pkg/db/models"
	"github.com/corpalert/corpalert-backend/pkg/enums"
	pkgerrors "github.com/corpalert/corpalert-backend/pkg/errors"
	"github.com/corpalert/corpalert-backend/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Service interface {
	Create(ctx context.Context, actor Actor, req CreateRequest) (*AlertDTO, error)
	Get(ctx context.Context, id uuid.UUID) (*AlertDTO, error)
	List(ctx context.Context, limit int) ([]AlertDTO, error)
	ListMine(ctx context.Context, actor Actor) ([]AlertDTO, error)
	Update(ctx context.Context, actor Actor, id uuid.UUID, req UpdateRequest) (*AlertDTO, error)
	Delete(ctx context.Context, actor Actor, id uuid.UUID) error
	Search(ctx context.Context, req SearchRequest) ([]AlertDTO, error)
}

// Notifier fans alert changes out to subscribed farmers. Failures never fail the request.
type Notifier interface {
	AlertCreated(ctx context.Context, alert models.Alert) error
	AlertChanged(ctx context.Context, alert models.Alert, kind enums.AlertUpdateKind) error
}

type repository interface {
	Create(ctx context.Context, alert *models.Alert) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Alert, error)
	ListActive(ctx context.Context, now time.Time, limit int) ([]models.Alert, error)
	ListActiveByCreator(ctx context.Context, creatorID uuid.UUID, now time.Time) ([]models.Alert, error)
	ListActiveByCrop(ctx context.Context, crop string, now time.Time) ([]models.Alert, error)
	Update(ctx context.Context, id uuid.UUID, cols map[string]any) (bool, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
}

type userFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// ServiceParams bundles the alert service dependencies. Notifier and Logger are optional.
type ServiceParams struct {
	Repo     repository
	Users    userFinder
	Notifier Notifier
	Logger   *logger.Logger
}

type service struct {
	repo     repository
	users    userFinder
	notifier Notifier
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "alerts repository required")
	}
	if params.Users == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "users repository required")
	}
	return &service{
		repo:     params.Repo,
		users:    params.Users,
		notifier: params.Notifier,
		logg:     params.Logger,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Create(ctx context.Context, actor Actor, req CreateRequest) (*AlertDTO, error) {
	creator, err := s.users.FindByID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
	}
	if !creator.CanCreateAlert() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "unauthorized to create alerts")
	}

	title := strings.TrimSpace(req.Title)
	crop := strings.TrimSpace(req.CropType)
	switch {
	case title == "" || len(title) > maxTitleLength:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title must be between 1 and 100 characters")
	case crop == "":
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "crop_type is required")
	case !req.Severity.IsValid():
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid severity")
	case !req.AlertType.IsValid():
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid alert_type")
	case req.Location == nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "location is required")
	}
	if err := req.Location.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid location")
	}
	if err := s.checkExpiry(req.ExpiresAt); err != nil {
		return nil, err
	}

	alert := &models.Alert{
		Title:       title,
		Description: strings.TrimSpace(req.Description),
		Severity:    req.Severity,
		AlertType:   req.AlertType,
		CropType:    crop,
		Location:    *req.Location,
		CreatorID:   creator.ID,
		ExpiresAt:   req.ExpiresAt.UTC(),
	}
	if err := s.repo.Create(ctx, alert); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to create alert")
	}
	alert.Creator = creator

	if s.notifier != nil {
		if err := s.notifier.AlertCreated(ctx, *alert); err != nil {
			s.warn(ctx, alert.ID, "alert.notify_created_failed", err)
		}
	}
	return FromModel(alert), nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*AlertDTO, error) {
	alert, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if alert.IsExpired(s.now()) {
		return nil, pkgerrors.New(pkgerrors.CodeGone, "alert has expired")
	}
	return FromModel(alert), nil
}

func (s *service) List(ctx context.Context, limit int) ([]AlertDTO, error) {
	rows, err := s.repo.ListActive(ctx, s.now(), limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list alerts")
	}
	return fromModels(rows), nil
}

func (s *service) ListMine(ctx context.Context, actor Actor) ([]AlertDTO, error) {
	rows, err := s.repo.ListActiveByCreator(ctx, actor.UserID, s.now())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list alerts")
	}
	return fromModels(rows), nil
}

func (s *service) Update(ctx context.Context, actor Actor, id uuid.UUID, req UpdateRequest) (*AlertDTO, error) {
	alert, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canModify(actor, alert) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "unauthorized to update this alert")
	}
	if req.isEmpty() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no input data provided")
	}

	cols := map[string]any{}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" || len(title) > maxTitleLength {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "title must be between 1 and 100 characters")
		}
		cols["title"] = title
	}
	if req.Description != nil {
		cols["description"] = strings.TrimSpace(*req.Description)
	}
	if req.Severity != nil {
		if !req.Severity.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid severity")
		}
		cols["severity"] = *req.Severity
	}
	if req.AlertType != nil {
		if !req.AlertType.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid alert_type")
		}
		cols["alert_type"] = *req.AlertType
	}
	if req.CropType != nil {
		crop := strings.TrimSpace(*req.CropType)
		if crop == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "crop_type cannot be blank")
		}
		cols["crop_type"] = crop
	}
	if req.ExpiresAt != nil {
		if err := s.checkExpiry(*req.ExpiresAt); err != nil {
			return nil, err
		}
		cols["expires_at"] = req.ExpiresAt.UTC()
	}
	if req.Location != nil {
		if err := req.Location.Validate(); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid location")
		}
		cols["location"] = *req.Location
	}

	found, err := s.repo.Update(ctx, id, cols)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to update alert")
	}
	if !found {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "alert not found")
	}

	updated, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.notifier != nil {
		if err := s.notifier.AlertChanged(ctx, *updated, enums.AlertUpdateKindUpdated); err != nil {
			s.warn(ctx, id, "alert.notify_updated_failed", err)
		}
	}
	return FromModel(updated), nil
}

func (s *service) Delete(ctx context.Context, actor Actor, id uuid.UUID) error {
	alert, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if !canModify(actor, alert) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "unauthorized to delete this alert")
	}
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to delete alert")
	}
	if !deleted {
		return pkgerrors.New(pkgerrors.CodeNotFound, "alert not found")
	}
	if s.notifier != nil {
		if err := s.notifier.AlertChanged(ctx, *alert, enums.AlertUpdateKindDeleted); err != nil {
			s.warn(ctx, id, "alert.notify_deleted_failed", err)
		}
	}
	return nil
}

// Search returns active alerts for the crop within radius metres of the location,
// nearest first.
func (s *service) Search(ctx context.Context, req SearchRequest) ([]AlertDTO, error) {
	if req.Location == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "location is required for search")
	}
	crop := strings.TrimSpace(req.CropType)
	if crop == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "crop type is required for search")
	}
	if err := req.Location.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid coordinates for location")
	}
	radius := float64(DefaultSearchRadiusM)
	if req.Radius != nil {
		radius = *req.Radius
	}
	if math.IsNaN(radius) || radius <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "radius must be a positive number")
	}

	rows, err := s.repo.ListActiveByCrop(ctx, crop, s.now())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "search alerts")
	}

	origin := *req.Location
	type hit struct {
		alert    models.Alert
		distance float64
	}
	hits := make([]hit, 0, len(rows))
	for _, row := range rows {
		if d := origin.DistanceMeters(row.Location); d <= radius {
			hits = append(hits, hit{alert: row, distance: d})
		}
	}
	if len(hits) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no alerts found for the specified criteria")
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].distance < hits[j].distance })

	out := make([]AlertDTO, 0, len(hits))
	for i := range hits {
		out = append(out, *FromModel(&hits[i].alert))
	}
	return out, nil
}

func (s *service) find(ctx context.Context, id uuid.UUID) (*models.Alert, error) {
	alert, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "alert not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load alert")
	}
	return alert, nil
}

func (s *service) checkExpiry(expiresAt time.Time) error {
	if expiresAt.IsZero() || !expiresAt.After(s.now()) {
		return pkgerrors.New(pkgerrors.CodeValidation, "expiration date must be in the future").
			WithDetails(map[string]string{"expires_at": "must be in the future"})
	}
	return nil
}

func (s *service) warn(ctx context.Context, alertID uuid.UUID, msg string, err error) {
	if s.logg == nil {
		return
	}
	ctx = s.logg.WithFields(ctx, map[string]any{"alert_id": alertID.String(), "error": err.Error()})
	s.logg.Warn(ctx, msg)
}

func canModify(actor Actor, alert *models.Alert) bool {
	return actor.Role == enums.RoleAdmin || actor.UserID == alert.CreatorID
}
