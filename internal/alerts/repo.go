package alerts

import (
	"context"
	"time"

	"github.com/corpalert/corpalert-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository persists alerts.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, alert *models.Alert) error {
	if alert.ID == uuid.Nil {
		alert.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Omit("Creator").Create(alert).Error
}

// FindByID loads an alert with its creator.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Alert, error) {
	var alert models.Alert
	if err := r.db.WithContext(ctx).Preload("Creator").First(&alert, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &alert, nil
}

// ListActive returns alerts expiring after now, newest first.
func (r *Repository) ListActive(ctx context.Context, now time.Time, limit int) ([]models.Alert, error) {
	return r.listActive(ctx, now, limit, nil)
}

// ListActiveByCreator narrows ListActive to one author.
func (r *Repository) ListActiveByCreator(ctx context.Context, creatorID uuid.UUID, now time.Time) ([]models.Alert, error) {
	return r.listActive(ctx, now, 0, func(q *gorm.DB) *gorm.DB {
		return q.Where("creator_id = ?", creatorID)
	})
}

// ListActiveByCrop narrows ListActive to one crop.
func (r *Repository) ListActiveByCrop(ctx context.Context, crop string, now time.Time) ([]models.Alert, error) {
	return r.listActive(ctx, now, 0, func(q *gorm.DB) *gorm.DB {
		return q.Where("crop_type = ?", crop)
	})
}

func (r *Repository) listActive(ctx context.Context, now time.Time, limit int, scope func(*gorm.DB) *gorm.DB) ([]models.Alert, error) {
	q := r.db.WithContext(ctx).
		Preload("Creator").
		Where("expires_at > ?", now.UTC()).
		Order("created_at DESC")
	if scope != nil {
		q = scope(q)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []models.Alert
	err := q.Find(&out).Error
	return out, err
}

// Update writes cols onto the alert and reports whether a row matched.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, cols map[string]any) (bool, error) {
	if len(cols) == 0 {
		return true, nil
	}
	cols["updated_at"] = time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&models.Alert{}).Where("id = ?", id).UpdateColumns(cols)
	return res.RowsAffected > 0, res.Error
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Alert{})
	return res.RowsAffected > 0, res.Error
}

// DeleteExpiredBefore removes up to limit alerts that expired before cutoff.
func (r *Repository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	sub := r.db.Model(&models.Alert{}).
		Select("id").
		Where("expires_at < ?", cutoff.UTC()).
		Order("expires_at ASC").
		Limit(limit)
	res := r.db.WithContext(ctx).Where("id IN (?)", sub).Delete(&models.Alert{})
	return res.RowsAffected, res.Error
}
