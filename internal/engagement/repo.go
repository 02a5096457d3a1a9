package engagement

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lumenfolio/portal-backend/pkg/db/models"
)

// Repository manages the append-only engagement event stream.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, event *models.EngagementEvent) error
	ListByResource(ctx context.Context, resourceID uuid.UUID) ([]models.EngagementEvent, error)
	Recent(ctx context.Context, resourceID uuid.UUID, limit int) ([]models.EngagementEvent, error)
	DeleteByResource(ctx context.Context, resourceID uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an engagement repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, event *models.EngagementEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

// ListByResource returns every event for the resource in ascending occurrence
// order. Summaries sort explicitly; concurrent ingests give no insertion-order
// guarantee beyond the timestamp.
func (r *repository) ListByResource(ctx context.Context, resourceID uuid.UUID) ([]models.EngagementEvent, error) {
	var events []models.EngagementEvent
	err := r.db.WithContext(ctx).
		Where("resource_id = ?", resourceID).
		Order("occurred_at ASC").
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (r *repository) Recent(ctx context.Context, resourceID uuid.UUID, limit int) ([]models.EngagementEvent, error) {
	var events []models.EngagementEvent
	err := r.db.WithContext(ctx).
		Where("resource_id = ?", resourceID).
		Order("occurred_at DESC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (r *repository) DeleteByResource(ctx context.Context, resourceID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("resource_id = ?", resourceID).
		Delete(&models.EngagementEvent{}).Error
}
