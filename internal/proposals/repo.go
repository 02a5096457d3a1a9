package proposals

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lumenfolio/portal-backend/pkg/db/models"
	"github.com/lumenfolio/portal-backend/pkg/enums"
)

// Repository manages persistence for proposal status and history.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	GetProject(ctx context.Context, resourceID uuid.UUID) (*models.Resource, error)
	UpdateStatusIf(ctx context.Context, resourceID uuid.UUID, from, to enums.ProposalStatus) (bool, error)
	AppendHistory(ctx context.Context, entry *models.StatusHistory) error
	ListHistory(ctx context.Context, resourceID uuid.UUID) ([]models.StatusHistory, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a proposals repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) GetProject(ctx context.Context, resourceID uuid.UUID) (*models.Resource, error) {
	var resource models.Resource
	err := r.db.WithContext(ctx).
		Where("id = ? AND kind = ?", resourceID, enums.ResourceKindProject).
		First(&resource).Error
	if err != nil {
		return nil, err
	}
	return &resource, nil
}

// UpdateStatusIf performs a guarded write: the status only changes when the
// row still holds the expected current value.
func (r *repository) UpdateStatusIf(ctx context.Context, resourceID uuid.UUID, from, to enums.ProposalStatus) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Resource{}).
		Where("id = ? AND kind = ? AND status = ?", resourceID, enums.ResourceKindProject, from).
		Update("status", to)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) AppendHistory(ctx context.Context, entry *models.StatusHistory) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) ListHistory(ctx context.Context, resourceID uuid.UUID) ([]models.StatusHistory, error) {
	var entries []models.StatusHistory
	err := r.db.WithContext(ctx).
		Where("resource_id = ?", resourceID).
		Order("changed_at ASC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}
