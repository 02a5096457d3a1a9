package resources

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lumenfolio/portal-backend/pkg/db/models"
	"github.com/lumenfolio/portal-backend/pkg/pagination"
)

// Repository manages resources and their embedded media.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, resource *models.Resource) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Resource, error)
	List(ctx context.Context, params listResourcesParams) ([]models.Resource, *pagination.Cursor, error)
	Save(ctx context.Context, resource *models.Resource) error
	Delete(ctx context.Context, id uuid.UUID) (bool, error)

	AddMediaItem(ctx context.Context, item *models.MediaItem) error
	GetMediaItem(ctx context.Context, resourceID, mediaID uuid.UUID) (*models.MediaItem, error)
	DeleteMediaItem(ctx context.Context, resourceID, mediaID uuid.UUID) (bool, error)
	CountMediaItems(ctx context.Context, resourceID uuid.UUID) (int64, error)
	IncrementLike(ctx context.Context, resourceID, mediaID uuid.UUID) (bool, error)
	AddComment(ctx context.Context, comment *models.MediaComment) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a resources repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, resource *models.Resource) error {
	return r.db.WithContext(ctx).Create(resource).Error
}

// FindByID loads the resource with its media (ordered), comments, and
// status history.
func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Resource, error) {
	var resource models.Resource
	err := r.db.WithContext(ctx).
		Preload("MediaItems", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC, created_at ASC")
		}).
		Preload("MediaItems.Comments", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Preload("StatusHistory", func(db *gorm.DB) *gorm.DB {
			return db.Order("changed_at ASC")
		}).
		Where("id = ?", id).
		First(&resource).Error
	if err != nil {
		return nil, err
	}
	return &resource, nil
}

func (r *repository) List(ctx context.Context, params listResourcesParams) ([]models.Resource, *pagination.Cursor, error) {
	limit := pagination.LimitWithBuffer(params.Limit)
	normalized := pagination.NormalizeLimit(params.Limit)
	query := r.db.WithContext(ctx).Model(&models.Resource{})
	if params.Kind != nil {
		query = query.Where("kind = ?", *params.Kind)
	}
	if params.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var resourceRows []models.Resource
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&resourceRows).Error; err != nil {
		return nil, nil, err
	}

	if len(resourceRows) > normalized {
		next := resourceRows[normalized]
		resourceRows = resourceRows[:normalized]
		return resourceRows, &pagination.Cursor{CreatedAt: next.CreatedAt, ID: next.ID}, nil
	}
	return resourceRows, nil, nil
}

func (r *repository) Save(ctx context.Context, resource *models.Resource) error {
	return r.db.WithContext(ctx).
		Model(&models.Resource{}).
		Where("id = ?", resource.ID).
		Select("title", "client_name", "client_email", "description", "require_password",
			"access_code_hash", "allow_downloads", "downloads_per_window", "expires_at", "updated_at").
		Updates(resource).Error
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Resource{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) AddMediaItem(ctx context.Context, item *models.MediaItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *repository) GetMediaItem(ctx context.Context, resourceID, mediaID uuid.UUID) (*models.MediaItem, error) {
	var item models.MediaItem
	err := r.db.WithContext(ctx).
		Where("id = ? AND resource_id = ?", mediaID, resourceID).
		First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repository) DeleteMediaItem(ctx context.Context, resourceID, mediaID uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("id = ? AND resource_id = ?", mediaID, resourceID).
		Delete(&models.MediaItem{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) CountMediaItems(ctx context.Context, resourceID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.MediaItem{}).
		Where("resource_id = ?", resourceID).
		Count(&count).Error
	return count, err
}

func (r *repository) IncrementLike(ctx context.Context, resourceID, mediaID uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.MediaItem{}).
		Where("id = ? AND resource_id = ?", mediaID, resourceID).
		UpdateColumn("like_count", gorm.Expr("like_count + 1"))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) AddComment(ctx context.Context, comment *models.MediaComment) error {
	return r.db.WithContext(ctx).Create(comment).Error
}
