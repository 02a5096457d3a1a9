package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/lumenfolio/portal-backend/pkg/enums"
)

// MediaItem is a single asset embedded in a resource. Items are owned by
// exactly one resource and are removed with it.
type MediaItem struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ResourceID      uuid.UUID           `gorm:"column:resource_id;type:uuid;not null;index"`
	Kind            enums.MediaItemKind `gorm:"column:kind;type:media_item_kind;not null"`
	AssetID         string              `gorm:"column:asset_id;type:text;not null;default:''"`
	Title           *string             `gorm:"column:title;type:text"`
	PermanentURL    string              `gorm:"column:permanent_url;type:text;not null"`
	ThumbnailURL    *string             `gorm:"column:thumbnail_url;type:text"`
	SizeBytes       int64               `gorm:"column:size_bytes;not null"`
	Format          string              `gorm:"column:format;type:text;not null"`
	Width           *int                `gorm:"column:width"`
	Height          *int                `gorm:"column:height"`
	DurationSeconds *float64            `gorm:"column:duration_seconds"`
	Pages           *int                `gorm:"column:pages"`
	Position        int                 `gorm:"column:position;not null;default:0"`
	LikeCount       int                 `gorm:"column:like_count;not null;default:0"`

	Comments []MediaComment `gorm:"foreignKey:MediaItemID"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// MediaComment is a visitor comment attached to a media item.
type MediaComment struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	MediaItemID uuid.UUID `gorm:"column:media_item_id;type:uuid;not null;index"`
	AuthorName  string    `gorm:"column:author_name;type:text;not null"`
	Body        string    `gorm:"column:body;type:text;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}
