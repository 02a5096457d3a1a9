package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/lumenfolio/portal-backend/pkg/enums"
)

// Resource is a client-facing gallery or proposal project. Galleries carry
// media only; projects additionally move through the proposal lifecycle.
type Resource struct {
	ID          uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Kind        enums.ResourceKind `gorm:"column:kind;type:resource_kind;not null"`
	Title       string             `gorm:"column:title;type:text;not null"`
	ClientName  string             `gorm:"column:client_name;type:text;not null"`
	ClientEmail string             `gorm:"column:client_email;type:text;not null"`
	Description *string            `gorm:"column:description;type:text"`

	RequirePassword    bool       `gorm:"column:require_password;not null;default:false"`
	AccessCodeHash     *string    `gorm:"column:access_code_hash;type:text"`
	AllowDownloads     bool       `gorm:"column:allow_downloads;not null;default:true"`
	DownloadsPerWindow *int       `gorm:"column:downloads_per_window"`
	ExpiresAt          *time.Time `gorm:"column:expires_at;type:timestamptz"`

	Status *enums.ProposalStatus `gorm:"column:status;type:proposal_status"`

	MediaItems    []MediaItem     `gorm:"foreignKey:ResourceID"`
	StatusHistory []StatusHistory `gorm:"foreignKey:ResourceID"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// IsExpired reports whether the resource is past its expiry timestamp.
func (r *Resource) IsExpired(now time.Time) bool {
	return r.ExpiresAt != nil && now.After(*r.ExpiresAt)
}

// IsProject reports whether the resource carries a proposal lifecycle.
func (r *Resource) IsProject() bool {
	return r.Kind == enums.ResourceKindProject
}
