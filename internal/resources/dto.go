package resources

import (
	"io"
	"time"

	"github.com/lumenfolio/portal-backend/pkg/db/models"
	"github.com/lumenfolio/portal-backend/pkg/enums"
	"github.com/lumenfolio/portal-backend/pkg/pagination"
)

// CreateResourceInput captures the admin payload for a new gallery or project.
type CreateResourceInput struct {
	Kind               enums.ResourceKind `validate:"required"`
	Title              string             `validate:"required,max=200"`
	ClientName         string             `validate:"required,max=200"`
	ClientEmail        string             `validate:"required,email"`
	Description        *string
	RequirePassword    bool
	AccessCode         string `validate:"omitempty,min=6,max=64"`
	AllowDownloads     bool
	DownloadsPerWindow *int `validate:"omitempty,gt=0"`
	ExpiresAt          *time.Time
}

// UpdateResourceInput holds the mutable resource fields; nil means unchanged.
type UpdateResourceInput struct {
	Title              *string `validate:"omitempty,max=200"`
	ClientName         *string `validate:"omitempty,max=200"`
	ClientEmail        *string `validate:"omitempty,email"`
	Description        *string
	RequirePassword    *bool
	AccessCode         *string `validate:"omitempty,min=6,max=64"`
	AllowDownloads     *bool
	DownloadsPerWindow *int
	ExpiresAt          *time.Time
	ClearExpiry        bool
}

// AttachMediaInput describes one upload destined for a resource.
type AttachMediaInput struct {
	FileName string `validate:"required"`
	Title    *string
	Data     io.Reader `validate:"required"`
}

// CreateResult pairs the stored resource with the plaintext access code,
// which exists only in this response. Only the hash is persisted.
type CreateResult struct {
	Resource   *models.Resource
	AccessCode string
}

// ListParams configures resource listing for the admin dashboard.
type ListParams struct {
	Kind   *enums.ResourceKind
	Limit  int
	Cursor string
}

// ListResult wraps a page of resources and the next-page cursor.
type ListResult struct {
	Items  []models.Resource `json:"items"`
	Cursor string            `json:"cursor"`
}

type listResourcesParams struct {
	Kind   *enums.ResourceKind
	Limit  int
	Cursor *pagination.Cursor
}
