package controllers

import (
	"time"

	"github.com/google/uuid"

	"github.com/lumenfolio/portal-backend/pkg/db/models"
	"github.com/lumenfolio/portal-backend/pkg/enums"
)

// resourceView is the wire shape for a resource. The access-code hash
// never crosses this boundary.
type resourceView struct {
	ID                 uuid.UUID             `json:"id"`
	Kind               enums.ResourceKind    `json:"kind"`
	Title              string                `json:"title"`
	ClientName         string                `json:"client_name"`
	ClientEmail        string                `json:"client_email,omitempty"`
	Description        *string               `json:"description,omitempty"`
	RequiresPassword   bool                  `json:"requires_password"`
	AllowDownloads     bool                  `json:"allow_downloads"`
	DownloadsPerWindow *int                  `json:"downloads_per_window,omitempty"`
	ExpiresAt          *time.Time            `json:"expires_at,omitempty"`
	Status             *enums.ProposalStatus `json:"status,omitempty"`
	Media              []mediaItemView       `json:"media"`
	StatusHistory      []statusHistoryView   `json:"status_history,omitempty"`
	CreatedAt          time.Time             `json:"created_at"`
	UpdatedAt          time.Time             `json:"updated_at"`
}

type mediaItemView struct {
	ID              uuid.UUID           `json:"id"`
	Kind            enums.MediaItemKind `json:"kind"`
	Title           *string             `json:"title,omitempty"`
	URL             string              `json:"url"`
	ThumbnailURL    *string             `json:"thumbnail_url,omitempty"`
	SizeBytes       int64               `json:"size_bytes"`
	Format          string              `json:"format"`
	Width           *int                `json:"width,omitempty"`
	Height          *int                `json:"height,omitempty"`
	DurationSeconds *float64            `json:"duration_seconds,omitempty"`
	Pages           *int                `json:"pages,omitempty"`
	Position        int                 `json:"position"`
	LikeCount       int                 `json:"like_count"`
	Comments        []commentView       `json:"comments,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
}

type commentView struct {
	ID         uuid.UUID `json:"id"`
	AuthorName string    `json:"author_name"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
}

type statusHistoryView struct {
	Status    enums.ProposalStatus `json:"status"`
	ChangedBy enums.ActorRole      `json:"changed_by"`
	Note      *string              `json:"note,omitempty"`
	ChangedAt time.Time            `json:"changed_at"`
}

func newResourceView(resource *models.Resource, includeAdminFields bool) resourceView {
	view := resourceView{
		ID:                 resource.ID,
		Kind:               resource.Kind,
		Title:              resource.Title,
		ClientName:         resource.ClientName,
		Description:        resource.Description,
		RequiresPassword:   resource.RequirePassword,
		AllowDownloads:     resource.AllowDownloads,
		DownloadsPerWindow: resource.DownloadsPerWindow,
		ExpiresAt:          resource.ExpiresAt,
		Status:             resource.Status,
		Media:              make([]mediaItemView, 0, len(resource.MediaItems)),
		CreatedAt:          resource.CreatedAt,
		UpdatedAt:          resource.UpdatedAt,
	}
	if includeAdminFields {
		view.ClientEmail = resource.ClientEmail
		for _, entry := range resource.StatusHistory {
			view.StatusHistory = append(view.StatusHistory, statusHistoryView{
				Status:    entry.Status,
				ChangedBy: entry.ChangedBy,
				Note:      entry.Note,
				ChangedAt: entry.ChangedAt,
			})
		}
	}
	for _, item := range resource.MediaItems {
		view.Media = append(view.Media, newMediaItemView(item))
	}
	return view
}

func newMediaItemView(item models.MediaItem) mediaItemView {
	view := mediaItemView{
		ID:              item.ID,
		Kind:            item.Kind,
		Title:           item.Title,
		URL:             item.PermanentURL,
		ThumbnailURL:    item.ThumbnailURL,
		SizeBytes:       item.SizeBytes,
		Format:          item.Format,
		Width:           item.Width,
		Height:          item.Height,
		DurationSeconds: item.DurationSeconds,
		Pages:           item.Pages,
		Position:        item.Position,
		LikeCount:       item.LikeCount,
		CreatedAt:       item.CreatedAt,
	}
	for _, comment := range item.Comments {
		view.Comments = append(view.Comments, commentView{
			ID:         comment.ID,
			AuthorName: comment.AuthorName,
			Body:       comment.Body,
			CreatedAt:  comment.CreatedAt,
		})
	}
	return view
}
