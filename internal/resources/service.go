package resources

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/lumenfolio/portal-backend/pkg/config"
	"github.com/lumenfolio/portal-backend/pkg/db/models"
	"github.com/lumenfolio/portal-backend/pkg/enums"
	pkgerrors "github.com/lumenfolio/portal-backend/pkg/errors"
	"github.com/lumenfolio/portal-backend/pkg/logger"
	"github.com/lumenfolio/portal-backend/pkg/mediastore"
	"github.com/lumenfolio/portal-backend/pkg/pagination"
	"github.com/lumenfolio/portal-backend/pkg/security"
)

const generatedCodeLength = 10

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type proposalInitializer interface {
	InitializeDraft(ctx context.Context, tx *gorm.DB, resourceID uuid.UUID) error
}

type mediaStore interface {
	Upload(ctx context.Context, data io.Reader, folder, name string) (*mediastore.UploadResult, error)
	Delete(ctx context.Context, assetID string) error
}

type resourcePurger interface {
	PurgeResource(ctx context.Context, resourceID uuid.UUID) error
}

// Service exposes admin resource management: galleries and projects, their
// settings, and their embedded media.
type Service interface {
	Create(ctx context.Context, input CreateResourceInput) (*CreateResult, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Resource, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateResourceInput) (*models.Resource, error)
	Delete(ctx context.Context, id uuid.UUID) error

	AttachMedia(ctx context.Context, resourceID uuid.UUID, input AttachMediaInput) (*models.MediaItem, error)
	RemoveMedia(ctx context.Context, resourceID, mediaID uuid.UUID) error
	LikeMedia(ctx context.Context, resourceID, mediaID uuid.UUID) (*models.MediaItem, error)
	CommentMedia(ctx context.Context, resourceID, mediaID uuid.UUID, authorName, body string) (*models.MediaComment, error)
}

// ServiceParams carries the resource service dependencies.
type ServiceParams struct {
	DB         txRunner
	Repo       Repository
	Proposals  proposalInitializer
	Media      mediaStore
	Ledger     resourcePurger
	Engagement resourcePurger
	AccessCfg  config.AccessCodeConfig
	MediaCfg   config.MediaStoreConfig
	Logger     *logger.Logger
}

type service struct {
	db         txRunner
	repo       Repository
	proposals  proposalInitializer
	media      mediaStore
	ledger     resourcePurger
	engagement resourcePurger
	accessCfg  config.AccessCodeConfig
	mediaCfg   config.MediaStoreConfig
	logg       *logger.Logger
}

// NewService wires the resource service.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Repo == nil {
		return nil, errors.New("resources repository is required")
	}
	if params.Proposals == nil {
		return nil, errors.New("proposals service is required")
	}
	if params.Media == nil {
		return nil, errors.New("media store is required")
	}
	if params.Ledger == nil {
		return nil, errors.New("ledger service is required")
	}
	if params.Engagement == nil {
		return nil, errors.New("engagement service is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	return &service{
		db:         params.DB,
		repo:       params.Repo,
		proposals:  params.Proposals,
		media:      params.Media,
		ledger:     params.Ledger,
		engagement: params.Engagement,
		accessCfg:  params.AccessCfg,
		mediaCfg:   params.MediaCfg,
		logg:       params.Logger,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateResourceInput) (*CreateResult, error) {
	if !input.Kind.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown resource kind")
	}
	if strings.TrimSpace(input.Title) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title is required")
	}
	if strings.TrimSpace(input.ClientName) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "client name is required")
	}
	if !strings.Contains(input.ClientEmail, "@") {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid client email")
	}
	if input.DownloadsPerWindow != nil && *input.DownloadsPerWindow <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "downloads per window must be positive")
	}

	resource := &models.Resource{
		ID:                 uuid.New(),
		Kind:               input.Kind,
		Title:              strings.TrimSpace(input.Title),
		ClientName:         strings.TrimSpace(input.ClientName),
		ClientEmail:        strings.TrimSpace(input.ClientEmail),
		Description:        input.Description,
		RequirePassword:    input.RequirePassword,
		AllowDownloads:     input.AllowDownloads,
		DownloadsPerWindow: input.DownloadsPerWindow,
		ExpiresAt:          input.ExpiresAt,
	}

	accessCode := ""
	if input.RequirePassword {
		accessCode = strings.TrimSpace(input.AccessCode)
		if accessCode == "" {
			generated, err := security.GenerateAccessCode(generatedCodeLength)
			if err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generating access code")
			}
			accessCode = generated
		}
		hash, err := security.HashAccessCode(accessCode, s.accessCfg)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hashing access code")
		}
		resource.AccessCodeHash = &hash
	}

	if resource.IsProject() {
		draft := enums.ProposalStatusDraft
		resource.Status = &draft
	}

	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, resource); err != nil {
			return err
		}
		if resource.IsProject() {
			return s.proposals.InitializeDraft(ctx, tx, resource.ID)
		}
		return nil
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "creating resource")
	}

	return &CreateResult{Resource: resource, AccessCode: accessCode}, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Resource, error) {
	resource, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "resource not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading resource")
	}
	return resource, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	query := listResourcesParams{Kind: params.Kind, Limit: params.Limit}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "listing resources")
	}

	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}
	return &ListResult{Items: rows, Cursor: cursor}, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, input UpdateResourceInput) (*models.Resource, error) {
	resource, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Title != nil {
		if strings.TrimSpace(*input.Title) == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "title cannot be empty")
		}
		resource.Title = strings.TrimSpace(*input.Title)
	}
	if input.ClientName != nil {
		resource.ClientName = strings.TrimSpace(*input.ClientName)
	}
	if input.ClientEmail != nil {
		if !strings.Contains(*input.ClientEmail, "@") {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid client email")
		}
		resource.ClientEmail = strings.TrimSpace(*input.ClientEmail)
	}
	if input.Description != nil {
		resource.Description = input.Description
	}
	if input.AllowDownloads != nil {
		resource.AllowDownloads = *input.AllowDownloads
	}
	if input.DownloadsPerWindow != nil {
		if *input.DownloadsPerWindow <= 0 {
			resource.DownloadsPerWindow = nil
		} else {
			resource.DownloadsPerWindow = input.DownloadsPerWindow
		}
	}
	if input.ExpiresAt != nil {
		resource.ExpiresAt = input.ExpiresAt
	}
	if input.ClearExpiry {
		resource.ExpiresAt = nil
	}

	if input.AccessCode != nil && strings.TrimSpace(*input.AccessCode) != "" {
		hash, err := security.HashAccessCode(strings.TrimSpace(*input.AccessCode), s.accessCfg)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hashing access code")
		}
		resource.AccessCodeHash = &hash
	}
	if input.RequirePassword != nil {
		if *input.RequirePassword && resource.AccessCodeHash == nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "an access code is required to protect this resource")
		}
		resource.RequirePassword = *input.RequirePassword
	}

	resource.UpdatedAt = time.Now().UTC()
	if err := s.repo.Save(ctx, resource); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "saving resource")
	}
	return resource, nil
}

// Delete removes the resource row (media and history cascade), then cleans
// up external state. Cleanup failures are logged, never surfaced: the
// resource is already gone and the operation has succeeded.
func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	resource, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deleting resource")
	}
	if !deleted {
		return pkgerrors.New(pkgerrors.CodeNotFound, "resource not found")
	}

	var cleanupErr error
	for _, item := range resource.MediaItems {
		if item.AssetID == "" {
			continue
		}
		cleanupErr = multierr.Append(cleanupErr, s.media.Delete(ctx, item.AssetID))
	}
	cleanupErr = multierr.Append(cleanupErr, s.ledger.PurgeResource(ctx, id))
	cleanupErr = multierr.Append(cleanupErr, s.engagement.PurgeResource(ctx, id))
	if cleanupErr != nil {
		logCtx := s.logg.WithResourceID(ctx, id.String())
		s.logg.Error(logCtx, "resource cleanup finished with errors", cleanupErr)
	}
	return nil
}

func (s *service) AttachMedia(ctx context.Context, resourceID uuid.UUID, input AttachMediaInput) (*models.MediaItem, error) {
	if strings.TrimSpace(input.FileName) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "file name is required")
	}
	if input.Data == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "file content is required")
	}
	if _, err := s.Get(ctx, resourceID); err != nil {
		return nil, err
	}

	folder := path.Join(s.mediaCfg.UploadFolder, resourceID.String())
	result, err := s.media.Upload(ctx, input.Data, folder, input.FileName)
	if err != nil {
		// Upload is the primary operation here, so the failure surfaces.
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "uploading media")
	}

	position, err := s.repo.CountMediaItems(ctx, resourceID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "counting media")
	}

	item := &models.MediaItem{
		ID:              uuid.New(),
		ResourceID:      resourceID,
		Kind:            mediaKindFromFormat(result.Format),
		AssetID:         result.ID,
		Title:           input.Title,
		PermanentURL:    result.PermanentURL,
		ThumbnailURL:    result.ThumbnailURL,
		SizeBytes:       result.SizeBytes,
		Format:          result.Format,
		Width:           result.Width,
		Height:          result.Height,
		DurationSeconds: result.DurationSeconds,
		Pages:           result.Pages,
		Position:        int(position),
	}
	if err := s.repo.AddMediaItem(ctx, item); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "saving media item")
	}
	return item, nil
}

func (s *service) RemoveMedia(ctx context.Context, resourceID, mediaID uuid.UUID) error {
	item, err := s.repo.GetMediaItem(ctx, resourceID, mediaID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "media item not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading media item")
	}

	deleted, err := s.repo.DeleteMediaItem(ctx, resourceID, mediaID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deleting media item")
	}
	if !deleted {
		return pkgerrors.New(pkgerrors.CodeNotFound, "media item not found")
	}

	if item.AssetID != "" {
		if err := s.media.Delete(ctx, item.AssetID); err != nil {
			logCtx := s.logg.WithResourceID(ctx, resourceID.String())
			s.logg.Error(logCtx, "media store delete failed", err)
		}
	}
	return nil
}

func (s *service) LikeMedia(ctx context.Context, resourceID, mediaID uuid.UUID) (*models.MediaItem, error) {
	liked, err := s.repo.IncrementLike(ctx, resourceID, mediaID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "liking media item")
	}
	if !liked {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "media item not found")
	}
	item, err := s.repo.GetMediaItem(ctx, resourceID, mediaID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading media item")
	}
	return item, nil
}

func (s *service) CommentMedia(ctx context.Context, resourceID, mediaID uuid.UUID, authorName, body string) (*models.MediaComment, error) {
	if strings.TrimSpace(authorName) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "author name is required")
	}
	if strings.TrimSpace(body) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "comment body is required")
	}

	if _, err := s.repo.GetMediaItem(ctx, resourceID, mediaID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "media item not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading media item")
	}

	comment := &models.MediaComment{
		ID:          uuid.New(),
		MediaItemID: mediaID,
		AuthorName:  strings.TrimSpace(authorName),
		Body:        strings.TrimSpace(body),
	}
	if err := s.repo.AddComment(ctx, comment); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "saving comment")
	}
	return comment, nil
}

func mediaKindFromFormat(format string) enums.MediaItemKind {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(format), ".")) {
	case "jpg", "jpeg", "png", "gif", "webp", "heic", "tiff", "raw", "dng":
		return enums.MediaItemKindImage
	case "mp4", "mov", "webm", "avi", "mkv":
		return enums.MediaItemKindVideo
	default:
		return enums.MediaItemKindDocument
	}
}
