package portal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lumenfolio/portal-backend/internal/access"
	"github.com/lumenfolio/portal-backend/internal/exports"
	"github.com/lumenfolio/portal-backend/internal/ledger"
	"github.com/lumenfolio/portal-backend/internal/notifications"
	"github.com/lumenfolio/portal-backend/pkg/config"
	"github.com/lumenfolio/portal-backend/pkg/db/models"
	"github.com/lumenfolio/portal-backend/pkg/enums"
	pkgerrors "github.com/lumenfolio/portal-backend/pkg/errors"
	"github.com/lumenfolio/portal-backend/pkg/logger"
	"github.com/lumenfolio/portal-backend/pkg/types"
)

const (
	sideEffectTimeout = 10 * time.Second
	anonymousAuthor   = "Anonymous"
)

type resourceService interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Resource, error)
	LikeMedia(ctx context.Context, resourceID, mediaID uuid.UUID) (*models.MediaItem, error)
	CommentMedia(ctx context.Context, resourceID, mediaID uuid.UUID, authorName, body string) (*models.MediaComment, error)
}

type accessService interface {
	RequiresAccessCode(resource *models.Resource) bool
	Verify(ctx context.Context, resource *models.Resource, suppliedCode string) (string, error)
	Validate(ctx context.Context, token string, resourceID uuid.UUID) (bool, error)
	Sanitize(resource *models.Resource) access.PublicStub
}

type proposalService interface {
	Respond(ctx context.Context, resourceID uuid.UUID, to enums.ProposalStatus, note *string) (*models.Resource, error)
	MarkViewedIfSent(ctx context.Context, resourceID uuid.UUID) (bool, error)
}

type ledgerService interface {
	CheckAndReserve(ctx context.Context, resourceID uuid.UUID, clientKey string, units int, limit *int) (ledger.Decision, error)
}

type engagementService interface {
	Ingest(ctx context.Context, resourceID uuid.UUID, eventType enums.EngagementEventType, properties types.JSONMap) error
}

type mailNotifier interface {
	ProposalResponse(ctx context.Context, resource *models.Resource, status enums.ProposalStatus, note *string)
}

type notificationService interface {
	Notify(ctx context.Context, input notifications.NotifyInput) error
}

type rateLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// ViewResult is what an anonymous visitor sees: the sanitized stub until a
// valid portal session is presented, the full resource after.
type ViewResult struct {
	Authorized bool
	Stub       *access.PublicStub
	Resource   *models.Resource
}

// DownloadGrant is a single-item download approved by the ledger.
type DownloadGrant struct {
	Item      *models.MediaItem
	Remaining int
}

// Service is the anonymous portal facade. Every operation resolves the
// resource, enforces expiry and session checks, then delegates to the
// owning service. Side effects (events, notifications, mail) never block
// or fail the request.
type Service interface {
	View(ctx context.Context, resourceID uuid.UUID, sessionToken string) (*ViewResult, error)
	Authenticate(ctx context.Context, resourceID uuid.UUID, code, clientKey string) (string, error)
	Respond(ctx context.Context, resourceID uuid.UUID, sessionToken string, to enums.ProposalStatus, note *string) (*models.Resource, error)
	Download(ctx context.Context, resourceID, mediaID uuid.UUID, sessionToken, clientKey string) (*DownloadGrant, error)
	DownloadAll(ctx context.Context, resourceID uuid.UUID, sessionToken, clientKey string, w io.Writer) (*exports.Result, error)
	LikeMedia(ctx context.Context, resourceID, mediaID uuid.UUID, sessionToken string) (*models.MediaItem, error)
	CommentMedia(ctx context.Context, resourceID, mediaID uuid.UUID, sessionToken, authorName, body string) (*models.MediaComment, error)
	TrackEvent(ctx context.Context, resourceID uuid.UUID, sessionToken string, eventType enums.EngagementEventType, properties types.JSONMap) error
}

// ServiceParams carries the portal facade dependencies.
type ServiceParams struct {
	Resources     resourceService
	Access        accessService
	Proposals     proposalService
	Ledger        ledgerService
	Engagement    engagementService
	Exports       exports.Assembler
	Notifier      mailNotifier
	Notifications notificationService
	Limiter       rateLimiter
	AccessCfg     config.AccessCodeConfig
	Logger        *logger.Logger
}

type service struct {
	resources     resourceService
	access        accessService
	proposals     proposalService
	ledger        ledgerService
	engagement    engagementService
	exports       exports.Assembler
	notifier      mailNotifier
	notifications notificationService
	limiter       rateLimiter
	accessCfg     config.AccessCodeConfig
	logg          *logger.Logger
}

// NewService wires the portal facade.
func NewService(params ServiceParams) (Service, error) {
	if params.Resources == nil {
		return nil, errors.New("resources service is required")
	}
	if params.Access == nil {
		return nil, errors.New("access service is required")
	}
	if params.Proposals == nil {
		return nil, errors.New("proposals service is required")
	}
	if params.Ledger == nil {
		return nil, errors.New("ledger service is required")
	}
	if params.Engagement == nil {
		return nil, errors.New("engagement service is required")
	}
	if params.Exports == nil {
		return nil, errors.New("export assembler is required")
	}
	if params.Notifier == nil {
		return nil, errors.New("mail notifier is required")
	}
	if params.Notifications == nil {
		return nil, errors.New("notifications service is required")
	}
	if params.Limiter == nil {
		return nil, errors.New("rate limiter is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	return &service{
		resources:     params.Resources,
		access:        params.Access,
		proposals:     params.Proposals,
		ledger:        params.Ledger,
		engagement:    params.Engagement,
		exports:       params.Exports,
		notifier:      params.Notifier,
		notifications: params.Notifications,
		limiter:       params.Limiter,
		accessCfg:     params.AccessCfg,
		logg:          params.Logger,
	}, nil
}

// View returns the sanitized stub until the visitor holds a valid session,
// the full resource after. The first authorized view of a sent proposal
// flips it to viewed and records the view event.
func (s *service) View(ctx context.Context, resourceID uuid.UUID, sessionToken string) (*ViewResult, error) {
	resource, err := s.resources.Get(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	if resource.IsExpired(time.Now().UTC()) {
		return nil, pkgerrors.New(pkgerrors.CodeGone, "this link has expired")
	}

	if s.access.RequiresAccessCode(resource) {
		authorized, err := s.access.Validate(ctx, sessionToken, resourceID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "validating portal session")
		}
		if !authorized {
			stub := s.access.Sanitize(resource)
			return &ViewResult{Stub: &stub}, nil
		}
	}

	if resource.IsProject() {
		s.recordProposalOpened(ctx, resource)
	}
	return &ViewResult{Authorized: true, Resource: resource}, nil
}

func (s *service) recordProposalOpened(ctx context.Context, resource *models.Resource) {
	if err := s.engagement.Ingest(ctx, resource.ID, enums.EventProposalViewed, nil); err != nil {
		s.warnEvent(ctx, resource.ID, "recording proposal view failed", err)
	}
	go func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, sideEffectTimeout)
		defer cancel()
		if _, err := s.proposals.MarkViewedIfSent(ctx, resource.ID); err != nil {
			s.logg.Error(s.logg.WithResourceID(ctx, resource.ID.String()), "marking proposal viewed failed", err)
		}
	}(context.WithoutCancel(ctx))
}

// Authenticate trades an access code for a session token. Failures are
// uniform: a missing resource, an expired link, and a wrong code all
// answer "invalid access code". Attempts are rate limited per
// resource+client and per client across resources.
func (s *service) Authenticate(ctx context.Context, resourceID uuid.UUID, code, clientKey string) (string, error) {
	if clientKey == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "client key is required")
	}

	pairScope := fmt.Sprintf("verify:%s:%s", resourceID, clientKey)
	allowed, _, err := s.limiter.FixedWindowAllow(ctx, pairScope, int64(s.accessCfg.VerifyLimit), s.accessCfg.VerifyWindow)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "checking verification rate limit")
	}
	if allowed {
		allowed, _, err = s.limiter.FixedWindowAllow(ctx, "verify_ip:"+clientKey, int64(s.accessCfg.VerifyIPLimit), s.accessCfg.VerifyWindow)
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "checking verification rate limit")
		}
	}
	if !allowed {
		return "", pkgerrors.New(pkgerrors.CodeRateLimit, "too many attempts, try again later")
	}

	resource, err := s.resources.Get(ctx, resourceID)
	if err != nil {
		return "", pkgerrors.New(pkgerrors.CodeInvalidCode, "invalid access code")
	}
	if resource.IsExpired(time.Now().UTC()) {
		return "", pkgerrors.New(pkgerrors.CodeInvalidCode, "invalid access code")
	}

	token, err := s.access.Verify(ctx, resource, code)
	if err != nil {
		return "", err
	}

	if resource.Kind == enums.ResourceKindGallery {
		s.notifyAsync(ctx, notifications.NotifyInput{
			Type:       enums.NotificationGalleryAccessed,
			ResourceID: &resource.ID,
			Title:      "Gallery accessed",
			Message:    fmt.Sprintf("%s opened %q", resource.ClientName, resource.Title),
		})
	}
	return token, nil
}

// Respond applies a client decision to a proposal and fans out the email,
// the dashboard notification, and the engagement event.
func (s *service) Respond(ctx context.Context, resourceID uuid.UUID, sessionToken string, to enums.ProposalStatus, note *string) (*models.Resource, error) {
	resource, err := s.authorize(ctx, resourceID, sessionToken)
	if err != nil {
		return nil, err
	}
	if !resource.IsProject() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "only proposals accept responses")
	}

	updated, err := s.proposals.Respond(ctx, resourceID, to, note)
	if err != nil {
		return nil, err
	}

	s.notifier.ProposalResponse(ctx, updated, to, note)
	s.notifyAsync(ctx, responseNotification(updated, to))
	if event, ok := responseEvent(to); ok {
		props := types.JSONMap{}
		if note != nil {
			props["note"] = *note
		}
		if err := s.engagement.Ingest(ctx, resourceID, event, props); err != nil {
			s.warnEvent(ctx, resourceID, "recording proposal response failed", err)
		}
	}
	return updated, nil
}

// Download grants a single-item download after reserving one ledger unit.
func (s *service) Download(ctx context.Context, resourceID, mediaID uuid.UUID, sessionToken, clientKey string) (*DownloadGrant, error) {
	resource, err := s.authorize(ctx, resourceID, sessionToken)
	if err != nil {
		return nil, err
	}
	if !resource.AllowDownloads {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "downloads are disabled for this resource")
	}
	item := findMediaItem(resource, mediaID)
	if item == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "media item not found")
	}
	if clientKey == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "client key is required")
	}

	decision, err := s.ledger.CheckAndReserve(ctx, resourceID, clientKey, 1, resource.DownloadsPerWindow)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reserving download")
	}
	if !decision.Allowed {
		return nil, pkgerrors.New(pkgerrors.CodeRateLimit, "download limit reached")
	}

	if err := s.engagement.Ingest(ctx, resourceID, enums.EventMediaDownloaded, types.JSONMap{"mediaId": mediaID.String()}); err != nil {
		s.warnEvent(ctx, resourceID, "recording download failed", err)
	}
	return &DownloadGrant{Item: item, Remaining: decision.Remaining}, nil
}

// DownloadAll streams the whole resource as a zip archive through w.
func (s *service) DownloadAll(ctx context.Context, resourceID uuid.UUID, sessionToken, clientKey string, w io.Writer) (*exports.Result, error) {
	resource, err := s.authorize(ctx, resourceID, sessionToken)
	if err != nil {
		return nil, err
	}
	if clientKey == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "client key is required")
	}

	result, err := s.exports.Assemble(ctx, resource, clientKey, w)
	if err != nil {
		return nil, err
	}

	props := types.JSONMap{"bulk": true, "items": result.ItemsSent}
	if err := s.engagement.Ingest(ctx, resourceID, enums.EventMediaDownloaded, props); err != nil {
		s.warnEvent(ctx, resourceID, "recording bulk download failed", err)
	}
	return result, nil
}

func (s *service) LikeMedia(ctx context.Context, resourceID, mediaID uuid.UUID, sessionToken string) (*models.MediaItem, error) {
	if _, err := s.authorize(ctx, resourceID, sessionToken); err != nil {
		return nil, err
	}
	return s.resources.LikeMedia(ctx, resourceID, mediaID)
}

func (s *service) CommentMedia(ctx context.Context, resourceID, mediaID uuid.UUID, sessionToken, authorName, body string) (*models.MediaComment, error) {
	resource, err := s.authorize(ctx, resourceID, sessionToken)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(authorName) == "" {
		authorName = anonymousAuthor
	}

	comment, err := s.resources.CommentMedia(ctx, resourceID, mediaID, authorName, body)
	if err != nil {
		return nil, err
	}

	s.notifyAsync(ctx, notifications.NotifyInput{
		Type:       enums.NotificationNewComment,
		ResourceID: &resource.ID,
		Title:      "New comment",
		Message:    fmt.Sprintf("%s commented on %q", comment.AuthorName, resource.Title),
	})
	if resource.IsProject() {
		props := types.JSONMap{"mediaId": mediaID.String()}
		if err := s.engagement.Ingest(ctx, resourceID, enums.EventProposalComment, props); err != nil {
			s.warnEvent(ctx, resourceID, "recording comment event failed", err)
		}
	}
	return comment, nil
}

// TrackEvent accepts client-side beacons. Only passive telemetry may come
// in through this door; lifecycle events are recorded server-side.
func (s *service) TrackEvent(ctx context.Context, resourceID uuid.UUID, sessionToken string, eventType enums.EngagementEventType, properties types.JSONMap) error {
	if !beaconEventTypes[eventType] {
		return pkgerrors.New(pkgerrors.CodeValidation, "event type cannot be reported by clients")
	}
	if _, err := s.authorize(ctx, resourceID, sessionToken); err != nil {
		return err
	}
	return s.engagement.Ingest(ctx, resourceID, eventType, properties)
}

var beaconEventTypes = map[enums.EngagementEventType]bool{
	enums.EventProposalSectionViewed: true,
	enums.EventProposalTimeSpent:     true,
	enums.EventMediaViewed:           true,
}

func findMediaItem(resource *models.Resource, mediaID uuid.UUID) *models.MediaItem {
	for i := range resource.MediaItems {
		if resource.MediaItems[i].ID == mediaID {
			return &resource.MediaItems[i]
		}
	}
	return nil
}

// authorize loads the resource and enforces expiry and the session gate.
func (s *service) authorize(ctx context.Context, resourceID uuid.UUID, sessionToken string) (*models.Resource, error) {
	resource, err := s.resources.Get(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	if resource.IsExpired(time.Now().UTC()) {
		return nil, pkgerrors.New(pkgerrors.CodeGone, "this link has expired")
	}
	if s.access.RequiresAccessCode(resource) {
		authorized, err := s.access.Validate(ctx, sessionToken, resourceID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "validating portal session")
		}
		if !authorized {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "a portal session is required")
		}
	}
	return resource, nil
}

func (s *service) warnEvent(ctx context.Context, resourceID uuid.UUID, msg string, err error) {
	logCtx := s.logg.WithResourceID(ctx, resourceID.String())
	logCtx = s.logg.WithField(logCtx, "error", err.Error())
	s.logg.Warn(logCtx, msg)
}

func (s *service) notifyAsync(ctx context.Context, input notifications.NotifyInput) {
	go func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, sideEffectTimeout)
		defer cancel()
		if err := s.notifications.Notify(ctx, input); err != nil {
			s.logg.Error(ctx, "dashboard notification failed", err)
		}
	}(context.WithoutCancel(ctx))
}

func responseNotification(resource *models.Resource, to enums.ProposalStatus) notifications.NotifyInput {
	input := notifications.NotifyInput{ResourceID: &resource.ID}
	switch to {
	case enums.ProposalStatusApproved:
		input.Type = enums.NotificationProposalApproved
		input.Title = "Proposal approved"
		input.Message = fmt.Sprintf("%s approved %q", resource.ClientName, resource.Title)
	case enums.ProposalStatusRejected:
		input.Type = enums.NotificationProposalRejected
		input.Title = "Proposal declined"
		input.Message = fmt.Sprintf("%s declined %q", resource.ClientName, resource.Title)
	default:
		input.Type = enums.NotificationRevisionRequested
		input.Title = "Changes requested"
		input.Message = fmt.Sprintf("%s requested changes to %q", resource.ClientName, resource.Title)
	}
	return input
}

func responseEvent(to enums.ProposalStatus) (enums.EngagementEventType, bool) {
	switch to {
	case enums.ProposalStatusApproved:
		return enums.EventProposalApproved, true
	case enums.ProposalStatusRejected:
		return enums.EventProposalRejected, true
	case enums.ProposalStatusRevised:
		return enums.EventProposalRevisionRequest, true
	default:
		return "", false
	}
}
