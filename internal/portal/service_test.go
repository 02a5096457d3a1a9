package portal

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

const validToken = "tok-valid"

type fakeResources struct {
	resources map[uuid.UUID]*models.Resource
	liked     []uuid.UUID
	comments  []string
}

func (f *fakeResources) Get(ctx context.Context, id uuid.UUID) (*models.Resource, error) {
	resource, ok := f.resources[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "resource not found")
	}
	return resource, nil
}

func (f *fakeResources) LikeMedia(ctx context.Context, resourceID, mediaID uuid.UUID) (*models.MediaItem, error) {
	f.liked = append(f.liked, mediaID)
	return &models.MediaItem{ID: mediaID, ResourceID: resourceID, LikeCount: 1}, nil
}

func (f *fakeResources) CommentMedia(ctx context.Context, resourceID, mediaID uuid.UUID, authorName, body string) (*models.MediaComment, error) {
	f.comments = append(f.comments, authorName+": "+body)
	return &models.MediaComment{ID: uuid.New(), MediaItemID: mediaID, AuthorName: authorName, Body: body}, nil
}

type fakeAccess struct {
	verifyErr error
	tokens    []string
}

func (f *fakeAccess) RequiresAccessCode(resource *models.Resource) bool {
	return resource != nil && resource.RequirePassword
}

func (f *fakeAccess) Verify(ctx context.Context, resource *models.Resource, code string) (string, error) {
	if f.verifyErr != nil {
		return "", f.verifyErr
	}
	token := "issued-" + code
	f.tokens = append(f.tokens, token)
	return token, nil
}

func (f *fakeAccess) Validate(ctx context.Context, token string, resourceID uuid.UUID) (bool, error) {
	return token == validToken, nil
}

func (f *fakeAccess) Sanitize(resource *models.Resource) access.PublicStub {
	return access.PublicStub{ID: resource.ID, Title: resource.Title, RequiresPassword: resource.RequirePassword}
}

type fakeProposals struct {
	respondErr error
	responded  []enums.ProposalStatus
	viewed     chan uuid.UUID
}

func newFakeProposals() *fakeProposals {
	return &fakeProposals{viewed: make(chan uuid.UUID, 4)}
}

func (f *fakeProposals) Respond(ctx context.Context, resourceID uuid.UUID, to enums.ProposalStatus, note *string) (*models.Resource, error) {
	if f.respondErr != nil {
		return nil, f.respondErr
	}
	f.responded = append(f.responded, to)
	return &models.Resource{ID: resourceID, Kind: enums.ResourceKindProject, Title: "Proposal", ClientName: "Acme", Status: &to}, nil
}

func (f *fakeProposals) MarkViewedIfSent(ctx context.Context, resourceID uuid.UUID) (bool, error) {
	f.viewed <- resourceID
	return true, nil
}

type fakeLedger struct {
	decision ledger.Decision
	calls    []int
}

func (f *fakeLedger) CheckAndReserve(ctx context.Context, resourceID uuid.UUID, clientKey string, units int, limit *int) (ledger.Decision, error) {
	f.calls = append(f.calls, units)
	return f.decision, nil
}

type fakeEngagement struct {
	mu     sync.Mutex
	err    error
	events []enums.EngagementEventType
	props  []types.JSONMap
}

func (f *fakeEngagement) Ingest(ctx context.Context, resourceID uuid.UUID, eventType enums.EngagementEventType, properties types.JSONMap) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, eventType)
	f.props = append(f.props, properties)
	return nil
}

func (f *fakeEngagement) eventTypes() []enums.EngagementEventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]enums.EngagementEventType(nil), f.events...)
}

type fakeAssembler struct {
	result *exports.Result
	err    error
}

func (f *fakeAssembler) Assemble(ctx context.Context, resource *models.Resource, clientKey string, w io.Writer) (*exports.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	_, _ = w.Write([]byte("zip-bytes"))
	return f.result, nil
}

type fakeNotifier struct {
	responses []enums.ProposalStatus
}

func (f *fakeNotifier) ProposalResponse(ctx context.Context, resource *models.Resource, status enums.ProposalStatus, note *string) {
	f.responses = append(f.responses, status)
}

type fakeNotifications struct {
	inputs chan notifications.NotifyInput
}

func newFakeNotifications() *fakeNotifications {
	return &fakeNotifications{inputs: make(chan notifications.NotifyInput, 4)}
}

func (f *fakeNotifications) Notify(ctx context.Context, input notifications.NotifyInput) error {
	f.inputs <- input
	return nil
}

type fakeLimiter struct {
	denyScopes map[string]bool
	scopes     []string
}

func (f *fakeLimiter) FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error) {
	f.scopes = append(f.scopes, scope)
	if f.denyScopes[scope] {
		return false, limit + 1, nil
	}
	return true, 1, nil
}

type portalDeps struct {
	resources     *fakeResources
	access        *fakeAccess
	proposals     *fakeProposals
	ledger        *fakeLedger
	engagement    *fakeEngagement
	assembler     *fakeAssembler
	notifier      *fakeNotifier
	notifications *fakeNotifications
	limiter       *fakeLimiter
}

func newPortalService(t *testing.T, deps *portalDeps) Service {
	t.Helper()
	if deps.resources == nil {
		deps.resources = &fakeResources{resources: map[uuid.UUID]*models.Resource{}}
	}
	if deps.access == nil {
		deps.access = &fakeAccess{}
	}
	if deps.proposals == nil {
		deps.proposals = newFakeProposals()
	}
	if deps.ledger == nil {
		deps.ledger = &fakeLedger{decision: ledger.Decision{Allowed: true, Remaining: -1}}
	}
	if deps.engagement == nil {
		deps.engagement = &fakeEngagement{}
	}
	if deps.assembler == nil {
		deps.assembler = &fakeAssembler{result: &exports.Result{ItemsSent: 1, Remaining: -1}}
	}
	if deps.notifier == nil {
		deps.notifier = &fakeNotifier{}
	}
	if deps.notifications == nil {
		deps.notifications = newFakeNotifications()
	}
	if deps.limiter == nil {
		deps.limiter = &fakeLimiter{}
	}
	svc, err := NewService(ServiceParams{
		Resources:     deps.resources,
		Access:        deps.access,
		Proposals:     deps.proposals,
		Ledger:        deps.ledger,
		Engagement:    deps.engagement,
		Exports:       deps.assembler,
		Notifier:      deps.notifier,
		Notifications: deps.notifications,
		Limiter:       deps.limiter,
		AccessCfg:     config.AccessCodeConfig{VerifyWindow: time.Minute, VerifyLimit: 3, VerifyIPLimit: 10},
		Logger:        logger.New(logger.Options{ServiceName: "portal-test", Output: io.Discard}),
	})
	require.NoError(t, err)
	return svc
}

func protectedGallery() *models.Resource {
	hash := "argon2id$stub"
	return &models.Resource{
		ID:              uuid.New(),
		Kind:            enums.ResourceKindGallery,
		Title:           "Autumn Wedding",
		ClientName:      "Jansen Family",
		RequirePassword: true,
		AccessCodeHash:  &hash,
		AllowDownloads:  true,
		MediaItems: []models.MediaItem{
			{ID: uuid.New(), PermanentURL: "https://media/1", Format: "jpg"},
		},
	}
}

func sentProposal() *models.Resource {
	status := enums.ProposalStatusSent
	resource := protectedGallery()
	resource.Kind = enums.ResourceKindProject
	resource.Status = &status
	return resource
}

func waitNotification(t *testing.T, ch chan notifications.NotifyInput) notifications.NotifyInput {
	t.Helper()
	select {
	case input := <-ch:
		return input
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification")
		return notifications.NotifyInput{}
	}
}

func TestView_StubWithoutSession(t *testing.T) {
	resource := protectedGallery()
	deps := &portalDeps{resources: &fakeResources{resources: map[uuid.UUID]*models.Resource{resource.ID: resource}}}
	svc := newPortalService(t, deps)

	result, err := svc.View(context.Background(), resource.ID, "")
	require.NoError(t, err)
	assert.False(t, result.Authorized)
	require.NotNil(t, result.Stub)
	assert.Nil(t, result.Resource)
	assert.True(t, result.Stub.RequiresPassword)
}

func TestView_FullWithSessionMarksProposalViewed(t *testing.T) {
	resource := sentProposal()
	deps := &portalDeps{
		resources: &fakeResources{resources: map[uuid.UUID]*models.Resource{resource.ID: resource}},
		proposals: newFakeProposals(),
	}
	svc := newPortalService(t, deps)

	result, err := svc.View(context.Background(), resource.ID, validToken)
	require.NoError(t, err)
	assert.True(t, result.Authorized)
	require.NotNil(t, result.Resource)

	select {
	case viewedID := <-deps.proposals.viewed:
		assert.Equal(t, resource.ID, viewedID)
	case <-time.After(2 * time.Second):
		t.Fatal("proposal was never marked viewed")
	}
	assert.Contains(t, deps.engagement.eventTypes(), enums.EventProposalViewed)
}

func TestView_ExpiredIsGone(t *testing.T) {
	resource := protectedGallery()
	past := time.Now().Add(-time.Hour)
	resource.ExpiresAt = &past
	deps := &portalDeps{resources: &fakeResources{resources: map[uuid.UUID]*models.Resource{resource.ID: resource}}}
	svc := newPortalService(t, deps)

	_, err := svc.View(context.Background(), resource.ID, validToken)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeGone, pkgerrors.As(err).Code())
}

func TestAuthenticate_IssuesToken(t *testing.T) {
	resource := protectedGallery()
	deps := &portalDeps{resources: &fakeResources{resources: map[uuid.UUID]*models.Resource{resource.ID: resource}}}
	svc := newPortalService(t, deps)

	token, err := svc.Authenticate(context.Background(), resource.ID, "summer-2026", "203.0.113.7")
	require.NoError(t, err)
	assert.Equal(t, "issued-summer-2026", token)

	input := waitNotification(t, deps.notifications.inputs)
	assert.Equal(t, enums.NotificationGalleryAccessed, input.Type)
	require.NotNil(t, input.ResourceID)
	assert.Equal(t, resource.ID, *input.ResourceID)
}

func TestAuthenticate_RateLimited(t *testing.T) {
	resource := protectedGallery()
	clientKey := "203.0.113.7"
	deps := &portalDeps{
		resources: &fakeResources{resources: map[uuid.UUID]*models.Resource{resource.ID: resource}},
		limiter:   &fakeLimiter{denyScopes: map[string]bool{"verify:" + resource.ID.String() + ":" + clientKey: true}},
	}
	svc := newPortalService(t, deps)

	_, err := svc.Authenticate(context.Background(), resource.ID, "whatever", clientKey)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeRateLimit, pkgerrors.As(err).Code())
	assert.Empty(t, deps.access.tokens, "no verification after the limiter says no")
}

func TestAuthenticate_UniformFailures(t *testing.T) {
	expired := protectedGallery()
	past := time.Now().Add(-time.Hour)
	expired.ExpiresAt = &past
	deps := &portalDeps{resources: &fakeResources{resources: map[uuid.UUID]*models.Resource{expired.ID: expired}}}
	svc := newPortalService(t, deps)

	_, err := svc.Authenticate(context.Background(), uuid.New(), "code", "203.0.113.7")
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeInvalidCode, pkgerrors.As(err).Code())
	missingMsg := pkgerrors.As(err).Error()

	_, err = svc.Authenticate(context.Background(), expired.ID, "code", "203.0.113.7")
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeInvalidCode, pkgerrors.As(err).Code())
	assert.Equal(t, missingMsg, pkgerrors.As(err).Error(), "missing and expired must be indistinguishable")
}

func TestRespond_FansOut(t *testing.T) {
	resource := sentProposal()
	deps := &portalDeps{
		resources: &fakeResources{resources: map[uuid.UUID]*models.Resource{resource.ID: resource}},
		proposals: newFakeProposals(),
	}
	svc := newPortalService(t, deps)

	note := "love it"
	updated, err := svc.Respond(context.Background(), resource.ID, validToken, enums.ProposalStatusApproved, &note)
	require.NoError(t, err)
	require.NotNil(t, updated.Status)
	assert.Equal(t, enums.ProposalStatusApproved, *updated.Status)

	assert.Equal(t, []enums.ProposalStatus{enums.ProposalStatusApproved}, deps.notifier.responses)
	input := waitNotification(t, deps.notifications.inputs)
	assert.Equal(t, enums.NotificationProposalApproved, input.Type)
	assert.Contains(t, deps.engagement.eventTypes(), enums.EventProposalApproved)
}

func TestRespond_RequiresSession(t *testing.T) {
	resource := sentProposal()
	deps := &portalDeps{resources: &fakeResources{resources: map[uuid.UUID]*models.Resource{resource.ID: resource}}}
	svc := newPortalService(t, deps)

	_, err := svc.Respond(context.Background(), resource.ID, "bogus", enums.ProposalStatusApproved, nil)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeUnauthorized, pkgerrors.As(err).Code())
	assert.Empty(t, deps.proposals.responded)
}

func TestRespond_GalleriesDoNotRespond(t *testing.T) {
	resource := protectedGallery()
	deps := &portalDeps{resources: &fakeResources{resources: map[uuid.UUID]*models.Resource{resource.ID: resource}}}
	svc := newPortalService(t, deps)

	_, err := svc.Respond(context.Background(), resource.ID, validToken, enums.ProposalStatusApproved, nil)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestDownload_GrantsItem(t *testing.T) {
	resource := protectedGallery()
	item := resource.MediaItems[0]
	ledgerFake := &fakeLedger{decision: ledger.Decision{Allowed: true, Remaining: 4}}
	deps := &portalDeps{
		resources: &fakeResources{resources: map[uuid.UUID]*models.Resource{resource.ID: resource}},
		ledger:    ledgerFake,
	}
	svc := newPortalService(t, deps)

	grant, err := svc.Download(context.Background(), resource.ID, item.ID, validToken, "203.0.113.7")
	require.NoError(t, err)
	assert.Equal(t, item.PermanentURL, grant.Item.PermanentURL)
	assert.Equal(t, 4, grant.Remaining)
	assert.Equal(t, []int{1}, ledgerFake.calls)
	assert.Contains(t, deps.engagement.eventTypes(), enums.EventMediaDownloaded)
}

func TestDownload_EventFailureDoesNotBlockGrant(t *testing.T) {
	resource := protectedGallery()
	item := resource.MediaItems[0]
	deps := &portalDeps{
		resources:  &fakeResources{resources: map[uuid.UUID]*models.Resource{resource.ID: resource}},
		ledger:     &fakeLedger{decision: ledger.Decision{Allowed: true, Remaining: 2}},
		engagement: &fakeEngagement{err: pkgerrors.New(pkgerrors.CodeDependency, "events unavailable")},
	}
	svc := newPortalService(t, deps)

	grant, err := svc.Download(context.Background(), resource.ID, item.ID, validToken, "203.0.113.7")
	require.NoError(t, err)
	assert.Equal(t, 2, grant.Remaining)
}

func TestDownload_LedgerDenied(t *testing.T) {
	resource := protectedGallery()
	deps := &portalDeps{
		resources: &fakeResources{resources: map[uuid.UUID]*models.Resource{resource.ID: resource}},
		ledger:    &fakeLedger{decision: ledger.Decision{Allowed: false}},
	}
	svc := newPortalService(t, deps)

	_, err := svc.Download(context.Background(), resource.ID, resource.MediaItems[0].ID, validToken, "203.0.113.7")
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeRateLimit, pkgerrors.As(err).Code())
	assert.Empty(t, deps.engagement.eventTypes())
}

func TestDownload_DisabledDownloads(t *testing.T) {
	resource := protectedGallery()
	resource.AllowDownloads = false
	deps := &portalDeps{resources: &fakeResources{resources: map[uuid.UUID]*models.Resource{resource.ID: resource}}}
	svc := newPortalService(t, deps)

	_, err := svc.Download(context.Background(), resource.ID, resource.MediaItems[0].ID, validToken, "203.0.113.7")
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeForbidden, pkgerrors.As(err).Code())
}

func TestDownloadAll_StreamsArchive(t *testing.T) {
	resource := protectedGallery()
	deps := &portalDeps{
		resources: &fakeResources{resources: map[uuid.UUID]*models.Resource{resource.ID: resource}},
		assembler: &fakeAssembler{result: &exports.Result{ItemsSent: 3, Remaining: 2}},
	}
	svc := newPortalService(t, deps)

	var buf bytes.Buffer
	result, err := svc.DownloadAll(context.Background(), resource.ID, validToken, "203.0.113.7", &buf)
	require.NoError(t, err)
	assert.Equal(t, 3, result.ItemsSent)
	assert.Equal(t, "zip-bytes", buf.String())
	assert.Contains(t, deps.engagement.eventTypes(), enums.EventMediaDownloaded)
}

func TestDownloadAll_AssemblerErrorPropagates(t *testing.T) {
	resource := protectedGallery()
	deps := &portalDeps{
		resources: &fakeResources{resources: map[uuid.UUID]*models.Resource{resource.ID: resource}},
		assembler: &fakeAssembler{err: pkgerrors.New(pkgerrors.CodeRateLimit, "download limit reached")},
	}
	svc := newPortalService(t, deps)

	_, err := svc.DownloadAll(context.Background(), resource.ID, validToken, "203.0.113.7", io.Discard)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeRateLimit, pkgerrors.As(err).Code())
	assert.Empty(t, deps.engagement.eventTypes())
}

func TestCommentMedia_DefaultsAuthorAndNotifies(t *testing.T) {
	resource := protectedGallery()
	deps := &portalDeps{resources: &fakeResources{resources: map[uuid.UUID]*models.Resource{resource.ID: resource}}}
	svc := newPortalService(t, deps)

	comment, err := svc.CommentMedia(context.Background(), resource.ID, resource.MediaItems[0].ID, validToken, "  ", "lovely shot")
	require.NoError(t, err)
	assert.Equal(t, "Anonymous", comment.AuthorName)

	input := waitNotification(t, deps.notifications.inputs)
	assert.Equal(t, enums.NotificationNewComment, input.Type)
}

func TestTrackEvent_RejectsLifecycleTypes(t *testing.T) {
	resource := protectedGallery()
	deps := &portalDeps{resources: &fakeResources{resources: map[uuid.UUID]*models.Resource{resource.ID: resource}}}
	svc := newPortalService(t, deps)

	err := svc.TrackEvent(context.Background(), resource.ID, validToken, enums.EventProposalApproved, nil)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())

	err = svc.TrackEvent(context.Background(), resource.ID, validToken, enums.EventProposalTimeSpent, types.JSONMap{"durationSeconds": 12.5})
	require.NoError(t, err)
	assert.Equal(t, []enums.EngagementEventType{enums.EventProposalTimeSpent}, deps.engagement.eventTypes())
}

func TestFindMediaItem(t *testing.T) {
	resource := protectedGallery()
	found := findMediaItem(resource, resource.MediaItems[0].ID)
	require.NotNil(t, found)
	assert.Nil(t, findMediaItem(resource, uuid.New()))
}
