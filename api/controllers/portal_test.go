package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lumenfolio/portal-backend/api/middleware"
	"github.com/lumenfolio/portal-backend/internal/access"
	"github.com/lumenfolio/portal-backend/internal/exports"
	"github.com/lumenfolio/portal-backend/internal/portal"
	"github.com/lumenfolio/portal-backend/pkg/db/models"
	"github.com/lumenfolio/portal-backend/pkg/enums"
	pkgerrors "github.com/lumenfolio/portal-backend/pkg/errors"
	"github.com/lumenfolio/portal-backend/pkg/logger"
	"github.com/lumenfolio/portal-backend/pkg/types"
)

type testPortalService struct {
	viewFn        func(ctx context.Context, resourceID uuid.UUID, token string) (*portal.ViewResult, error)
	authFn        func(ctx context.Context, resourceID uuid.UUID, code, clientKey string) (string, error)
	respondFn     func(ctx context.Context, resourceID uuid.UUID, token string, to enums.ProposalStatus, note *string) (*models.Resource, error)
	downloadFn    func(ctx context.Context, resourceID, mediaID uuid.UUID, token, clientKey string) (*portal.DownloadGrant, error)
	downloadAllFn func(ctx context.Context, resourceID uuid.UUID, token, clientKey string, w io.Writer) (*exports.Result, error)
	trackFn       func(ctx context.Context, resourceID uuid.UUID, token string, eventType enums.EngagementEventType, properties types.JSONMap) error
}

func (s *testPortalService) View(ctx context.Context, resourceID uuid.UUID, token string) (*portal.ViewResult, error) {
	if s.viewFn != nil {
		return s.viewFn(ctx, resourceID, token)
	}
	return &portal.ViewResult{}, nil
}

func (s *testPortalService) Authenticate(ctx context.Context, resourceID uuid.UUID, code, clientKey string) (string, error) {
	if s.authFn != nil {
		return s.authFn(ctx, resourceID, code, clientKey)
	}
	return "", nil
}

func (s *testPortalService) Respond(ctx context.Context, resourceID uuid.UUID, token string, to enums.ProposalStatus, note *string) (*models.Resource, error) {
	if s.respondFn != nil {
		return s.respondFn(ctx, resourceID, token, to, note)
	}
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "not stubbed")
}

func (s *testPortalService) Download(ctx context.Context, resourceID, mediaID uuid.UUID, token, clientKey string) (*portal.DownloadGrant, error) {
	if s.downloadFn != nil {
		return s.downloadFn(ctx, resourceID, mediaID, token, clientKey)
	}
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "not stubbed")
}

func (s *testPortalService) DownloadAll(ctx context.Context, resourceID uuid.UUID, token, clientKey string, w io.Writer) (*exports.Result, error) {
	if s.downloadAllFn != nil {
		return s.downloadAllFn(ctx, resourceID, token, clientKey, w)
	}
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "not stubbed")
}

func (s *testPortalService) LikeMedia(ctx context.Context, resourceID, mediaID uuid.UUID, token string) (*models.MediaItem, error) {
	return &models.MediaItem{ID: mediaID, ResourceID: resourceID, LikeCount: 1}, nil
}

func (s *testPortalService) CommentMedia(ctx context.Context, resourceID, mediaID uuid.UUID, token, author, body string) (*models.MediaComment, error) {
	return &models.MediaComment{ID: uuid.New(), MediaItemID: mediaID, AuthorName: author, Body: body}, nil
}

func (s *testPortalService) TrackEvent(ctx context.Context, resourceID uuid.UUID, token string, eventType enums.EngagementEventType, properties types.JSONMap) error {
	if s.trackFn != nil {
		return s.trackFn(ctx, resourceID, token, eventType, properties)
	}
	return nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func portalRequest(method, path string, body string, params map[string]string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	routeCtx := chi.NewRouteContext()
	for key, value := range params {
		routeCtx.URLParams.Add(key, value)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}

func TestPortalView_Stub(t *testing.T) {
	resourceID := uuid.New()
	svc := &testPortalService{
		viewFn: func(ctx context.Context, id uuid.UUID, token string) (*portal.ViewResult, error) {
			if id != resourceID {
				t.Fatalf("unexpected resource %s", id)
			}
			stub := access.PublicStub{ID: id, Title: "Gallery", RequiresPassword: true}
			return &portal.ViewResult{Stub: &stub}, nil
		},
	}

	req := portalRequest(http.MethodGet, "/api/portal/v1/resources/"+resourceID.String(), "", map[string]string{"resourceId": resourceID.String()})
	resp := httptest.NewRecorder()
	PortalView(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	var envelope struct {
		Data struct {
			Authorized bool            `json:"authorized"`
			Resource   json.RawMessage `json:"resource"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if envelope.Data.Authorized {
		t.Fatal("expected unauthorized view")
	}
	if strings.Contains(string(envelope.Data.Resource), "media") {
		t.Fatal("stub must not carry media")
	}
}

func TestPortalView_InvalidResourceID(t *testing.T) {
	req := portalRequest(http.MethodGet, "/api/portal/v1/resources/nope", "", map[string]string{"resourceId": "nope"})
	resp := httptest.NewRecorder()
	PortalView(&testPortalService{}, testLogger())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", resp.Code)
	}
}

func TestPortalAuthenticate_SetsSessionHeader(t *testing.T) {
	resourceID := uuid.New()
	svc := &testPortalService{
		authFn: func(ctx context.Context, id uuid.UUID, code, clientKey string) (string, error) {
			if code != "summer-2026" {
				t.Fatalf("unexpected code %q", code)
			}
			if clientKey != "203.0.113.7" {
				t.Fatalf("unexpected client key %q", clientKey)
			}
			return "tok-123", nil
		},
	}

	req := portalRequest(http.MethodPost, "/authenticate", `{"code":"summer-2026"}`, map[string]string{"resourceId": resourceID.String()})
	req = req.WithContext(middleware.WithClientKey(req.Context(), "203.0.113.7"))
	resp := httptest.NewRecorder()
	PortalAuthenticate(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	if got := resp.Header().Get("X-Portal-Session"); got != "tok-123" {
		t.Fatalf("unexpected session header %q", got)
	}
}

func TestPortalAuthenticate_RateLimitStatus(t *testing.T) {
	resourceID := uuid.New()
	svc := &testPortalService{
		authFn: func(ctx context.Context, id uuid.UUID, code, clientKey string) (string, error) {
			return "", pkgerrors.New(pkgerrors.CodeRateLimit, "too many attempts, try again later")
		},
	}

	req := portalRequest(http.MethodPost, "/authenticate", `{"code":"x"}`, map[string]string{"resourceId": resourceID.String()})
	resp := httptest.NewRecorder()
	PortalAuthenticate(svc, testLogger())(resp, req)

	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("unexpected status %d", resp.Code)
	}
}

func TestPortalAuthenticate_MissingCode(t *testing.T) {
	resourceID := uuid.New()
	req := portalRequest(http.MethodPost, "/authenticate", `{}`, map[string]string{"resourceId": resourceID.String()})
	resp := httptest.NewRecorder()
	PortalAuthenticate(&testPortalService{}, testLogger())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", resp.Code)
	}
}

func TestPortalRespond_ParsesStatus(t *testing.T) {
	resourceID := uuid.New()
	svc := &testPortalService{
		respondFn: func(ctx context.Context, id uuid.UUID, token string, to enums.ProposalStatus, note *string) (*models.Resource, error) {
			if to != enums.ProposalStatusRevised {
				t.Fatalf("unexpected status %s", to)
			}
			if note == nil || *note != "tweak the intro" {
				t.Fatal("note not carried")
			}
			return &models.Resource{ID: id, Kind: enums.ResourceKindProject, Status: &to}, nil
		},
	}

	req := portalRequest(http.MethodPost, "/respond", `{"status":"revised","note":"tweak the intro"}`, map[string]string{"resourceId": resourceID.String()})
	resp := httptest.NewRecorder()
	PortalRespond(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
}

func TestPortalRespond_RejectsUnknownStatus(t *testing.T) {
	resourceID := uuid.New()
	req := portalRequest(http.MethodPost, "/respond", `{"status":"maybe"}`, map[string]string{"resourceId": resourceID.String()})
	resp := httptest.NewRecorder()
	PortalRespond(&testPortalService{}, testLogger())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", resp.Code)
	}
}

func TestPortalDownload_ReturnsURL(t *testing.T) {
	resourceID := uuid.New()
	mediaID := uuid.New()
	svc := &testPortalService{
		downloadFn: func(ctx context.Context, rid, mid uuid.UUID, token, clientKey string) (*portal.DownloadGrant, error) {
			return &portal.DownloadGrant{
				Item:      &models.MediaItem{ID: mid, PermanentURL: "https://media/full.jpg"},
				Remaining: 2,
			}, nil
		},
	}

	req := portalRequest(http.MethodPost, "/download/"+mediaID.String(), "", map[string]string{
		"resourceId": resourceID.String(),
		"itemId":     mediaID.String(),
	})
	resp := httptest.NewRecorder()
	PortalDownload(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	var envelope struct {
		Data struct {
			URL       string `json:"url"`
			Remaining int    `json:"remaining"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if envelope.Data.URL != "https://media/full.jpg" || envelope.Data.Remaining != 2 {
		t.Fatalf("unexpected payload %+v", envelope.Data)
	}
}

func TestPortalDownloadAll_DeniedBeforeStreamingIsJSON(t *testing.T) {
	resourceID := uuid.New()
	svc := &testPortalService{
		downloadAllFn: func(ctx context.Context, id uuid.UUID, token, clientKey string, w io.Writer) (*exports.Result, error) {
			return nil, pkgerrors.New(pkgerrors.CodeRateLimit, "download limit reached")
		},
	}

	req := portalRequest(http.MethodPost, "/download-all", "", map[string]string{"resourceId": resourceID.String()})
	resp := httptest.NewRecorder()
	PortalDownloadAll(svc, testLogger())(resp, req)

	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	if ct := resp.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}
}

func TestPortalDownloadAll_StreamsZip(t *testing.T) {
	resourceID := uuid.New()
	svc := &testPortalService{
		downloadAllFn: func(ctx context.Context, id uuid.UUID, token, clientKey string, w io.Writer) (*exports.Result, error) {
			if _, err := w.Write([]byte("PK-archive")); err != nil {
				return nil, err
			}
			return &exports.Result{ItemsSent: 2, Remaining: -1}, nil
		},
	}

	req := portalRequest(http.MethodPost, "/download-all", "", map[string]string{"resourceId": resourceID.String()})
	resp := httptest.NewRecorder()
	PortalDownloadAll(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	if ct := resp.Header().Get("Content-Type"); ct != "application/zip" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if resp.Body.String() != "PK-archive" {
		t.Fatalf("unexpected body %q", resp.Body.String())
	}
}

func TestPortalTrackEvent_Accepted(t *testing.T) {
	resourceID := uuid.New()
	var gotType enums.EngagementEventType
	svc := &testPortalService{
		trackFn: func(ctx context.Context, id uuid.UUID, token string, eventType enums.EngagementEventType, properties types.JSONMap) error {
			gotType = eventType
			if properties["sectionId"] != "pricing" {
				t.Fatalf("unexpected properties %+v", properties)
			}
			return nil
		},
	}

	req := portalRequest(http.MethodPost, "/events", `{"event_type":"proposal_section_viewed","properties":{"sectionId":"pricing"}}`, map[string]string{"resourceId": resourceID.String()})
	resp := httptest.NewRecorder()
	PortalTrackEvent(svc, testLogger())(resp, req)

	if resp.Code != http.StatusAccepted {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	if gotType != enums.EventProposalSectionViewed {
		t.Fatalf("unexpected event type %s", gotType)
	}
}
