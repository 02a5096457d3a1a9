package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/lumenfolio/portal-backend/api/responses"
	"github.com/lumenfolio/portal-backend/api/validators"
	"github.com/lumenfolio/portal-backend/internal/engagement"
	"github.com/lumenfolio/portal-backend/internal/notifier"
	"github.com/lumenfolio/portal-backend/internal/proposals"
	"github.com/lumenfolio/portal-backend/internal/resources"
	"github.com/lumenfolio/portal-backend/pkg/config"
	"github.com/lumenfolio/portal-backend/pkg/enums"
	pkgerrors "github.com/lumenfolio/portal-backend/pkg/errors"
	"github.com/lumenfolio/portal-backend/pkg/logger"
	"github.com/lumenfolio/portal-backend/pkg/pagination"
)

type createResourceRequest struct {
	Kind               string     `json:"kind" validate:"required,oneof=gallery project"`
	Title              string     `json:"title" validate:"required,max=200"`
	ClientName         string     `json:"client_name" validate:"required,max=200"`
	ClientEmail        string     `json:"client_email" validate:"required,email"`
	Description        *string    `json:"description" validate:"omitempty,max=5000"`
	RequirePassword    bool       `json:"require_password"`
	AccessCode         string     `json:"access_code" validate:"omitempty,min=6,max=64"`
	AllowDownloads     *bool      `json:"allow_downloads"`
	DownloadsPerWindow *int       `json:"downloads_per_window" validate:"omitempty,gt=0"`
	ExpiresAt          *time.Time `json:"expires_at"`
}

// AdminCreateResource creates a gallery or project. The plaintext access
// code appears in this response and nowhere else.
func AdminCreateResource(svc resources.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "resources service unavailable"))
			return
		}

		var body createResourceRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		kind, err := enums.ParseResourceKind(body.Kind)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid kind"))
			return
		}

		allowDownloads := true
		if body.AllowDownloads != nil {
			allowDownloads = *body.AllowDownloads
		}

		result, err := svc.Create(r.Context(), resources.CreateResourceInput{
			Kind:               kind,
			Title:              body.Title,
			ClientName:         body.ClientName,
			ClientEmail:        body.ClientEmail,
			Description:        body.Description,
			RequirePassword:    body.RequirePassword,
			AccessCode:         body.AccessCode,
			AllowDownloads:     allowDownloads,
			DownloadsPerWindow: body.DownloadsPerWindow,
			ExpiresAt:          body.ExpiresAt,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payload := map[string]any{"resource": newResourceView(result.Resource, true)}
		if result.AccessCode != "" {
			payload["access_code"] = result.AccessCode
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, payload)
	}
}

// AdminListResources pages through resources, optionally filtered by kind.
func AdminListResources(svc resources.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "resources service unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := resources.ListParams{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("kind")); raw != "" {
			kind, err := enums.ParseResourceKind(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid kind"))
				return
			}
			params.Kind = &kind
		}

		result, err := svc.List(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]resourceView, 0, len(result.Items))
		for i := range result.Items {
			items = append(items, newResourceView(&result.Items[i], true))
		}
		responses.WriteSuccess(w, map[string]any{"items": items, "cursor": result.Cursor})
	}
}

// AdminGetResource returns the full resource with media and history.
func AdminGetResource(svc resources.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "resources service unavailable"))
			return
		}

		resourceID, err := resourceIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resource, err := svc.Get(r.Context(), resourceID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newResourceView(resource, true))
	}
}

type updateResourceRequest struct {
	Title              *string    `json:"title" validate:"omitempty,max=200"`
	ClientName         *string    `json:"client_name" validate:"omitempty,max=200"`
	ClientEmail        *string    `json:"client_email" validate:"omitempty,email"`
	Description        *string    `json:"description" validate:"omitempty,max=5000"`
	RequirePassword    *bool      `json:"require_password"`
	AccessCode         *string    `json:"access_code" validate:"omitempty,min=6,max=64"`
	AllowDownloads     *bool      `json:"allow_downloads"`
	DownloadsPerWindow *int       `json:"downloads_per_window"`
	ExpiresAt          *time.Time `json:"expires_at"`
	ClearExpiry        bool       `json:"clear_expiry"`
}

// AdminUpdateResource patches resource settings.
func AdminUpdateResource(svc resources.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "resources service unavailable"))
			return
		}

		resourceID, err := resourceIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body updateResourceRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resource, err := svc.Update(r.Context(), resourceID, resources.UpdateResourceInput{
			Title:              body.Title,
			ClientName:         body.ClientName,
			ClientEmail:        body.ClientEmail,
			Description:        body.Description,
			RequirePassword:    body.RequirePassword,
			AccessCode:         body.AccessCode,
			AllowDownloads:     body.AllowDownloads,
			DownloadsPerWindow: body.DownloadsPerWindow,
			ExpiresAt:          body.ExpiresAt,
			ClearExpiry:        body.ClearExpiry,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newResourceView(resource, true))
	}
}

// AdminDeleteResource removes a resource and its attached state.
func AdminDeleteResource(svc resources.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "resources service unavailable"))
			return
		}

		resourceID, err := resourceIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Delete(r.Context(), resourceID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"deleted": true})
	}
}

// AdminUploadMedia attaches one multipart file to a resource.
func AdminUploadMedia(svc resources.Service, mediaCfg config.MediaStoreConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "resources service unavailable"))
			return
		}

		resourceID, err := resourceIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		maxBytes := int64(mediaCfg.MaxUploadMB) << 20
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		if err := r.ParseMultipartForm(maxBytes); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid multipart payload"))
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "file field is required"))
			return
		}
		defer file.Close()

		input := resources.AttachMediaInput{
			FileName: header.Filename,
			Data:     file,
		}
		if title := strings.TrimSpace(r.FormValue("title")); title != "" {
			input.Title = &title
		}

		item, err := svc.AttachMedia(r.Context(), resourceID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newMediaItemView(*item))
	}
}

// AdminDeleteMedia removes one media item from a resource.
func AdminDeleteMedia(svc resources.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "resources service unavailable"))
			return
		}

		resourceID, err := resourceIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		mediaID, err := mediaIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.RemoveMedia(r.Context(), resourceID, mediaID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"deleted": true})
	}
}

type sendProposalRequest struct {
	PortalLink string  `json:"portal_link" validate:"omitempty,url"`
	Note       *string `json:"note" validate:"omitempty,max=2000"`
}

// AdminSendProposal moves a draft proposal to sent and emails the client.
func AdminSendProposal(proposalsSvc proposals.Service, mailer notifier.Service, engagementSvc engagement.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if proposalsSvc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "proposals service unavailable"))
			return
		}

		resourceID, err := resourceIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body sendProposalRequest
		if r.ContentLength > 0 {
			if err := validators.DecodeJSONBody(r, &body); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		resource, err := proposalsSvc.Transition(r.Context(), resourceID, enums.ProposalStatusSent, enums.ActorRoleAdmin, body.Note)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if mailer != nil {
			mailer.ProposalShared(r.Context(), resource, body.PortalLink)
		}
		if engagementSvc != nil {
			if err := engagementSvc.Ingest(r.Context(), resourceID, enums.EventProposalShared, nil); err != nil {
				logCtx := logg.WithResourceID(r.Context(), resourceID.String())
				logCtx = logg.WithField(logCtx, "error", err.Error())
				logg.Warn(logCtx, "recording proposal share failed")
			}
		}
		responses.WriteSuccess(w, newResourceView(resource, true))
	}
}

// AdminResourceAnalytics aggregates the engagement event stream.
func AdminResourceAnalytics(svc engagement.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "engagement service unavailable"))
			return
		}

		resourceID, err := resourceIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		summary, err := svc.Summarize(r.Context(), resourceID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}
