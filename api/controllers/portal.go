package controllers

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lumenfolio/portal-backend/api/middleware"
	"github.com/lumenfolio/portal-backend/api/responses"
	"github.com/lumenfolio/portal-backend/api/validators"
	"github.com/lumenfolio/portal-backend/internal/portal"
	"github.com/lumenfolio/portal-backend/pkg/enums"
	pkgerrors "github.com/lumenfolio/portal-backend/pkg/errors"
	"github.com/lumenfolio/portal-backend/pkg/logger"
	"github.com/lumenfolio/portal-backend/pkg/types"
)

const portalSessionHeader = "X-Portal-Session"

func resourceIDParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "resourceId"))
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid resource id")
	}
	return id, nil
}

func mediaIDParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "itemId"))
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid media item id")
	}
	return id, nil
}

// PortalView serves the stub-or-full resource for anonymous visitors.
func PortalView(svc portal.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "portal service unavailable"))
			return
		}

		resourceID, err := resourceIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		token := middleware.PortalSessionFromContext(r.Context())
		result, err := svc.View(r.Context(), resourceID, token)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if !result.Authorized {
			responses.WriteSuccess(w, map[string]any{
				"authorized": false,
				"resource":   result.Stub,
			})
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"authorized": true,
			"resource":   newResourceView(result.Resource, false),
		})
	}
}

type authenticateRequest struct {
	Code string `json:"code" validate:"required"`
}

// PortalAuthenticate trades an access code for a session token.
func PortalAuthenticate(svc portal.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "portal service unavailable"))
			return
		}

		resourceID, err := resourceIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body authenticateRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		clientKey := middleware.ClientKeyFromContext(r.Context())
		token, err := svc.Authenticate(r.Context(), resourceID, body.Code, clientKey)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		w.Header().Set(portalSessionHeader, token)
		responses.WriteSuccess(w, map[string]string{"session_token": token})
	}
}

type respondRequest struct {
	Status string  `json:"status" validate:"required,oneof=approved rejected revised"`
	Note   *string `json:"note" validate:"omitempty,max=2000"`
}

// PortalRespond applies a client decision to a proposal.
func PortalRespond(svc portal.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "portal service unavailable"))
			return
		}

		resourceID, err := resourceIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body respondRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status, err := enums.ParseProposalStatus(body.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}

		token := middleware.PortalSessionFromContext(r.Context())
		updated, err := svc.Respond(r.Context(), resourceID, token, status, body.Note)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newResourceView(updated, false))
	}
}

// PortalDownload reserves a ledger unit and answers with the item URL.
func PortalDownload(svc portal.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "portal service unavailable"))
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

		token := middleware.PortalSessionFromContext(r.Context())
		clientKey := middleware.ClientKeyFromContext(r.Context())
		grant, err := svc.Download(r.Context(), resourceID, mediaID, token, clientKey)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{
			"url":       grant.Item.PermanentURL,
			"remaining": grant.Remaining,
		})
	}
}

// PortalDownloadAll streams the whole resource as a zip archive.
func PortalDownloadAll(svc portal.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "portal service unavailable"))
			return
		}

		resourceID, err := resourceIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		token := middleware.PortalSessionFromContext(r.Context())
		clientKey := middleware.ClientKeyFromContext(r.Context())

		archive := &archiveWriter{inner: w, resourceID: resourceID}
		if _, err := svc.DownloadAll(r.Context(), resourceID, token, clientKey, archive); err != nil {
			if !archive.started {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			// The archive is already on the wire; all that remains is to log.
			if logg != nil {
				logg.Error(logg.WithResourceID(r.Context(), resourceID.String()), "archive stream aborted", err)
			}
		}
	}
}

// archiveWriter defers the zip headers until the first byte so denials can
// still answer with a JSON error.
type archiveWriter struct {
	inner      http.ResponseWriter
	resourceID uuid.UUID
	started    bool
}

func (a *archiveWriter) Write(p []byte) (int, error) {
	if !a.started {
		a.started = true
		a.inner.Header().Set("Content-Type", "application/zip")
		a.inner.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", a.resourceID.String()+".zip"))
		a.inner.WriteHeader(http.StatusOK)
	}
	return a.inner.Write(p)
}

// PortalLikeMedia bumps the like counter on a media item.
func PortalLikeMedia(svc portal.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "portal service unavailable"))
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

		token := middleware.PortalSessionFromContext(r.Context())
		item, err := svc.LikeMedia(r.Context(), resourceID, mediaID, token)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newMediaItemView(*item))
	}
}

type commentRequest struct {
	Author string `json:"author" validate:"omitempty,max=120"`
	Text   string `json:"text" validate:"required,max=2000"`
}

// PortalCommentMedia attaches a visitor comment to a media item.
func PortalCommentMedia(svc portal.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "portal service unavailable"))
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

		var body commentRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		token := middleware.PortalSessionFromContext(r.Context())
		comment, err := svc.CommentMedia(r.Context(), resourceID, mediaID, token, body.Author, body.Text)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, commentView{
			ID:         comment.ID,
			AuthorName: comment.AuthorName,
			Body:       comment.Body,
			CreatedAt:  comment.CreatedAt,
		})
	}
}

type trackEventRequest struct {
	EventType  string        `json:"event_type" validate:"required"`
	Properties types.JSONMap `json:"properties"`
}

// PortalTrackEvent accepts engagement beacons from the client.
func PortalTrackEvent(svc portal.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "portal service unavailable"))
			return
		}

		resourceID, err := resourceIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body trackEventRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		eventType, err := enums.ParseEngagementEventType(body.EventType)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid event type"))
			return
		}

		token := middleware.PortalSessionFromContext(r.Context())
		if err := svc.TrackEvent(r.Context(), resourceID, token, eventType, body.Properties); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	}
}
