package access

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/lumenfolio/portal-backend/pkg/db/models"
	"github.com/lumenfolio/portal-backend/pkg/enums"
	pkgerrors "github.com/lumenfolio/portal-backend/pkg/errors"
	"github.com/lumenfolio/portal-backend/pkg/security"
)

// PublicStub is the sanitized view returned before a visitor authenticates.
// It discloses nothing beyond the resource's name and the password gate.
type PublicStub struct {
	ID               uuid.UUID          `json:"id"`
	Kind             enums.ResourceKind `json:"kind"`
	Title            string             `json:"title"`
	ClientName       string             `json:"client_name"`
	RequiresPassword bool               `json:"requires_password"`
}

type sessionIssuer interface {
	Issue(ctx context.Context, resourceID string) (string, error)
	Validate(ctx context.Context, token, resourceID string) (bool, error)
}

// Service decides whether a visitor may see a resource's private content.
type Service interface {
	RequiresAccessCode(resource *models.Resource) bool
	Verify(ctx context.Context, resource *models.Resource, suppliedCode string) (string, error)
	Validate(ctx context.Context, token string, resourceID uuid.UUID) (bool, error)
	Sanitize(resource *models.Resource) PublicStub
}

type service struct {
	sessions sessionIssuer
}

// NewService wires the access service with a session manager.
func NewService(sessions sessionIssuer) (Service, error) {
	if sessions == nil {
		return nil, fmt.Errorf("session manager required")
	}
	return &service{sessions: sessions}, nil
}

func (s *service) RequiresAccessCode(resource *models.Resource) bool {
	return resource != nil && resource.RequirePassword
}

// Verify compares the supplied code against the stored hash and issues a
// session token on match. A mismatch yields only "invalid access code";
// nothing about the resource's existence or expiry leaks through this path.
func (s *service) Verify(ctx context.Context, resource *models.Resource, suppliedCode string) (string, error) {
	if resource == nil {
		return "", pkgerrors.New(pkgerrors.CodeInvalidCode, "invalid access code")
	}
	if !resource.RequirePassword {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "resource is not password protected")
	}
	if resource.AccessCodeHash == nil || suppliedCode == "" {
		return "", pkgerrors.New(pkgerrors.CodeInvalidCode, "invalid access code")
	}

	match, err := security.VerifyAccessCode(suppliedCode, *resource.AccessCodeHash)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verifying access code")
	}
	if !match {
		return "", pkgerrors.New(pkgerrors.CodeInvalidCode, "invalid access code")
	}

	token, err := s.sessions.Issue(ctx, resource.ID.String())
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "issuing access session")
	}
	return token, nil
}

func (s *service) Validate(ctx context.Context, token string, resourceID uuid.UUID) (bool, error) {
	if token == "" || resourceID == uuid.Nil {
		return false, nil
	}
	return s.sessions.Validate(ctx, token, resourceID.String())
}

func (s *service) Sanitize(resource *models.Resource) PublicStub {
	if resource == nil {
		return PublicStub{}
	}
	return PublicStub{
		ID:               resource.ID,
		Kind:             resource.Kind,
		Title:            resource.Title,
		ClientName:       resource.ClientName,
		RequiresPassword: resource.RequirePassword,
	}
}
