package proposals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lumenfolio/portal-backend/pkg/db/models"
	"github.com/lumenfolio/portal-backend/pkg/enums"
	pkgerrors "github.com/lumenfolio/portal-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service owns the proposal state machine. Every transition appends a history
// entry and updates the status in one transaction, so readers never observe
// the status ahead of or behind the history tail.
type Service interface {
	Transition(ctx context.Context, resourceID uuid.UUID, to enums.ProposalStatus, actor enums.ActorRole, note *string) (*models.Resource, error)
	Respond(ctx context.Context, resourceID uuid.UUID, to enums.ProposalStatus, note *string) (*models.Resource, error)
	MarkViewedIfSent(ctx context.Context, resourceID uuid.UUID) (bool, error)
	InitializeDraft(ctx context.Context, tx *gorm.DB, resourceID uuid.UUID) error
	History(ctx context.Context, resourceID uuid.UUID) ([]models.StatusHistory, error)
}

type service struct {
	db   txRunner
	repo Repository
}

// NewService wires the proposal lifecycle service.
func NewService(db txRunner, repo Repository) (Service, error) {
	if db == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("proposals repository required")
	}
	return &service{db: db, repo: repo}, nil
}

// Transition moves a project to a new status after consulting the transition
// table. Terminal states reject further changes with a state conflict.
func (s *service) Transition(ctx context.Context, resourceID uuid.UUID, to enums.ProposalStatus, actor enums.ActorRole, note *string) (*models.Resource, error) {
	if resourceID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "resource id is required")
	}
	if !to.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid proposal status %q", to))
	}
	if !actor.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid actor role %q", actor))
	}

	resource, err := s.repo.GetProject(ctx, resourceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "proposal not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading proposal")
	}
	if resource.Status == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "resource has no proposal lifecycle")
	}

	current := *resource.Status
	if current.IsTerminal() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("proposal is already %s", current))
	}
	if !CanTransition(current, to) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("cannot move proposal from %s to %s", current, to))
	}

	now := time.Now().UTC()
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		updated, err := txRepo.UpdateStatusIf(ctx, resourceID, current, to)
		if err != nil {
			return err
		}
		if !updated {
			// Someone else transitioned the proposal between our read and write.
			return pkgerrors.New(pkgerrors.CodeStateConflict, "proposal status changed concurrently")
		}
		return txRepo.AppendHistory(ctx, &models.StatusHistory{
			ResourceID: resourceID,
			Status:     to,
			ChangedBy:  actor,
			Note:       note,
			ChangedAt:  now,
		})
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return nil, typed
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "transitioning proposal")
	}

	resource.Status = &to
	return resource, nil
}

// Respond applies a visitor response. Responses against a terminal proposal
// are rejected rather than silently overwriting history.
func (s *service) Respond(ctx context.Context, resourceID uuid.UUID, to enums.ProposalStatus, note *string) (*models.Resource, error) {
	if !IsResponseStatus(to) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%q is not a valid response", to))
	}
	return s.Transition(ctx, resourceID, to, enums.ActorRoleClient, note)
}

// MarkViewedIfSent records the first authenticated view. The write is guarded
// on the current status being exactly "sent" so a late repeat visit never
// demotes an approved proposal.
func (s *service) MarkViewedIfSent(ctx context.Context, resourceID uuid.UUID) (bool, error) {
	if resourceID == uuid.Nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "resource id is required")
	}

	now := time.Now().UTC()
	transitioned := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		updated, err := txRepo.UpdateStatusIf(ctx, resourceID, enums.ProposalStatusSent, enums.ProposalStatusViewed)
		if err != nil {
			return err
		}
		if !updated {
			return nil
		}
		transitioned = true
		return txRepo.AppendHistory(ctx, &models.StatusHistory{
			ResourceID: resourceID,
			Status:     enums.ProposalStatusViewed,
			ChangedBy:  enums.ActorRoleClient,
			ChangedAt:  now,
		})
	})
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marking proposal viewed")
	}
	return transitioned, nil
}

// InitializeDraft writes the initial draft history entry inside the caller's
// transaction, alongside project creation.
func (s *service) InitializeDraft(ctx context.Context, tx *gorm.DB, resourceID uuid.UUID) error {
	if resourceID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "resource id is required")
	}
	return s.repo.WithTx(tx).AppendHistory(ctx, &models.StatusHistory{
		ResourceID: resourceID,
		Status:     enums.ProposalStatusDraft,
		ChangedBy:  enums.ActorRoleAdmin,
		ChangedAt:  time.Now().UTC(),
	})
}

func (s *service) History(ctx context.Context, resourceID uuid.UUID) ([]models.StatusHistory, error) {
	if resourceID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "resource id is required")
	}
	entries, err := s.repo.ListHistory(ctx, resourceID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing status history")
	}
	return entries, nil
}
