package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/lumenfolio/portal-backend/pkg/errors"
)

// Decision is the outcome of a ledger reservation. Remaining is -1 when the
// resource has no download limit.
type Decision struct {
	Allowed   bool `json:"allowed"`
	Remaining int  `json:"remaining"`
}

// Service gates downloads per (resource, client) pair inside a rolling window.
type Service interface {
	CheckAndReserve(ctx context.Context, resourceID uuid.UUID, clientKey string, units int, limit *int) (Decision, error)
	Release(ctx context.Context, resourceID uuid.UUID, clientKey string, units int) error
	PurgeResource(ctx context.Context, resourceID uuid.UUID) error
}

type service struct {
	repo   Repository
	window time.Duration
}

// NewService wires a download ledger service with the provided repository.
func NewService(repo Repository, window time.Duration) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &service{repo: repo, window: window}, nil
}

// CheckAndReserve reserves units against the client's window. The reserve and
// compare happen against a single atomically incremented counter, so
// concurrent requests cannot jointly exceed the limit. Denied reservations
// are rolled back before returning.
func (s *service) CheckAndReserve(ctx context.Context, resourceID uuid.UUID, clientKey string, units int, limit *int) (Decision, error) {
	if resourceID == uuid.Nil {
		return Decision{}, pkgerrors.New(pkgerrors.CodeValidation, "resource id is required")
	}
	if clientKey == "" {
		return Decision{}, pkgerrors.New(pkgerrors.CodeValidation, "client key is required")
	}
	if units <= 0 {
		return Decision{}, pkgerrors.New(pkgerrors.CodeValidation, "units must be positive")
	}

	if limit == nil || *limit <= 0 {
		return Decision{Allowed: true, Remaining: -1}, nil
	}

	count, err := s.repo.Reserve(ctx, resourceID, clientKey, units, s.window)
	if err != nil {
		return Decision{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reserving download units")
	}

	if count > *limit {
		if relErr := s.repo.Release(ctx, resourceID, clientKey, units); relErr != nil {
			return Decision{}, pkgerrors.Wrap(pkgerrors.CodeInternal, relErr, "rolling back denied reservation")
		}
		return Decision{Allowed: false, Remaining: 0}, nil
	}

	return Decision{Allowed: true, Remaining: *limit - count}, nil
}

// Release returns unconsumed units to the window, floored at zero.
func (s *service) Release(ctx context.Context, resourceID uuid.UUID, clientKey string, units int) error {
	if resourceID == uuid.Nil || clientKey == "" || units <= 0 {
		return nil
	}
	if err := s.repo.Release(ctx, resourceID, clientKey, units); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "releasing download units")
	}
	return nil
}

// PurgeResource removes all ledger rows for a deleted resource.
func (s *service) PurgeResource(ctx context.Context, resourceID uuid.UUID) error {
	if resourceID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "resource id is required")
	}
	if err := s.repo.DeleteByResource(ctx, resourceID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "purging ledger entries")
	}
	return nil
}
