package notifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lumenfolio/portal-backend/pkg/db/models"
	"github.com/lumenfolio/portal-backend/pkg/enums"
	"github.com/lumenfolio/portal-backend/pkg/logger"
)

const sendTimeout = 15 * time.Second

// Service sends portal emails without ever blocking or failing the
// operation that triggered them. Every method returns immediately; delivery
// failures are logged.
type Service interface {
	ProposalShared(ctx context.Context, resource *models.Resource, portalLink string)
	ProposalResponse(ctx context.Context, resource *models.Resource, status enums.ProposalStatus, note *string)
}

type service struct {
	mailer     Mailer
	logg       *logger.Logger
	adminEmail string
}

// NewService wires the notifier.
func NewService(mailer Mailer, logg *logger.Logger, adminEmail string) (Service, error) {
	if mailer == nil {
		return nil, errors.New("mailer is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &service{
		mailer:     mailer,
		logg:       logg,
		adminEmail: adminEmail,
	}, nil
}

func (s *service) ProposalShared(ctx context.Context, resource *models.Resource, portalLink string) {
	if resource == nil || resource.ClientEmail == "" {
		return
	}
	s.sendAsync(ctx, Message{
		To:       resource.ClientEmail,
		Subject:  fmt.Sprintf("%s is ready for your review", resource.Title),
		Template: "proposal_shared",
		Data: map[string]any{
			"clientName": resource.ClientName,
			"title":      resource.Title,
			"link":       portalLink,
		},
	})
}

func (s *service) ProposalResponse(ctx context.Context, resource *models.Resource, status enums.ProposalStatus, note *string) {
	if resource == nil || s.adminEmail == "" {
		return
	}
	data := map[string]any{
		"clientName": resource.ClientName,
		"title":      resource.Title,
		"status":     status.String(),
	}
	if note != nil {
		data["note"] = *note
	}
	s.sendAsync(ctx, Message{
		To:       s.adminEmail,
		Subject:  fmt.Sprintf("%s %s %q", resource.ClientName, responseVerb(status), resource.Title),
		Template: "proposal_response",
		Data:     data,
	})
}

func (s *service) sendAsync(ctx context.Context, msg Message) {
	go func(detached context.Context) {
		sendCtx, cancel := context.WithTimeout(detached, sendTimeout)
		defer cancel()
		if err := s.mailer.Send(sendCtx, msg); err != nil {
			logCtx := s.logg.WithFields(sendCtx, map[string]any{
				"to":       msg.To,
				"template": msg.Template,
			})
			s.logg.Error(logCtx, "mail delivery failed", err)
		}
	}(context.WithoutCancel(ctx))
}

func responseVerb(status enums.ProposalStatus) string {
	switch status {
	case enums.ProposalStatusApproved:
		return "approved"
	case enums.ProposalStatusRejected:
		return "declined"
	case enums.ProposalStatusRevised:
		return "requested changes to"
	default:
		return "responded to"
	}
}
