package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/lumenfolio/portal-backend/internal/engagement"
	"github.com/lumenfolio/portal-backend/pkg/enums"
	"github.com/lumenfolio/portal-backend/pkg/logger"
)

const consumerName = "analytics-worker"

// Recorder appends engagement events to the store.
type Recorder interface {
	Record(ctx context.Context, envelope engagement.Envelope) error
}

type idempotencyChecker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// Service consumes engagement envelopes from Pub/Sub while honoring the
// Redis idempotency guard.
type Service struct {
	subscription *gcppubsub.Subscriber
	recorder     Recorder
	manager      idempotencyChecker
	logg         *logger.Logger
}

// NewService creates a new analytics worker service.
func NewService(subscription *gcppubsub.Subscriber, recorder Recorder, manager idempotencyChecker, logg *logger.Logger) (*Service, error) {
	if subscription == nil {
		return nil, errors.New("events subscription is required")
	}
	if recorder == nil {
		return nil, errors.New("recorder is required")
	}
	if manager == nil {
		return nil, errors.New("idempotency manager is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}

	return &Service{
		subscription: subscription,
		recorder:     recorder,
		manager:      manager,
		logg:         logg,
	}, nil
}

type processResult struct {
	nack bool
}

// Run starts consuming engagement messages until the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.subscription.Receive(ctx, func(innerCtx context.Context, msg *gcppubsub.Message) {
		if s.process(innerCtx, msg).nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

func (s *Service) process(ctx context.Context, msg *gcppubsub.Message) processResult {
	fields := map[string]any{"message_id": msg.ID}
	logCtx := s.logg.WithFields(ctx, fields)

	envelope, err := s.buildEnvelope(msg)
	if err != nil {
		fields["error"] = err.Error()
		s.logg.Warn(s.logg.WithFields(ctx, fields), "invalid engagement envelope")
		return processResult{}
	}
	fields["event_id"] = envelope.EventID
	fields["event_type"] = envelope.EventType
	fields["resource_id"] = envelope.ResourceID
	fields["occurred_at"] = envelope.OccurredAt.Format(time.RFC3339Nano)
	logCtx = s.logg.WithFields(ctx, fields)

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		s.logg.Warn(logCtx, "invalid event id")
		return processResult{}
	}

	already, err := s.manager.CheckAndMarkProcessed(logCtx, consumerName, eventID)
	if err != nil {
		s.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		s.logg.Info(logCtx, "event already processed")
		return processResult{}
	}

	if err := s.recorder.Record(logCtx, *envelope); err != nil {
		s.logg.Error(logCtx, "record failed", err)
		_ = s.manager.Delete(logCtx, consumerName, eventID)
		return processResult{nack: true}
	}

	s.logg.Info(logCtx, "engagement event recorded")
	return processResult{}
}

func (s *Service) buildEnvelope(msg *gcppubsub.Message) (*engagement.Envelope, error) {
	var envelope engagement.Envelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	if envelope.EventID == "" {
		envelope.EventID = strings.TrimSpace(msg.Attributes["event_id"])
	}
	if envelope.EventID == "" {
		return nil, errors.New("event_id missing")
	}

	if envelope.EventType == "" {
		parsed, err := enums.ParseEngagementEventType(strings.TrimSpace(msg.Attributes["event_type"]))
		if err != nil {
			return nil, fmt.Errorf("event_type: %w", err)
		}
		envelope.EventType = parsed
	}
	if !envelope.EventType.IsValid() {
		return nil, fmt.Errorf("event_type: unknown value %q", envelope.EventType)
	}

	if envelope.ResourceID == "" {
		envelope.ResourceID = strings.TrimSpace(msg.Attributes["resource_id"])
	}
	if envelope.ResourceID == "" {
		return nil, errors.New("resource_id missing")
	}

	if envelope.OccurredAt.IsZero() {
		if raw := strings.TrimSpace(msg.Attributes["occurred_at"]); raw != "" {
			if parsed, err := time.Parse(time.RFC3339Nano, raw); err == nil {
				envelope.OccurredAt = parsed
			}
		}
	}
	envelope.OccurredAt = envelope.OccurredAt.UTC()

	return &envelope, nil
}
