package engagement

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/lumenfolio/portal-backend/pkg/db/models"
	"github.com/lumenfolio/portal-backend/pkg/enums"
	pkgerrors "github.com/lumenfolio/portal-backend/pkg/errors"
	"github.com/lumenfolio/portal-backend/pkg/logger"
	"github.com/lumenfolio/portal-backend/pkg/metrics"
	"github.com/lumenfolio/portal-backend/pkg/types"
)

const (
	defaultPublishTimeout = 10 * time.Second
	recentActivityLimit   = 20
)

// DayCount is one calendar-day bucket of proposal views.
type DayCount struct {
	Day   string `json:"day"`
	Count int    `json:"count"`
}

// SectionCount ranks one proposal section by view count.
type SectionCount struct {
	SectionID string `json:"sectionId"`
	Count     int    `json:"count"`
}

// Summary is the read-time aggregation over a resource's event stream.
// Nothing here is stored; every call rescans the events.
type Summary struct {
	TotalsByType      map[enums.EngagementEventType]int `json:"totalsByType"`
	TotalViews        int                               `json:"totalViews"`
	ViewsByDay        []DayCount                        `json:"viewsByDay"`
	SectionViews      []SectionCount                    `json:"sectionViews"`
	TotalSecondsSpent float64                           `json:"totalSecondsSpent"`
	RecentActivity    []models.EngagementEvent          `json:"recentActivity"`
}

// Service is the engagement analytics pipeline. Ingest publishes to the
// events topic (or records directly when no topic is configured) and never
// blocks or fails the caller's primary operation; Record is the worker-side
// write path.
type Service interface {
	Ingest(ctx context.Context, resourceID uuid.UUID, eventType enums.EngagementEventType, properties types.JSONMap) error
	Record(ctx context.Context, envelope Envelope) error
	Summarize(ctx context.Context, resourceID uuid.UUID) (*Summary, error)
	PurgeResource(ctx context.Context, resourceID uuid.UUID) error
}

type service struct {
	repo           Repository
	publisher      Publisher
	metrics        *metrics.PortalMetrics
	logg           *logger.Logger
	publishTimeout time.Duration
}

// NewService builds the engagement pipeline. The publisher may be nil: the
// worker only records and summarizes, and a deployment without Pub/Sub
// ingests straight into the event table.
func NewService(repo Repository, publisher Publisher, portalMetrics *metrics.PortalMetrics, logg *logger.Logger, publishTimeout time.Duration) (Service, error) {
	if repo == nil {
		return nil, errors.New("engagement repository is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	if publishTimeout <= 0 {
		publishTimeout = defaultPublishTimeout
	}
	return &service{
		repo:           repo,
		publisher:      publisher,
		metrics:        portalMetrics,
		logg:           logg,
		publishTimeout: publishTimeout,
	}, nil
}

func (s *service) Ingest(ctx context.Context, resourceID uuid.UUID, eventType enums.EngagementEventType, properties types.JSONMap) error {
	if resourceID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "resource id is required")
	}
	if !eventType.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown engagement event type")
	}
	envelope := Envelope{
		EventID:    uuid.NewString(),
		EventType:  eventType,
		ResourceID: resourceID.String(),
		OccurredAt: time.Now().UTC(),
		Properties: properties,
	}

	// The caller's response must not wait on, or fail because of, the
	// write. Detach from cancellation but keep the log fields.
	if s.publisher == nil {
		go s.recordDirect(context.WithoutCancel(ctx), envelope)
		return nil
	}
	go s.publish(context.WithoutCancel(ctx), envelope)
	return nil
}

// recordDirect appends the event row without a topic hop. This is the
// single-process path used when no Pub/Sub project is configured.
func (s *service) recordDirect(ctx context.Context, envelope Envelope) {
	writeCtx, cancel := context.WithTimeout(ctx, s.publishTimeout)
	defer cancel()

	if err := s.Record(writeCtx, envelope); err != nil {
		logCtx := s.logg.WithFields(writeCtx, map[string]any{
			"event_id":    envelope.EventID,
			"event_type":  envelope.EventType,
			"resource_id": envelope.ResourceID,
		})
		s.logg.Error(logCtx, "engagement record failed", err)
		s.metrics.IncEventDropped(envelope.EventType.String())
		return
	}
	s.metrics.IncEventIngested(envelope.EventType.String())
}

func (s *service) publish(ctx context.Context, envelope Envelope) {
	publishCtx, cancel := context.WithTimeout(ctx, s.publishTimeout)
	defer cancel()

	logCtx := s.logg.WithFields(publishCtx, map[string]any{
		"event_id":    envelope.EventID,
		"event_type":  envelope.EventType,
		"resource_id": envelope.ResourceID,
	})

	data, err := json.Marshal(envelope)
	if err != nil {
		s.logg.Error(logCtx, "engagement envelope encode failed", err)
		s.metrics.IncEventDropped(envelope.EventType.String())
		return
	}

	result := s.publisher.Publish(publishCtx, &gcppubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"event_id":    envelope.EventID,
			"event_type":  envelope.EventType.String(),
			"resource_id": envelope.ResourceID,
			"occurred_at": envelope.OccurredAt.Format(time.RFC3339Nano),
		},
	})
	if result == nil {
		s.logg.Error(logCtx, "engagement publish failed", errors.New("publisher returned nil result"))
		s.metrics.IncEventDropped(envelope.EventType.String())
		return
	}
	if _, err := result.Get(publishCtx); err != nil {
		s.logg.Error(logCtx, "engagement publish failed", err)
		s.metrics.IncEventDropped(envelope.EventType.String())
		return
	}

	s.metrics.IncEventIngested(envelope.EventType.String())
}

// Record appends one immutable event row. The envelope's event id becomes the
// row id, so a redelivered message that slips past the idempotency guard
// collides on the primary key instead of duplicating the event.
func (s *service) Record(ctx context.Context, envelope Envelope) error {
	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid event id")
	}
	resourceID, err := uuid.Parse(envelope.ResourceID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid resource id")
	}
	if !envelope.EventType.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown engagement event type")
	}

	occurredAt := envelope.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	event := &models.EngagementEvent{
		ID:         eventID,
		ResourceID: resourceID,
		EventType:  envelope.EventType,
		Properties: envelope.Properties,
		OccurredAt: occurredAt.UTC(),
	}
	if err := s.repo.Create(ctx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "recording engagement event")
	}
	return nil
}

func (s *service) Summarize(ctx context.Context, resourceID uuid.UUID) (*Summary, error) {
	if resourceID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "resource id is required")
	}

	events, err := s.repo.ListByResource(ctx, resourceID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading engagement events")
	}

	summary := &Summary{
		TotalsByType: map[enums.EngagementEventType]int{},
		ViewsByDay:   []DayCount{},
		SectionViews: []SectionCount{},
	}
	viewsByDay := map[string]int{}
	sectionViews := map[string]int{}

	for _, event := range events {
		summary.TotalsByType[event.EventType]++
		switch event.EventType {
		case enums.EventProposalViewed:
			summary.TotalViews++
			viewsByDay[event.OccurredAt.UTC().Format("2006-01-02")]++
		case enums.EventProposalSectionViewed:
			if sectionID := event.Properties.String("sectionId"); sectionID != "" {
				sectionViews[sectionID]++
			}
		case enums.EventProposalTimeSpent:
			summary.TotalSecondsSpent += event.Properties.Float("durationSeconds")
		}
	}

	for day, count := range viewsByDay {
		summary.ViewsByDay = append(summary.ViewsByDay, DayCount{Day: day, Count: count})
	}
	sort.Slice(summary.ViewsByDay, func(i, j int) bool {
		return summary.ViewsByDay[i].Day < summary.ViewsByDay[j].Day
	})

	for sectionID, count := range sectionViews {
		summary.SectionViews = append(summary.SectionViews, SectionCount{SectionID: sectionID, Count: count})
	}
	sort.Slice(summary.SectionViews, func(i, j int) bool {
		if summary.SectionViews[i].Count != summary.SectionViews[j].Count {
			return summary.SectionViews[i].Count > summary.SectionViews[j].Count
		}
		return summary.SectionViews[i].SectionID < summary.SectionViews[j].SectionID
	})

	recent, err := s.repo.Recent(ctx, resourceID, recentActivityLimit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading recent activity")
	}
	summary.RecentActivity = recent

	return summary, nil
}

func (s *service) PurgeResource(ctx context.Context, resourceID uuid.UUID) error {
	if resourceID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "resource id is required")
	}
	if err := s.repo.DeleteByResource(ctx, resourceID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "purging engagement events")
	}
	return nil
}
