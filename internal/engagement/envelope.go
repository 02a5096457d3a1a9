package engagement

import (
	"time"

	"github.com/lumenfolio/portal-backend/pkg/enums"
	"github.com/lumenfolio/portal-backend/pkg/types"
)

// Envelope is the canonical engagement-event Pub/Sub payload. The API
// publishes envelopes; the analytics worker turns them into rows.
type Envelope struct {
	EventID    string                    `json:"event_id"`
	EventType  enums.EngagementEventType `json:"event_type"`
	ResourceID string                    `json:"resource_id"`
	OccurredAt time.Time                 `json:"occurred_at"`
	Properties types.JSONMap             `json:"properties,omitempty"`
}
