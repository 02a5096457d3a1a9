package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/lumenfolio/portal-backend/pkg/enums"
	"github.com/lumenfolio/portal-backend/pkg/types"
)

// EngagementEvent is an immutable record of a visitor interaction. Rows are
// only ever inserted; summaries are derived at read time.
type EngagementEvent struct {
	ID         uuid.UUID                 `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ResourceID uuid.UUID                 `gorm:"column:resource_id;type:uuid;not null;index"`
	EventType  enums.EngagementEventType `gorm:"column:event_type;type:engagement_event_type;not null"`
	Properties types.JSONMap             `gorm:"column:properties;type:jsonb"`
	OccurredAt time.Time                 `gorm:"column:occurred_at;type:timestamptz;not null"`
	CreatedAt  time.Time                 `gorm:"column:created_at;autoCreateTime"`
}
