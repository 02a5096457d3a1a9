package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/lumenfolio/portal-backend/pkg/enums"
)

// StatusHistory is an append-only log entry for a project's proposal status.
// The newest entry always matches the resource's current status.
type StatusHistory struct {
	ID         uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ResourceID uuid.UUID            `gorm:"column:resource_id;type:uuid;not null;index"`
	Status     enums.ProposalStatus `gorm:"column:status;type:proposal_status;not null"`
	ChangedBy  enums.ActorRole      `gorm:"column:changed_by;type:actor_role;not null"`
	Note       *string              `gorm:"column:note;type:text"`
	ChangedAt  time.Time            `gorm:"column:changed_at;type:timestamptz;default:now()"`
}
