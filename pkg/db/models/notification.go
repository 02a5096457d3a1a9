package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/lumenfolio/portal-backend/pkg/enums"
)

// Notification stores in-app notification payloads for the admin feed.
type Notification struct {
	ID         uuid.UUID              `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	ResourceID *uuid.UUID             `gorm:"type:uuid;index"`
	Type       enums.NotificationType `gorm:"type:notification_type;not null"`
	Title      string                 `gorm:"type:text;not null"`
	Message    string                 `gorm:"type:text;not null"`
	Link       *string                `gorm:"type:text"`
	ReadAt     *time.Time             `gorm:"type:timestamptz"`
	CreatedAt  time.Time              `gorm:"type:timestamptz;default:now()"`
}
