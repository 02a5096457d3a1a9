package models

import (
	"time"

	"github.com/google/uuid"
)

// DownloadLedgerEntry is a rolling-window download counter for one
// (resource, client) pair. The row is an aggregate, not an event log; it is
// mutated only through the ledger repository's atomic upsert.
type DownloadLedgerEntry struct {
	ResourceID  uuid.UUID `gorm:"column:resource_id;type:uuid;primaryKey"`
	ClientKey   string    `gorm:"column:client_key;type:text;primaryKey"`
	Count       int       `gorm:"column:count;not null;default:0"`
	WindowStart time.Time `gorm:"column:window_start;type:timestamptz;not null"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
