package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lumenfolio/portal-backend/pkg/db/models"
)

// reserveQuery folds window reset and increment into one statement so two
// concurrent clients can never both observe a stale count.
const reserveQuery = `
INSERT INTO download_ledger_entries (resource_id, client_key, count, window_start, updated_at)
VALUES (?, ?, ?, NOW(), NOW())
ON CONFLICT (resource_id, client_key) DO UPDATE SET
    count = CASE
        WHEN download_ledger_entries.window_start <= NOW() - make_interval(secs => ?) THEN EXCLUDED.count
        ELSE download_ledger_entries.count + EXCLUDED.count
    END,
    window_start = CASE
        WHEN download_ledger_entries.window_start <= NOW() - make_interval(secs => ?) THEN NOW()
        ELSE download_ledger_entries.window_start
    END,
    updated_at = NOW()
RETURNING count`

const releaseQuery = `
UPDATE download_ledger_entries
SET count = GREATEST(count - ?, 0), updated_at = NOW()
WHERE resource_id = ? AND client_key = ?`

// Repository manages persistence for download ledger entries.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Reserve(ctx context.Context, resourceID uuid.UUID, clientKey string, units int, window time.Duration) (int, error)
	Release(ctx context.Context, resourceID uuid.UUID, clientKey string, units int) error
	Get(ctx context.Context, resourceID uuid.UUID, clientKey string) (*models.DownloadLedgerEntry, error)
	DeleteByResource(ctx context.Context, resourceID uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Reserve atomically adds units to the client's window counter, starting a
// fresh window when the existing one is stale, and returns the new count.
func (r *repository) Reserve(ctx context.Context, resourceID uuid.UUID, clientKey string, units int, window time.Duration) (int, error) {
	secs := window.Seconds()
	var count int
	err := r.db.WithContext(ctx).
		Raw(reserveQuery, resourceID, clientKey, units, secs, secs).
		Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Release subtracts units that were reserved but never consumed.
func (r *repository) Release(ctx context.Context, resourceID uuid.UUID, clientKey string, units int) error {
	return r.db.WithContext(ctx).
		Exec(releaseQuery, units, resourceID, clientKey).Error
}

func (r *repository) Get(ctx context.Context, resourceID uuid.UUID, clientKey string) (*models.DownloadLedgerEntry, error) {
	var entry models.DownloadLedgerEntry
	err := r.db.WithContext(ctx).
		Where("resource_id = ? AND client_key = ?", resourceID, clientKey).
		First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *repository) DeleteByResource(ctx context.Context, resourceID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("resource_id = ?", resourceID).
		Delete(&models.DownloadLedgerEntry{}).Error
}
