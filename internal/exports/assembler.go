package exports

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/lumenfolio/portal-backend/internal/ledger"
	"github.com/lumenfolio/portal-backend/pkg/db/models"
	pkgerrors "github.com/lumenfolio/portal-backend/pkg/errors"
	"github.com/lumenfolio/portal-backend/pkg/logger"
	"github.com/lumenfolio/portal-backend/pkg/metrics"
)

// Fetcher streams a media item's bytes from the media store.
type Fetcher interface {
	Fetch(ctx context.Context, assetURL string) (io.ReadCloser, error)
}

type ledgerService interface {
	CheckAndReserve(ctx context.Context, resourceID uuid.UUID, clientKey string, units int, limit *int) (ledger.Decision, error)
	Release(ctx context.Context, resourceID uuid.UUID, clientKey string, units int) error
}

// Result reports how much of the archive was actually streamed.
type Result struct {
	ItemsSent int
	Remaining int
}

// Assembler streams a resource's media into a zip archive. The full item
// count is reserved up front; units for items never appended are returned
// when the stream stops early.
type Assembler interface {
	Assemble(ctx context.Context, resource *models.Resource, clientKey string, w io.Writer) (*Result, error)
}

type assembler struct {
	fetcher Fetcher
	ledger  ledgerService
	metrics *metrics.PortalMetrics
	logg    *logger.Logger
}

// NewAssembler builds the bulk export assembler.
func NewAssembler(fetcher Fetcher, ledgerSvc ledgerService, portalMetrics *metrics.PortalMetrics, logg *logger.Logger) (Assembler, error) {
	if fetcher == nil {
		return nil, errors.New("media fetcher is required")
	}
	if ledgerSvc == nil {
		return nil, errors.New("ledger service is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &assembler{
		fetcher: fetcher,
		ledger:  ledgerSvc,
		metrics: portalMetrics,
		logg:    logg,
	}, nil
}

func (a *assembler) Assemble(ctx context.Context, resource *models.Resource, clientKey string, w io.Writer) (*Result, error) {
	if resource == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "resource is required")
	}
	if w == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "output writer is required")
	}
	if !resource.AllowDownloads {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "downloads are disabled for this resource")
	}
	if len(resource.MediaItems) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "resource has no media to export")
	}

	total := len(resource.MediaItems)
	decision, err := a.ledger.CheckAndReserve(ctx, resource.ID, clientKey, total, resource.DownloadsPerWindow)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		a.metrics.IncDownload("denied")
		return nil, pkgerrors.New(pkgerrors.CodeRateLimit, "download limit reached for this resource")
	}
	a.metrics.IncExportAssembled()

	items := make([]models.MediaItem, len(resource.MediaItems))
	copy(items, resource.MediaItems)
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Position != items[j].Position {
			return items[i].Position < items[j].Position
		}
		return items[i].ID.String() < items[j].ID.String()
	})

	logCtx := a.logg.WithFields(ctx, map[string]any{
		"resource_id": resource.ID.String(),
		"client_key":  clientKey,
		"item_count":  total,
	})

	zipWriter := zip.NewWriter(w)
	used := map[string]int{}
	sent := 0
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return a.abort(logCtx, resource.ID, clientKey, sent, total, zipWriter,
				pkgerrors.Wrap(pkgerrors.CodeInternal, err, "export canceled"))
		}
		if err := a.appendItem(ctx, zipWriter, item, used); err != nil {
			return a.abort(logCtx, resource.ID, clientKey, sent, total, zipWriter, err)
		}
		sent++
		a.metrics.IncDownload("allowed")
	}

	if err := zipWriter.Close(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "finalizing archive")
	}
	return &Result{ItemsSent: sent, Remaining: decision.Remaining}, nil
}

// abort returns reserved units for items never appended, then surfaces the
// original failure. The archive is already partially written, so there is
// nothing to salvage on the wire.
func (a *assembler) abort(ctx context.Context, resourceID uuid.UUID, clientKey string, sent, total int, zipWriter *zip.Writer, cause error) (*Result, error) {
	_ = zipWriter.Close()
	if unsent := total - sent; unsent > 0 {
		if err := a.ledger.Release(ctx, resourceID, clientKey, unsent); err != nil {
			a.logg.Error(ctx, "releasing unsent export units failed", err)
		}
	}
	a.logg.Error(ctx, "bulk export aborted", cause)
	return nil, cause
}

func (a *assembler) appendItem(ctx context.Context, zipWriter *zip.Writer, item models.MediaItem, used map[string]int) error {
	body, err := a.fetcher.Fetch(ctx, item.PermanentURL)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetching media item")
	}
	defer body.Close()

	entry, err := zipWriter.Create(entryName(item, used))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating archive entry")
	}
	if _, err := io.Copy(entry, body); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "writing archive entry")
	}
	return nil
}

// entryName builds the deterministic archive name: slugged title when there
// is one, item id otherwise, with a numeric suffix on collisions.
func entryName(item models.MediaItem, used map[string]int) string {
	base := item.ID.String()
	if item.Title != nil {
		if slug := slugify(*item.Title); slug != "" {
			base = slug
		}
	}
	ext := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(item.Format), "."))

	key := base + "." + ext
	used[key]++
	if used[key] == 1 {
		return key
	}
	return fmt.Sprintf("%s-%d.%s", base, used[key], ext)
}

func slugify(value string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(strings.TrimSpace(value)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}
