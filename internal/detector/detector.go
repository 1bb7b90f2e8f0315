// Package detector contains the read-only fault detectors that scan recent
// pipeline output and job history for defects.
//
// Each detector inspects one facet of pipeline health within a bounded
// recent window and proposes candidate issues. Detectors never mutate state;
// candidates only become issues through intake.
package detector

import (
	"context"
	"time"

	"github.com/jonesrussell/north-cloud/monitor/internal/content"
	"github.com/jonesrussell/north-cloud/monitor/internal/database"
	"github.com/jonesrussell/north-cloud/monitor/internal/domain"
)

// Detector is one fault scanner. Scan must tolerate partial data and return
// an error rather than panic; a failing detector contributes zero candidates
// and never aborts the run.
type Detector interface {
	Name() string
	Scan(ctx context.Context, now time.Time) ([]domain.Candidate, error)
}

// ContentReader is the content store view detectors need.
type ContentReader interface {
	RecentItems(ctx context.Context, since time.Time) ([]content.Item, error)
}

// JobReader provides recent pipeline job history.
type JobReader interface {
	FailedJobsSince(ctx context.Context, since time.Time) ([]database.PipelineJob, error)
}

// ScheduleReader provides scheduled-but-unfulfilled items.
type ScheduleReader interface {
	UnfulfilledScheduledItems(ctx context.Context, since, until time.Time) ([]database.ScheduledItem, error)
}

// DeliveryReader provides published content with no delivery receipt.
type DeliveryReader interface {
	MissedDeliveriesSince(ctx context.Context, since time.Time) ([]database.DeliveryGap, error)
}
