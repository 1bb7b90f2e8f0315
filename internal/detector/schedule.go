package detector

import (
	"context"
	"fmt"
	"time"

	"github.com/jonesrussell/north-cloud/monitor/internal/domain"
)

// scheduleGracePeriod is how long past its due time a scheduled item may be
// before it is flagged. Avoids racing the pipeline on items still in flight.
const scheduleGracePeriod = 30 * time.Minute

// MissedScheduleDetector flags individual scheduled items that are overdue
// with no content attached. These are surfaced for manual handling: a human
// has to decide whether the schedule or the pipeline is wrong.
type MissedScheduleDetector struct {
	schedule ScheduleReader
	window   time.Duration
}

// NewMissedScheduleDetector creates the detector.
func NewMissedScheduleDetector(schedule ScheduleReader, window time.Duration) *MissedScheduleDetector {
	return &MissedScheduleDetector{schedule: schedule, window: window}
}

// Name identifies the detector in logs and run summaries.
func (d *MissedScheduleDetector) Name() string { return "missing_scheduled_item" }

// Scan returns one candidate per overdue unfulfilled scheduled item.
func (d *MissedScheduleDetector) Scan(ctx context.Context, now time.Time) ([]domain.Candidate, error) {
	cutoff := now.Add(-scheduleGracePeriod)

	items, err := d.schedule.UnfulfilledScheduledItems(ctx, now.Add(-d.window), cutoff)
	if err != nil {
		return nil, fmt.Errorf("missed schedule detector: %w", err)
	}

	var candidates []domain.Candidate
	for i := range items {
		item := &items[i]
		if item.ID == "" {
			continue
		}

		subject := item.ID
		candidates = append(candidates, domain.Candidate{
			Type:        domain.IssueTypeMissingScheduledItem,
			SubjectRef:  &subject,
			ScopeRef:    optionalRef(item.ScopeRef),
			Description: fmt.Sprintf("scheduled item %s for scope %s due %s was never produced", item.ID, item.ScopeRef, item.ScheduledAt.Format(time.RFC3339)),
		})
	}
	return candidates, nil
}
