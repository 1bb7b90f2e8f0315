package detector

import (
	"context"
	"fmt"
	"time"

	"github.com/jonesrussell/north-cloud/monitor/internal/content"
	"github.com/jonesrussell/north-cloud/monitor/internal/domain"
)

// MissingOutputDetector compares the scopes that were due to produce output
// in the window against the scopes that actually did. A scope with scheduled
// work and nothing produced becomes a missing_output candidate carrying a
// structured batch payload, so the batch fixer can regenerate per scope.
type MissingOutputDetector struct {
	content  ContentReader
	schedule ScheduleReader
	window   time.Duration
}

// NewMissingOutputDetector creates the detector.
func NewMissingOutputDetector(reader ContentReader, schedule ScheduleReader, window time.Duration) *MissingOutputDetector {
	return &MissingOutputDetector{content: reader, schedule: schedule, window: window}
}

// Name identifies the detector in logs and run summaries.
func (d *MissingOutputDetector) Name() string { return "missing_output" }

// Scan returns one candidate per scope that was due and produced nothing.
func (d *MissingOutputDetector) Scan(ctx context.Context, now time.Time) ([]domain.Candidate, error) {
	since := now.Add(-d.window)

	due, err := d.schedule.UnfulfilledScheduledItems(ctx, since, now)
	if err != nil {
		return nil, fmt.Errorf("missing output detector: %w", err)
	}
	if len(due) == 0 {
		return nil, nil
	}

	items, err := d.content.RecentItems(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("missing output detector: %w", err)
	}
	produced := content.ScopesPresent(items)

	seen := make(map[string]bool)
	var candidates []domain.Candidate
	for i := range due {
		scope := due[i].ScopeRef
		if scope == "" || seen[scope] || produced[scope] {
			continue
		}
		seen[scope] = true

		payload := domain.BatchPayload{
			ScopeRef:    scope,
			WindowStart: since,
			WindowEnd:   now,
			Reason:      "scheduled output missing",
		}
		description, encodeErr := payload.Encode()
		if encodeErr != nil {
			return nil, fmt.Errorf("missing output detector: %w", encodeErr)
		}

		subject := scope
		candidates = append(candidates, domain.Candidate{
			Type:        domain.IssueTypeMissingOutput,
			SubjectRef:  &subject,
			ScopeRef:    &scope,
			Description: description,
		})
	}
	return candidates, nil
}
