package detector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jonesrussell/north-cloud/monitor/internal/domain"
)

// placeholderMarkers are body fragments that indicate generation never
// replaced the template text.
var placeholderMarkers = []string{
	"[placeholder]",
	"lorem ipsum",
	"content pending",
	"tbd",
}

// PlaceholderDetector flags recent items whose body is still placeholder
// text.
type PlaceholderDetector struct {
	content ContentReader
	window  time.Duration
}

// NewPlaceholderDetector creates the detector.
func NewPlaceholderDetector(reader ContentReader, window time.Duration) *PlaceholderDetector {
	return &PlaceholderDetector{content: reader, window: window}
}

// Name identifies the detector in logs and run summaries.
func (d *PlaceholderDetector) Name() string { return "placeholder_output" }

// Scan returns one candidate per recent item carrying placeholder text.
func (d *PlaceholderDetector) Scan(ctx context.Context, now time.Time) ([]domain.Candidate, error) {
	items, err := d.content.RecentItems(ctx, now.Add(-d.window))
	if err != nil {
		return nil, fmt.Errorf("placeholder detector: %w", err)
	}

	var candidates []domain.Candidate
	for i := range items {
		item := &items[i]
		if item.ID == "" {
			continue
		}
		if !isPlaceholder(item.Body) {
			continue
		}

		subject := item.ID
		scope := item.ScopeRef
		candidates = append(candidates, domain.Candidate{
			Type:        domain.IssueTypePlaceholderOutput,
			SubjectRef:  &subject,
			ScopeRef:    optionalRef(scope),
			Description: fmt.Sprintf("item %s contains placeholder text", item.ID),
		})
	}
	return candidates, nil
}

func isPlaceholder(body string) bool {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return true
	}
	lowered := strings.ToLower(trimmed)
	for _, marker := range placeholderMarkers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}

func optionalRef(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
