package detector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jonesrussell/north-cloud/monitor/internal/domain"
)

// DefaultMinWordCount is the smallest output considered complete.
const DefaultMinWordCount = 150

// UndersizedDetector flags recent items whose body is suspiciously short.
type UndersizedDetector struct {
	content  ContentReader
	window   time.Duration
	minWords int
}

// NewUndersizedDetector creates the detector. A non-positive minWords falls
// back to DefaultMinWordCount.
func NewUndersizedDetector(reader ContentReader, window time.Duration, minWords int) *UndersizedDetector {
	if minWords <= 0 {
		minWords = DefaultMinWordCount
	}
	return &UndersizedDetector{content: reader, window: window, minWords: minWords}
}

// Name identifies the detector in logs and run summaries.
func (d *UndersizedDetector) Name() string { return "undersized_output" }

// Scan returns one candidate per recent item below the word count floor.
// Placeholder items are left to the placeholder detector.
func (d *UndersizedDetector) Scan(ctx context.Context, now time.Time) ([]domain.Candidate, error) {
	items, err := d.content.RecentItems(ctx, now.Add(-d.window))
	if err != nil {
		return nil, fmt.Errorf("undersized detector: %w", err)
	}

	var candidates []domain.Candidate
	for i := range items {
		item := &items[i]
		if item.ID == "" || isPlaceholder(item.Body) {
			continue
		}

		words := item.WordCount
		if words == 0 {
			words = len(strings.Fields(item.Body))
		}
		if words >= d.minWords {
			continue
		}

		subject := item.ID
		candidates = append(candidates, domain.Candidate{
			Type:        domain.IssueTypeUndersizedOutput,
			SubjectRef:  &subject,
			ScopeRef:    optionalRef(item.ScopeRef),
			Description: fmt.Sprintf("item %s has %d words, minimum is %d", item.ID, words, d.minWords),
		})
	}
	return candidates, nil
}
