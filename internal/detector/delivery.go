package detector

import (
	"context"
	"fmt"
	"time"

	"github.com/jonesrussell/north-cloud/monitor/internal/domain"
)

// MissedDeliveryDetector flags published content with no delivery receipt
// in the window.
type MissedDeliveryDetector struct {
	deliveries DeliveryReader
	window     time.Duration
}

// NewMissedDeliveryDetector creates the detector.
func NewMissedDeliveryDetector(deliveries DeliveryReader, window time.Duration) *MissedDeliveryDetector {
	return &MissedDeliveryDetector{deliveries: deliveries, window: window}
}

// Name identifies the detector in logs and run summaries.
func (d *MissedDeliveryDetector) Name() string { return "missed_delivery" }

// Scan returns one candidate per missed delivery in the window.
func (d *MissedDeliveryDetector) Scan(ctx context.Context, now time.Time) ([]domain.Candidate, error) {
	gaps, err := d.deliveries.MissedDeliveriesSince(ctx, now.Add(-d.window))
	if err != nil {
		return nil, fmt.Errorf("missed delivery detector: %w", err)
	}

	var candidates []domain.Candidate
	for i := range gaps {
		gap := &gaps[i]
		if gap.ContentID == "" {
			continue
		}

		subject := gap.ContentID
		candidates = append(candidates, domain.Candidate{
			Type:        domain.IssueTypeMissedDelivery,
			SubjectRef:  &subject,
			Description: fmt.Sprintf("content %s published to %s has no delivery receipt", gap.ContentID, gap.Channel),
		})
	}
	return candidates, nil
}
