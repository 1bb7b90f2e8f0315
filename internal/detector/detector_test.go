package detector_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonesrussell/north-cloud/monitor/internal/content"
	"github.com/jonesrussell/north-cloud/monitor/internal/database"
	"github.com/jonesrussell/north-cloud/monitor/internal/detector"
	"github.com/jonesrussell/north-cloud/monitor/internal/domain"
)

type fakeContentReader struct {
	items []content.Item
	err   error
}

func (f *fakeContentReader) RecentItems(_ context.Context, _ time.Time) ([]content.Item, error) {
	return f.items, f.err
}

type fakeScheduleReader struct {
	items []database.ScheduledItem
	err   error
}

func (f *fakeScheduleReader) UnfulfilledScheduledItems(_ context.Context, _, _ time.Time) ([]database.ScheduledItem, error) {
	return f.items, f.err
}

type fakeJobReader struct {
	jobs []database.PipelineJob
	err  error
}

func (f *fakeJobReader) FailedJobsSince(_ context.Context, _ time.Time) ([]database.PipelineJob, error) {
	return f.jobs, f.err
}

type fakeDeliveryReader struct {
	gaps []database.DeliveryGap
	err  error
}

func (f *fakeDeliveryReader) MissedDeliveriesSince(_ context.Context, _ time.Time) ([]database.DeliveryGap, error) {
	return f.gaps, f.err
}

func strPtr(s string) *string { return &s }

func TestPlaceholderDetector(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name        string
		items       []content.Item
		wantCount   int
		wantSubject string
	}{
		{
			name: "flags placeholder body",
			items: []content.Item{
				{ID: "item-1", ScopeRef: "region-north", Body: "Real generated article body."},
				{ID: "item-2", ScopeRef: "region-south", Body: "Lorem ipsum dolor sit amet"},
			},
			wantCount:   1,
			wantSubject: "item-2",
		},
		{
			name: "flags empty body",
			items: []content.Item{
				{ID: "item-3", Body: "   "},
			},
			wantCount:   1,
			wantSubject: "item-3",
		},
		{
			name: "tolerates items without ids",
			items: []content.Item{
				{Body: ""},
			},
			wantCount: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := detector.NewPlaceholderDetector(&fakeContentReader{items: tt.items}, 24*time.Hour)

			candidates, err := d.Scan(context.Background(), now)
			if err != nil {
				t.Fatalf("Scan() error = %v", err)
			}
			if len(candidates) != tt.wantCount {
				t.Fatalf("Scan() returned %d candidates, want %d", len(candidates), tt.wantCount)
			}
			if tt.wantCount > 0 {
				c := candidates[0]
				if c.Type != domain.IssueTypePlaceholderOutput {
					t.Errorf("Type = %s, want %s", c.Type, domain.IssueTypePlaceholderOutput)
				}
				if c.SubjectRef == nil || *c.SubjectRef != tt.wantSubject {
					t.Errorf("SubjectRef = %v, want %s", c.SubjectRef, tt.wantSubject)
				}
			}
		})
	}
}

func TestPlaceholderDetectorPropagatesReadError(t *testing.T) {
	d := detector.NewPlaceholderDetector(&fakeContentReader{err: errors.New("es down")}, time.Hour)

	if _, err := d.Scan(context.Background(), time.Now()); err == nil {
		t.Error("Scan() expected error, got nil")
	}
}

func TestUndersizedDetector(t *testing.T) {
	now := time.Now()
	items := []content.Item{
		{ID: "item-1", WordCount: 500, Body: "long enough"},
		{ID: "item-2", WordCount: 40, Body: "short"},
		{ID: "item-3", WordCount: 0, Body: "only five words right here ok"},
		{ID: "item-4", Body: "lorem ipsum"}, // placeholder, not undersized
	}

	d := detector.NewUndersizedDetector(&fakeContentReader{items: items}, 24*time.Hour, 150)

	candidates, err := d.Scan(context.Background(), now)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	if len(candidates) != 2 {
		t.Fatalf("Scan() returned %d candidates, want 2", len(candidates))
	}
	for _, c := range candidates {
		if c.Type != domain.IssueTypeUndersizedOutput {
			t.Errorf("Type = %s, want %s", c.Type, domain.IssueTypeUndersizedOutput)
		}
	}
}

func TestMissingOutputDetector(t *testing.T) {
	now := time.Now()

	schedule := &fakeScheduleReader{items: []database.ScheduledItem{
		{ID: "sched-1", ScopeRef: "region-north", ScheduledAt: now.Add(-2 * time.Hour)},
		{ID: "sched-2", ScopeRef: "region-south", ScheduledAt: now.Add(-2 * time.Hour)},
		{ID: "sched-3", ScopeRef: "region-south", ScheduledAt: now.Add(-time.Hour)},
	}}
	produced := &fakeContentReader{items: []content.Item{
		{ID: "item-1", ScopeRef: "region-north", Body: "generated"},
	}}

	d := detector.NewMissingOutputDetector(produced, schedule, 24*time.Hour)

	candidates, err := d.Scan(context.Background(), now)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	// region-north produced output; region-south appears once despite two
	// unfulfilled scheduled items.
	if len(candidates) != 1 {
		t.Fatalf("Scan() returned %d candidates, want 1", len(candidates))
	}

	c := candidates[0]
	if c.Type != domain.IssueTypeMissingOutput {
		t.Errorf("Type = %s, want %s", c.Type, domain.IssueTypeMissingOutput)
	}
	if c.ScopeRef == nil || *c.ScopeRef != "region-south" {
		t.Errorf("ScopeRef = %v, want region-south", c.ScopeRef)
	}

	payload, parseErr := domain.ParseBatchPayload(c.Description)
	if parseErr != nil {
		t.Fatalf("ParseBatchPayload() error = %v", parseErr)
	}
	if payload.ScopeRef != "region-south" {
		t.Errorf("payload.ScopeRef = %q, want region-south", payload.ScopeRef)
	}
}

func TestMissingOutputDetectorNoScheduledWork(t *testing.T) {
	d := detector.NewMissingOutputDetector(
		&fakeContentReader{},
		&fakeScheduleReader{},
		24*time.Hour,
	)

	candidates, err := d.Scan(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(candidates) != 0 {
		t.Errorf("Scan() returned %d candidates, want 0", len(candidates))
	}
}

func TestMissedScheduleDetector(t *testing.T) {
	now := time.Now()

	schedule := &fakeScheduleReader{items: []database.ScheduledItem{
		{ID: "sched-9", ScopeRef: "region-east", ScheduledAt: now.Add(-3 * time.Hour)},
	}}

	d := detector.NewMissedScheduleDetector(schedule, 24*time.Hour)

	candidates, err := d.Scan(context.Background(), now)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	if len(candidates) != 1 {
		t.Fatalf("Scan() returned %d candidates, want 1", len(candidates))
	}
	if candidates[0].Type != domain.IssueTypeMissingScheduledItem {
		t.Errorf("Type = %s, want %s", candidates[0].Type, domain.IssueTypeMissingScheduledItem)
	}
}

func TestJobFailureDetector(t *testing.T) {
	now := time.Now()
	errMsg := "crawl timed out"

	jobs := &fakeJobReader{jobs: []database.PipelineJob{
		{ID: "job-1", JobName: "crawl_news", ErrorMessage: &errMsg, ScopeRef: strPtr("region-north")},
		{ID: "job-2", JobName: "classify_batch"},
	}}

	d := detector.NewJobFailureDetector(jobs, 24*time.Hour)

	candidates, err := d.Scan(context.Background(), now)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	if len(candidates) != 2 {
		t.Fatalf("Scan() returned %d candidates, want 2", len(candidates))
	}
	if candidates[0].Description != "job crawl_news failed: crawl timed out" {
		t.Errorf("Description = %q", candidates[0].Description)
	}
	if candidates[1].Description != "job classify_batch failed: no error recorded" {
		t.Errorf("Description = %q", candidates[1].Description)
	}
}

func TestMissedDeliveryDetector(t *testing.T) {
	now := time.Now()

	deliveries := &fakeDeliveryReader{gaps: []database.DeliveryGap{
		{ContentID: "content-5", Channel: "articles:news", PublishedAt: now.Add(-time.Hour)},
	}}

	d := detector.NewMissedDeliveryDetector(deliveries, 24*time.Hour)

	candidates, err := d.Scan(context.Background(), now)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	if len(candidates) != 1 {
		t.Fatalf("Scan() returned %d candidates, want 1", len(candidates))
	}
	c := candidates[0]
	if c.Type != domain.IssueTypeMissedDelivery {
		t.Errorf("Type = %s, want %s", c.Type, domain.IssueTypeMissedDelivery)
	}
	if c.SubjectRef == nil || *c.SubjectRef != "content-5" {
		t.Errorf("SubjectRef = %v, want content-5", c.SubjectRef)
	}
}
