package metrics

import (
	"context"
	"time"
)

const signalTimeout = 2 * time.Second

// Observer fans run signals out to Prometheus and the Redis tracker. A nil
// tracker disables the Redis side.
type Observer struct {
	collectors *Collectors
	tracker    *Tracker
}

// NewObserver creates the combined observer.
func NewObserver(collectors *Collectors, tracker *Tracker) *Observer {
	return &Observer{collectors: collectors, tracker: tracker}
}

// RunCompleted records a finished run and refreshes the last-run timestamp.
func (o *Observer) RunCompleted(result string, duration time.Duration) {
	o.collectors.RunCompleted(result, duration)

	if o.tracker != nil {
		ctx, cancel := context.WithTimeout(context.Background(), signalTimeout)
		defer cancel()
		_ = o.tracker.UpdateLastRun(ctx)
	}
}

// IssuesDetected records candidates found during detection.
func (o *Observer) IssuesDetected(issueType string, count int) {
	o.collectors.IssuesDetected(issueType, count)
}

// FixAttempt records one attempt outcome on both backends.
func (o *Observer) FixAttempt(issueType, outcome string) {
	o.collectors.FixAttempt(issueType, outcome)

	if o.tracker == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), signalTimeout)
	defer cancel()

	if outcome == "success" {
		_ = o.tracker.IncrementFixed(ctx, issueType)
		return
	}
	_ = o.tracker.IncrementFailed(ctx, issueType)
}
