package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors holds the Prometheus instruments exposed on /metrics.
type Collectors struct {
	runsTotal   *prometheus.CounterVec
	detected    *prometheus.CounterVec
	fixAttempts *prometheus.CounterVec
	runDuration prometheus.Histogram
}

// NewCollectors registers the monitor's instruments with a registerer.
func NewCollectors(reg prometheus.Registerer) *Collectors {
	factory := promauto.With(reg)

	return &Collectors{
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "monitor_runs_total",
			Help: "Completed monitor runs by result.",
		}, []string{"result"}),
		detected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "monitor_issues_detected_total",
			Help: "Candidates emitted by detectors, by issue type.",
		}, []string{"type"}),
		fixAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "monitor_fix_attempts_total",
			Help: "Fix attempts by issue type and outcome.",
		}, []string{"type", "outcome"}),
		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "monitor_run_duration_seconds",
			Help:    "Wall-clock duration of one monitor run.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
	}
}

// RunCompleted records one finished run.
func (c *Collectors) RunCompleted(result string, duration time.Duration) {
	c.runsTotal.WithLabelValues(result).Inc()
	c.runDuration.Observe(duration.Seconds())
}

// IssuesDetected records candidates found by a detector scan.
func (c *Collectors) IssuesDetected(issueType string, count int) {
	c.detected.WithLabelValues(issueType).Add(float64(count))
}

// FixAttempt records one fix attempt outcome.
func (c *Collectors) FixAttempt(issueType, outcome string) {
	c.fixAttempts.WithLabelValues(issueType, outcome).Inc()
}
