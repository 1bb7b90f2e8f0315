package monitor_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/monitor/internal/config"
	"github.com/jonesrussell/north-cloud/monitor/internal/domain"
	"github.com/jonesrussell/north-cloud/monitor/internal/logger"
	"github.com/jonesrussell/north-cloud/monitor/internal/monitor"
)

func testMonitorConfig() config.MonitorConfig {
	return config.MonitorConfig{
		RunDeadline:      time.Minute,
		AttemptDelay:     0,
		RetryBackoff:     15 * time.Minute,
		TypeCaps:         map[string]int{},
		BatchBudgetSlack: 0,
	}
}

func eligibleIssue(id string, t domain.IssueType, retryCount, maxRetries int) domain.Issue {
	subject := "subject-" + id
	return domain.Issue{
		ID:          id,
		Type:        t,
		SubjectRef:  &subject,
		Description: "issue " + id,
		Status:      domain.IssueStatusOpen,
		RetryCount:  retryCount,
		MaxRetries:  maxRetries,
		AutoFixable: true,
	}
}

func TestDispatchResolvesOnSuccess(t *testing.T) {
	store := newFakeIssueStore()
	fixer := &stubFixer{outcome: monitor.Outcome{OK: true, Message: "regenerated"}}
	registry := monitor.Registry{domain.IssueTypePlaceholderOutput: fixer}

	d := monitor.NewDispatcher(registry, store, testMonitorConfig(), logger.NewNopLogger())
	issues := []domain.Issue{eligibleIssue("a", domain.IssueTypePlaceholderOutput, 0, 3)}

	result := d.Dispatch(context.Background(), issues, time.Now().Add(time.Minute))

	assert.Equal(t, 1, result.Fixed)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, "regenerated", store.resolved["a"])
	require.Len(t, result.Attempts, 1)
	assert.True(t, result.Attempts[0].Success)
	assert.Equal(t, domain.IssueTypePlaceholderOutput, result.Attempts[0].IssueType)
}

func TestDispatchSchedulesRetryOnFailure(t *testing.T) {
	store := newFakeIssueStore()
	fixer := &stubFixer{outcome: monitor.Outcome{OK: false, Message: "upstream 503"}}
	registry := monitor.Registry{domain.IssueTypeJobFailure: fixer}

	cfg := testMonitorConfig()
	d := monitor.NewDispatcher(registry, store, cfg, logger.NewNopLogger())
	issues := []domain.Issue{eligibleIssue("a", domain.IssueTypeJobFailure, 0, 3)}

	before := time.Now()
	result := d.Dispatch(context.Background(), issues, time.Now().Add(time.Minute))

	assert.Equal(t, 1, result.Failed)
	next, ok := store.retryScheduled["a"]
	require.True(t, ok, "expected a scheduled retry")
	assert.False(t, next.Before(before.Add(cfg.RetryBackoff)))
}

func TestDispatchExhaustionGoesToManual(t *testing.T) {
	store := newFakeIssueStore()
	fixer := &stubFixer{outcome: monitor.Outcome{OK: false, Message: "still broken"}}
	registry := monitor.Registry{domain.IssueTypeJobFailure: fixer}

	d := monitor.NewDispatcher(registry, store, testMonitorConfig(), logger.NewNopLogger())

	// One retry left: a failing attempt consumes it and lands in
	// needs_manual rather than another open/backoff cycle.
	issues := []domain.Issue{eligibleIssue("a", domain.IssueTypeJobFailure, 2, 3)}

	result := d.Dispatch(context.Background(), issues, time.Now().Add(time.Minute))

	assert.Equal(t, 1, result.Failed)
	assert.Contains(t, store.needsManual, "a")
	assert.NotContains(t, store.retryScheduled, "a")
}

func TestDispatchBackoffIsMonotonic(t *testing.T) {
	store := newFakeIssueStore()
	fixer := &stubFixer{outcome: monitor.Outcome{OK: false, Message: "flaky"}}
	registry := monitor.Registry{domain.IssueTypeJobFailure: fixer}

	cfg := testMonitorConfig()
	d := monitor.NewDispatcher(registry, store, cfg, logger.NewNopLogger())

	issue := eligibleIssue("a", domain.IssueTypeJobFailure, 0, 5)
	d.Dispatch(context.Background(), []domain.Issue{issue}, time.Now().Add(time.Minute))
	first := store.retryScheduled["a"]

	issue.RetryCount++
	d.Dispatch(context.Background(), []domain.Issue{issue}, time.Now().Add(time.Minute))
	second := store.retryScheduled["a"]

	assert.False(t, second.Before(first), "next_retry_at must never move backwards")
}

func TestDispatchEnforcesPerTypeCap(t *testing.T) {
	store := newFakeIssueStore()
	fixer := &stubFixer{outcome: monitor.Outcome{OK: true, Message: "ok"}}
	registry := monitor.Registry{domain.IssueTypePlaceholderOutput: fixer}

	cfg := testMonitorConfig()
	cfg.TypeCaps = map[string]int{"placeholder_output": 2}

	d := monitor.NewDispatcher(registry, store, cfg, logger.NewNopLogger())

	issues := make([]domain.Issue, 5)
	for i := range issues {
		issues[i] = eligibleIssue(fmt.Sprintf("i%d", i), domain.IssueTypePlaceholderOutput, 0, 3)
	}

	result := d.Dispatch(context.Background(), issues, time.Now().Add(time.Minute))

	assert.Equal(t, 2, fixer.callCount())
	assert.Equal(t, 2, result.Fixed)
	assert.Equal(t, 3, result.Skipped)
	// Issues beyond the cap never change state.
	for _, id := range []string{"i2", "i3", "i4"} {
		assert.Equal(t, 0, store.transitions(id))
	}
}

func TestDispatchStopsAtDeadline(t *testing.T) {
	store := newFakeIssueStore()
	fixer := &stubFixer{outcome: monitor.Outcome{OK: true, Message: "ok"}}
	registry := monitor.Registry{domain.IssueTypePlaceholderOutput: fixer}

	d := monitor.NewDispatcher(registry, store, testMonitorConfig(), logger.NewNopLogger())

	issues := []domain.Issue{
		eligibleIssue("a", domain.IssueTypePlaceholderOutput, 0, 3),
		eligibleIssue("b", domain.IssueTypePlaceholderOutput, 0, 3),
	}

	result := d.Dispatch(context.Background(), issues, time.Now().Add(-time.Second))

	assert.Equal(t, 0, fixer.callCount())
	assert.Empty(t, result.Attempts)
	assert.Equal(t, 0, store.transitions("a"))
	assert.Equal(t, 0, store.transitions("b"))
}

func TestDispatchSkipsUnregisteredType(t *testing.T) {
	store := newFakeIssueStore()
	d := monitor.NewDispatcher(monitor.Registry{}, store, testMonitorConfig(), logger.NewNopLogger())

	issues := []domain.Issue{eligibleIssue("a", domain.IssueTypeMissingScheduledItem, 0, 3)}
	result := d.Dispatch(context.Background(), issues, time.Now().Add(time.Minute))

	assert.Equal(t, 1, result.Skipped)
	assert.Empty(t, result.Attempts)
	assert.Equal(t, 0, store.transitions("a"))
}

func TestDispatchRecoversFixerPanic(t *testing.T) {
	store := newFakeIssueStore()
	registry := monitor.Registry{
		domain.IssueTypeJobFailure: monitor.FixerFunc(func(context.Context, *domain.Issue) monitor.Outcome {
			panic("fixer exploded")
		}),
	}

	d := monitor.NewDispatcher(registry, store, testMonitorConfig(), logger.NewNopLogger())
	issues := []domain.Issue{eligibleIssue("a", domain.IssueTypeJobFailure, 0, 3)}

	result := d.Dispatch(context.Background(), issues, time.Now().Add(time.Minute))

	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Attempts, 1)
	assert.False(t, result.Attempts[0].Success)
	assert.Contains(t, result.Attempts[0].Message, "panic")
	assert.Contains(t, store.retryScheduled, "a")
}
