package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/jonesrussell/north-cloud/monitor/internal/config"
	"github.com/jonesrussell/north-cloud/monitor/internal/detector"
	"github.com/jonesrussell/north-cloud/monitor/internal/domain"
	"github.com/jonesrussell/north-cloud/monitor/internal/logger"
)

// JobName identifies monitor runs in execution records.
const JobName = "pipeline_monitor"

// ErrRunInProgress is returned when a run is requested while another is
// still active. Runs never overlap.
var ErrRunInProgress = errors.New("monitor run already in progress")

const finishTimeout = 10 * time.Second

// ExecutionStore records run history.
type ExecutionStore interface {
	Start(ctx context.Context, id, jobName string, startedAt time.Time) error
	Finish(ctx context.Context, id string, success bool, errs []string, summary domain.RunSummary) error
}

// Observer receives run-level and attempt-level signals for metrics.
type Observer interface {
	RunCompleted(result string, duration time.Duration)
	IssuesDetected(issueType string, count int)
	FixAttempt(issueType, outcome string)
}

// NopObserver discards all signals.
type NopObserver struct{}

func (NopObserver) RunCompleted(string, time.Duration) {}
func (NopObserver) IssuesDetected(string, int)         {}
func (NopObserver) FixAttempt(string, string)          {}

// Runner orchestrates one monitor run: detect, intake, exhaustion sweep,
// then dispatch. Phases are strictly ordered and sequential; the run-level
// deadline is checked between units of work, never by forced abortion.
type Runner struct {
	detectors  []detector.Detector
	intake     *Intake
	dispatcher *Dispatcher
	batch      *BatchFixer
	issues     IssueStore
	executions ExecutionStore
	cfg        config.MonitorConfig
	observer   Observer
	logger     logger.Logger
	tracer     trace.Tracer

	mu sync.Mutex
}

// NewRunner creates the orchestrator.
func NewRunner(
	detectors []detector.Detector,
	intake *Intake,
	dispatcher *Dispatcher,
	batch *BatchFixer,
	issues IssueStore,
	executions ExecutionStore,
	cfg config.MonitorConfig,
	observer Observer,
	log logger.Logger,
) *Runner {
	if observer == nil {
		observer = NopObserver{}
	}
	return &Runner{
		detectors:  detectors,
		intake:     intake,
		dispatcher: dispatcher,
		batch:      batch,
		issues:     issues,
		executions: executions,
		cfg:        cfg,
		observer:   observer,
		logger:     log,
		tracer:     otel.Tracer("monitor/runner"),
	}
}

// Run executes one monitor pass and returns its summary. Exactly one
// execution record is written per invocation, including the panic path.
// A second Run while one is active returns ErrRunInProgress.
func (r *Runner) Run(ctx context.Context) (out *domain.RunSummary, runErr error) {
	if !r.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer r.mu.Unlock()

	runID := uuid.NewString()
	startedAt := time.Now()
	deadline := startedAt.Add(r.cfg.RunDeadline)

	ctx, span := r.tracer.Start(ctx, "monitor_run")
	defer span.End()

	if err := r.executions.Start(ctx, runID, JobName, startedAt); err != nil {
		r.observer.RunCompleted("error", time.Since(startedAt))
		return nil, fmt.Errorf("start execution record: %w", err)
	}

	var (
		summary domain.RunSummary
		runErrs []string
		fatal   bool
	)

	defer func() {
		if rec := recover(); rec != nil {
			fatal = true
			runErrs = append(runErrs, fmt.Sprintf("panic: %v", rec))
			r.logger.Error("monitor run panicked", logger.Any("panic", rec))
			out = &summary
			runErr = fmt.Errorf("monitor run panicked: %v", rec)
		}

		success := !fatal && len(runErrs) == 0
		result := "success"
		if !success {
			result = "failure"
		}
		r.observer.RunCompleted(result, time.Since(startedAt))

		finishCtx, cancel := context.WithTimeout(context.Background(), finishTimeout)
		defer cancel()
		if err := r.executions.Finish(finishCtx, runID, success, runErrs, summary); err != nil {
			r.logger.Error("failed to finish execution record",
				logger.String("run_id", runID),
				logger.Error(err),
			)
		}
	}()

	r.logger.Info("monitor run started",
		logger.String("run_id", runID),
		logger.Duration("deadline", r.cfg.RunDeadline),
	)

	candidates := r.detect(ctx, startedAt, &runErrs)
	summary.IssuesDetected = len(candidates)

	created, err := r.intake.CreateIssues(ctx, candidates, startedAt)
	if err != nil {
		runErrs = append(runErrs, err.Error())
	}
	summary.IssuesCreated = created

	eligible, err := r.issues.GetRetryable(ctx, time.Now())
	if err != nil {
		fatal = true
		runErrs = append(runErrs, fmt.Sprintf("select retryable issues: %v", err))
		return &summary, fmt.Errorf("select retryable issues: %w", err)
	}
	eligible = r.sweepExhausted(ctx, eligible)

	batchGroup, rest := partitionBatch(eligible)

	dispatched := r.dispatcher.Dispatch(ctx, rest, deadline)
	batched := r.batch.Fix(ctx, batchGroup, deadline)

	summary.IssuesFixed = dispatched.Fixed + batched.Fixed
	summary.IssuesFailed = dispatched.Failed + batched.Failed
	summary.IssuesSkipped = dispatched.Skipped + batched.Skipped
	summary.Attempts = append(dispatched.Attempts, batched.Attempts...)

	for _, attempt := range summary.Attempts {
		outcome := "failure"
		if attempt.Success {
			outcome = "success"
		}
		r.observer.FixAttempt(string(attempt.IssueType), outcome)
	}

	r.logger.Info("monitor run completed",
		logger.String("run_id", runID),
		logger.Int("detected", summary.IssuesDetected),
		logger.Int("created", summary.IssuesCreated),
		logger.Int("fixed", summary.IssuesFixed),
		logger.Int("failed", summary.IssuesFailed),
		logger.Int("skipped", summary.IssuesSkipped),
		logger.Duration("elapsed", time.Since(startedAt)),
	)
	return &summary, nil
}

// detect runs every detector under its own recover guard. A failing
// detector contributes zero candidates and never aborts the run.
func (r *Runner) detect(ctx context.Context, now time.Time, runErrs *[]string) []domain.Candidate {
	var all []domain.Candidate

	for _, d := range r.detectors {
		candidates, err := r.scanOne(ctx, d, now)
		if err != nil {
			*runErrs = append(*runErrs, fmt.Sprintf("detector %s: %v", d.Name(), err))
			r.logger.Error("detector failed",
				logger.String("detector", d.Name()),
				logger.Error(err),
			)
			continue
		}

		counts := make(map[string]int)
		for i := range candidates {
			counts[string(candidates[i].Type)]++
		}
		for issueType, n := range counts {
			r.observer.IssuesDetected(issueType, n)
		}

		r.logger.Debug("detector scan completed",
			logger.String("detector", d.Name()),
			logger.Int("candidates", len(candidates)),
		)
		all = append(all, candidates...)
	}
	return all
}

func (r *Runner) scanOne(ctx context.Context, d detector.Detector, now time.Time) (candidates []domain.Candidate, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			candidates = nil
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return d.Scan(ctx, now)
}

// sweepExhausted moves issues with no retries left to needs_manual and
// returns the remainder for dispatch.
func (r *Runner) sweepExhausted(ctx context.Context, issues []domain.Issue) []domain.Issue {
	remaining := issues[:0]
	for i := range issues {
		issue := &issues[i]
		if issue.CanRetry() {
			remaining = append(remaining, *issue)
			continue
		}

		if err := r.issues.MarkNeedsManual(ctx, issue.ID, "retries exhausted"); err != nil {
			r.logger.Error("failed to mark exhausted issue",
				logger.String("issue_id", issue.ID),
				logger.Error(err),
			)
			continue
		}
		r.logger.Warn("issue exhausted retries, needs manual review",
			logger.String("issue_id", issue.ID),
			logger.String("issue_type", string(issue.Type)),
		)
	}
	return remaining
}

// partitionBatch splits off the batch-fixed type from individually fixed
// issues.
func partitionBatch(issues []domain.Issue) (batch, rest []domain.Issue) {
	for _, issue := range issues {
		if issue.Type == domain.IssueTypeMissingOutput {
			batch = append(batch, issue)
			continue
		}
		rest = append(rest, issue)
	}
	return batch, rest
}
