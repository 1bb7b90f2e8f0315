package monitor

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/jonesrussell/north-cloud/monitor/internal/config"
	"github.com/jonesrussell/north-cloud/monitor/internal/domain"
	"github.com/jonesrussell/north-cloud/monitor/internal/logger"
)

// DispatchResult aggregates the outcome of one dispatch pass.
type DispatchResult struct {
	Fixed    int
	Failed   int
	Skipped  int
	Attempts []domain.AttemptDetail
}

// Dispatcher applies type-specific fixers to eligible issues under three
// constraints: a per-type attempt cap, a fixed inter-attempt delay, and a
// global run deadline. Issues left when the deadline hits are untouched and
// picked up by the next run.
type Dispatcher struct {
	registry Registry
	issues   IssueStore
	cfg      config.MonitorConfig
	logger   logger.Logger
	tracer   trace.Tracer
}

// NewDispatcher creates the dispatcher.
func NewDispatcher(registry Registry, issues IssueStore, cfg config.MonitorConfig, log logger.Logger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		issues:   issues,
		cfg:      cfg,
		logger:   log,
		tracer:   otel.Tracer("monitor/dispatcher"),
	}
}

// Dispatch processes issues grouped by type. Attempts within a type are
// sequential and paced; dispatch stops entirely once the deadline passes.
func (d *Dispatcher) Dispatch(ctx context.Context, issues []domain.Issue, deadline time.Time) DispatchResult {
	var result DispatchResult

	types, groups := groupByType(issues)
	for _, issueType := range types {
		group := groups[issueType]

		fixer, registered := d.registry.Lookup(issueType)
		if !registered {
			result.Skipped += len(group)
			d.logger.Debug("no fixer registered, skipping",
				logger.String("issue_type", string(issueType)),
				logger.Int("count", len(group)),
			)
			continue
		}

		typeCap := d.cfg.CapFor(string(issueType))
		limiter := rate.NewLimiter(rate.Every(d.cfg.AttemptDelay), 1)

		attempted := 0
		for i := range group {
			issue := &group[i]

			if time.Until(deadline) <= 0 {
				d.logger.Warn("run deadline reached, stopping dispatch",
					logger.String("issue_type", string(issueType)),
					logger.Int("remaining", len(group)-i),
				)
				return result
			}
			if attempted >= typeCap {
				result.Skipped += len(group) - i
				d.logger.Info("per-type cap reached",
					logger.String("issue_type", string(issueType)),
					logger.Int("cap", typeCap),
					logger.Int("skipped", len(group)-i),
				)
				break
			}
			if !issue.AutoFixable {
				result.Skipped++
				continue
			}

			if err := limiter.Wait(ctx); err != nil {
				d.logger.Warn("dispatch cancelled", logger.Error(err))
				return result
			}

			attempted++
			d.attempt(ctx, fixer, issue, &result)
		}
	}

	return result
}

// attempt runs one fixer invocation and applies the resulting state
// transition: resolved on success, open with backoff while retries remain,
// needs_manual on exhaustion.
func (d *Dispatcher) attempt(ctx context.Context, fixer Fixer, issue *domain.Issue, result *DispatchResult) {
	ctx, span := d.tracer.Start(ctx, "fix_attempt", trace.WithAttributes(
		attribute.String("issue.id", issue.ID),
		attribute.String("issue.type", string(issue.Type)),
		attribute.Int("issue.retry_count", issue.RetryCount),
	))
	defer span.End()

	outcome := d.invoke(ctx, fixer, issue)
	span.SetAttributes(attribute.Bool("fix.success", outcome.OK))

	result.Attempts = append(result.Attempts, domain.AttemptDetail{
		IssueID:   issue.ID,
		IssueType: issue.Type,
		Success:   outcome.OK,
		Message:   outcome.Message,
	})

	var err error
	switch {
	case outcome.OK:
		result.Fixed++
		err = d.issues.MarkResolved(ctx, issue.ID, outcome.Message)
	case issue.RetryCount+1 < issue.MaxRetries:
		result.Failed++
		next := time.Now().Add(d.cfg.RetryBackoff)
		err = d.issues.MarkRetryScheduled(ctx, issue.ID, outcome.Message, next)
	default:
		result.Failed++
		err = d.issues.MarkNeedsManual(ctx, issue.ID, outcome.Message)
	}
	if err != nil {
		d.logger.Error("failed to record attempt outcome",
			logger.String("issue_id", issue.ID),
			logger.Error(err),
		)
		return
	}

	d.logger.Info("fix attempt completed",
		logger.String("issue_id", issue.ID),
		logger.String("issue_type", string(issue.Type)),
		logger.Bool("success", outcome.OK),
		logger.String("message", outcome.Message),
	)
}

// invoke calls the fixer, converting a panic into a failed outcome so one
// faulty fixer never aborts the run.
func (d *Dispatcher) invoke(ctx context.Context, fixer Fixer, issue *domain.Issue) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("fixer panicked",
				logger.String("issue_id", issue.ID),
				logger.Any("panic", r),
			)
			outcome = Outcome{OK: false, Message: fmt.Sprintf("fixer panic: %v", r)}
		}
	}()
	return fixer.Fix(ctx, issue)
}

// groupByType splits issues into per-type groups, preserving the order in
// which types first appear.
func groupByType(issues []domain.Issue) ([]domain.IssueType, map[domain.IssueType][]domain.Issue) {
	var types []domain.IssueType
	groups := make(map[domain.IssueType][]domain.Issue)

	for _, issue := range issues {
		if _, seen := groups[issue.Type]; !seen {
			types = append(types, issue.Type)
		}
		groups[issue.Type] = append(groups[issue.Type], issue)
	}
	return types, groups
}
