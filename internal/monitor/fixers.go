package monitor

import (
	"context"
	"fmt"

	"github.com/jonesrussell/north-cloud/monitor/internal/domain"
	"github.com/jonesrussell/north-cloud/monitor/internal/generation"
)

// ContentGenerator produces a single content item on demand.
type ContentGenerator interface {
	Generate(ctx context.Context, req generation.Request) (*generation.Content, error)
}

// Redeliverer re-attempts a delivery notification for a content reference.
type Redeliverer interface {
	Redeliver(ctx context.Context, ref string) error
}

// NewRegistry wires the default fixer set. missing_output is not registered
// here; it goes through the batch fixer. missing_scheduled_item has no fixer
// and is always a manual-review type.
func NewRegistry(gen ContentGenerator, del Redeliverer) Registry {
	return Registry{
		domain.IssueTypePlaceholderOutput: &regenerateFixer{gen: gen, reason: "placeholder_output"},
		domain.IssueTypeUndersizedOutput:  &regenerateFixer{gen: gen, reason: "undersized_output"},
		domain.IssueTypeJobFailure:        &regenerateFixer{gen: gen, reason: "job_failure_retry"},
		domain.IssueTypeMissedDelivery:    &redeliveryFixer{del: del},
	}
}

// regenerateFixer asks the generation service to produce a replacement for
// the issue's subject.
type regenerateFixer struct {
	gen    ContentGenerator
	reason string
}

func (f *regenerateFixer) Fix(ctx context.Context, issue *domain.Issue) Outcome {
	req := generation.Request{Reason: f.reason}
	if issue.SubjectRef != nil {
		req.ContentID = *issue.SubjectRef
	}
	if issue.ScopeRef != nil {
		req.ScopeRef = *issue.ScopeRef
	}
	if req.ContentID == "" && req.ScopeRef == "" {
		return Outcome{OK: false, Message: "issue has no subject or scope reference"}
	}

	content, err := f.gen.Generate(ctx, req)
	if err != nil {
		return Outcome{OK: false, Message: err.Error()}
	}
	return Outcome{OK: true, Message: fmt.Sprintf("regenerated as %s", content.ID)}
}

// redeliveryFixer re-sends the delivery notification for the issue's
// content reference.
type redeliveryFixer struct {
	del Redeliverer
}

func (f *redeliveryFixer) Fix(ctx context.Context, issue *domain.Issue) Outcome {
	if issue.SubjectRef == nil || *issue.SubjectRef == "" {
		return Outcome{OK: false, Message: "issue has no content reference"}
	}

	if err := f.del.Redeliver(ctx, *issue.SubjectRef); err != nil {
		return Outcome{OK: false, Message: err.Error()}
	}
	return Outcome{OK: true, Message: "redelivered"}
}
