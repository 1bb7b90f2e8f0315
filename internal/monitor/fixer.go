package monitor

import (
	"context"

	"github.com/jonesrussell/north-cloud/monitor/internal/domain"
)

// Outcome is the result of one fix attempt.
type Outcome struct {
	OK      bool
	Message string
}

// Fixer attempts to remediate a single issue. Implementations must not
// mutate the issue; state transitions belong to the dispatcher.
type Fixer interface {
	Fix(ctx context.Context, issue *domain.Issue) Outcome
}

// FixerFunc adapts a function to the Fixer interface.
type FixerFunc func(ctx context.Context, issue *domain.Issue) Outcome

// Fix calls the wrapped function.
func (f FixerFunc) Fix(ctx context.Context, issue *domain.Issue) Outcome {
	return f(ctx, issue)
}

// Registry maps issue types to their fixers. Types without an entry are a
// defined skip, never an error.
type Registry map[domain.IssueType]Fixer

// Lookup returns the fixer registered for an issue type.
func (r Registry) Lookup(t domain.IssueType) (Fixer, bool) {
	f, ok := r[t]
	return f, ok
}
