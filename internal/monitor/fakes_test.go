package monitor_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonesrussell/north-cloud/monitor/internal/content"
	"github.com/jonesrussell/north-cloud/monitor/internal/domain"
	"github.com/jonesrussell/north-cloud/monitor/internal/generation"
	"github.com/jonesrussell/north-cloud/monitor/internal/monitor"
)

// fakeIssueStore is an in-memory ledger recording every transition.
type fakeIssueStore struct {
	mu sync.Mutex

	created      []*domain.Issue
	dedupKeys    map[string]bool
	createErr    error
	retryable    []domain.Issue
	retryableErr error

	// promoteCreated makes freshly created issues visible to GetRetryable,
	// so a single run exercises intake and dispatch together.
	promoteCreated bool

	retryingIDs    [][]string
	resolved       map[string]string
	retryScheduled map[string]time.Time
	needsManual    map[string]string
}

func newFakeIssueStore() *fakeIssueStore {
	return &fakeIssueStore{
		dedupKeys:      make(map[string]bool),
		resolved:       make(map[string]string),
		retryScheduled: make(map[string]time.Time),
		needsManual:    make(map[string]string),
	}
}

func (s *fakeIssueStore) Create(_ context.Context, issue *domain.Issue) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return false, s.createErr
	}
	key := issue.DedupKey()
	if s.dedupKeys[key] {
		return false, nil
	}
	s.dedupKeys[key] = true
	s.created = append(s.created, issue)
	return true, nil
}

func (s *fakeIssueStore) GetRetryable(_ context.Context, _ time.Time) ([]domain.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.retryableErr != nil {
		return nil, s.retryableErr
	}
	out := make([]domain.Issue, len(s.retryable))
	copy(out, s.retryable)
	if s.promoteCreated {
		for _, issue := range s.created {
			out = append(out, *issue)
		}
	}
	return out, nil
}

func (s *fakeIssueStore) MarkRetrying(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retryingIDs = append(s.retryingIDs, ids)
	return nil
}

func (s *fakeIssueStore) MarkResolved(_ context.Context, id, result string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolved[id] = result
	return nil
}

func (s *fakeIssueStore) MarkRetryScheduled(_ context.Context, id, _ string, nextRetryAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retryScheduled[id] = nextRetryAt
	return nil
}

func (s *fakeIssueStore) MarkNeedsManual(_ context.Context, id, result string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.needsManual[id] = result
	return nil
}

// transitions returns how many state changes were recorded for an issue.
func (s *fakeIssueStore) transitions(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	if _, ok := s.resolved[id]; ok {
		n++
	}
	if _, ok := s.retryScheduled[id]; ok {
		n++
	}
	if _, ok := s.needsManual[id]; ok {
		n++
	}
	return n
}

// fakeExecutionStore records run history calls.
type fakeExecutionStore struct {
	mu sync.Mutex

	startErr  error
	starts    int
	finishes  int
	lastOK    bool
	lastErrs  []string
	lastRunID string
	summary   domain.RunSummary
}

func (s *fakeExecutionStore) Start(_ context.Context, id, _ string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return s.startErr
	}
	s.starts++
	s.lastRunID = id
	return nil
}

func (s *fakeExecutionStore) Finish(_ context.Context, id string, success bool, errs []string, summary domain.RunSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finishes++
	s.lastRunID = id
	s.lastOK = success
	s.lastErrs = errs
	s.summary = summary
	return nil
}

// stubFixer returns a scripted outcome and counts invocations.
type stubFixer struct {
	mu      sync.Mutex
	outcome monitor.Outcome
	calls   int
}

func (f *stubFixer) Fix(_ context.Context, _ *domain.Issue) monitor.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.outcome
}

func (f *stubFixer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// stubBatchGenerator records the scopes and budget it was called with.
type stubBatchGenerator struct {
	mu     sync.Mutex
	calls  int
	scopes []string
	budget time.Duration
	result *generation.BatchResult
	err    error
}

func (g *stubBatchGenerator) GenerateBatch(_ context.Context, scopeRefs []string, budget time.Duration) (*generation.BatchResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.scopes = scopeRefs
	g.budget = budget
	if g.err != nil {
		return nil, g.err
	}
	if g.result != nil {
		return g.result, nil
	}
	return &generation.BatchResult{Requested: len(scopeRefs)}, nil
}

// stubReconciler returns a fixed view of freshly produced content.
type stubReconciler struct {
	items []content.Item
	err   error
}

func (r *stubReconciler) ItemsSince(_ context.Context, _ time.Time, _ []string) ([]content.Item, error) {
	return r.items, r.err
}

// stubDetector emits a fixed candidate set, or fails.
type stubDetector struct {
	name       string
	candidates []domain.Candidate
	err        error
	panics     bool
}

func (d *stubDetector) Name() string { return d.name }

func (d *stubDetector) Scan(_ context.Context, _ time.Time) ([]domain.Candidate, error) {
	if d.panics {
		panic("detector exploded")
	}
	return d.candidates, d.err
}

// fakeObserver records the metric signals a run emits.
type fakeObserver struct {
	mu       sync.Mutex
	runs     []string
	detected map[string]int
	attempts map[string]int
}

func newFakeObserver() *fakeObserver {
	return &fakeObserver{
		detected: make(map[string]int),
		attempts: make(map[string]int),
	}
}

func (o *fakeObserver) RunCompleted(result string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runs = append(o.runs, result)
}

func (o *fakeObserver) IssuesDetected(issueType string, count int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.detected[issueType] += count
}

func (o *fakeObserver) FixAttempt(issueType, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.attempts[issueType+"/"+outcome]++
}

var errStoreDown = errors.New("store unavailable")
