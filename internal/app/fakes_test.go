package app

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"
)

// fakeProvider scripts provider behavior for tests. Poll statuses are
// consumed in order; the last one repeats once the script runs out.
type fakeProvider struct {
	queued    bool
	noHistory bool

	syncResult SyncResult
	syncErr    error
	syncDelay  time.Duration

	submitID  string
	submitErr error

	statuses  []JobStatus
	statusErr error
	result    JobResult
	resultErr error

	mu        sync.Mutex
	pollCalls int
	syncCalls int
}

func (f *fakeProvider) Queued() bool          { return f.queued }
func (f *fakeProvider) SupportsHistory() bool { return !f.noHistory }

func (f *fakeProvider) SendSync(ctx context.Context, req GenerationRequest) (SyncResult, error) {
	f.mu.Lock()
	f.syncCalls++
	delay, syncErr, result := f.syncDelay, f.syncErr, f.syncResult
	f.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	if syncErr != nil {
		return SyncResult{}, syncErr
	}
	return result, nil
}

func (f *fakeProvider) SubmitQueued(ctx context.Context, req GenerationRequest) (string, error) {
	if f.submitErr != nil {
		return "", f.submitErr
	}
	if f.submitID == "" {
		return "req-1", nil
	}
	return f.submitID, nil
}

func (f *fakeProvider) PollStatus(ctx context.Context, requestID string) (JobStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pollCalls++
	if f.statusErr != nil {
		return JobStatus{}, f.statusErr
	}
	if len(f.statuses) == 0 {
		return JobStatus{Status: "queued"}, nil
	}
	status := f.statuses[0]
	if len(f.statuses) > 1 {
		f.statuses = f.statuses[1:]
	}
	return status, nil
}

func (f *fakeProvider) FetchResult(ctx context.Context, requestID string) (JobResult, error) {
	if f.resultErr != nil {
		return JobResult{}, f.resultErr
	}
	return f.result, nil
}

func (f *fakeProvider) polls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pollCalls
}

type fakeClassifier struct {
	verdict TopicVerdict
	err     error
	calls   int
}

func (f *fakeClassifier) Classify(ctx context.Context, newInput string, recentTurns []ContextEntry) (TopicVerdict, error) {
	f.calls++
	if f.err != nil {
		return TopicVerdict{}, f.err
	}
	return f.verdict, nil
}

type fakeSummarizer struct {
	summary string
	err     error
	calls   int
}

func (f *fakeSummarizer) Summarize(ctx context.Context, turns []ContextEntry) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.summary, nil
}

// recordingSink collects scheduler events and signals terminal ones.
type recordingSink struct {
	mu        sync.Mutex
	progress  []ResponseState
	completed chan JobResult
	failed    chan error
}

func newRecordingSink() *recordingSink {
	return &recordingSink{
		completed: make(chan JobResult, 1),
		failed:    make(chan error, 1),
	}
}

func (s *recordingSink) JobProgress(responseID string, state ResponseState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = append(s.progress, state)
}

func (s *recordingSink) JobCompleted(responseID string, result JobResult) {
	s.completed <- result
}

func (s *recordingSink) JobFailed(responseID string, err error) {
	s.failed <- err
}

func (s *recordingSink) progressStates() []ResponseState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ResponseState, len(s.progress))
	copy(out, s.progress)
	return out
}

func testLogger() *Logger {
	return NewLogger(io.Discard)
}

// newTestStore wires a SessionStore over a memory durable store and the
// given provider, with a fast scheduler and inert collaborators.
func newTestStore(provider ProviderClient) (*SessionStore, *GenerationJobScheduler, *VisibilityTracker) {
	logger := testLogger()
	visibility := NewVisibilityTracker()
	scheduler := NewGenerationJobScheduler(visibility, logger, 5*time.Millisecond)
	policy := &CheckpointPolicy{
		Classifier: &fakeClassifier{},
		Summarizer: &fakeSummarizer{summary: "summary"},
		Logger:     logger,
	}
	store := NewSessionStore(NewMemoryStore(), logger, scheduler, policy, map[string]ProviderClient{
		"test": provider,
	})
	return store, scheduler, visibility
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}

var errBoom = errors.New("boom")
