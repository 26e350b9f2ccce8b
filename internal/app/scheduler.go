package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultPollInterval is the fixed period between status polls for queued
// jobs.
const DefaultPollInterval = 10 * time.Second

// JobEventSink receives lifecycle events from queued-job poll loops. The
// SessionStore implements it to apply copy-on-write updates to the owning
// session. Events for a response that no longer exists (cancelled) must be
// ignored, not treated as errors.
type JobEventSink interface {
	JobProgress(responseID string, state ResponseState)
	JobCompleted(responseID string, result JobResult)
	JobFailed(responseID string, err error)
}

// GenerationJobScheduler owns the lifecycle of generation attempts:
// submission, polling, completion, cancellation. Poll loops live in a
// registry keyed by response id; closePoller is the single removal path,
// which is what guarantees at most one active timer per response id.
type GenerationJobScheduler struct {
	visibility *VisibilityTracker
	logger     *Logger
	interval   time.Duration

	mu      sync.Mutex
	pollers map[string]*poller
}

type poller struct {
	responseID string
	requestID  string
	client     ProviderClient
	ctx        context.Context
	cancel     context.CancelFunc
}

func NewGenerationJobScheduler(visibility *VisibilityTracker, logger *Logger, interval time.Duration) *GenerationJobScheduler {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &GenerationJobScheduler{
		visibility: visibility,
		logger:     logger,
		interval:   interval,
		pollers:    map[string]*poller{},
	}
}

// RunSync issues one synchronous generation round trip. On success the
// returned Response is already terminal (completed); on failure no
// Response exists and the *ProviderError is returned for the session-level
// banner.
func (s *GenerationJobScheduler) RunSync(ctx context.Context, client ProviderClient, req GenerationRequest) (Response, error) {
	result, err := client.SendSync(ctx, req)
	if err != nil {
		return Response{}, err
	}
	now := time.Now().UTC()
	return Response{
		ID:          uuid.NewString(),
		Provider:    req.Provider,
		Model:       req.Model,
		State:       Completed{Content: result.Content},
		TokenCount:  result.TokenCount,
		LatencyMs:   result.LatencyMs,
		CreatedAt:   now,
		CompletedAt: now,
	}, nil
}

// RunQueued submits the request and returns a pending Response carrying
// the provider's request id. The caller attaches the Response to its
// message first and then starts the poll loop with StartPolling, so no
// event can arrive before the response is reachable.
func (s *GenerationJobScheduler) RunQueued(ctx context.Context, client ProviderClient, req GenerationRequest) (Response, error) {
	requestID, err := client.SubmitQueued(ctx, req)
	if err != nil {
		return Response{}, err
	}
	return Response{
		ID:        uuid.NewString(),
		Provider:  req.Provider,
		Model:     req.Model,
		State:     Pending{},
		RequestID: requestID,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// StartPolling arms the fixed-interval poll loop for a pending queued
// response. Starting a second loop for an id that already has one is an
// error; the previous loop must be closed first.
func (s *GenerationJobScheduler) StartPolling(client ProviderClient, responseID, requestID string, sink JobEventSink) error {
	s.mu.Lock()
	if _, exists := s.pollers[responseID]; exists {
		s.mu.Unlock()
		return fmt.Errorf("poll loop already active for response %s", responseID)
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &poller{
		responseID: responseID,
		requestID:  requestID,
		client:     client,
		ctx:        ctx,
		cancel:     cancel,
	}
	s.pollers[responseID] = p
	s.mu.Unlock()

	go s.pollLoop(p, sink)
	return nil
}

// Cancel stops and removes the poll loop for a job, if one exists. Any
// in-flight fetch discovers the closed poller when it resolves and
// discards its result. Cancellation is cooperative and local: the
// provider-side job is not aborted.
func (s *GenerationJobScheduler) Cancel(responseID string) {
	s.closePoller(responseID)
	s.visibility.Forget(responseID)
}

// Active reports whether a poll loop currently exists for the response id.
func (s *GenerationJobScheduler) Active(responseID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pollers[responseID]
	return ok
}

// closePoller is the only removal path from the registry. It reports
// whether the poller was still registered, which doubles as the
// "still wanted" flag for results resolving after cancellation.
func (s *GenerationJobScheduler) closePoller(responseID string) bool {
	s.mu.Lock()
	p, ok := s.pollers[responseID]
	if ok {
		delete(s.pollers, responseID)
	}
	s.mu.Unlock()
	if ok {
		p.cancel()
	}
	return ok
}

func (s *GenerationJobScheduler) pollLoop(p *poller, sink JobEventSink) {
	visCh := s.visibility.Subscribe(p.responseID)
	defer s.visibility.Unsubscribe(p.responseID, visCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	visible := s.visibility.Visible(p.responseID)
	for {
		select {
		case <-p.ctx.Done():
			return
		case v := <-visCh:
			visible = v
		case <-ticker.C:
			if !visible {
				// Off-screen: skip this tick's network work but keep the
				// timer armed.
				continue
			}
			if s.pollOnce(p, sink) {
				return
			}
		}
	}
}

// pollOnce performs one visible tick. It returns true when the loop must
// stop (terminal status, poll failure, or cancellation observed).
func (s *GenerationJobScheduler) pollOnce(p *poller, sink JobEventSink) bool {
	status, err := p.client.PollStatus(p.ctx, p.requestID)
	if err != nil {
		if s.closePoller(p.responseID) {
			sink.JobFailed(p.responseID, &PollingError{RequestID: p.requestID, Message: err.Error()})
			s.visibility.Forget(p.responseID)
		}
		return true
	}

	switch status.Status {
	case "queued":
		if !s.stillWanted(p) {
			return true
		}
		sink.JobProgress(p.responseID, Queued{Logs: status.Logs})
	case "in_progress":
		if !s.stillWanted(p) {
			return true
		}
		sink.JobProgress(p.responseID, InProgress{Logs: status.Logs})
	case "completed":
		result, err := p.client.FetchResult(p.ctx, p.requestID)
		// closePoller doubles as the still-wanted check: when Cancel won
		// the race during the fetch, the result is discarded here.
		if !s.closePoller(p.responseID) {
			return true
		}
		if err != nil {
			sink.JobFailed(p.responseID, &PollingError{RequestID: p.requestID, Message: err.Error()})
		} else {
			sink.JobCompleted(p.responseID, result)
		}
		s.visibility.Forget(p.responseID)
		return true
	case "failed":
		if !s.closePoller(p.responseID) {
			return true
		}
		sink.JobFailed(p.responseID, &PollingError{RequestID: p.requestID, Message: "generation failed"})
		s.visibility.Forget(p.responseID)
		return true
	default:
		s.logger.Warn("unknown job status", map[string]interface{}{
			"response": p.responseID,
			"status":   status.Status,
		})
	}
	return false
}

// stillWanted checks for a cancellation that raced with the status fetch.
func (s *GenerationJobScheduler) stillWanted(p *poller) bool {
	select {
	case <-p.ctx.Done():
		return false
	default:
		return true
	}
}
