package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

const autoTitleRunes = 48

// SessionStore owns all session state and is the only component that
// mutates it. Every mutation is copy-on-write: the operation builds a new
// Session value under the store mutex, swaps the in-memory pointer, and
// persists asynchronously. Persistence is best-effort; failures are logged
// and never surfaced to the mutation's caller.
//
// The store also drives the per-turn control flow: checkpoint decision,
// context assembly, job scheduling, and result application, and it routes
// scheduler events back onto the owning session as the JobEventSink.
type SessionStore struct {
	durable   DurableStore
	logger    *Logger
	scheduler *GenerationJobScheduler
	policy    *CheckpointPolicy
	providers map[string]ProviderClient

	mu       sync.Mutex
	sessions map[string]*Session
	// jobs routes scheduler events (keyed by response id) back to the
	// session and message that own the response.
	jobs map[string]jobRef
	// syncJobs holds a still-wanted token per message with a synchronous
	// generation in flight. Cancel drops the token; the background call
	// discards its result when the token it captured is gone.
	syncJobs map[string]string
}

type jobRef struct {
	sessionID string
	messageID string
}

func NewSessionStore(durable DurableStore, logger *Logger, scheduler *GenerationJobScheduler, policy *CheckpointPolicy, providers map[string]ProviderClient) *SessionStore {
	return &SessionStore{
		durable:   durable,
		logger:    logger,
		scheduler: scheduler,
		policy:    policy,
		providers: providers,
		sessions:  map[string]*Session{},
		jobs:      map[string]jobRef{},
		syncJobs:  map[string]string{},
	}
}

// LoadSessions hydrates the in-memory set from the durable store. Called
// once at startup; load failures are surfaced because starting with silent
// data loss is worse than failing fast.
func (st *SessionStore) LoadSessions(ctx context.Context) error {
	sessions, err := st.durable.LoadAll(ctx)
	if err != nil {
		return err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	for _, sess := range sessions {
		st.sessions[sess.ID] = sess
	}
	return nil
}

// CreateSession starts a new conversation on the given provider/model.
func (st *SessionStore) CreateSession(provider, model string) (*Session, error) {
	if _, ok := st.providers[provider]; !ok {
		return nil, &ConfigurationError{Message: fmt.Sprintf("unknown provider %q", provider)}
	}
	now := time.Now().UTC()
	sess := &Session{
		ID:        uuid.NewString(),
		Provider:  provider,
		Model:     model,
		Messages:  []Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	st.mu.Lock()
	st.sessions[sess.ID] = sess
	st.mu.Unlock()
	st.persist(sess)
	return sess, nil
}

// Session returns the current immutable snapshot for an id.
func (st *SessionStore) Session(id string) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	sess, ok := st.sessions[id]
	return sess, ok
}

// ListSummaries returns listing rows for every known session.
func (st *SessionStore) ListSummaries() []SessionSummary {
	st.mu.Lock()
	defer st.mu.Unlock()
	summaries := make([]SessionSummary, 0, len(st.sessions))
	for _, sess := range st.sessions {
		summaries = append(summaries, Summarize(sess))
	}
	return summaries
}

// DeleteSession destroys a session. Forbidden while the session is
// starred.
func (st *SessionStore) DeleteSession(id string) error {
	st.mu.Lock()
	sess, ok := st.sessions[id]
	if !ok {
		st.mu.Unlock()
		return ErrSessionNotFound
	}
	if sess.Starred {
		st.mu.Unlock()
		return errors.New("session is starred; unstar before deleting")
	}
	delete(st.sessions, id)
	st.mu.Unlock()

	go func() {
		if err := st.durable.Delete(context.Background(), id); err != nil {
			st.logger.Error("failed to delete session", map[string]interface{}{
				"session": id, "error": err.Error(),
			})
		}
	}()
	return nil
}

// SetStarred toggles delete protection.
func (st *SessionStore) SetStarred(id string, starred bool) error {
	_, err := st.mutate(id, func(sess *Session) error {
		sess.Starred = starred
		return nil
	})
	return err
}

// CloseSession archives a session. Starred sessions are close-protected.
func (st *SessionStore) CloseSession(id string) error {
	_, err := st.mutate(id, func(sess *Session) error {
		if sess.Starred {
			return errors.New("session is starred; unstar before closing")
		}
		sess.Closed = true
		return nil
	})
	return err
}

// SetProviderModel switches the session's provider/model for subsequent
// turns; history and checkpoints carry over.
func (st *SessionStore) SetProviderModel(id, provider, model string) error {
	if _, ok := st.providers[provider]; !ok {
		return &ConfigurationError{Message: fmt.Sprintf("unknown provider %q", provider)}
	}
	_, err := st.mutate(id, func(sess *Session) error {
		sess.Provider = provider
		sess.Model = model
		return nil
	})
	return err
}

// SelectResponse moves the displayed branch of a message by delta
// (typically +1/-1), clamped to the valid range.
func (st *SessionStore) SelectResponse(sessionID, messageID string, delta int) error {
	_, err := st.mutate(sessionID, func(sess *Session) error {
		pos := messagePosition(sess.Messages, messageID)
		if pos < 0 {
			return fmt.Errorf("message %s not found", messageID)
		}
		msg := &sess.Messages[pos]
		if len(msg.Responses) == 0 {
			return nil
		}
		idx := msg.CurrentResponseIndex + delta
		if idx < 0 {
			idx = 0
		}
		if idx >= len(msg.Responses) {
			idx = len(msg.Responses) - 1
		}
		msg.CurrentResponseIndex = idx
		return nil
	})
	return err
}

// SendTurn runs the full per-turn control flow: checkpoint decision and
// creation, placeholder message append, context assembly, and job
// scheduling. It returns the appended message's id; the response arrives
// through the scheduler (queued) or the background sync call.
//
// A recognized checkpoint command performs manual compaction only: no
// message is appended and no generation runs.
func (st *SessionStore) SendTurn(ctx context.Context, sessionID, input string, attachments []Attachment) (string, error) {
	sess, ok := st.Session(sessionID)
	if !ok {
		return "", ErrSessionNotFound
	}
	if sess.Closed {
		return "", errors.New("session is closed")
	}
	client, ok := st.providers[sess.Provider]
	if !ok {
		return "", &ConfigurationError{Message: fmt.Sprintf("unknown provider %q", sess.Provider)}
	}

	decision := st.policy.MaybeCheckpoint(ctx, sess, input, client.SupportsHistory())
	if decision.Reason != "" {
		if cp, ok := st.policy.CreateCheckpoint(ctx, sess, decision.Reason); ok {
			sess, _ = st.mutate(sessionID, func(s *Session) error {
				s.Checkpoints = append(s.Checkpoints, cp)
				return nil
			})
		}
	}
	if decision.Reason == CheckpointManual {
		return "", nil
	}

	msg := Message{
		ID:             uuid.NewString(),
		Role:           "user",
		Content:        input,
		Attachments:    attachments,
		TopicChanged:   decision.Reason == CheckpointTopic,
		TopicReasoning: decision.TopicReasoning,
		CreatedAt:      time.Now().UTC(),
	}
	sess, err := st.mutate(sessionID, func(s *Session) error {
		if s.Title == "" {
			s.Title = autoTitle(input)
		}
		s.LastError = ""
		s.Messages = append(s.Messages, msg)
		return nil
	})
	if err != nil {
		return "", err
	}

	entries := append(BuildContext(sess, msg.ID), ContextEntry{Role: "user", Content: input})
	req := GenerationRequest{
		Provider:    sess.Provider,
		Model:       sess.Model,
		Context:     entries,
		Attachments: attachments,
	}
	if err := st.dispatch(ctx, client, sessionID, msg.ID, req); err != nil {
		return msg.ID, err
	}
	return msg.ID, nil
}

// Regenerate runs another generation attempt for an existing turn,
// attaching the result as a new response branch.
func (st *SessionStore) Regenerate(ctx context.Context, sessionID, messageID string) error {
	sess, ok := st.Session(sessionID)
	if !ok {
		return ErrSessionNotFound
	}
	client, ok := st.providers[sess.Provider]
	if !ok {
		return &ConfigurationError{Message: fmt.Sprintf("unknown provider %q", sess.Provider)}
	}
	pos := messagePosition(sess.Messages, messageID)
	if pos < 0 {
		return fmt.Errorf("message %s not found", messageID)
	}
	msg := sess.Messages[pos]
	entries := append(BuildContext(sess, messageID), ContextEntry{Role: "user", Content: msg.Content})
	req := GenerationRequest{
		Provider:    sess.Provider,
		Model:       sess.Model,
		Context:     entries,
		Attachments: msg.Attachments,
	}
	return st.dispatch(ctx, client, sessionID, messageID, req)
}

// dispatch routes one generation request through the scheduler in the mode
// the provider supports.
func (st *SessionStore) dispatch(ctx context.Context, client ProviderClient, sessionID, messageID string, req GenerationRequest) error {
	if client.Queued() {
		resp, err := st.scheduler.RunQueued(ctx, client, req)
		if err != nil {
			st.recordSessionError(sessionID, err)
			return err
		}
		if err := st.attachResponse(sessionID, messageID, resp); err != nil {
			return err
		}
		st.mu.Lock()
		st.jobs[resp.ID] = jobRef{sessionID: sessionID, messageID: messageID}
		st.mu.Unlock()
		if err := st.scheduler.StartPolling(client, resp.ID, resp.RequestID, st); err != nil {
			return err
		}
		return nil
	}

	// Synchronous mode runs off the caller's goroutine so the UI never
	// blocks on the round trip. The token is the still-wanted flag: Cancel
	// drops it, and a result resolving afterwards is discarded.
	token := uuid.NewString()
	st.mu.Lock()
	st.syncJobs[messageID] = token
	st.mu.Unlock()

	go func() {
		resp, err := st.scheduler.RunSync(context.Background(), client, req)

		st.mu.Lock()
		wanted := st.syncJobs[messageID] == token
		if wanted {
			delete(st.syncJobs, messageID)
		}
		st.mu.Unlock()
		if !wanted {
			return
		}

		if err != nil {
			st.recordSessionError(sessionID, err)
			return
		}
		if err := st.attachResponse(sessionID, messageID, resp); err != nil {
			st.logger.Info("discarding result for removed turn", map[string]interface{}{
				"session": sessionID, "message": messageID,
			})
		}
	}()
	return nil
}

// Cancel aborts the newest non-terminal generation attempt of a turn and
// rolls the transcript back: the response is removed, and when it was the
// turn's only branch the placeholder message goes with it, as if the turn
// never happened. Checkpoints are never removed; one that referenced the
// removed message simply stops resolving.
//
// Cancelling a turn whose attempts are all terminal is a no-op.
func (st *SessionStore) Cancel(sessionID, messageID string) error {
	var cancelled string
	_, err := st.mutate(sessionID, func(sess *Session) error {
		pos := messagePosition(sess.Messages, messageID)
		if pos < 0 {
			return fmt.Errorf("message %s not found", messageID)
		}
		msg := &sess.Messages[pos]
		idx := -1
		for i := len(msg.Responses) - 1; i >= 0; i-- {
			if !Terminal(msg.Responses[i].State) {
				idx = i
				break
			}
		}
		if idx < 0 {
			if len(msg.Responses) == 0 {
				// Sync job still in flight: remove the placeholder so the
				// eventual result finds nothing to attach to.
				sess.Messages = append(sess.Messages[:pos], sess.Messages[pos+1:]...)
			}
			return nil
		}
		cancelled = msg.Responses[idx].ID
		msg.Responses = append(msg.Responses[:idx], msg.Responses[idx+1:]...)
		if len(msg.Responses) == 0 {
			sess.Messages = append(sess.Messages[:pos], sess.Messages[pos+1:]...)
			return nil
		}
		if msg.CurrentResponseIndex >= len(msg.Responses) {
			msg.CurrentResponseIndex = len(msg.Responses) - 1
		}
		return nil
	})
	if err != nil {
		return err
	}
	st.mu.Lock()
	delete(st.syncJobs, messageID)
	if cancelled != "" {
		delete(st.jobs, cancelled)
	}
	st.mu.Unlock()
	if cancelled != "" {
		st.scheduler.Cancel(cancelled)
	}
	return nil
}

// RemoveMessage deletes a turn outright. Checkpoints referencing it are
// kept and become unresolvable, which the ContextAssembler handles.
func (st *SessionStore) RemoveMessage(sessionID, messageID string) error {
	_, err := st.mutate(sessionID, func(sess *Session) error {
		pos := messagePosition(sess.Messages, messageID)
		if pos < 0 {
			return fmt.Errorf("message %s not found", messageID)
		}
		sess.Messages = append(sess.Messages[:pos], sess.Messages[pos+1:]...)
		return nil
	})
	return err
}

// JobProgress implements JobEventSink: a queued job reported queued or
// in-progress status, possibly with fresh logs.
func (st *SessionStore) JobProgress(responseID string, state ResponseState) {
	st.updateResponse(responseID, func(resp *Response) {
		next, err := Transition(resp.State, state)
		if err != nil {
			st.logger.Warn("ignoring job state regression", map[string]interface{}{
				"response": responseID, "error": err.Error(),
			})
			return
		}
		resp.State = next
	})
}

// JobCompleted implements JobEventSink: the final result arrived. The log
// lines accumulated during queued/in-progress polls are carried into the
// terminal state, never dropped.
func (st *SessionStore) JobCompleted(responseID string, result JobResult) {
	st.updateResponse(responseID, func(resp *Response) {
		next, err := Transition(resp.State, Completed{Content: result.Content, Media: result.MediaAssets, Logs: resp.Logs()})
		if err != nil {
			st.logger.Warn("ignoring completion for terminal response", map[string]interface{}{
				"response": responseID, "error": err.Error(),
			})
			return
		}
		resp.State = next
		resp.CompletedAt = time.Now().UTC()
	})
	st.mu.Lock()
	delete(st.jobs, responseID)
	st.mu.Unlock()
}

// JobFailed implements JobEventSink: polling or the provider reported a
// terminal failure. The error message becomes the response content.
func (st *SessionStore) JobFailed(responseID string, jobErr error) {
	st.updateResponse(responseID, func(resp *Response) {
		next, err := Transition(resp.State, Failed{Err: jobErr.Error()})
		if err != nil {
			st.logger.Warn("ignoring failure for terminal response", map[string]interface{}{
				"response": responseID, "error": err.Error(),
			})
			return
		}
		resp.State = next
		resp.CompletedAt = time.Now().UTC()
	})
	st.mu.Lock()
	delete(st.jobs, responseID)
	st.mu.Unlock()
}

// attachResponse adds a response branch to a message, assigning its
// generation number and selecting it for display. Fails when the message
// is gone (turn cancelled while the job ran).
func (st *SessionStore) attachResponse(sessionID, messageID string, resp Response) error {
	_, err := st.mutate(sessionID, func(sess *Session) error {
		pos := messagePosition(sess.Messages, messageID)
		if pos < 0 {
			return fmt.Errorf("message %s not found", messageID)
		}
		msg := &sess.Messages[pos]
		resp.GenerationNumber = len(msg.Responses) + 1
		msg.Responses = append(msg.Responses, resp)
		msg.CurrentResponseIndex = len(msg.Responses) - 1
		return nil
	})
	return err
}

// updateResponse applies fn to the response with the given id, located via
// the jobs routing table. Unknown ids are ignored: the job was cancelled
// and its events are stale.
func (st *SessionStore) updateResponse(responseID string, fn func(*Response)) {
	st.mu.Lock()
	ref, ok := st.jobs[responseID]
	st.mu.Unlock()
	if !ok {
		return
	}
	_, err := st.mutate(ref.sessionID, func(sess *Session) error {
		pos := messagePosition(sess.Messages, ref.messageID)
		if pos < 0 {
			return fmt.Errorf("message %s not found", ref.messageID)
		}
		msg := &sess.Messages[pos]
		for i := range msg.Responses {
			if msg.Responses[i].ID == responseID {
				fn(&msg.Responses[i])
				return nil
			}
		}
		return fmt.Errorf("response %s not found", responseID)
	})
	if err != nil {
		st.logger.Info("dropping stale job event", map[string]interface{}{
			"response": responseID, "error": err.Error(),
		})
	}
}

func (st *SessionStore) recordSessionError(sessionID string, err error) {
	_, _ = st.mutate(sessionID, func(sess *Session) error {
		sess.LastError = err.Error()
		return nil
	})
}

// mutate runs fn against a deep copy of the session, swaps the copy in as
// the new current value, and persists it asynchronously. When fn errors
// the swap does not happen and the old value stays current.
func (st *SessionStore) mutate(sessionID string, fn func(*Session) error) (*Session, error) {
	st.mu.Lock()
	current, ok := st.sessions[sessionID]
	if !ok {
		st.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	next := cloneSession(current)
	if err := fn(next); err != nil {
		st.mu.Unlock()
		return nil, err
	}
	next.UpdatedAt = time.Now().UTC()
	st.sessions[sessionID] = next
	st.mu.Unlock()

	st.persist(next)
	return next, nil
}

// persist writes the snapshot fire-and-forget. The snapshot is immutable,
// so the goroutine can serialize it without holding the store lock.
func (st *SessionStore) persist(sess *Session) {
	go func() {
		if err := st.durable.Save(context.Background(), sess); err != nil {
			st.logger.Error("failed to persist session", map[string]interface{}{
				"session": sess.ID, "error": err.Error(),
			})
		}
	}()
}

// cloneSession copies a session deeply enough that mutating the clone
// never aliases slices of the original.
func cloneSession(sess *Session) *Session {
	next := *sess
	next.Messages = make([]Message, len(sess.Messages))
	copy(next.Messages, sess.Messages)
	for i := range next.Messages {
		responses := make([]Response, len(next.Messages[i].Responses))
		copy(responses, next.Messages[i].Responses)
		next.Messages[i].Responses = responses
	}
	next.Checkpoints = make([]Checkpoint, len(sess.Checkpoints))
	copy(next.Checkpoints, sess.Checkpoints)
	return &next
}

func autoTitle(input string) string {
	runes := []rune(input)
	if len(runes) <= autoTitleRunes {
		return input
	}
	return string(runes[:autoTitleRunes-1]) + "…"
}
