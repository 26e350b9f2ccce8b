package app

import "time"

// Session is one conversation thread with its own provider/model selection,
// message history and checkpoint chain. Sessions are owned by the
// SessionStore and mutated only through it; every mutation produces a fresh
// Session value (copy-on-write), so a *Session handed out by the store is
// safe to read without locking.
type Session struct {
	ID       string `json:"id"`
	Title    string `json:"title,omitempty"`
	Provider string `json:"provider"`
	Model    string `json:"model"`

	// Starred sessions cannot be deleted until unstarred.
	Starred bool `json:"starred,omitempty"`
	// Closed marks a session archived; it stays loadable but inactive.
	Closed bool `json:"closed,omitempty"`

	Messages    []Message    `json:"messages"`
	Checkpoints []Checkpoint `json:"checkpoints,omitempty"`

	// LastError holds the most recent session-level failure (provider
	// errors in synchronous mode) for the UI banner. Cleared on the next
	// successful turn.
	LastError string `json:"last_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one user turn. Assistant output is not a separate transcript
// entry: each generation attempt is a Response branch attached to the user
// message that produced it, so "regenerate" grows Responses rather than the
// transcript.
type Message struct {
	ID          string       `json:"id"`
	Role        string       `json:"role"` // always "user" in the transcript
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`

	Responses []Response `json:"responses,omitempty"`
	// CurrentResponseIndex selects the displayed branch. Meaningless when
	// Responses is empty; otherwise 0 <= index < len(Responses).
	CurrentResponseIndex int `json:"current_response_index"`

	// TopicChanged is set when the topic classifier triggered a checkpoint
	// on this turn; TopicReasoning carries the classifier's explanation for
	// UI display.
	TopicChanged   bool   `json:"topic_changed,omitempty"`
	TopicReasoning string `json:"topic_reasoning,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Response is one generation attempt (a job) for a user turn.
type Response struct {
	ID       string `json:"id"`
	Provider string `json:"provider"`
	Model    string `json:"model"`

	// GenerationNumber is 1-based and strictly increasing within the parent
	// message, assigned by the SessionStore when the Response is attached.
	GenerationNumber int `json:"generation_number"`

	State ResponseState `json:"-"`

	// RequestID is the provider's opaque handle for queued jobs.
	RequestID string `json:"request_id,omitempty"`

	TokenCount int   `json:"token_count,omitempty"`
	LatencyMs  int64 `json:"latency_ms,omitempty"`

	CreatedAt   time.Time `json:"created_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

// Content returns the displayable text for the response: final content when
// completed, the failure message when failed, empty otherwise.
func (r Response) Content() string {
	switch s := r.State.(type) {
	case Completed:
		return s.Content
	case Failed:
		return s.Err
	default:
		return ""
	}
}

// Logs returns the provider log lines accumulated so far. Completed
// responses keep the lines gathered while the job ran.
func (r Response) Logs() []string {
	switch s := r.State.(type) {
	case Queued:
		return s.Logs
	case InProgress:
		return s.Logs
	case Completed:
		return s.Logs
	default:
		return nil
	}
}

// Checkpoint is an immutable summary snapshot bounding how much raw history
// must be resent to the model. Checkpoints are append-only and stored in
// creation order; they are never mutated or deleted. LastMessageID may stop
// resolving if the referenced message is removed by cancellation rollback,
// in which case the ContextAssembler skips the checkpoint.
type Checkpoint struct {
	ID            string           `json:"id"`
	Summary       string           `json:"summary"`
	LastMessageID string           `json:"last_message_id"`
	Reason        CheckpointReason `json:"reason"`
	CreatedAt     time.Time        `json:"created_at"`
}

type CheckpointReason string

const (
	CheckpointManual     CheckpointReason = "manual"
	CheckpointTokenLimit CheckpointReason = "token_limit"
	CheckpointTopic      CheckpointReason = "topic_change"
)

// Attachment is an opaque user-supplied artifact sent with a turn.
type Attachment struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type,omitempty"`
	Data     []byte `json:"data,omitempty"`
}

// MediaAsset is a provider-produced artifact attached to a completed
// response (image, audio, file URL).
type MediaAsset struct {
	Kind string `json:"kind"`
	URL  string `json:"url,omitempty"`
	Name string `json:"name,omitempty"`
}

// SessionSummary is a listing row for stored sessions.
type SessionSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	Starred      bool      `json:"starred"`
	Closed       bool      `json:"closed"`
	MessageCount int       `json:"message_count"`
	LastActivity time.Time `json:"last_activity"`
}

// Summarize builds the listing row for a session.
func Summarize(sess *Session) SessionSummary {
	last := sess.UpdatedAt
	if last.IsZero() {
		last = sess.CreatedAt
	}
	return SessionSummary{
		ID:           sess.ID,
		Title:        sess.Title,
		Provider:     sess.Provider,
		Model:        sess.Model,
		Starred:      sess.Starred,
		Closed:       sess.Closed,
		MessageCount: len(sess.Messages),
		LastActivity: last,
	}
}
