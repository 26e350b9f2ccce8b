package app

import (
	"encoding/json"
	"fmt"
	"time"
)

// ResponseState is the lifecycle of a generation attempt, modelled as a
// closed set of variants so each state carries only the data that exists in
// that state. Transitions move strictly forward:
//
//	Pending -> Queued -> InProgress -> Completed | Failed
//
// Completed and Failed are terminal. Cancellation is not a state: a
// cancelled response is removed from its message entirely.
type ResponseState interface {
	// Status is the wire/UI tag for the state.
	Status() string
	rank() int
}

type Pending struct{}

type Queued struct {
	Logs []string
}

type InProgress struct {
	Logs []string
}

type Completed struct {
	Content string
	Media   []MediaAsset
	// Logs carries forward the lines accumulated while the job was queued
	// or in progress; completion never discards them.
	Logs []string
}

type Failed struct {
	Err string
}

func (Pending) Status() string    { return "pending" }
func (Queued) Status() string     { return "queued" }
func (InProgress) Status() string { return "in_progress" }
func (Completed) Status() string  { return "completed" }
func (Failed) Status() string     { return "failed" }

func (Pending) rank() int    { return 0 }
func (Queued) rank() int     { return 1 }
func (InProgress) rank() int { return 2 }
func (Completed) rank() int  { return 3 }
func (Failed) rank() int     { return 3 }

// Terminal reports whether no further transitions are allowed.
func Terminal(s ResponseState) bool {
	switch s.(type) {
	case Completed, Failed:
		return true
	}
	return false
}

// Transition validates a forward-only state change. Re-entering the same
// non-terminal state is allowed (a poll tick may refresh logs in place);
// moving backward or leaving a terminal state is not.
func Transition(from, to ResponseState) (ResponseState, error) {
	if from == nil {
		return to, nil
	}
	if Terminal(from) {
		return nil, fmt.Errorf("response state %s is terminal", from.Status())
	}
	if to.rank() < from.rank() {
		return nil, fmt.Errorf("response state cannot regress from %s to %s", from.Status(), to.Status())
	}
	return to, nil
}

// responseRecord is the flat persisted form of a Response; the state union
// is stored as a status tag plus the optional fields of whichever variant
// was live.
type responseRecord struct {
	ID               string       `json:"id"`
	Provider         string       `json:"provider"`
	Model            string       `json:"model"`
	GenerationNumber int          `json:"generation_number"`
	Status           string       `json:"status"`
	Logs             []string     `json:"logs,omitempty"`
	Content          string       `json:"content,omitempty"`
	Media            []MediaAsset `json:"media,omitempty"`
	Error            string       `json:"error,omitempty"`
	RequestID        string       `json:"request_id,omitempty"`
	TokenCount       int          `json:"token_count,omitempty"`
	LatencyMs        int64        `json:"latency_ms,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
	CompletedAt      time.Time    `json:"completed_at"`
}

func (r Response) MarshalJSON() ([]byte, error) {
	rec := responseRecord{
		ID:               r.ID,
		Provider:         r.Provider,
		Model:            r.Model,
		GenerationNumber: r.GenerationNumber,
		RequestID:        r.RequestID,
		TokenCount:       r.TokenCount,
		LatencyMs:        r.LatencyMs,
		CreatedAt:        r.CreatedAt,
		CompletedAt:      r.CompletedAt,
	}
	state := r.State
	if state == nil {
		state = Pending{}
	}
	rec.Status = state.Status()
	switch s := state.(type) {
	case Queued:
		rec.Logs = s.Logs
	case InProgress:
		rec.Logs = s.Logs
	case Completed:
		rec.Content = s.Content
		rec.Media = s.Media
		rec.Logs = s.Logs
	case Failed:
		rec.Error = s.Err
	}
	return json.Marshal(rec)
}

func (r *Response) UnmarshalJSON(data []byte) error {
	var rec responseRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	*r = Response{
		ID:               rec.ID,
		Provider:         rec.Provider,
		Model:            rec.Model,
		GenerationNumber: rec.GenerationNumber,
		RequestID:        rec.RequestID,
		TokenCount:       rec.TokenCount,
		LatencyMs:        rec.LatencyMs,
		CreatedAt:        rec.CreatedAt,
		CompletedAt:      rec.CompletedAt,
	}
	switch rec.Status {
	case "", "pending":
		r.State = Pending{}
	case "queued":
		r.State = Queued{Logs: rec.Logs}
	case "in_progress":
		r.State = InProgress{Logs: rec.Logs}
	case "completed":
		r.State = Completed{Content: rec.Content, Media: rec.Media, Logs: rec.Logs}
	case "failed":
		r.State = Failed{Err: rec.Error}
	default:
		return fmt.Errorf("unknown response status %q", rec.Status)
	}
	return nil
}
