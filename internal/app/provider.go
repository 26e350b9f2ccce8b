package app

import "context"

// GenerationRequest is the provider-facing form of one generation attempt:
// the assembled prompt context plus selection and attachments.
type GenerationRequest struct {
	Provider    string
	Model       string
	Context     []ContextEntry
	Attachments []Attachment
}

// SyncResult is the outcome of a one-round-trip generation.
type SyncResult struct {
	Content    string
	TokenCount int
	LatencyMs  int64
}

// JobStatus is a queued job's provider-side progress snapshot.
type JobStatus struct {
	Status string // "queued" | "in_progress" | "completed" | "failed"
	Logs   []string
}

// JobResult is the final payload of a completed queued job.
type JobResult struct {
	Content     string
	MediaAssets []MediaAsset
}

// ProviderClient is the boundary to one LLM provider. Implementations do
// the actual HTTP/SDK work; the engine only sequences calls. All methods
// may return *ProviderError.
//
// A provider is either synchronous (SendSync only) or queued
// (SubmitQueued/PollStatus/FetchResult); the scheduler picks the mode from
// the Queued capability flag.
type ProviderClient interface {
	Queued() bool
	// SupportsHistory reports whether the provider accepts assembled
	// conversation history; the topic-change checkpoint rule only applies
	// to providers that do.
	SupportsHistory() bool
	SendSync(ctx context.Context, req GenerationRequest) (SyncResult, error)
	SubmitQueued(ctx context.Context, req GenerationRequest) (requestID string, err error)
	PollStatus(ctx context.Context, requestID string) (JobStatus, error)
	FetchResult(ctx context.Context, requestID string) (JobResult, error)
}

// Completer is the narrow text-in/text-out surface the topic classifier and
// summarizer need. HTTPProviderClient satisfies it via its sync endpoint.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}
