package app

import "fmt"

// ConfigurationError means a provider cannot be used at all (missing
// credentials, unknown provider name). It fails before any job starts and
// is never retried.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Message
}

// ProviderError is a network/HTTP/SDK failure from the provider client. In
// synchronous mode it surfaces as the session-level error banner and no
// response is created; in queued mode the response is marked failed.
type ProviderError struct {
	Message    string
	StatusCode int
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider error (status %d): %s", e.StatusCode, e.Message)
	}
	return "provider error: " + e.Message
}

// ClassificationError is a topic-classifier failure. Always recovered
// locally: the policy treats it as "no topic change" and the turn proceeds.
type ClassificationError struct {
	Message string
}

func (e *ClassificationError) Error() string {
	return "classification error: " + e.Message
}

// SummarizationError is a summarizer failure. Recovered locally: the
// checkpoint is skipped and the turn proceeds.
type SummarizationError struct {
	Message string
}

func (e *SummarizationError) Error() string {
	return "summarization error: " + e.Message
}

// PollingError is a status/result fetch failure during a queued job. It is
// terminal for that job: the response is marked failed, no retry.
type PollingError struct {
	RequestID string
	Message   string
}

func (e *PollingError) Error() string {
	return fmt.Sprintf("polling error for request %s: %s", e.RequestID, e.Message)
}
