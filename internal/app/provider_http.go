package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPProviderClient talks to an OpenAI-style chat completion API, with an
// optional queued-generation surface (submit/status/result endpoints) for
// providers whose generations are long-running.
type HTTPProviderClient struct {
	Name      string
	APIKey    string
	Model     string
	BaseURL   string
	MaxTokens int
	// QueuedMode selects submit/poll/fetch instead of one-shot completion.
	QueuedMode bool
	// NoHistory marks providers that only accept a single prompt; they are
	// exempt from topic-change classification.
	NoHistory bool
	HTTP      *http.Client
}

type chatRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens,omitempty"`
	Messages  []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
	Error *apiError `json:"error,omitempty"`
}

type submitResponse struct {
	RequestID string    `json:"request_id"`
	Error     *apiError `json:"error,omitempty"`
}

type statusResponse struct {
	Status string    `json:"status"`
	Logs   []string  `json:"logs,omitempty"`
	Error  *apiError `json:"error,omitempty"`
}

type resultResponse struct {
	Content string       `json:"content"`
	Media   []MediaAsset `json:"media,omitempty"`
	Error   *apiError    `json:"error,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func NewHTTPProviderClient(name, apiKey, model, baseURL string, maxTokens int, queued bool) *HTTPProviderClient {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &HTTPProviderClient{
		Name:       name,
		APIKey:     apiKey,
		Model:      model,
		BaseURL:    strings.TrimRight(baseURL, "/"),
		MaxTokens:  maxTokens,
		QueuedMode: queued,
		HTTP:       &http.Client{Timeout: 120 * time.Second},
	}
}

func (c *HTTPProviderClient) Queued() bool { return c.QueuedMode }

func (c *HTTPProviderClient) SupportsHistory() bool { return !c.NoHistory }

func (c *HTTPProviderClient) SendSync(ctx context.Context, req GenerationRequest) (SyncResult, error) {
	start := time.Now()
	msgs := make([]chatMessage, 0, len(req.Context))
	for _, entry := range req.Context {
		msgs = append(msgs, chatMessage{Role: entry.Role, Content: entry.Content})
	}
	model := req.Model
	if model == "" {
		model = c.Model
	}
	var out chatResponse
	if err := c.post(ctx, "/chat/completions", chatRequest{Model: model, MaxTokens: c.MaxTokens, Messages: msgs}, &out); err != nil {
		return SyncResult{}, err
	}
	if out.Error != nil {
		return SyncResult{}, &ProviderError{Message: out.Error.Message}
	}
	if len(out.Choices) == 0 {
		return SyncResult{}, &ProviderError{Message: "empty completion response"}
	}
	return SyncResult{
		Content:    out.Choices[0].Message.Content,
		TokenCount: out.Usage.TotalTokens,
		LatencyMs:  time.Since(start).Milliseconds(),
	}, nil
}

func (c *HTTPProviderClient) SubmitQueued(ctx context.Context, req GenerationRequest) (string, error) {
	msgs := make([]chatMessage, 0, len(req.Context))
	for _, entry := range req.Context {
		msgs = append(msgs, chatMessage{Role: entry.Role, Content: entry.Content})
	}
	model := req.Model
	if model == "" {
		model = c.Model
	}
	var out submitResponse
	if err := c.post(ctx, "/generations", chatRequest{Model: model, MaxTokens: c.MaxTokens, Messages: msgs}, &out); err != nil {
		return "", err
	}
	if out.Error != nil {
		return "", &ProviderError{Message: out.Error.Message}
	}
	if out.RequestID == "" {
		return "", &ProviderError{Message: "submit returned no request id"}
	}
	return out.RequestID, nil
}

func (c *HTTPProviderClient) PollStatus(ctx context.Context, requestID string) (JobStatus, error) {
	var out statusResponse
	if err := c.get(ctx, "/generations/"+requestID, &out); err != nil {
		return JobStatus{}, err
	}
	if out.Error != nil {
		return JobStatus{}, &ProviderError{Message: out.Error.Message}
	}
	return JobStatus{Status: out.Status, Logs: out.Logs}, nil
}

func (c *HTTPProviderClient) FetchResult(ctx context.Context, requestID string) (JobResult, error) {
	var out resultResponse
	if err := c.get(ctx, "/generations/"+requestID+"/result", &out); err != nil {
		return JobResult{}, err
	}
	if out.Error != nil {
		return JobResult{}, &ProviderError{Message: out.Error.Message}
	}
	return JobResult{Content: out.Content, MediaAssets: out.Media}, nil
}

// Complete satisfies Completer for the classifier and summarizer, which
// send a single user prompt and want the raw text back.
func (c *HTTPProviderClient) Complete(ctx context.Context, prompt string) (string, error) {
	res, err := c.SendSync(ctx, GenerationRequest{
		Model:   c.Model,
		Context: []ContextEntry{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", err
	}
	return res.Content, nil
}

func (c *HTTPProviderClient) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return &ProviderError{Message: err.Error()}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return &ProviderError{Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *HTTPProviderClient) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return &ProviderError{Message: err.Error()}
	}
	return c.do(req, out)
}

func (c *HTTPProviderClient) do(req *http.Request, out interface{}) error {
	if c.APIKey == "" {
		return &ConfigurationError{Message: fmt.Sprintf("provider %s has no api key", c.Name)}
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return &ProviderError{Message: err.Error()}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &ProviderError{Message: "failed to read response: " + err.Error()}
	}
	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error *apiError `json:"error"`
		}
		_ = json.Unmarshal(data, &apiErr)
		msg := string(data)
		if apiErr.Error != nil && apiErr.Error.Message != "" {
			msg = apiErr.Error.Message
		}
		return &ProviderError{Message: msg, StatusCode: resp.StatusCode}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &ProviderError{Message: "invalid response format: " + err.Error()}
	}
	return nil
}
