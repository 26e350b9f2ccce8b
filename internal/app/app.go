package app

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Application wires the engine together from config: provider clients,
// durable storage driver, checkpoint policy collaborators, scheduler and
// session store. The TUI and CLI commands talk to this.
type Application struct {
	Config     Config
	Logger     *Logger
	Visibility *VisibilityTracker
	Scheduler  *GenerationJobScheduler
	Store      *SessionStore
	Durable    DurableStore
}

func NewApplication(cfg Config, logger *Logger) (*Application, error) {
	providers := map[string]ProviderClient{}
	var windowOverride int
	var completer Completer
	for _, pc := range cfg.Providers {
		client := NewHTTPProviderClient(pc.Name, pc.ResolveAPIKey(), pc.Model, pc.BaseURL, pc.MaxTokens, pc.Queued)
		client.NoHistory = pc.NoHistory
		providers[pc.Name] = client
		if pc.Name == cfg.DefaultProvider {
			windowOverride = pc.ContextWindow
			if !pc.Queued {
				completer = client
			}
		}
	}
	if completer == nil {
		// Checkpoint collaborators need a synchronous completion surface;
		// fall back to any sync provider when the default one is queued.
		for _, pc := range cfg.Providers {
			if !pc.Queued {
				completer = providers[pc.Name].(*HTTPProviderClient)
				break
			}
		}
	}

	durable, err := newDurableStore(cfg)
	if err != nil {
		return nil, err
	}

	visibility := NewVisibilityTracker()
	scheduler := NewGenerationJobScheduler(visibility, logger, cfg.PollInterval())

	policy := &CheckpointPolicy{
		Logger:                logger,
		ContextWindowOverride: windowOverride,
	}
	if completer != nil {
		policy.Classifier = &LLMTopicClassifier{Completer: completer}
		policy.Summarizer = &LLMSummarizer{Completer: completer}
	}

	store := NewSessionStore(durable, logger, scheduler, policy, providers)
	if err := store.LoadSessions(context.Background()); err != nil {
		logger.Error("failed to load stored sessions", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return &Application{
		Config:     cfg,
		Logger:     logger,
		Visibility: visibility,
		Scheduler:  scheduler,
		Store:      store,
		Durable:    durable,
	}, nil
}

// promptHistorian is the optional recall surface a durable driver may
// offer; only the file driver does.
type promptHistorian interface {
	SavePromptHistory(entries []string) error
	LoadPromptHistory() ([]string, error)
}

// PromptHistory returns the persisted recall list of sent inputs. Drivers
// without prompt history yield an empty list.
func (a *Application) PromptHistory() []string {
	h, ok := a.Durable.(promptHistorian)
	if !ok {
		return nil
	}
	entries, err := h.LoadPromptHistory()
	if err != nil {
		a.Logger.Warn("failed to load prompt history", map[string]interface{}{
			"error": err.Error(),
		})
		return nil
	}
	return entries
}

// RecordPrompt appends a sent input to the recall list, best-effort.
func (a *Application) RecordPrompt(input string) {
	h, ok := a.Durable.(promptHistorian)
	if !ok {
		return
	}
	entries, err := h.LoadPromptHistory()
	if err != nil {
		entries = nil
	}
	if err := h.SavePromptHistory(append(entries, input)); err != nil {
		a.Logger.Warn("failed to save prompt history", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func newDurableStore(cfg Config) (DurableStore, error) {
	switch cfg.Storage {
	case "", "file":
		return NewFileStore(cfg.StorageRoot), nil
	case "memory":
		return NewMemoryStore(), nil
	case "redis":
		if cfg.RedisAddr == "" {
			return nil, &ConfigurationError{Message: "redis storage selected but redis_addr is empty"}
		}
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return NewRedisStore(client, 0), nil
	}
	return nil, &ConfigurationError{Message: "unknown storage driver " + cfg.Storage}
}
