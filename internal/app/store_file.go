package app

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// FileStore persists one JSON document per session:
//
//	<root>/sessions/<sessionID>.json
//
// Writes go through a temp file + rename so a crash mid-write never leaves
// a truncated session on disk.
type FileStore struct {
	Root string
}

// DefaultStorageRoot prefers the XDG data dir and falls back to
// ~/.local/share, then the temp dir.
func DefaultStorageRoot() string {
	if base := strings.TrimSpace(os.Getenv("XDG_DATA_HOME")); base != "" {
		return filepath.Join(base, "chat-cli", "storage")
	}
	if base, err := os.UserHomeDir(); err == nil && base != "" {
		return filepath.Join(base, ".local", "share", "chat-cli", "storage")
	}
	return filepath.Join(os.TempDir(), "chat-cli", "storage")
}

func NewFileStore(root string) *FileStore {
	if strings.TrimSpace(root) == "" {
		root = DefaultStorageRoot()
	}
	return &FileStore{Root: root}
}

func (s *FileStore) sessionsDir() string {
	return filepath.Join(s.Root, "sessions")
}

func (s *FileStore) sessionPath(id string) string {
	return filepath.Join(s.sessionsDir(), id+".json")
}

func (s *FileStore) Save(ctx context.Context, sess *Session) error {
	if err := os.MkdirAll(s.sessionsDir(), 0o755); err != nil {
		return err
	}
	payload, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return err
	}
	path := s.sessionPath(sess.ID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (s *FileStore) Load(ctx context.Context, id string) (*Session, error) {
	data, err := os.ReadFile(s.sessionPath(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *FileStore) LoadAll(ctx context.Context) ([]*Session, error) {
	entries, err := os.ReadDir(s.sessionsDir())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var sessions []*Session
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		sess, err := s.Load(ctx, strings.TrimSuffix(name, ".json"))
		if err != nil {
			// A single corrupt file must not hide the rest of the store.
			continue
		}
		sessions = append(sessions, sess)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
	return sessions, nil
}

func (s *FileStore) Delete(ctx context.Context, id string) error {
	err := os.Remove(s.sessionPath(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// PromptHistory is the persisted recall list of sent inputs, shared across
// sessions.
type PromptHistory struct {
	Entries   []string  `json:"entries"`
	UpdatedAt time.Time `json:"updated_at"`
}

const promptHistoryLimit = 200

func (s *FileStore) promptHistoryPath() string {
	return filepath.Join(s.Root, "prompt_history.json")
}

func (s *FileStore) SavePromptHistory(entries []string) error {
	history := PromptHistory{
		Entries:   normalizePromptHistory(entries, promptHistoryLimit),
		UpdatedAt: time.Now().UTC(),
	}
	if err := os.MkdirAll(s.Root, 0o755); err != nil {
		return err
	}
	payload, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.promptHistoryPath(), payload, 0o644)
}

func (s *FileStore) LoadPromptHistory() ([]string, error) {
	data, err := os.ReadFile(s.promptHistoryPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, err
	}
	var payload PromptHistory
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	return normalizePromptHistory(payload.Entries, promptHistoryLimit), nil
}

// normalizePromptHistory drops blank entries and adjacent duplicates, then
// keeps the newest max entries.
func normalizePromptHistory(entries []string, max int) []string {
	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if n := len(out); n > 0 && out[n-1] == entry {
			continue
		}
		out = append(out, entry)
	}
	if max > 0 && len(out) > max {
		out = out[len(out)-max:]
	}
	return out
}
