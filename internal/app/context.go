package app

import "strings"

// ContextEntry is one flattened prompt entry sent to a provider.
type ContextEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const summaryPrefix = "[Previous Conversation Summary]: "

// BuildContext reconstructs the bounded prompt context for a turn: the
// latest resolvable checkpoint summary (if one bounds the target) as a
// synthetic system entry, followed by every message after it, flattened to
// user/assistant pairs. targetID is exclusive; empty targetID means the
// whole history.
//
// Pure function of the session: no side effects, idempotent. Callers create
// checkpoints before calling, never from here.
func BuildContext(sess *Session, targetID string) []ContextEntry {
	end := len(sess.Messages)
	if targetID != "" {
		pos := messagePosition(sess.Messages, targetID)
		if pos < 0 {
			// Caller error: an unknown target yields an empty context, not
			// a failure.
			return []ContextEntry{}
		}
		end = pos
	}

	start := 0
	var summary string
	if cp, pos, ok := selectCheckpoint(sess, end); ok {
		summary = cp.Summary
		start = pos + 1
	}

	entries := make([]ContextEntry, 0, 2*(end-start)+1)
	if summary != "" {
		entries = append(entries, ContextEntry{Role: "system", Content: summaryPrefix + summary})
	}
	for _, msg := range sess.Messages[start:end] {
		entries = append(entries, FlattenMessage(msg)...)
	}
	return entries
}

// selectCheckpoint picks the latest-created checkpoint whose referenced
// message still resolves strictly before end. Unresolvable checkpoints
// (message removed by cancellation rollback) are skipped, never fatal.
func selectCheckpoint(sess *Session, end int) (Checkpoint, int, bool) {
	for i := len(sess.Checkpoints) - 1; i >= 0; i-- {
		cp := sess.Checkpoints[i]
		pos := messagePosition(sess.Messages, cp.LastMessageID)
		if pos < 0 {
			continue
		}
		if pos < end {
			return cp, pos, true
		}
	}
	return Checkpoint{}, -1, false
}

// FlattenMessage expands one user message into its user entry plus the
// assistant entry for the currently selected response branch. A message
// with no response branches contributes only its user entry; a selected
// branch that has produced no content yet flattens to an empty assistant
// entry so role alternation is preserved for the provider.
func FlattenMessage(msg Message) []ContextEntry {
	entries := []ContextEntry{{Role: "user", Content: msg.Content}}
	if len(msg.Responses) == 0 {
		return entries
	}
	idx := msg.CurrentResponseIndex
	if idx < 0 || idx >= len(msg.Responses) {
		idx = 0
	}
	entries = append(entries, ContextEntry{Role: "assistant", Content: msg.Responses[idx].Content()})
	return entries
}

// ContextText renders assembled entries to plain text for token estimation.
func ContextText(entries []ContextEntry) string {
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(e.Role)
		b.WriteString(": ")
		b.WriteString(e.Content)
		b.WriteString("\n")
	}
	return b.String()
}

func messagePosition(messages []Message, id string) int {
	for i, msg := range messages {
		if msg.ID == id {
			return i
		}
	}
	return -1
}
