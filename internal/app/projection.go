package app

import "fmt"

// Read-only projections of the data model for the UI layer. Nothing here
// mutates session state.

// TranscriptEntry is one rendered row of a session transcript.
type TranscriptEntry struct {
	MessageID  string
	ResponseID string
	Role       string
	Content    string
	Status     string
	Logs       []string
	// Branch is "n/m" when the message has multiple response branches.
	Branch string
	// TopicNote carries the classifier reasoning for topic-change turns.
	TopicNote string
	// CheckpointAfter is set on the entry a checkpoint was taken after.
	CheckpointAfter *Checkpoint
}

// Transcript flattens a session into display rows: each user turn followed
// by its selected response branch, with checkpoint markers attached to the
// turns they snapshot.
func Transcript(sess *Session) []TranscriptEntry {
	marks := map[string]*Checkpoint{}
	for i := range sess.Checkpoints {
		cp := &sess.Checkpoints[i]
		marks[cp.LastMessageID] = cp
	}

	var rows []TranscriptEntry
	for i := range sess.Messages {
		msg := &sess.Messages[i]
		rows = append(rows, TranscriptEntry{
			MessageID: msg.ID,
			Role:      "user",
			Content:   msg.Content,
			TopicNote: msg.TopicReasoning,
		})
		if len(msg.Responses) > 0 {
			idx := msg.CurrentResponseIndex
			if idx < 0 || idx >= len(msg.Responses) {
				idx = 0
			}
			resp := msg.Responses[idx]
			rows = append(rows, TranscriptEntry{
				MessageID:  msg.ID,
				ResponseID: resp.ID,
				Role:       "assistant",
				Content:    resp.Content(),
				Status:     resp.State.Status(),
				Logs:       resp.Logs(),
				Branch:     BranchPosition(*msg),
			})
		}
		if cp, ok := marks[msg.ID]; ok {
			last := &rows[len(rows)-1]
			last.CheckpointAfter = cp
		}
	}
	return rows
}

// BranchPosition renders the selected-branch indicator for a message,
// empty when there is nothing to navigate.
func BranchPosition(msg Message) string {
	if len(msg.Responses) < 2 {
		return ""
	}
	return fmt.Sprintf("%d/%d", msg.CurrentResponseIndex+1, len(msg.Responses))
}

// StatusBadge maps a response status to its UI badge text.
func StatusBadge(status string) string {
	switch status {
	case "pending":
		return "· pending"
	case "queued":
		return "⧖ queued"
	case "in_progress":
		return "▶ generating"
	case "completed":
		return "✓ done"
	case "failed":
		return "✗ failed"
	}
	return status
}
