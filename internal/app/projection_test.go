package app

import "testing"

func TestTranscriptShowsSelectedBranchAndMarkers(t *testing.T) {
	sess := sessionWithMessages("m0", "m1")
	sess.Messages[1].Responses = append(sess.Messages[1].Responses, Response{
		ID:    "alt",
		State: Completed{Content: "alternative"},
	})
	sess.Messages[1].CurrentResponseIndex = 1
	sess.Checkpoints = []Checkpoint{{ID: "c", Summary: "s", LastMessageID: "m0-id", Reason: CheckpointTokenLimit}}

	rows := Transcript(sess)
	if len(rows) != 4 {
		t.Fatalf("rows = %d, want 4", len(rows))
	}
	if rows[1].CheckpointAfter == nil || rows[1].CheckpointAfter.Reason != CheckpointTokenLimit {
		t.Fatalf("checkpoint marker missing on row 1: %+v", rows[1])
	}
	if rows[3].Content != "alternative" {
		t.Fatalf("selected branch content = %q", rows[3].Content)
	}
	if rows[3].Branch != "2/2" {
		t.Fatalf("branch = %q, want 2/2", rows[3].Branch)
	}
}

func TestStatusBadge(t *testing.T) {
	cases := map[string]string{
		"pending":     "· pending",
		"queued":      "⧖ queued",
		"in_progress": "▶ generating",
		"completed":   "✓ done",
		"failed":      "✗ failed",
		"other":       "other",
	}
	for status, want := range cases {
		if got := StatusBadge(status); got != want {
			t.Fatalf("StatusBadge(%q) = %q, want %q", status, got, want)
		}
	}
}

func TestBranchPositionEmptyForSingleBranch(t *testing.T) {
	msg := Message{Responses: []Response{{ID: "r"}}}
	if got := BranchPosition(msg); got != "" {
		t.Fatalf("BranchPosition = %q, want empty", got)
	}
}
