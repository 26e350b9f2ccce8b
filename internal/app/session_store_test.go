package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestSendTurnSyncAttachesCompletedResponse(t *testing.T) {
	provider := &fakeProvider{syncResult: SyncResult{Content: "hi there", TokenCount: 5}}
	store, _, _ := newTestStore(provider)
	sess, err := store.CreateSession("test", "m")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	msgID, err := store.SendTurn(context.Background(), sess.ID, "hello", nil)
	if err != nil {
		t.Fatalf("SendTurn: %v", err)
	}
	if msgID == "" {
		t.Fatal("expected message id")
	}

	ok := waitFor(time.Second, func() bool {
		cur, _ := store.Session(sess.ID)
		return len(cur.Messages) == 1 && len(cur.Messages[0].Responses) == 1
	})
	if !ok {
		t.Fatal("sync response never attached")
	}

	cur, _ := store.Session(sess.ID)
	msg := cur.Messages[0]
	resp := msg.Responses[0]
	if resp.State.Status() != "completed" || resp.Content() != "hi there" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.GenerationNumber != 1 {
		t.Fatalf("generationNumber = %d, want 1", resp.GenerationNumber)
	}
	if msg.CurrentResponseIndex != 0 {
		t.Fatalf("currentResponseIndex = %d, want 0", msg.CurrentResponseIndex)
	}
}

func TestSendTurnAutoTitlesFromFirstMessage(t *testing.T) {
	provider := &fakeProvider{syncResult: SyncResult{Content: "ok"}}
	store, _, _ := newTestStore(provider)
	sess, _ := store.CreateSession("test", "m")

	long := strings.Repeat("words ", 20)
	if _, err := store.SendTurn(context.Background(), sess.ID, long, nil); err != nil {
		t.Fatalf("SendTurn: %v", err)
	}

	cur, _ := store.Session(sess.ID)
	if cur.Title == "" {
		t.Fatal("expected auto title")
	}
	if got := len([]rune(cur.Title)); got > autoTitleRunes {
		t.Fatalf("title length = %d runes, want <= %d", got, autoTitleRunes)
	}

	// A second turn must not retitle.
	if _, err := store.SendTurn(context.Background(), sess.ID, "another", nil); err != nil {
		t.Fatalf("SendTurn: %v", err)
	}
	cur2, _ := store.Session(sess.ID)
	if cur2.Title != cur.Title {
		t.Fatalf("title changed from %q to %q", cur.Title, cur2.Title)
	}
}

func TestSendTurnSyncProviderErrorSetsSessionBanner(t *testing.T) {
	provider := &fakeProvider{syncErr: &ProviderError{Message: "api down"}}
	store, _, _ := newTestStore(provider)
	sess, _ := store.CreateSession("test", "m")

	if _, err := store.SendTurn(context.Background(), sess.ID, "hello", nil); err != nil {
		t.Fatalf("SendTurn: %v", err)
	}

	ok := waitFor(time.Second, func() bool {
		cur, _ := store.Session(sess.ID)
		return cur.LastError != ""
	})
	if !ok {
		t.Fatal("session error banner never set")
	}
	cur, _ := store.Session(sess.ID)
	if len(cur.Messages) != 1 || len(cur.Messages[0].Responses) != 0 {
		t.Fatalf("no response must be created on sync failure, got %+v", cur.Messages)
	}
}

func TestSendTurnQueuedLifecycle(t *testing.T) {
	provider := &fakeProvider{
		queued:   true,
		submitID: "abc",
		statuses: []JobStatus{
			{Status: "in_progress", Logs: []string{"starting"}},
			{Status: "completed"},
		},
		result: JobResult{Content: "done"},
	}
	store, scheduler, _ := newTestStore(provider)
	sess, _ := store.CreateSession("test", "m")

	msgID, err := store.SendTurn(context.Background(), sess.ID, "go", nil)
	if err != nil {
		t.Fatalf("SendTurn: %v", err)
	}

	ok := waitFor(time.Second, func() bool {
		cur, _ := store.Session(sess.ID)
		pos := messagePosition(cur.Messages, msgID)
		if pos < 0 || len(cur.Messages[pos].Responses) == 0 {
			return false
		}
		return cur.Messages[pos].Responses[0].State.Status() == "completed"
	})
	if !ok {
		t.Fatal("queued job never completed")
	}

	cur, _ := store.Session(sess.ID)
	resp := cur.Messages[0].Responses[0]
	if resp.Content() != "done" {
		t.Fatalf("content = %q, want done", resp.Content())
	}
	if logs := resp.Logs(); len(logs) != 1 || logs[0] != "starting" {
		t.Fatalf("logs after completion = %v, want [starting]", logs)
	}
	if resp.RequestID != "abc" {
		t.Fatalf("requestID = %q, want abc", resp.RequestID)
	}
	if scheduler.Active(resp.ID) {
		t.Fatal("poller still active after completion")
	}
}

func TestSendTurnQueuedFailureMarksResponseFailed(t *testing.T) {
	provider := &fakeProvider{queued: true, statusErr: errBoom}
	store, _, _ := newTestStore(provider)
	sess, _ := store.CreateSession("test", "m")

	if _, err := store.SendTurn(context.Background(), sess.ID, "go", nil); err != nil {
		t.Fatalf("SendTurn: %v", err)
	}

	ok := waitFor(time.Second, func() bool {
		cur, _ := store.Session(sess.ID)
		return len(cur.Messages) == 1 &&
			len(cur.Messages[0].Responses) == 1 &&
			cur.Messages[0].Responses[0].State.Status() == "failed"
	})
	if !ok {
		t.Fatal("queued job never failed")
	}
	cur, _ := store.Session(sess.ID)
	if !strings.Contains(cur.Messages[0].Responses[0].Content(), "boom") {
		t.Fatalf("failure content = %q", cur.Messages[0].Responses[0].Content())
	}
}

func TestCancelQueuedTurnRollsBackPlaceholder(t *testing.T) {
	provider := &fakeProvider{queued: true} // never completes
	store, scheduler, _ := newTestStore(provider)
	sess, _ := store.CreateSession("test", "m")

	msgID, err := store.SendTurn(context.Background(), sess.ID, "go", nil)
	if err != nil {
		t.Fatalf("SendTurn: %v", err)
	}
	cur, _ := store.Session(sess.ID)
	if len(cur.Messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(cur.Messages))
	}
	respID := cur.Messages[0].Responses[0].ID

	if err := store.Cancel(sess.ID, msgID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	cur, _ = store.Session(sess.ID)
	if len(cur.Messages) != 0 {
		t.Fatalf("placeholder message not rolled back, messages = %d", len(cur.Messages))
	}
	if scheduler.Active(respID) {
		t.Fatal("timer still exists for cancelled response")
	}
}

func TestCancelSyncTurnDiscardsLateResult(t *testing.T) {
	provider := &fakeProvider{
		syncResult: SyncResult{Content: "late"},
		syncDelay:  50 * time.Millisecond,
	}
	store, _, _ := newTestStore(provider)
	sess, _ := store.CreateSession("test", "m")

	msgID, err := store.SendTurn(context.Background(), sess.ID, "go", nil)
	if err != nil {
		t.Fatalf("SendTurn: %v", err)
	}
	if err := store.Cancel(sess.ID, msgID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	cur, _ := store.Session(sess.ID)
	if len(cur.Messages) != 0 {
		t.Fatal("placeholder not removed")
	}

	// When the sync call resolves, its result must be discarded.
	time.Sleep(100 * time.Millisecond)
	cur, _ = store.Session(sess.ID)
	if len(cur.Messages) != 0 {
		t.Fatalf("late sync result resurrected the turn: %+v", cur.Messages)
	}
}

func TestCancelRegeneratedBranchKeepsTurn(t *testing.T) {
	provider := &fakeProvider{syncResult: SyncResult{Content: "first"}}
	store, _, _ := newTestStore(provider)
	sess, _ := store.CreateSession("test", "m")

	msgID, _ := store.SendTurn(context.Background(), sess.ID, "go", nil)
	waitFor(time.Second, func() bool {
		cur, _ := store.Session(sess.ID)
		return len(cur.Messages) == 1 && len(cur.Messages[0].Responses) == 1
	})

	// Second branch stays in flight.
	provider.mu.Lock()
	provider.syncDelay = time.Hour
	provider.mu.Unlock()
	if err := store.Regenerate(context.Background(), sess.ID, msgID); err != nil {
		t.Fatalf("Regenerate: %v", err)
	}

	if err := store.Cancel(sess.ID, msgID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	cur, _ := store.Session(sess.ID)
	if len(cur.Messages) != 1 {
		t.Fatal("turn with a completed branch must survive cancel")
	}
	if len(cur.Messages[0].Responses) != 1 {
		t.Fatalf("responses = %d, want 1", len(cur.Messages[0].Responses))
	}
}

func TestRegenerateAssignsIncreasingGenerationNumbers(t *testing.T) {
	provider := &fakeProvider{syncResult: SyncResult{Content: "re"}}
	store, _, _ := newTestStore(provider)
	sess, _ := store.CreateSession("test", "m")

	msgID, _ := store.SendTurn(context.Background(), sess.ID, "go", nil)
	waitFor(time.Second, func() bool {
		cur, _ := store.Session(sess.ID)
		return len(cur.Messages) == 1 && len(cur.Messages[0].Responses) == 1
	})
	if err := store.Regenerate(context.Background(), sess.ID, msgID); err != nil {
		t.Fatalf("Regenerate: %v", err)
	}
	ok := waitFor(time.Second, func() bool {
		cur, _ := store.Session(sess.ID)
		return len(cur.Messages[0].Responses) == 2
	})
	if !ok {
		t.Fatal("second branch never attached")
	}

	cur, _ := store.Session(sess.ID)
	msg := cur.Messages[0]
	if msg.Responses[0].GenerationNumber != 1 || msg.Responses[1].GenerationNumber != 2 {
		t.Fatalf("generation numbers = %d, %d", msg.Responses[0].GenerationNumber, msg.Responses[1].GenerationNumber)
	}
	if msg.CurrentResponseIndex != 1 {
		t.Fatalf("new branch must be selected, index = %d", msg.CurrentResponseIndex)
	}
}

func TestSelectResponseClampsToRange(t *testing.T) {
	provider := &fakeProvider{syncResult: SyncResult{Content: "re"}}
	store, _, _ := newTestStore(provider)
	sess, _ := store.CreateSession("test", "m")

	msgID, _ := store.SendTurn(context.Background(), sess.ID, "go", nil)
	waitFor(time.Second, func() bool {
		cur, _ := store.Session(sess.ID)
		return len(cur.Messages) == 1 && len(cur.Messages[0].Responses) == 1
	})
	store.Regenerate(context.Background(), sess.ID, msgID)
	waitFor(time.Second, func() bool {
		cur, _ := store.Session(sess.ID)
		return len(cur.Messages[0].Responses) == 2
	})

	if err := store.SelectResponse(sess.ID, msgID, -1); err != nil {
		t.Fatalf("SelectResponse: %v", err)
	}
	cur, _ := store.Session(sess.ID)
	if cur.Messages[0].CurrentResponseIndex != 0 {
		t.Fatalf("index = %d, want 0", cur.Messages[0].CurrentResponseIndex)
	}

	if err := store.SelectResponse(sess.ID, msgID, -5); err != nil {
		t.Fatalf("SelectResponse: %v", err)
	}
	cur, _ = store.Session(sess.ID)
	if cur.Messages[0].CurrentResponseIndex != 0 {
		t.Fatalf("index must clamp at 0, got %d", cur.Messages[0].CurrentResponseIndex)
	}

	if err := store.SelectResponse(sess.ID, msgID, 99); err != nil {
		t.Fatalf("SelectResponse: %v", err)
	}
	cur, _ = store.Session(sess.ID)
	if cur.Messages[0].CurrentResponseIndex != 1 {
		t.Fatalf("index must clamp at last branch, got %d", cur.Messages[0].CurrentResponseIndex)
	}
}

func TestDeleteSessionForbiddenWhileStarred(t *testing.T) {
	provider := &fakeProvider{}
	store, _, _ := newTestStore(provider)
	sess, _ := store.CreateSession("test", "m")

	if err := store.SetStarred(sess.ID, true); err != nil {
		t.Fatalf("SetStarred: %v", err)
	}
	if err := store.DeleteSession(sess.ID); err == nil {
		t.Fatal("delete of starred session must fail")
	}
	if err := store.SetStarred(sess.ID, false); err != nil {
		t.Fatalf("SetStarred: %v", err)
	}
	if err := store.DeleteSession(sess.ID); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if _, ok := store.Session(sess.ID); ok {
		t.Fatal("session still present after delete")
	}
}

func TestCloseSessionRejectsTurnsAndStarProtection(t *testing.T) {
	provider := &fakeProvider{}
	store, _, _ := newTestStore(provider)
	sess, _ := store.CreateSession("test", "m")

	if err := store.SetStarred(sess.ID, true); err != nil {
		t.Fatalf("SetStarred: %v", err)
	}
	if err := store.CloseSession(sess.ID); err == nil {
		t.Fatal("closing a starred session must fail")
	}
	store.SetStarred(sess.ID, false)
	if err := store.CloseSession(sess.ID); err != nil {
		t.Fatalf("CloseSession: %v", err)
	}
	if _, err := store.SendTurn(context.Background(), sess.ID, "hello", nil); err == nil {
		t.Fatal("SendTurn on closed session must fail")
	}
}

func TestRemoveMessagePreservesCheckpoints(t *testing.T) {
	provider := &fakeProvider{syncResult: SyncResult{Content: "re"}}
	store, _, _ := newTestStore(provider)
	sess, _ := store.CreateSession("test", "m")

	msgID, _ := store.SendTurn(context.Background(), sess.ID, "go", nil)
	waitFor(time.Second, func() bool {
		cur, _ := store.Session(sess.ID)
		return len(cur.Messages) == 1 && len(cur.Messages[0].Responses) == 1
	})

	// Manual checkpoint anchored to the only message.
	if _, err := store.SendTurn(context.Background(), sess.ID, "/checkpoint", nil); err != nil {
		t.Fatalf("manual checkpoint: %v", err)
	}
	cur, _ := store.Session(sess.ID)
	if len(cur.Checkpoints) != 1 {
		t.Fatalf("checkpoints = %d, want 1", len(cur.Checkpoints))
	}

	if err := store.RemoveMessage(sess.ID, msgID); err != nil {
		t.Fatalf("RemoveMessage: %v", err)
	}
	cur, _ = store.Session(sess.ID)
	if len(cur.Messages) != 0 {
		t.Fatal("message not removed")
	}
	if len(cur.Checkpoints) != 1 {
		t.Fatal("checkpoint must survive message removal")
	}
	// The dangling checkpoint is skipped, not fatal.
	if got := BuildContext(cur, ""); len(got) != 0 {
		t.Fatalf("expected empty context, got %+v", got)
	}
}

func TestManualCheckpointCommandDoesNotAppendTurn(t *testing.T) {
	provider := &fakeProvider{syncResult: SyncResult{Content: "re"}}
	store, _, _ := newTestStore(provider)
	sess, _ := store.CreateSession("test", "m")

	store.SendTurn(context.Background(), sess.ID, "hello", nil)
	waitFor(time.Second, func() bool {
		cur, _ := store.Session(sess.ID)
		return len(cur.Messages) == 1 && len(cur.Messages[0].Responses) == 1
	})

	msgID, err := store.SendTurn(context.Background(), sess.ID, "/checkpoint", nil)
	if err != nil {
		t.Fatalf("SendTurn: %v", err)
	}
	if msgID != "" {
		t.Fatal("manual checkpoint must not create a message")
	}
	cur, _ := store.Session(sess.ID)
	if len(cur.Messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(cur.Messages))
	}
	if len(cur.Checkpoints) != 1 || cur.Checkpoints[0].Reason != CheckpointManual {
		t.Fatalf("checkpoints = %+v", cur.Checkpoints)
	}
}

func TestTopicChangeFlagsMessageAndCheckpointsOnce(t *testing.T) {
	provider := &fakeProvider{syncResult: SyncResult{Content: "re"}}
	logger := testLogger()
	visibility := NewVisibilityTracker()
	scheduler := NewGenerationJobScheduler(visibility, logger, 5*time.Millisecond)
	classifier := &fakeClassifier{verdict: TopicVerdict{Changed: true, Reasoning: "pivot"}}
	policy := &CheckpointPolicy{
		Classifier:            classifier,
		Summarizer:            &fakeSummarizer{summary: "sum"},
		Logger:                logger,
		ContextWindowOverride: 10, // token rule would also fire
	}
	store := NewSessionStore(NewMemoryStore(), logger, scheduler, policy, map[string]ProviderClient{"test": provider})
	sess, _ := store.CreateSession("test", "m")

	store.SendTurn(context.Background(), sess.ID, "first topic", nil)
	waitFor(time.Second, func() bool {
		cur, _ := store.Session(sess.ID)
		return len(cur.Messages) == 1 && len(cur.Messages[0].Responses) == 1
	})

	if _, err := store.SendTurn(context.Background(), sess.ID, "completely new topic", nil); err != nil {
		t.Fatalf("SendTurn: %v", err)
	}

	cur, _ := store.Session(sess.ID)
	if len(cur.Checkpoints) != 1 {
		t.Fatalf("checkpoints = %d, want exactly 1 (topic wins over token limit)", len(cur.Checkpoints))
	}
	if cur.Checkpoints[0].Reason != CheckpointTopic {
		t.Fatalf("reason = %q, want topic_change", cur.Checkpoints[0].Reason)
	}
	last := cur.Messages[len(cur.Messages)-1]
	if !last.TopicChanged || last.TopicReasoning != "pivot" {
		t.Fatalf("topic flags not set on message: %+v", last)
	}
}

func TestUnknownProviderIsConfigurationError(t *testing.T) {
	provider := &fakeProvider{}
	store, _, _ := newTestStore(provider)

	_, err := store.CreateSession("nope", "m")
	var cerr *ConfigurationError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *ConfigurationError, got %v", err)
	}
}
