package app

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// checkpointThreshold is the share of the model's context window at which
// the token-limit rule fires.
const checkpointThreshold = 0.6

// topicClassifierTurns is how many flattened recent turns accompany the
// pending input to the topic classifier.
const topicClassifierTurns = 5

// CheckpointCommand is the manual compaction command recognized in user
// input.
const CheckpointCommand = "/checkpoint"

// CheckpointPolicy decides, once per outgoing turn and before the turn is
// appended, whether the session needs a checkpoint, and creates it through
// the external summarizer.
type CheckpointPolicy struct {
	Classifier TopicClassifier
	Summarizer Summarizer
	Logger     *Logger

	// ContextWindowOverride, when positive, replaces the model registry's
	// window for the token-limit rule.
	ContextWindowOverride int
}

// CheckpointDecision is the outcome of MaybeCheckpoint.
type CheckpointDecision struct {
	Reason CheckpointReason // empty when no checkpoint is needed
	// TopicReasoning carries the classifier's explanation when Reason is
	// CheckpointTopic, for display on the eventual message.
	TopicReasoning string
}

// MaybeCheckpoint applies the decision order: manual command, then topic
// change, then token limit. The rules are mutually exclusive per turn; in
// particular a topic-change checkpoint suppresses the token-limit rule so
// one boundary never produces two checkpoints.
//
// classifierEligible gates the topic rule: providers that cannot assemble
// conversation history are never asked about topic drift.
func (p *CheckpointPolicy) MaybeCheckpoint(ctx context.Context, sess *Session, pendingInput string, classifierEligible bool) CheckpointDecision {
	if IsCheckpointCommand(pendingInput) {
		return CheckpointDecision{Reason: CheckpointManual}
	}

	if classifierEligible && p.Classifier != nil {
		verdict, err := p.Classifier.Classify(ctx, pendingInput, recentTurns(sess, topicClassifierTurns))
		if err != nil {
			// Fail open: a broken classifier must never block sending.
			p.Logger.Warn("topic classifier failed", map[string]interface{}{
				"session": sess.ID,
				"error":   err.Error(),
			})
		} else if verdict.Changed {
			return CheckpointDecision{Reason: CheckpointTopic, TopicReasoning: verdict.Reasoning}
		}
	}

	window := ContextWindowFor(sess.Model, p.ContextWindowOverride)
	estimate := EstimateTokens(ContextText(BuildContext(sess, "")) + pendingInput)
	if float64(estimate) > checkpointThreshold*float64(window) {
		return CheckpointDecision{Reason: CheckpointTokenLimit}
	}
	return CheckpointDecision{}
}

// CreateCheckpoint summarizes the currently-assembled context (which
// already folds in the previous checkpoint's summary, so compaction is
// recursive) and returns the new checkpoint. The snapshot is anchored to
// the most recent message; callers invoke this before appending the
// pending turn.
//
// Returns false when the session has no messages to snapshot or the
// summarizer fails; both are recoverable and the turn proceeds without a
// checkpoint.
func (p *CheckpointPolicy) CreateCheckpoint(ctx context.Context, sess *Session, reason CheckpointReason) (Checkpoint, bool) {
	if len(sess.Messages) == 0 || p.Summarizer == nil {
		return Checkpoint{}, false
	}
	entries := BuildContext(sess, "")
	summary, err := p.Summarizer.Summarize(ctx, entries)
	if err != nil {
		p.Logger.Warn("checkpoint summarization failed", map[string]interface{}{
			"session": sess.ID,
			"reason":  string(reason),
			"error":   err.Error(),
		})
		return Checkpoint{}, false
	}
	return Checkpoint{
		ID:            uuid.NewString(),
		Summary:       summary,
		LastMessageID: sess.Messages[len(sess.Messages)-1].ID,
		Reason:        reason,
		CreatedAt:     time.Now().UTC(),
	}, true
}

// IsCheckpointCommand reports whether input is the manual checkpoint
// command (optionally with trailing text, e.g. "/checkpoint before deploy").
func IsCheckpointCommand(input string) bool {
	trimmed := strings.TrimSpace(input)
	return trimmed == CheckpointCommand || strings.HasPrefix(trimmed, CheckpointCommand+" ")
}

// recentTurns flattens the last n messages for the classifier.
func recentTurns(sess *Session, n int) []ContextEntry {
	start := len(sess.Messages) - n
	if start < 0 {
		start = 0
	}
	var entries []ContextEntry
	for _, msg := range sess.Messages[start:] {
		entries = append(entries, FlattenMessage(msg)...)
	}
	return entries
}
