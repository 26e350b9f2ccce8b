package app

import (
	"context"
	"strings"
)

// TopicVerdict is the classifier's answer for one pending input.
type TopicVerdict struct {
	Changed   bool
	Reasoning string
}

// TopicClassifier decides whether a pending input starts a new topic
// relative to the recent turns. Implementations must be treated as
// unreliable: callers fail open on any error.
type TopicClassifier interface {
	Classify(ctx context.Context, newInput string, recentTurns []ContextEntry) (TopicVerdict, error)
}

// LLMTopicClassifier asks a completion model for a CHANGED/SAME verdict.
type LLMTopicClassifier struct {
	Completer Completer
}

const topicPromptHeader = `You are a topic-change detector for a chat application.
Given the recent conversation and a new user message, answer on the first
line with exactly CHANGED or SAME, then on the next line one short sentence
of reasoning.`

func (c *LLMTopicClassifier) Classify(ctx context.Context, newInput string, recentTurns []ContextEntry) (TopicVerdict, error) {
	var b strings.Builder
	b.WriteString(topicPromptHeader)
	b.WriteString("\n\nRecent conversation:\n")
	for _, turn := range recentTurns {
		b.WriteString("[")
		b.WriteString(strings.ToUpper(turn.Role))
		b.WriteString("]\n")
		b.WriteString(turn.Content)
		b.WriteString("\n")
	}
	b.WriteString("\nNew message:\n")
	b.WriteString(newInput)

	raw, err := c.Completer.Complete(ctx, b.String())
	if err != nil {
		return TopicVerdict{}, &ClassificationError{Message: err.Error()}
	}

	lines := strings.SplitN(strings.TrimSpace(raw), "\n", 2)
	verdict := strings.ToUpper(strings.TrimSpace(lines[0]))
	reasoning := ""
	if len(lines) > 1 {
		reasoning = strings.TrimSpace(lines[1])
	}
	switch {
	case strings.HasPrefix(verdict, "CHANGED"):
		return TopicVerdict{Changed: true, Reasoning: reasoning}, nil
	case strings.HasPrefix(verdict, "SAME"):
		return TopicVerdict{Changed: false, Reasoning: reasoning}, nil
	}
	return TopicVerdict{}, &ClassificationError{Message: "unparseable verdict: " + verdict}
}
