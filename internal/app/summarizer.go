package app

import (
	"context"
	"strings"
)

// Summarizer condenses a sequence of turns into a checkpoint summary.
type Summarizer interface {
	Summarize(ctx context.Context, turns []ContextEntry) (string, error)
}

// summaryTranscriptChars caps the transcript sent to the summarizer. When
// the transcript is larger, the oldest turns are dropped first; the newest
// turns carry the most signal for the next checkpoint.
const summaryTranscriptChars = 60_000

// LLMSummarizer produces checkpoint summaries through a completion model.
type LLMSummarizer struct {
	Completer Completer
}

const summaryPromptHeader = `Summarize the following conversation so a model can continue it
without the raw transcript. Keep decisions, open threads, facts and user
preferences. Answer with the summary only.`

func (s *LLMSummarizer) Summarize(ctx context.Context, turns []ContextEntry) (string, error) {
	transcript := buildSummaryTranscript(turns)
	if transcript == "" {
		return "", &SummarizationError{Message: "nothing to summarize"}
	}
	out, err := s.Completer.Complete(ctx, summaryPromptHeader+"\n\n"+transcript)
	if err != nil {
		return "", &SummarizationError{Message: err.Error()}
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", &SummarizationError{Message: "empty summary"}
	}
	return out, nil
}

// buildSummaryTranscript renders turns as tagged blocks, trimming from the
// front until the result fits summaryTranscriptChars.
func buildSummaryTranscript(turns []ContextEntry) string {
	blocks := make([]string, 0, len(turns))
	total := 0
	for _, turn := range turns {
		block := "[" + strings.ToUpper(turn.Role) + "]\n" + turn.Content + "\n"
		blocks = append(blocks, block)
		total += len(block)
	}
	for len(blocks) > 1 && total > summaryTranscriptChars {
		total -= len(blocks[0])
		blocks = blocks[1:]
	}
	if len(blocks) == 1 && len(blocks[0]) > summaryTranscriptChars {
		blocks[0] = blocks[0][:summaryTranscriptChars]
	}
	return strings.TrimSpace(strings.Join(blocks, "\n"))
}
