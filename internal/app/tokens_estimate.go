package app

// EstimateTokens approximates the token count of text as ceil(len/4).
//
// This is not a tokenizer; it is only used for the checkpoint threshold, so
// a cheap deterministic bound beats a model-specific dependency. Four bytes
// per token is close enough for English-ish chat text.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}
