package app

import "strings"

// defaultContextWindowTokens is used when a model is not in the registry
// and no override is configured. Small on purpose so compaction errs early.
const defaultContextWindowTokens = 32_000

// LookupContextWindowTokens returns the known context window size (in
// tokens) for a model name. Config may override per provider because
// vendors change limits without renaming models.
func LookupContextWindowTokens(model string) (int, bool) {
	m := strings.ToLower(strings.TrimSpace(model))
	if m == "" {
		return 0, false
	}

	switch {
	case strings.Contains(m, "claude"):
		return 200_000, true
	case strings.HasPrefix(m, "gpt-4o"), strings.HasPrefix(m, "gpt-4-turbo"):
		return 128_000, true
	case strings.HasPrefix(m, "gpt-4"):
		return 8_192, true
	case strings.HasPrefix(m, "gpt-3.5"):
		return 16_384, true
	case strings.Contains(m, "gemini-1.5"), strings.Contains(m, "gemini-2"):
		return 1_000_000, true
	case strings.Contains(m, "minimax"):
		return 205_000, true
	case strings.HasPrefix(m, "glm-"):
		return 200_000, true
	case strings.Contains(m, "llama"), strings.Contains(m, "mistral"):
		return 32_768, true
	}
	return 0, false
}

// ContextWindowFor resolves the context window for a session's model with a
// config override taking precedence over the registry.
func ContextWindowFor(model string, override int) int {
	if override > 0 {
		return override
	}
	if n, ok := LookupContextWindowTokens(model); ok {
		return n
	}
	return defaultContextWindowTokens
}
