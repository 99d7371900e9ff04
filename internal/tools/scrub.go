package tools

import "regexp"

// Credential patterns scrubbed from tool output before it re-enters
// the context. External content can echo secrets back at the model.
var credentialPatterns = []*regexp.Regexp{
	// OpenAI / Anthropic style keys
	regexp.MustCompile(`sk-[a-zA-Z0-9-]{20,}`),
	// GitHub tokens (personal, oauth, user, server, refresh)
	regexp.MustCompile(`gh[opusr]_[a-zA-Z0-9]{36}`),
	// AWS access key ids
	regexp.MustCompile(`AKIA[A-Z0-9]{16}`),
	// Generic key=value patterns (case-insensitive)
	regexp.MustCompile(`(?i)(api[_-]?key|token|secret|password|bearer|authorization)\s*[:=]\s*["']?\S{8,}["']?`),
}

const redactedPlaceholder = "[REDACTED]"

// ScrubCredentials replaces known credential patterns in text with [REDACTED].
func ScrubCredentials(text string) string {
	for _, pat := range credentialPatterns {
		text = pat.ReplaceAllString(text, redactedPlaceholder)
	}
	return text
}
