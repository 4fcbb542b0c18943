package redact

import (
	"regexp"
	"strings"
)

var (
	// Matches "Bearer <token>" (JWTs and opaque tokens).
	bearerTokenRe = regexp.MustCompile(`(?i)\bBearer\s+[^\s"']+`)

	// key=value pairs for the provider keys this service is configured with.
	apiKeyKVRe = regexp.MustCompile(`(?i)\b(api[_-]?key|gemini[_-]?api[_-]?key|openai[_-]?api[_-]?key|supabase[_-]?key|apikey)\b\s*[:=]\s*[^\s"'&]+`)

	// OpenAI-style secret keys that show up verbatim in upstream error strings.
	openAIKeyRe = regexp.MustCompile(`\bsk-[A-Za-z0-9_\-]{16,}`)

	// Password component of a postgres DSN.
	dsnPasswordRe = regexp.MustCompile(`(postgres(?:ql)?://[^:/@\s]+:)[^@\s]+@`)
)

// Secrets removes secret-bearing substrings from error and log strings.
//
// Safe to call on any message, including upstream error bodies.
func Secrets(s string) string {
	if s == "" {
		return ""
	}
	out := s
	out = bearerTokenRe.ReplaceAllString(out, "Bearer <redacted>")
	out = apiKeyKVRe.ReplaceAllString(out, "<redacted_kv>")
	out = openAIKeyRe.ReplaceAllString(out, "sk-<redacted>")
	out = dsnPasswordRe.ReplaceAllString(out, "${1}<redacted>@")
	return strings.TrimSpace(out)
}
