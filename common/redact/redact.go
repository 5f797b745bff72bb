// Package redact provides helpers for stripping sensitive values from log
// output and error messages before they leave the process boundary.
//
// # Threat model
//
// Provider credentials (LLM and embedding API keys, the Matrix access token)
// must never appear in:
//   - Log lines emitted by Shiori
//   - Error replies returned to HTTP or Matrix callers
//   - Turn provenance records
//
// Redaction is best-effort: it operates on string representations and relies
// on callers to pass the right set of sensitive terms.
package redact

import (
	"strings"
	"unicode/utf8"
)

const placeholder = "[REDACTED]"

// maxUpstreamLen caps how much of an upstream response body is quoted in an
// error message.
const maxUpstreamLen = 200

// String replaces every occurrence of each sensitive value in s with
// [REDACTED].  Values shorter than 4 characters are skipped to avoid
// spurious redaction of common substrings.
//
// Example:
//
//	safe := redact.String(logLine, apiKey, matrixToken)
func String(s string, sensitiveValues ...string) string {
	for _, v := range sensitiveValues {
		if len(v) < 4 {
			continue
		}
		s = strings.ReplaceAll(s, v, placeholder)
	}
	return s
}

// Upstream prepares a raw upstream response body for inclusion in an error:
// sensitive values are redacted, whitespace is collapsed and the result is
// truncated on a rune boundary.
func Upstream(body string, sensitiveValues ...string) string {
	s := strings.Join(strings.Fields(String(body, sensitiveValues...)), " ")
	if len(s) <= maxUpstreamLen {
		return s
	}
	cut := maxUpstreamLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}
