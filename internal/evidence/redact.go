// Package evidence implements the content-addressed artifact store under
// .artifacts/ and the deterministic secret-redaction rules applied to
// every evidence payload before it is stored or echoed back in a
// response.
package evidence

import (
	"regexp"
	"strings"
)

// sensitiveKeywords are dict keys whose lowercase form containing any of
// these tokens has its value unconditionally replaced.
var sensitiveKeywords = []string{
	"token", "secret", "password", "passwd", "api_key", "apikey", "authorization", "bearer",
}

// sensitivePatterns match secret-shaped substrings inside otherwise
// ordinary text (command output, diffs, urls).
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`ghp_[A-Za-z0-9]{20,}`),
	regexp.MustCompile(`github_pat_[A-Za-z0-9_]{20,}`),
	regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`),
	regexp.MustCompile(`(?s)-----BEGIN [A-Z ]*PRIVATE KEY-----.*?-----END [A-Z ]*PRIVATE KEY-----`),
	regexp.MustCompile(`(?i)(authorization\s*:\s*bearer\s+)\S+`),
	regexp.MustCompile(`(?i)\b((?:token|apikey|api_key|secret|password)\s*=\s*)[^\s&;]+`),
}

// RedactDepth bounds recursion into nested payloads (invariant: evidence
// redaction recursion bound of 6).
const RedactDepth = 6

// RedactText replaces secret-shaped substrings in text with "<redacted>",
// preserving any key= / Bearer prefix the pattern captured.
func RedactText(text string) string {
	if text == "" {
		return ""
	}
	out := text
	for _, pattern := range sensitivePatterns {
		out = pattern.ReplaceAllStringFunc(out, func(match string) string {
			sub := pattern.FindStringSubmatch(match)
			if len(sub) > 1 && sub[1] != "" {
				return sub[1] + "<redacted>"
			}
			return "<redacted>"
		})
	}
	return out
}

// Redact walks an arbitrary decoded-JSON value (string, []any, map[string]any,
// or scalar) and returns a redacted copy: strings are pattern-redacted,
// dict values whose key looks sensitive are blanked outright, and
// recursion stops at RedactDepth to bound pathological payloads.
func Redact(value any) any {
	return redact(value, RedactDepth)
}

func redact(value any, depth int) any {
	if depth <= 0 {
		return value
	}
	switch v := value.(type) {
	case string:
		return RedactText(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = redact(item, depth-1)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			if isSensitiveKey(k) {
				out[k] = "<redacted>"
			} else {
				out[k] = redact(item, depth-1)
			}
		}
		return out
	default:
		return value
	}
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, tok := range sensitiveKeywords {
		if strings.Contains(lower, tok) {
			return true
		}
	}
	return false
}
