// Package sanitize normalizes user-supplied free text before it reaches
// the relay or the session registry. It is a plain string filter: HTML
// angle brackets are escaped and common script-injection fragments are
// stripped, everything else passes through untouched.
package sanitize

import (
	"regexp"
	"strings"
)

var (
	scriptPrefixRe = regexp.MustCompile(`(?i)javascript:`)
	eventAttrRe    = regexp.MustCompile(`(?i)on\w+\s*=`)
	whitespaceRe   = regexp.MustCompile(`\s+`)
)

// Text escapes angle brackets and removes javascript: prefixes and
// inline event-handler fragments.
func Text(input string) string {
	out := strings.ReplaceAll(input, "<", "&lt;")
	out = strings.ReplaceAll(out, ">", "&gt;")
	out = scriptPrefixRe.ReplaceAllString(out, "")
	out = eventAttrRe.ReplaceAllString(out, "")
	return out
}

// Alias normalizes a display name: trim, collapse inner whitespace,
// sanitize, truncate to maxLen. Returns "" when the result is shorter
// than minLen, meaning the alias must be rejected.
func Alias(raw string, minLen, maxLen int) string {
	normalized := whitespaceRe.ReplaceAllString(strings.TrimSpace(raw), " ")
	normalized = Text(normalized)

	runes := []rune(normalized)
	if len(runes) > maxLen {
		runes = runes[:maxLen]
	}
	if len(runes) < minLen {
		return ""
	}
	return string(runes)
}
