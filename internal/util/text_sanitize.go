package util

import (
	"strings"
	"unicode"
)

// SanitizeText strips NUL and other control characters that Postgres text
// columns reject, keeping newlines and tabs. Generated prompts and chapter
// text both pass through it before being stored.
func SanitizeText(s string) string {
	if s == "" {
		return s
	}
	r := make([]rune, 0, len(s))
	for _, ch := range s {
		if ch == '\n' || ch == '\r' || ch == '\t' {
			r = append(r, ch)
			continue
		}
		if ch < 0x20 || ch == 0x7f {
			continue
		}
		r = append(r, ch)
	}
	return strings.TrimSpace(string(r))
}

// CollapseSpace joins all whitespace runs into single spaces.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// TruncateRunes cuts s to at most max runes, preferring the last word boundary.
func TruncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	cut := runes[:max]
	for i := len(cut) - 1; i > max/2; i-- {
		if unicode.IsSpace(cut[i]) {
			return strings.TrimSpace(string(cut[:i]))
		}
	}
	return strings.TrimSpace(string(cut))
}
