package util

import "strings"

// SplitSentences breaks text on terminal punctuation. Newlines also end a
// sentence since chapter text often carries headings and list items without
// a trailing period.
func SplitSentences(s string) []string {
	out := make([]string, 0, 16)
	var b strings.Builder
	flush := func() {
		x := CollapseSpace(b.String())
		if x != "" {
			out = append(out, x)
		}
		b.Reset()
	}
	runes := []rune(s)
	for i, r := range runes {
		if r == '\n' {
			flush()
			continue
		}
		b.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			// keep decimals like 3.14 together
			if r == '.' && i > 0 && i+1 < len(runes) && isDigit(runes[i-1]) && isDigit(runes[i+1]) {
				continue
			}
			flush()
		}
	}
	flush()
	return out
}

func WordCount(s string) int {
	return len(strings.Fields(s))
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}
