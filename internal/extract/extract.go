// Package extract pulls ticket and confirmation numbers out of free text:
// call transcripts, confirmation pages, and email bodies.
package extract

import (
	"regexp"
	"strings"
)

// spokenPatterns match explicit phrasings first, then fall back to a generic
// code shape (2-4 letters followed by 4-10 digits, optionally separated).
// Ordered most specific first; the first capture wins.
var spokenPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ticket\s+number\s+is\s+([A-Z0-9]+)`),
	regexp.MustCompile(`(?i)confirmation\s+number\s+([A-Z0-9]+)`),
	regexp.MustCompile(`(?i)reference\s+number\s+([A-Z0-9]+)`),
	regexp.MustCompile(`(?i)your\s+number\s+is\s+([A-Z0-9]+)`),
	regexp.MustCompile(`\b([A-Z]{2,4}[\s-]?\d{4,10})\b`),
}

// pagePatterns match the "Ticket #: X" forms seen on confirmation pages,
// with a bare uppercase alphanumeric code as the last resort.
var pagePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ticket\s*#?\s*:?\s*([A-Z0-9-]{4,20})`),
	regexp.MustCompile(`(?i)confirmation\s*#?\s*:?\s*([A-Z0-9-]{4,20})`),
	regexp.MustCompile(`(?i)request\s*#?\s*:?\s*([A-Z0-9-]{4,20})`),
	regexp.MustCompile(`(?i)reference\s*#?\s*:?\s*([A-Z0-9-]{4,20})`),
	regexp.MustCompile(`\b([A-Z0-9]{6,15})\b`),
}

// Find extracts a confirmation number from spoken-style text such as a call
// transcript. Whitespace inside the matched code is stripped (transcripts
// often space out read-back digits). Returns ok=false when nothing matches;
// callers substitute a synthetic id in that case.
func Find(text string) (string, bool) {
	if text == "" {
		return "", false
	}
	for _, re := range spokenPatterns {
		if m := re.FindStringSubmatch(text); len(m) > 1 && m[1] != "" {
			return stripSpace(m[1]), true
		}
	}
	return "", false
}

// FindInPage extracts a confirmation number from rendered page text, where
// labels like "Ticket #: ABC123" are the norm.
func FindInPage(text string) (string, bool) {
	if text == "" {
		return "", false
	}
	for _, re := range pagePatterns {
		if m := re.FindStringSubmatch(text); len(m) > 1 && m[1] != "" {
			return m[1], true
		}
	}
	return "", false
}

func stripSpace(s string) string {
	return strings.Join(strings.Fields(s), "")
}
