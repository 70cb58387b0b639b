// Package normalize canonicalizes page text for display and for hashing.
package normalize

import (
	"regexp"
	"strings"
)

var newlineRuns = regexp.MustCompile(`\n+`)

// Display collapses runs of newlines to a single newline and trims the
// result. Line structure is kept so stored chunks stay readable.
func Display(text string) string {
	return strings.TrimSpace(newlineRuns.ReplaceAllString(text, "\n"))
}

// Compare lowercases text and collapses every whitespace run, newlines
// included, to a single space. It is the form chunk hashes are computed
// over, so two crawls that differ only in case or spacing agree.
func Compare(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}
