// Package text holds the sanitation and keyword primitives the conversation
// memory manager scores turns with.
package text

import (
	"regexp"
	"strings"
)

// TruncationMarker is appended whenever Truncate cuts a string, so a capped
// message is distinguishable from one that happened to end there.
const TruncationMarker = " […]"

var whitespaceRe = regexp.MustCompile(`\s+`)

// CollapseWhitespace trims the string and folds every run of whitespace
// (including newlines and tabs) into a single space.
func CollapseWhitespace(s string) string {
	return whitespaceRe.ReplaceAllString(strings.TrimSpace(s), " ")
}

// Truncate hard-caps s at max runes, appending the truncation marker when a
// cut happens. max counts the marker, so the result never exceeds max runes.
func Truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	marker := []rune(TruncationMarker)
	if max <= len(marker) {
		return string(runes[:max])
	}
	return string(runes[:max-len(marker)]) + TruncationMarker
}

// importantKeywords are question words and analytical verbs whose presence
// marks a turn as worth retaining longer. Stored as a set for O(1) lookups.
var importantKeywords = func() map[string]struct{} {
	words := []string{
		// Question words.
		"what", "why", "how", "when", "where", "who", "which", "whose",
		// Analytical verbs.
		"explain", "compare", "analyze", "analyse", "summarize", "summarise",
		"describe", "define", "evaluate", "derive", "prove", "calculate",
		"implement", "design", "debug", "translate", "review",
		// Intent markers.
		"remember", "important", "must", "should", "need",
	}
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}()

var wordRe = regexp.MustCompile(`[a-zA-Z']+`)

// CountImportantKeywords returns how many words of s (case-insensitive)
// appear in the important-keyword set. Repeated words count each time.
func CountImportantKeywords(s string) int {
	count := 0
	for _, w := range wordRe.FindAllString(strings.ToLower(s), -1) {
		if _, ok := importantKeywords[w]; ok {
			count++
		}
	}
	return count
}
