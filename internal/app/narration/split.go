package narration

import (
	"regexp"
	"strings"
)

// sentencePattern matches a run of characters other than sentence
// terminators and newlines, followed by at most one terminator.
var sentencePattern = regexp.MustCompile(`[^.!?\n]+[.!?]?`)

// Split breaks text into sentence chunks. Terminators stay attached to the
// chunk they end; newlines are boundaries and are dropped. Text with no
// matching chunk (for example only punctuation) is returned whole.
func Split(text string) []string {
	chunks := sentencePattern.FindAllString(text, -1)
	if len(chunks) == 0 {
		return []string{text}
	}
	return chunks
}

// Chunks returns the trimmed, non-blank chunks of text in order.
func Chunks(text string) []string {
	var out []string
	for _, c := range Split(text) {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}
