package orchestrator

import (
	"strings"

	"github.com/videomaker/pipeline/internal/models"
)

// sentenceTerminators end a sentence outright (§3).
const sentenceTerminators = "。！？!?"

// clauseSeparators further split an overlong sentence piece (§3).
const clauseSeparators = "，、,"

// SplitSentences splits script text into sentences per spec.md §3: split on
// sentence terminators, then, for any piece still longer than
// maxCharsPerLine runes, split further on clause separators, repeating until
// every piece fits (or no separator remains, in which case the piece is
// hard-chunked at maxCharsPerLine as a last resort). Terminator and
// separator runes are dropped from the sentence text — only whitespace
// trimming is applied beyond that, preserving the "concatenation of
// sentences == non-punctuation content" invariant.
func SplitSentences(text string, maxCharsPerLine int) []models.Sentence {
	units := splitOnRunes(text, sentenceTerminators)

	var pieces []string
	for _, u := range units {
		pieces = append(pieces, fitToWidth(u, maxCharsPerLine)...)
	}

	sentences := make([]models.Sentence, 0, len(pieces))
	for _, p := range pieces {
		trimmed := strings.TrimSpace(p)
		if trimmed == "" {
			continue
		}
		sentences = append(sentences, models.Sentence{Index: len(sentences), Text: trimmed})
	}
	return sentences
}

// fitToWidth recursively splits unit on clause separators until every
// resulting piece is at most maxCharsPerLine runes, falling back to a fixed
// hard chunking if no separator remains and the piece is still overlong.
func fitToWidth(unit string, maxCharsPerLine int) []string {
	if maxCharsPerLine <= 0 || len([]rune(unit)) <= maxCharsPerLine {
		return []string{unit}
	}

	clauses := splitOnRunes(unit, clauseSeparators)
	if len(clauses) <= 1 {
		return hardChunk(clauses[0], maxCharsPerLine)
	}

	var out []string
	for _, c := range clauses {
		out = append(out, fitToWidth(c, maxCharsPerLine)...)
	}
	return out
}

// hardChunk splits s into fixed-width rune chunks as a last resort when no
// punctuation is available to split on.
func hardChunk(s string, width int) []string {
	runes := []rune(s)
	var out []string
	for i := 0; i < len(runes); i += width {
		end := i + width
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[i:end]))
	}
	return out
}

// splitOnRunes splits s immediately after every rune found in cutset,
// dropping the cutset rune itself from the emitted pieces.
func splitOnRunes(s, cutset string) []string {
	var out []string
	var cur strings.Builder
	for _, r := range s {
		if strings.ContainsRune(cutset, r) {
			out = append(out, cur.String())
			cur.Reset()
			continue
		}
		cur.WriteRune(r)
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}
