package pipeline

import "strings"

// Sentence is one sentence-like unit with its character span in the source text.
type Sentence struct {
	Text  string
	Start int
	End   int
}

const sentenceCutset = " \t\n\r"

// SplitSentences splits text on sentence-terminal punctuation followed by a
// space, keeping the punctuation attached to the preceding sentence.
// Whitespace-only fragments are dropped. The replacement markers have the same
// length as the separators they replace, so spans map directly onto the
// original text.
func SplitSentences(text string) []Sentence {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	marked := text
	marked = strings.ReplaceAll(marked, "! ", "!|")
	marked = strings.ReplaceAll(marked, "? ", "?|")
	marked = strings.ReplaceAll(marked, ". ", ".|")

	var sentences []Sentence
	pos := 0
	for _, part := range strings.Split(marked, "|") {
		trimmedLeft := strings.TrimLeft(part, sentenceCutset)
		start := pos + len(part) - len(trimmedLeft)
		trimmed := strings.TrimRight(trimmedLeft, sentenceCutset)
		if trimmed != "" {
			sentences = append(sentences, Sentence{
				Text:  trimmed,
				Start: start,
				End:   start + len(trimmed),
			})
		}
		pos += len(part) + 1
	}

	return sentences
}
