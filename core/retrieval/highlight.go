package retrieval

import (
	"sort"
	"strings"
)

const (
	// DefaultSnippetMax is the snippet window length after the first match.
	DefaultSnippetMax = 300
	// snippetContextBefore is how much context precedes the first match.
	snippetContextBefore = 100

	emphasisMarker = "**"
	ellipsis       = "..."
)

// HighlightSnippet extracts a snippet around the earliest occurrence of any
// term and wraps every matched term in emphasis markers. Matching is
// case-insensitive. Without a match it returns the leading snippetMax
// characters with a trailing ellipsis.
func HighlightSnippet(text string, terms []string, snippetMax int) string {
	if snippetMax <= 0 {
		snippetMax = DefaultSnippetMax
	}
	if text == "" {
		return ""
	}

	lower := strings.ToLower(text)
	first := -1
	for _, term := range cleanTerms(terms) {
		if idx := strings.Index(lower, term); idx >= 0 && (first == -1 || idx < first) {
			first = idx
		}
	}

	if first == -1 {
		if len(text) <= snippetMax {
			return text
		}
		return text[:snippetMax] + ellipsis
	}

	start := first - snippetContextBefore
	if start < 0 {
		start = 0
	}
	end := first + snippetMax
	if end > len(text) {
		end = len(text)
	}

	snippet := emphasizeTerms(text[start:end], terms)
	if start > 0 {
		snippet = ellipsis + snippet
	}
	if end < len(text) {
		snippet = snippet + ellipsis
	}

	return snippet
}

// emphasizeTerms wraps every case-insensitive term occurrence in emphasis
// markers, merging overlapping matches so markers never nest.
func emphasizeTerms(snippet string, terms []string) string {
	type span struct{ start, end int }
	var spans []span

	lower := strings.ToLower(snippet)
	for _, term := range cleanTerms(terms) {
		for from := 0; from < len(lower); {
			idx := strings.Index(lower[from:], term)
			if idx < 0 {
				break
			}
			start := from + idx
			spans = append(spans, span{start, start + len(term)})
			from = start + len(term)
		}
	}

	if len(spans) == 0 {
		return snippet
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	var merged []span
	for _, s := range spans {
		if len(merged) > 0 && s.start <= merged[len(merged)-1].end {
			if s.end > merged[len(merged)-1].end {
				merged[len(merged)-1].end = s.end
			}
			continue
		}
		merged = append(merged, s)
	}

	var b strings.Builder
	pos := 0
	for _, s := range merged {
		b.WriteString(snippet[pos:s.start])
		b.WriteString(emphasisMarker)
		b.WriteString(snippet[s.start:s.end])
		b.WriteString(emphasisMarker)
		pos = s.end
	}
	b.WriteString(snippet[pos:])

	return b.String()
}

func cleanTerms(terms []string) []string {
	var cleaned []string
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term != "" {
			cleaned = append(cleaned, term)
		}
	}
	return cleaned
}
