// Package chunker turns chapter text into translation units. A paragraph
// is the unit of meaning: consecutive paragraphs are packed into one unit
// while they fit the character budget, so each workflow run sees as much
// coherent context as the budget allows. It also extracts the trailing
// words of a unit as the continuity window carried into the next one.
package chunker

import (
	"strings"
	"unicode"
)

// DefaultContextWords is how many trailing words ExtractContext keeps
// when the caller does not say otherwise.
const DefaultContextWords = 25

// Chunk splits chapter text into translation units of at most maxChars
// runes each. Paragraphs are packed greedily; a single paragraph over the
// budget is split at sentence ends, then at word boundaries, then cut
// hard. Blank text yields no units. maxChars <= 0 disables splitting.
func Chunk(text string, maxChars int) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	if maxChars <= 0 || runeLen(trimmed) <= maxChars {
		return []string{trimmed}
	}

	var units []string
	var packed []string
	packedLen := 0

	flush := func() {
		if len(packed) > 0 {
			units = append(units, strings.Join(packed, "\n\n"))
			packed = packed[:0]
			packedLen = 0
		}
	}

	for _, para := range paragraphs(text) {
		paraLen := runeLen(para)
		switch {
		case paraLen > maxChars:
			flush()
			units = append(units, splitParagraph(para, maxChars)...)
		case packedLen == 0:
			packed = append(packed, para)
			packedLen = paraLen
		case packedLen+2+paraLen <= maxChars:
			packed = append(packed, para)
			packedLen += 2 + paraLen
		default:
			flush()
			packed = append(packed, para)
			packedLen = paraLen
		}
	}
	flush()
	return units
}

// paragraphs splits on blank lines, normalizing CRLF and dropping empty
// blocks.
func paragraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var out []string
	for _, block := range strings.Split(text, "\n\n") {
		if block = strings.TrimSpace(block); block != "" {
			out = append(out, block)
		}
	}
	return out
}

// splitParagraph breaks one oversized paragraph into budget-sized units,
// preferring sentence ends over word boundaries over a hard cut.
func splitParagraph(para string, maxChars int) []string {
	var units []string
	remaining := para
	for runeLen(remaining) > maxChars {
		cut := sentenceCut(remaining, maxChars)
		if cut == 0 {
			cut = wordCut(remaining, maxChars)
		}
		if cut == 0 {
			cut = len(string([]rune(remaining)[:maxChars]))
		}
		if unit := strings.TrimSpace(remaining[:cut]); unit != "" {
			units = append(units, unit)
		}
		remaining = strings.TrimSpace(remaining[cut:])
	}
	if remaining != "" {
		units = append(units, remaining)
	}
	return units
}

// sentenceCut returns the byte offset just past the last sentence end
// within the first maxChars runes, or 0 when the prefix holds none.
// Fullwidth enders cut without a following space; ASCII enders need one
// so decimals and abbreviations survive.
func sentenceCut(text string, maxChars int) int {
	runes := []rune(text)[:maxChars]
	for i := len(runes) - 1; i >= 1; i-- {
		switch runes[i-1] {
		case '。', '！', '？':
			return len(string(runes[:i]))
		case '.', '!', '?':
			if unicode.IsSpace(runes[i]) {
				return len(string(runes[:i]))
			}
		}
	}
	return 0
}

// wordCut returns the byte offset of the last whitespace within the first
// maxChars runes, or 0 when the prefix is one unbroken word.
func wordCut(text string, maxChars int) int {
	runes := []rune(text)[:maxChars]
	for i := len(runes) - 1; i > 0; i-- {
		if unicode.IsSpace(runes[i]) {
			return len(string(runes[:i]))
		}
	}
	return 0
}

func runeLen(s string) int {
	return len([]rune(s))
}

// ExtractContext returns the trailing wordCount words of text joined by
// single spaces: the continuity window a unit hands to the next one's
// prompt. Shorter texts are returned whole; wordCount <= 0 falls back to
// DefaultContextWords.
func ExtractContext(text string, wordCount int) string {
	if wordCount <= 0 {
		wordCount = DefaultContextWords
	}
	words := strings.Fields(text)
	if len(words) <= wordCount {
		return strings.TrimSpace(text)
	}
	return strings.Join(words[len(words)-wordCount:], " ")
}
