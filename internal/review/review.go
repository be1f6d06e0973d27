// Package review implements the chapter-level human glossary review
// collaborator: a terminal-driven reviewer and an auto-approving one for
// unattended runs.
package review

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/dvolos/tometran/internal/workflow"
)

// Reviewer takes a de-duplicated chapter glossary plus the concatenated
// chapter source text for context and returns the reviewed list with the
// human_reviewed/human_modified flags set.
type Reviewer interface {
	ReviewGlossary(glossary []workflow.TermEntry, chapterText string) ([]workflow.TermEntry, error)
}

// AutoApprover accepts every suggestion unchanged. Used when a run has
// human review disabled but the chapter pipeline still wants a reviewed
// glossary to merge back.
type AutoApprover struct{}

func (AutoApprover) ReviewGlossary(glossary []workflow.TermEntry, _ string) ([]workflow.TermEntry, error) {
	out := make([]workflow.TermEntry, len(glossary))
	for i, term := range glossary {
		term.HumanReviewed = true
		term.HumanModified = false
		out[i] = term
	}
	return out, nil
}

// Interactive walks the glossary term by term on a line-oriented console.
// For each term: empty input keeps the suggestion, "d" drops the term,
// anything else becomes the new rendering (with the machine suggestion
// snapshotted for audit).
type Interactive struct {
	In  io.Reader
	Out io.Writer
}

func (r *Interactive) ReviewGlossary(glossary []workflow.TermEntry, chapterText string) ([]workflow.TermEntry, error) {
	scanner := bufio.NewScanner(r.In)
	var reviewed []workflow.TermEntry

	fmt.Fprintf(r.Out, "\nGlossary review: %d terms. Enter keeps, 'd' drops, anything else replaces the rendering.\n", len(glossary))
	for i, term := range glossary {
		fmt.Fprintf(r.Out, "\n[%d/%d] %s -> %s (%s)\n", i+1, len(glossary), term.Src, term.SuggestedTranslation, term.Type)
		if term.Rationale != "" {
			fmt.Fprintf(r.Out, "  rationale: %s\n", term.Rationale)
		}
		if chapterText != "" {
			if ctx := FindTermContext(term.Src, chapterText, 200); ctx != "" {
				fmt.Fprintf(r.Out, "  context: %s\n", ctx)
			}
		}
		fmt.Fprint(r.Out, "> ")

		line := ""
		if scanner.Scan() {
			line = strings.TrimSpace(scanner.Text())
		} else if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read review input: %w", err)
		}

		switch {
		case line == "d":
			fmt.Fprintf(r.Out, "  dropped %s\n", term.Src)
			continue
		case line == "" || line == term.SuggestedTranslation:
			term.HumanReviewed = true
			term.HumanModified = false
		default:
			term.OriginalSuggestedTranslation = term.SuggestedTranslation
			term.SuggestedTranslation = line
			term.HumanReviewed = true
			term.HumanModified = true
			fmt.Fprintf(r.Out, "  updated: %s -> %s\n", term.Src, line)
		}
		reviewed = append(reviewed, term)
	}
	fmt.Fprintf(r.Out, "\nReview complete: %d terms kept.\n", len(reviewed))
	return reviewed, nil
}

// FindTermContext returns the sentence around the term's first occurrence
// in the source text, case-insensitive, with the term wrapped in ** for
// display. Empty when the term does not occur.
func FindTermContext(term, sourceText string, window int) string {
	if term == "" || sourceText == "" {
		return ""
	}
	pattern, err := regexp.Compile("(?i)" + regexp.QuoteMeta(term))
	if err != nil {
		return ""
	}
	loc := pattern.FindStringIndex(sourceText)
	if loc == nil {
		return ""
	}
	start, end := loc[0], loc[1]

	sentenceStart := max(0, start-window)
	for i := start - 1; i >= sentenceStart; i-- {
		if isSentenceBoundary(sourceText[i]) {
			sentenceStart = i + 1
			break
		}
	}
	sentenceEnd := min(len(sourceText), end+window)
	for i := end; i < sentenceEnd; i++ {
		if isSentenceBoundary(sourceText[i]) {
			sentenceEnd = i + 1
			break
		}
	}

	sentence := strings.TrimSpace(sourceText[sentenceStart:sentenceEnd])
	return pattern.ReplaceAllString(sentence, "**$0**")
}

func isSentenceBoundary(b byte) bool {
	return b == '.' || b == '!' || b == '?' || b == '\n'
}
