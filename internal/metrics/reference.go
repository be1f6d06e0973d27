package metrics

import (
	"fmt"
	"strings"

	"github.com/dvolos/tometran/internal/workflow"
)

// ReferenceNGramPrecision scores a translation against a trusted reference
// by token n-gram precision, averaging unigram and bigram precision. Both
// texts are lowercased and tokenized on whitespace.
func (e *Evaluator) ReferenceNGramPrecision(reference, translation string) Result {
	refTokens := strings.Fields(strings.ToLower(reference))
	outTokens := strings.Fields(strings.ToLower(translation))
	if len(refTokens) == 0 || len(outTokens) == 0 {
		return Result{Score: 0, Method: "reference_ngram_precision", Details: "empty reference or translation"}
	}

	uni := ngramPrecision(refTokens, outTokens, 1)
	score := uni
	details := fmt.Sprintf("unigram %.0f%%", uni*100)
	if len(outTokens) >= 2 && len(refTokens) >= 2 {
		bi := ngramPrecision(refTokens, outTokens, 2)
		score = (uni + bi) / 2
		details = fmt.Sprintf("unigram %.0f%%, bigram %.0f%%", uni*100, bi*100)
	}
	return Result{
		Score:   round2(score * 10),
		Method:  "reference_ngram_precision",
		Details: details,
	}
}

// ReferenceSimilarity scores a translation against a trusted reference by
// character-level edit-distance similarity.
func (e *Evaluator) ReferenceSimilarity(reference, translation string) Result {
	if strings.TrimSpace(reference) == "" {
		return Result{Score: 0, Method: "reference_similarity", Details: "empty reference"}
	}
	sim := stringSimilarity(strings.ToLower(reference), strings.ToLower(translation))
	return Result{
		Score:   round2(sim * 10),
		Method:  "reference_similarity",
		Details: fmt.Sprintf("edit-distance similarity %.0f%%", sim*100),
	}
}

// EvaluateChunkWithReference runs the reference-free metrics plus the
// supervised ones when a non-empty reference is supplied.
func (e *Evaluator) EvaluateChunkWithReference(rec workflow.ChunkRecord, reference string) Report {
	report := e.EvaluateChunk(rec)
	if strings.TrimSpace(reference) == "" {
		return report
	}
	report.Metrics["reference_ngram_precision"] = e.ReferenceNGramPrecision(reference, rec.Translation)
	report.Metrics["reference_similarity"] = e.ReferenceSimilarity(reference, rec.Translation)
	report.OverallScore = overallScore(report.Metrics)
	return report
}

// ngramPrecision is the fraction of the candidate's n-grams that occur in
// the reference, with clipped counts.
func ngramPrecision(refTokens, outTokens []string, n int) float64 {
	refCounts := countNGrams(refTokens, n)
	outCounts := countNGrams(outTokens, n)
	if len(outCounts) == 0 {
		return 0
	}
	matched, total := 0, 0
	for gram, count := range outCounts {
		total += count
		if have := refCounts[gram]; have > 0 {
			if have < count {
				matched += have
			} else {
				matched += count
			}
		}
	}
	return float64(matched) / float64(total)
}

func countNGrams(tokens []string, n int) map[string]int {
	counts := make(map[string]int)
	for i := 0; i+n <= len(tokens); i++ {
		counts[strings.Join(tokens[i:i+n], " ")]++
	}
	return counts
}
