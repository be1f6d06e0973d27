// Package metrics implements the offline quality metrics computed over
// persisted chunk records: back-translation consistency, terminology
// adherence, length ratio, fluency heuristics, and number preservation,
// plus supervised metrics against reference translations when available.
package metrics

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dvolos/tometran/internal/detector"
	"github.com/dvolos/tometran/internal/workflow"
)

// Result is one metric's outcome on the fixed 0-10 scale.
type Result struct {
	Score   float64 `json:"score"`
	Method  string  `json:"method"`
	Details string  `json:"details"`
}

// Report aggregates all metrics for one chunk.
type Report struct {
	ChunkID      int               `json:"chunk_id"`
	Metrics      map[string]Result `json:"metrics"`
	OverallScore float64           `json:"overall_score"`
}

// Evaluator computes offline metrics. TargetLang (ISO 639-1) enables the
// language check inside the fluency heuristic; leave empty to skip it.
type Evaluator struct {
	TargetLang string
	Detector   *detector.Detector
}

// BackTranslationConsistency scores how much of the source survives the
// translate/back-translate round trip, by character-level edit-distance
// similarity. A missing back-translation, or one that is the source text
// verbatim (the degraded fallback), scores zero.
func (e *Evaluator) BackTranslationConsistency(sourceText, backTranslation string) Result {
	if backTranslation == "" || backTranslation == sourceText {
		return Result{Score: 0, Method: "back_translation_consistency", Details: "back-translation unavailable"}
	}
	sim := stringSimilarity(strings.ToLower(sourceText), strings.ToLower(backTranslation))
	return Result{
		Score:   round2(sim * 10),
		Method:  "back_translation_consistency",
		Details: fmt.Sprintf("round-trip similarity %.0f%%", sim*100),
	}
}

// TerminologyConsistency checks that the translation uses the glossary's
// agreed renderings. A source term left untranslated in the output counts
// as a violation.
func (e *Evaluator) TerminologyConsistency(translation string, glossary []workflow.TermEntry) Result {
	if len(glossary) == 0 {
		return Result{Score: 10, Method: "terminology_consistency", Details: "no glossary, skipped"}
	}
	lower := strings.ToLower(translation)
	total, correct := 0, 0
	var violations []string
	for _, term := range glossary {
		src := strings.TrimSpace(term.Src)
		want := strings.TrimSpace(term.SuggestedTranslation)
		if src == "" || want == "" {
			continue
		}
		total++
		switch {
		case strings.Contains(lower, strings.ToLower(src)) && !strings.EqualFold(src, want):
			violations = append(violations, src)
		case strings.Contains(translation, want):
			correct++
		}
	}
	if total == 0 {
		return Result{Score: 10, Method: "terminology_consistency", Details: "no usable terms"}
	}
	return Result{
		Score:   round2(float64(correct) / float64(total) * 10),
		Method:  "terminology_consistency",
		Details: fmt.Sprintf("%d/%d terms rendered as agreed, %d untranslated", correct, total, len(violations)),
	}
}

// LengthRatio scores the translation-to-source length ratio against the
// empirically reasonable band around 1.5 (target characters per source
// word).
func (e *Evaluator) LengthRatio(sourceText, translation string) Result {
	sourceWords := len(strings.Fields(sourceText))
	if sourceWords == 0 {
		return Result{Score: 0, Method: "length_ratio", Details: "empty source"}
	}
	const idealRatio = 1.5
	ratio := float64(len([]rune(translation))) / float64(sourceWords)
	deviation := abs(ratio-idealRatio) / idealRatio
	if deviation > 1 {
		deviation = 1
	}
	return Result{
		Score:   round2(10 * (1 - deviation)),
		Method:  "length_ratio",
		Details: fmt.Sprintf("ratio %.2f (ideal %.1f)", ratio, idealRatio),
	}
}

var (
	longAsciiRunRe = regexp.MustCompile(`[a-zA-Z]{10,}`)
	numberRe       = regexp.MustCompile(`\d+\.?\d*`)
)

// hasRepeatedRun reports a run of 5 or more identical runes, a typical
// degeneration pattern in model output. RE2 has no backreferences, so
// this is a plain scan.
func hasRepeatedRun(s string) bool {
	var prev rune
	run := 0
	for _, r := range s {
		if r == prev {
			run++
			if run >= 5 {
				return true
			}
		} else {
			prev, run = r, 1
		}
	}
	return false
}

// Fluency applies cheap heuristics: pathological character repetition,
// suspiciously long untranslated ASCII runs, missing sentence punctuation
// in long text, and (when a detector is configured) a target-language
// check.
func (e *Evaluator) Fluency(translation string) Result {
	score := 10.0
	var issues []string

	if hasRepeatedRun(translation) {
		issues = append(issues, "repeated characters")
		score -= 1
	}
	if runes := len([]rune(translation)); runes > 50 && !strings.ContainsAny(translation, ".!?。！？") {
		issues = append(issues, "no sentence punctuation")
		score -= 0.5
	}
	if runs := longAsciiRunRe.FindAllString(translation, -1); len(runs) > 3 && e.TargetLang != "" && e.TargetLang != "en" {
		issues = append(issues, "long untranslated runs")
		score -= 1
	}
	if e.Detector != nil && e.TargetLang != "" && len([]rune(translation)) > 20 {
		if iso, ok := e.Detector.DetectISO(translation); ok && !strings.EqualFold(iso, e.TargetLang) {
			issues = append(issues, fmt.Sprintf("detected language %s, expected %s", iso, e.TargetLang))
			score -= 2
		}
	}
	if score < 0 {
		score = 0
	}

	details := "passed"
	if len(issues) > 0 {
		details = strings.Join(issues, "; ")
	}
	return Result{Score: round2(score), Method: "fluency", Details: details}
}

// NumberPreservation checks that every number in the source appears in
// the translation.
func (e *Evaluator) NumberPreservation(sourceText, translation string) Result {
	sourceNums := numberRe.FindAllString(sourceText, -1)
	if len(sourceNums) == 0 {
		return Result{Score: 10, Method: "number_preservation", Details: "no numbers in source"}
	}
	have := make(map[string]bool)
	for _, n := range numberRe.FindAllString(translation, -1) {
		have[n] = true
	}
	want := make(map[string]bool)
	for _, n := range sourceNums {
		want[n] = true
	}
	preserved := 0
	for n := range want {
		if have[n] {
			preserved++
		}
	}
	return Result{
		Score:   round2(float64(preserved) / float64(len(want)) * 10),
		Method:  "number_preservation",
		Details: fmt.Sprintf("%d/%d numbers preserved", preserved, len(want)),
	}
}

// EvaluateChunk runs every applicable metric over one persisted record and
// averages them. The record's own model-assigned quality score, when
// present, joins the average as one more metric.
func (e *Evaluator) EvaluateChunk(rec workflow.ChunkRecord) Report {
	metrics := make(map[string]Result)

	back := ""
	if n := len(rec.RefinementHistory); n > 0 {
		back = rec.RefinementHistory[n-1].BackTranslation
	}
	if back != "" {
		metrics["back_translation_consistency"] = e.BackTranslationConsistency(rec.SourceText, back)
	}
	metrics["terminology_consistency"] = e.TerminologyConsistency(rec.Translation, rec.Glossary)
	metrics["length_ratio"] = e.LengthRatio(rec.SourceText, rec.Translation)
	metrics["fluency"] = e.Fluency(rec.Translation)
	metrics["number_preservation"] = e.NumberPreservation(rec.SourceText, rec.Translation)
	if rec.QualityScore != nil {
		metrics["quality_score"] = Result{
			Score:   *rec.QualityScore,
			Method:  "quality_score",
			Details: "model-assigned evaluation score",
		}
	}

	return Report{ChunkID: rec.ChunkID, Metrics: metrics, OverallScore: overallScore(metrics)}
}

func overallScore(metrics map[string]Result) float64 {
	if len(metrics) == 0 {
		return 0
	}
	total := 0.0
	for _, m := range metrics {
		total += m.Score
	}
	return round2(total / float64(len(metrics)))
}

// levenshtein returns the edit distance between two strings (rune-aware).
// Uses a space-optimized two-row DP implementation.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	la, lb := len(ra), len(rb)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}

	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= la; i++ {
		curr[0] = i
		for j := 1; j <= lb; j++ {
			if ra[i-1] == rb[j-1] {
				curr[j] = prev[j-1]
			} else {
				m := prev[j]
				if prev[j-1] < m {
					m = prev[j-1]
				}
				if curr[j-1] < m {
					m = curr[j-1]
				}
				curr[j] = m + 1
			}
		}
		prev, curr = curr, prev
	}

	return prev[lb]
}

// stringSimilarity returns a similarity score in [0, 1] (1 = identical).
func stringSimilarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	la, lb := len([]rune(a)), len([]rune(b))
	maxLen := la
	if lb > maxLen {
		maxLen = lb
	}
	if maxLen == 0 {
		return 1.0
	}
	return 1.0 - float64(levenshtein(a, b))/float64(maxLen)
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
