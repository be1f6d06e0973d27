package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/dvolos/tometran/internal/placeholder"
	"github.com/dvolos/tometran/internal/postprocess"
	"github.com/dvolos/tometran/internal/retrieval"
)

// Stage transforms one read-only state snapshot into a delta. Stages with
// a defined degraded-output fallback return a nil error and record the
// degradation in the delta instead; only persistence-side I/O failures
// propagate.
type Stage func(ctx context.Context, rt *Runtime, s State) (Delta, error)

// stageAnalyzeStyle derives the style guide from the source text and any
// preceding chapter context. Style is advisory: any failure falls back to
// the fixed default instead of propagating.
func stageAnalyzeStyle(ctx context.Context, rt *Runtime, s State) (Delta, error) {
	var sg StyleGuide
	if err := rt.generateSchema(ctx, styleAnalysisPrompt(s), &sg); err != nil {
		rt.logger().Warn("style analysis failed, using defaults", "thread", s.ThreadID, "error", err)
		sg = DefaultStyleGuide()
	}
	def := DefaultStyleGuide()
	if sg.Domain == "" {
		sg.Domain = def.Domain
	}
	if sg.Tone == "" {
		sg.Tone = def.Tone
	}
	if sg.Complexity == "" {
		sg.Complexity = def.Complexity
	}
	return Delta{StyleGuide: &sg}, nil
}

var quotedTermRe = regexp.MustCompile(`"([^"\n]+)"`)

// stageExtractTerms mines the terms that need a consistent rendering. The
// fallback ladder on structured-output failure: free-text generation, then
// best-effort JSON extraction, then quoted substrings, then an empty list.
func stageExtractTerms(ctx context.Context, rt *Runtime, s State) (Delta, error) {
	var out struct {
		Terms []string `json:"terms"`
	}
	prompt := extractTermsPrompt(s)
	if err := rt.generateSchema(ctx, prompt, &out); err != nil {
		rt.logger().Warn("term mining structured call failed, trying free text", "thread", s.ThreadID, "error", err)
		text, gerr := rt.generate(ctx, prompt)
		if gerr != nil {
			rt.logger().Warn("term mining failed entirely, no terms", "thread", s.ThreadID, "error", gerr)
			return Delta{RawTerms: []string{}, HasRawTerms: true}, nil
		}
		if raw := postprocess.ExtractJSON(text); raw != "" {
			_ = json.Unmarshal([]byte(raw), &out)
		}
		if len(out.Terms) == 0 {
			for _, m := range quotedTermRe.FindAllStringSubmatch(text, -1) {
				out.Terms = append(out.Terms, m[1])
			}
		}
	}
	terms := make([]string, 0, len(out.Terms))
	seen := make(map[string]bool, len(out.Terms))
	for _, t := range out.Terms {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		terms = append(terms, t)
	}
	return Delta{RawTerms: terms, HasRawTerms: true}, nil
}

// stageSearchAndConsolidate resolves each mined term into a TermEntry,
// grounded in retrieved translation memory when retrieval is on. A failed
// term yields a fallback entry; one bad term never aborts the batch.
func stageSearchAndConsolidate(ctx context.Context, rt *Runtime, s State) (Delta, error) {
	glossary := make([]TermEntry, 0, len(s.RawTerms))
	for _, term := range s.RawTerms {
		memory := retrieval.NoMemorySentinel
		if s.UseRetrieval && rt.Retrieval != nil {
			pairs, err := rt.Retrieval.Search(ctx, term, 3)
			if err != nil {
				rt.logger().Warn("translation memory lookup failed", "term", term, "error", err)
			} else {
				memory = retrieval.FormatPairs(pairs)
			}
		}
		var entry TermEntry
		if err := rt.generateSchema(ctx, consolidateTermPrompt(s, term, memory), &entry); err != nil {
			glossary = append(glossary, fallbackTermEntry(term, err))
			continue
		}
		entry.Src = term
		if entry.SuggestedTranslation == "" {
			entry.SuggestedTranslation = term
		}
		if entry.Type == "" {
			entry.Type = TermUnknown
		}
		glossary = append(glossary, entry)
	}
	return Delta{Glossary: glossary, HasGlossary: true}, nil
}

func fallbackTermEntry(term string, cause error) TermEntry {
	return TermEntry{
		Src:                  term,
		SuggestedTranslation: term,
		Type:                 TermUnknown,
		ContextMeaning:       "Insufficient context from retrieval.",
		Rationale:            fmt.Sprintf("Fallback due to error: %v", cause),
	}
}

// stageTranslateFusion produces the fused draft translation. On retry
// exhaustion the source text is carried forward verbatim as the degraded
// output; the revision counter increments either way.
func stageTranslateFusion(ctx context.Context, rt *Runtime, s State) (Delta, error) {
	examples := ""
	if s.UseRetrieval && rt.Memory != nil {
		recs, err := rt.Memory.SimilarExamples(ctx, s.BookID, s.SourceText, 3)
		if err != nil {
			rt.logger().Warn("similar-example lookup failed", "thread", s.ThreadID, "error", err)
		} else {
			var b strings.Builder
			for _, r := range recs {
				fmt.Fprintf(&b, "- %s => %s\n", r.SourceText, r.Translation)
			}
			examples = b.String()
		}
	}
	// Code blocks, math and markup are swapped for [PHn] markers so the
	// model cannot mangle them, then swapped back into the draft.
	protected := s
	protectedText, markers := placeholder.Protect(s.SourceText)
	protected.SourceText = protectedText

	prompt := translateFusionPrompt(protected, examples)
	if len(markers) > 0 {
		prompt += "\n" + placeholder.InstructionHint()
	}

	translation := s.SourceText
	text, err := rt.generate(ctx, prompt)
	if err != nil {
		rt.logger().Warn("translation generation exhausted retries, keeping source text", "thread", s.ThreadID, "error", err)
	} else if cleaned := postprocess.Clean(text); cleaned != "" {
		if missing := placeholder.Validate(cleaned, markers); len(missing) > 0 {
			rt.logger().Warn("translation dropped protected segments", "thread", s.ThreadID, "missing", missing)
		}
		translation = placeholder.Restore(cleaned, markers)
	}
	return Delta{CombinedTranslation: strPtr(translation), RevisionIncrement: 1}, nil
}

type qualityReview struct {
	Score                  int      `json:"score"`
	PassFlag               bool     `json:"pass_flag"`
	Critique               string   `json:"critique"`
	ErrorTypes             []string `json:"error_types"`
	SpecificIssues         []string `json:"specific_issues"`
	ImprovementSuggestions []string `json:"improvement_suggestions"`
}

// stageTearEvaluate back-translates the draft and scores the round trip.
// Both legs fail open: a dead back-translator substitutes the source text,
// a dead evaluator yields a passing default score so the run keeps moving.
func stageTearEvaluate(ctx context.Context, rt *Runtime, s State) (Delta, error) {
	bt, err := rt.backTranslate(ctx, s, s.CombinedTranslation)
	if err != nil {
		rt.logger().Warn("back-translation failed, substituting source text", "thread", s.ThreadID, "error", err)
		bt = s.SourceText
	} else {
		bt = postprocess.Clean(bt)
	}

	scored := s
	scored.BackTranslation = bt
	var rev qualityReview
	if err := rt.generateSchema(ctx, evaluationPrompt(scored), &rev); err != nil {
		rt.logger().Warn("evaluator unavailable, failing open", "thread", s.ThreadID, "error", err)
		rev = qualityReview{Score: 7, PassFlag: true, Critique: "evaluator unavailable"}
	}
	if rev.Score < 0 {
		rev.Score = 0
	}
	if rev.Score > 10 {
		rev.Score = 10
	}

	rec := EvaluationRecord{
		Iteration:              s.RevisionCount,
		Score:                  rev.Score,
		Critique:               rev.Critique,
		ErrorTypes:             rev.ErrorTypes,
		SpecificIssues:         rev.SpecificIssues,
		ImprovementSuggestions: rev.ImprovementSuggestions,
		BackTranslation:        bt,
	}
	rt.logger().Info("evaluation pass",
		"thread", s.ThreadID, "iteration", rec.Iteration, "score", rec.Score, "pass", rev.PassFlag)
	return Delta{
		BackTranslation: strPtr(bt),
		QualityScore:    floatPtr(float64(rev.Score)),
		Critique:        strPtr(rev.Critique),
		AppendHistory:   []EvaluationRecord{rec},
	}, nil
}

// stageRefineTranslation revises the draft against the latest evaluation.
// Unlike translate-fusion it has a known-good prior draft, so exhausted
// retries keep the previous translation unchanged. The revision counter
// increments regardless, which is what bounds the loop.
func stageRefineTranslation(ctx context.Context, rt *Runtime, s State) (Delta, error) {
	last := EvaluationRecord{Critique: s.Critique}
	if n := len(s.RefinementHistory); n > 0 {
		last = s.RefinementHistory[n-1]
	}
	text, err := rt.generate(ctx, refinePrompt(s, last))
	if err != nil {
		rt.logger().Warn("refinement exhausted retries, keeping previous draft", "thread", s.ThreadID, "error", err)
		return Delta{RevisionIncrement: 1}, nil
	}
	revised := postprocess.Clean(text)
	if revised == "" {
		return Delta{RevisionIncrement: 1}, nil
	}
	return Delta{CombinedTranslation: strPtr(revised), RevisionIncrement: 1}, nil
}

// stagePersist writes the final chunk record and upserts the cross-chunk
// translation memory. Empty source text is a skip, not an error: nothing
// may be written for an empty chunk.
func stagePersist(ctx context.Context, rt *Runtime, s State) (Delta, error) {
	done := Delta{NeedHumanReview: boolPtr(false)}
	if strings.TrimSpace(s.SourceText) == "" {
		rt.logger().Info("empty chunk, skipping persistence", "thread", s.ThreadID)
		return done, nil
	}

	rec := ChunkRecord{
		ChunkID:           s.ChunkID,
		SourceText:        s.SourceText,
		Translation:       s.CombinedTranslation,
		QualityScore:      s.QualityScore,
		Glossary:          s.Glossary,
		RefinementHistory: s.RefinementHistory,
		RevisionCount:     s.RevisionCount,
	}
	if rec.Glossary == nil {
		rec.Glossary = []TermEntry{}
	}
	if rec.RefinementHistory == nil {
		rec.RefinementHistory = []EvaluationRecord{}
	}
	if rt.Output != nil {
		if err := rt.Output.WriteChunk(s.BookID, s.ChapterID, rec); err != nil {
			return Delta{}, fmt.Errorf("persist chunk %s: %w", s.String(), err)
		}
	}
	if rt.Memory != nil {
		err := rt.Memory.SaveChunkMemory(ctx, MemoryRecord{
			BookID:       s.BookID,
			ChapterID:    s.ChapterID,
			ChunkID:      s.ChunkID,
			SourceText:   s.SourceText,
			Translation:  s.CombinedTranslation,
			QualityScore: s.QualityScore,
		})
		if err != nil {
			rt.logger().Warn("translation memory upsert failed", "thread", s.ThreadID, "error", err)
		}
	}
	rt.logger().Info("chunk persisted", "thread", s.ThreadID, "revisions", s.RevisionCount)
	return done, nil
}
