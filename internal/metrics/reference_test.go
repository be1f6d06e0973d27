package metrics

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/dvolos/tometran/internal/workflow"
)

func TestReferenceNGramPrecision(t *testing.T) {
	e := &Evaluator{}

	exact := e.ReferenceNGramPrecision("der fuchs läuft schnell", "Der Fuchs läuft schnell")
	if exact.Score != 10 {
		t.Errorf("exact match scored %v (%s), want 10", exact.Score, exact.Details)
	}
	partial := e.ReferenceNGramPrecision("der fuchs läuft schnell", "der fuchs schläft tief")
	if partial.Score <= 0 || partial.Score >= exact.Score {
		t.Errorf("partial overlap scored %v, want between 0 and %v", partial.Score, exact.Score)
	}
	none := e.ReferenceNGramPrecision("der fuchs läuft", "completely unrelated words")
	if none.Score != 0 {
		t.Errorf("no overlap scored %v, want 0", none.Score)
	}
	if got := e.ReferenceNGramPrecision("", "text"); got.Score != 0 {
		t.Errorf("empty reference scored %v, want 0", got.Score)
	}
}

func TestNGramPrecisionClipsRepeats(t *testing.T) {
	ref := []string{"der", "fuchs"}
	out := []string{"der", "der", "der", "fuchs"}
	// "der" occurs once in the reference, so only one of the three counts.
	if got := ngramPrecision(ref, out, 1); got != 0.5 {
		t.Errorf("clipped precision = %v, want 0.5", got)
	}
}

func TestReferenceSimilarity(t *testing.T) {
	e := &Evaluator{}

	if got := e.ReferenceSimilarity("Der Fuchs läuft.", "der fuchs läuft."); got.Score != 10 {
		t.Errorf("case-only difference scored %v, want 10", got.Score)
	}
	far := e.ReferenceSimilarity("Der Fuchs läuft.", "Etwas ganz anderes steht hier.")
	if far.Score >= 5 {
		t.Errorf("unrelated translation scored %v, want < 5", far.Score)
	}
	if got := e.ReferenceSimilarity("  ", "text"); got.Score != 0 {
		t.Errorf("blank reference scored %v, want 0", got.Score)
	}
}

func TestEvaluateChunkWithReference(t *testing.T) {
	e := &Evaluator{}
	rec := workflow.ChunkRecord{
		ChunkID:     2,
		SourceText:  "The fox runs.",
		Translation: "Der Fuchs läuft.",
	}

	plain := e.EvaluateChunkWithReference(rec, "")
	if _, ok := plain.Metrics["reference_similarity"]; ok {
		t.Error("supervised metric present without a reference")
	}

	ref := e.EvaluateChunkWithReference(rec, "Der Fuchs läuft.")
	if got := ref.Metrics["reference_similarity"].Score; got != 10 {
		t.Errorf("identical reference similarity = %v, want 10", got)
	}
	if _, ok := ref.Metrics["reference_ngram_precision"]; !ok {
		t.Error("n-gram precision metric missing")
	}
	if ref.OverallScore <= 0 || ref.OverallScore > 10 {
		t.Errorf("overall score out of range: %v", ref.OverallScore)
	}
}

func TestLoadReferences(t *testing.T) {
	path := filepath.Join(t.TempDir(), "refs.json")
	want := []string{"Der erste Satz.", "Der zweite Satz."}
	data, err := json.Marshal(want)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	refs, err := LoadReferences(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(refs) != 2 || refs[0] != want[0] || refs[1] != want[1] {
		t.Errorf("got %v, want %v", refs, want)
	}

	if _, err := LoadReferences(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("missing file did not error")
	}
}
