package output

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dvolos/tometran/internal/workflow"
)

func writeTestChunk(t *testing.T, w *Writer, chunkID int, translation string, glossary []workflow.TermEntry) {
	t.Helper()
	err := w.WriteChunk("b1", 1, workflow.ChunkRecord{
		ChunkID:     chunkID,
		SourceText:  "source",
		Translation: translation,
		Glossary:    glossary,
	})
	if err != nil {
		t.Fatalf("write chunk %d: %v", chunkID, err)
	}
}

func TestWriteAndReadChunk(t *testing.T) {
	w := NewWriter(t.TempDir())
	score := 8.0
	rec := workflow.ChunkRecord{
		ChunkID:      4,
		SourceText:   "hello",
		Translation:  "hallo",
		QualityScore: &score,
		Glossary:     []workflow.TermEntry{},
	}
	if err := w.WriteChunk("b1", 2, rec); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := os.Stat(filepath.Join(w.Root, "b1", "chapter_2", "chunk_004.json")); err != nil {
		t.Fatalf("chunk file not at committed path: %v", err)
	}

	got, ok, err := w.ReadChunk("b1", 2, 4)
	if err != nil || !ok {
		t.Fatalf("read: ok=%v err=%v", ok, err)
	}
	if got.Translation != "hallo" || *got.QualityScore != 8 {
		t.Errorf("round trip lost data: %+v", got)
	}

	if _, ok, err := w.ReadChunk("b1", 2, 99); err != nil || ok {
		t.Errorf("missing chunk: ok=%v err=%v, want false/nil", ok, err)
	}
}

func TestCollectChapterGlossaryDedupesFirstWins(t *testing.T) {
	w := NewWriter(t.TempDir())
	writeTestChunk(t, w, 0, "t0", []workflow.TermEntry{
		{Src: "fox", SuggestedTranslation: "Fuchs"},
		{Src: "dog", SuggestedTranslation: "Hund"},
	})
	// chunk 1 missing on purpose
	writeTestChunk(t, w, 2, "t2", []workflow.TermEntry{
		{Src: "fox", SuggestedTranslation: "Füchsin"}, // duplicate src, later
		{Src: "owl", SuggestedTranslation: "Eule"},
	})

	got, err := w.CollectChapterGlossary("b1", 1, 3)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d terms, want 3", len(got))
	}
	if got[0].Src != "fox" || got[0].SuggestedTranslation != "Fuchs" {
		t.Errorf("first occurrence did not win: %+v", got[0])
	}
}

func TestUpdateChunksWithReviewedGlossary(t *testing.T) {
	w := NewWriter(t.TempDir())
	writeTestChunk(t, w, 0, "Der Fuchs springt.", []workflow.TermEntry{
		{Src: "fox", SuggestedTranslation: "Fuchs", ContextMeaning: "animal"},
		{Src: "dog", SuggestedTranslation: "Hund"},
	})
	writeTestChunk(t, w, 1, "Noch ein Fuchs.", []workflow.TermEntry{
		{Src: "fox", SuggestedTranslation: "Fuchs"},
	})

	reviewed := []workflow.TermEntry{{
		Src:                          "fox",
		SuggestedTranslation:         "Füchsin",
		HumanReviewed:                true,
		HumanModified:                true,
		OriginalSuggestedTranslation: "Fuchs",
	}}

	updated, err := w.UpdateChunksWithReviewedGlossary("b1", 1, 2, reviewed)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated != 2 {
		t.Errorf("updated %d chunks, want 2", updated)
	}

	rec, _, err := w.ReadChunk("b1", 1, 0)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if rec.Translation != "Der Füchsin springt." {
		t.Errorf("translation = %q, want edited rendering propagated", rec.Translation)
	}
	if !rec.HumanReviewed || rec.ReviewedGlossaryCount != 1 {
		t.Errorf("review markers not set: reviewed=%v count=%d", rec.HumanReviewed, rec.ReviewedGlossaryCount)
	}
	var fox, dog workflow.TermEntry
	for _, term := range rec.Glossary {
		switch term.Src {
		case "fox":
			fox = term
		case "dog":
			dog = term
		}
	}
	if fox.SuggestedTranslation != "Füchsin" || !fox.HumanModified {
		t.Errorf("fox entry not replaced: %+v", fox)
	}
	if fox.ContextMeaning != "animal" {
		t.Errorf("context meaning not preserved from original entry: %q", fox.ContextMeaning)
	}
	if dog.SuggestedTranslation != "Hund" || dog.HumanModified {
		t.Errorf("untouched entry changed: %+v", dog)
	}
}

func TestUpdateChunksIsIdempotent(t *testing.T) {
	w := NewWriter(t.TempDir())
	writeTestChunk(t, w, 0, "Der Fuchs springt.", []workflow.TermEntry{
		{Src: "fox", SuggestedTranslation: "Fuchs"},
	})
	reviewed := []workflow.TermEntry{{
		Src:                          "fox",
		SuggestedTranslation:         "Füchsin",
		HumanReviewed:                true,
		HumanModified:                true,
		OriginalSuggestedTranslation: "Fuchs",
	}}

	if _, err := w.UpdateChunksWithReviewedGlossary("b1", 1, 1, reviewed); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	once, _, err := w.ReadChunk("b1", 1, 0)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if _, err := w.UpdateChunksWithReviewedGlossary("b1", 1, 1, reviewed); err != nil {
		t.Fatalf("second apply: %v", err)
	}
	twice, _, err := w.ReadChunk("b1", 1, 0)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if once.Translation != twice.Translation {
		t.Errorf("translation drifted: %q then %q", once.Translation, twice.Translation)
	}
	if len(once.Glossary) != len(twice.Glossary) || once.Glossary[0] != twice.Glossary[0] {
		t.Errorf("glossary drifted: %+v then %+v", once.Glossary, twice.Glossary)
	}
}

func TestApplyTermReplacementsLongestFirst(t *testing.T) {
	glossary := []workflow.TermEntry{
		{Src: "net", HumanModified: true, OriginalSuggestedTranslation: "Netz", SuggestedTranslation: "NETZ"},
		{Src: "neural net", HumanModified: true, OriginalSuggestedTranslation: "neuronales Netz", SuggestedTranslation: "Neuronales Netzwerk"},
	}
	got := applyTermReplacements("Das neuronales Netz lernt.", glossary)
	if got != "Das Neuronales Netzwerk lernt." {
		t.Errorf("got %q, want the longer term replaced intact", got)
	}
}

func TestApplyTermReplacementsDoesNotRescanEmittedText(t *testing.T) {
	glossary := []workflow.TermEntry{
		{Src: "neural net", HumanModified: true, OriginalSuggestedTranslation: "neuronales Netz", SuggestedTranslation: "Neuronales Netzwerk"},
		{Src: "net", HumanModified: true, OriginalSuggestedTranslation: "Netz", SuggestedTranslation: "NETZ"},
	}
	got := applyTermReplacements("Das neuronales Netz und das Netz.", glossary)
	want := "Das Neuronales Netzwerk und das NETZ."
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestApplyTermReplacementsEscapesMetaChars(t *testing.T) {
	glossary := []workflow.TermEntry{
		{Src: "q", HumanModified: true, OriginalSuggestedTranslation: "Frage (offen)", SuggestedTranslation: "offene Frage"},
	}
	got := applyTermReplacements("Eine Frage (offen) bleibt.", glossary)
	if got != "Eine offene Frage bleibt." {
		t.Errorf("got %q", got)
	}
}

func TestAssembleChapter(t *testing.T) {
	w := NewWriter(t.TempDir())
	writeTestChunk(t, w, 0, "Erster Teil.", nil)
	writeTestChunk(t, w, 1, "Zweiter Teil.", nil)

	path, err := w.AssembleChapter("b1", 1)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read assembled: %v", err)
	}
	if string(data) != "Erster Teil.\n\nZweiter Teil." {
		t.Errorf("assembled = %q", data)
	}

	htmlPath, err := w.AssembleChapterHTML("b1", 1)
	if err != nil {
		t.Fatalf("assemble html: %v", err)
	}
	html, err := os.ReadFile(htmlPath)
	if err != nil {
		t.Fatalf("read html: %v", err)
	}
	if !strings.Contains(string(html), "<p>Erster Teil.</p>") {
		t.Errorf("html rendering missing paragraph: %s", html)
	}
}

func TestAssembleChapterEmptyFails(t *testing.T) {
	w := NewWriter(t.TempDir())
	if _, err := w.AssembleChapter("b1", 9); err == nil {
		t.Fatal("expected error for chapter with no persisted chunks")
	}
}
