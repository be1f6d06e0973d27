package book

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dvolos/tometran/internal/output"
	"github.com/dvolos/tometran/internal/store"
	"github.com/dvolos/tometran/internal/workflow"
)

// stubGen answers every stage with fixed content so a whole chapter can
// run without a model.
type stubGen struct{}

func (stubGen) Generate(_ context.Context, prompt string) (string, error) {
	if strings.Contains(prompt, "advanced translation engine") {
		return "Der Fuchs läuft weiter.", nil
	}
	return "", errors.New("unexpected free-text prompt")
}

func (stubGen) GenerateSchema(_ context.Context, prompt string, out any) error {
	var raw string
	switch {
	case strings.Contains(prompt, "Analyze the domain"):
		raw = `{"domain":"fiction","tone":"informal","complexity":"low"}`
	case strings.Contains(prompt, `"terms"`):
		raw = `{"terms":["fox"]}`
	case strings.Contains(prompt, "ALL fields"):
		raw = `{"src":"fox","suggested_trans":"Fuchs","type":"NER","context_meaning":"animal","rationale":"direct"}`
	default:
		return errors.New("unexpected schema prompt")
	}
	return json.Unmarshal([]byte(raw), out)
}

// renameReviewer swaps fox's rendering, exercising the merge-back and the
// substring propagation.
type renameReviewer struct{}

func (renameReviewer) ReviewGlossary(glossary []workflow.TermEntry, _ string) ([]workflow.TermEntry, error) {
	out := make([]workflow.TermEntry, len(glossary))
	for i, term := range glossary {
		term.HumanReviewed = true
		if term.Src == "fox" {
			term.OriginalSuggestedTranslation = term.SuggestedTranslation
			term.SuggestedTranslation = "Füchsin"
			term.HumanModified = true
		}
		out[i] = term
	}
	return out, nil
}

func newTestOrchestrator(t *testing.T, opts Options) (*Orchestrator, *store.Store, *output.Writer) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.New(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	w := output.NewWriter(filepath.Join(dir, "out"))
	rt := &workflow.Runtime{
		Generator: stubGen{},
		Output:    w,
		Memory:    st,
		Logger:    slog.New(slog.DiscardHandler),
	}
	o := &Orchestrator{
		Runner:   workflow.NewRunner(rt, st),
		Store:    st,
		Output:   w,
		Reviewer: renameReviewer{},
		Logger:   slog.New(slog.DiscardHandler),
		Opts:     opts,
	}
	return o, st, w
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.json")
	content := `[{"title":"Intro","content":"Hello world."},{"title":"Ch 1","level":1,"content":"More text."}]`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	chapters, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(chapters) != 2 {
		t.Fatalf("got %d chapters, want 2", len(chapters))
	}
	if chapters[0].Title != "Intro" || chapters[1].Level != 1 {
		t.Errorf("chapters = %+v", chapters)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestTranslateChapterEndToEnd(t *testing.T) {
	o, st, w := newTestOrchestrator(t, Options{
		SourceLang:    "English",
		TargetLang:    "German",
		HumanReview:   true,
		MaxChunkChars: 40,
	})

	content := "The fox runs through the forest.\n\nThe fox rests by the river."
	if err := o.TranslateChapter(context.Background(), "b1", 0, content); err != nil {
		t.Fatalf("translate chapter: %v", err)
	}

	ids, err := w.ListChunkIDs("b1", 0)
	if err != nil || len(ids) < 2 {
		t.Fatalf("chunk ids = %v (err %v), want at least 2 chunks", ids, err)
	}

	rec, ok, err := w.ReadChunk("b1", 0, 0)
	if err != nil || !ok {
		t.Fatalf("read chunk 0: ok=%v err=%v", ok, err)
	}
	if !rec.HumanReviewed {
		t.Error("chunk not marked reviewed after chapter pass")
	}
	if !strings.Contains(rec.Translation, "Füchsin") {
		t.Errorf("edited rendering not propagated: %q", rec.Translation)
	}
	foundFox := false
	for _, term := range rec.Glossary {
		if term.Src == "fox" {
			foundFox = true
			if term.SuggestedTranslation != "Füchsin" || !term.HumanModified {
				t.Errorf("glossary entry not replaced: %+v", term)
			}
		}
	}
	if !foundFox {
		t.Error("fox entry missing from persisted glossary")
	}

	// Reviewed terms feed the book-level glossary for later chapters.
	terms, err := st.GetGlossary(context.Background(), "b1")
	if err != nil {
		t.Fatalf("book glossary: %v", err)
	}
	if got := terms["fox"].SuggestedTranslation; got != "Füchsin" {
		t.Errorf("book glossary rendering = %q, want Füchsin", got)
	}

	// Every chunk upserted into cross-chapter memory.
	stats, err := st.Stats(context.Background(), "b1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalChunks != len(ids) {
		t.Errorf("memory chunks = %d, want %d", stats.TotalChunks, len(ids))
	}

	// Assembled chapter file exists and carries all chunks.
	data, err := os.ReadFile(filepath.Join(w.Root, "b1", "chapter_0_final.md"))
	if err != nil {
		t.Fatalf("assembled chapter: %v", err)
	}
	if count := strings.Count(string(data), "Füchsin"); count != len(ids) {
		t.Errorf("assembled chapter has %d chunk translations, want %d", count, len(ids))
	}
}

func TestTranslateBookSkipsEmptyChapters(t *testing.T) {
	o, _, w := newTestOrchestrator(t, Options{
		SourceLang:  "English",
		TargetLang:  "German",
		HumanReview: false,
	})

	chapters := []Chapter{
		{Title: "Empty", Content: "   "},
		{Title: "Real", Content: "The fox runs."},
	}
	if err := o.TranslateBook(context.Background(), "b2", chapters); err != nil {
		t.Fatalf("translate book: %v", err)
	}

	if ids, _ := w.ListChunkIDs("b2", 0); len(ids) != 0 {
		t.Errorf("empty chapter produced %d chunks", len(ids))
	}
	if ids, _ := w.ListChunkIDs("b2", 1); len(ids) != 1 {
		t.Errorf("real chapter produced %d chunks, want 1", len(ids))
	}
}

// recordingReviewer approves everything and remembers which source terms
// it was asked about.
type recordingReviewer struct {
	seen []string
}

func (r *recordingReviewer) ReviewGlossary(glossary []workflow.TermEntry, _ string) ([]workflow.TermEntry, error) {
	out := make([]workflow.TermEntry, len(glossary))
	for i, term := range glossary {
		r.seen = append(r.seen, term.Src)
		term.HumanReviewed = true
		out[i] = term
	}
	return out, nil
}

func TestReviewedTermsCarryAcrossChapters(t *testing.T) {
	o, st, w := newTestOrchestrator(t, Options{
		SourceLang:  "English",
		TargetLang:  "German",
		HumanReview: true,
	})
	ctx := context.Background()

	if err := o.TranslateChapter(ctx, "b4", 0, "The fox runs."); err != nil {
		t.Fatalf("chapter 0: %v", err)
	}

	rec := &recordingReviewer{}
	o.Reviewer = rec
	if err := o.TranslateChapter(ctx, "b4", 1, "The fox returns."); err != nil {
		t.Fatalf("chapter 1: %v", err)
	}

	for _, src := range rec.seen {
		if src == "fox" {
			t.Error("settled term offered for review again")
		}
	}

	chunk, ok, err := w.ReadChunk("b4", 1, 0)
	if err != nil || !ok {
		t.Fatalf("read chunk: ok=%v err=%v", ok, err)
	}
	foundFox := false
	for _, term := range chunk.Glossary {
		if term.Src == "fox" {
			foundFox = true
			if term.SuggestedTranslation != "Füchsin" {
				t.Errorf("carried rendering = %q, want the chapter 0 decision Füchsin", term.SuggestedTranslation)
			}
		}
	}
	if !foundFox {
		t.Error("fox entry missing from chapter 1 glossary")
	}

	terms, err := st.GetGlossary(ctx, "b4")
	if err != nil {
		t.Fatalf("book glossary: %v", err)
	}
	if got := terms["fox"].SuggestedTranslation; got != "Füchsin" {
		t.Errorf("book glossary rendering = %q, want Füchsin", got)
	}
}

func TestThreadIDFormat(t *testing.T) {
	if got := threadID(3, 12); got != "ch3_ck12" {
		t.Errorf("threadID = %q", got)
	}
}

func TestPriorMemoryFlowsIntoNextChapter(t *testing.T) {
	o, st, _ := newTestOrchestrator(t, Options{SourceLang: "English", TargetLang: "German"})
	ctx := context.Background()

	for ck := 0; ck < 3; ck++ {
		err := st.SaveChunkMemory(ctx, workflow.MemoryRecord{
			BookID: "b3", ChapterID: 0, ChunkID: ck,
			SourceText:  fmt.Sprintf("source %d", ck),
			Translation: fmt.Sprintf("target %d", ck),
		})
		if err != nil {
			t.Fatalf("seed memory: %v", err)
		}
	}

	lines, err := o.priorMemory(ctx, "b3", 1)
	if err != nil {
		t.Fatalf("prior memory: %v", err)
	}
	if len(lines) != 3 {
		t.Fatalf("got %d memory lines, want 3", len(lines))
	}
	if lines[0] != "source 0 => target 0" {
		t.Errorf("first line = %q", lines[0])
	}
}
