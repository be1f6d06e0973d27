package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dvolos/tometran/internal/llm"
	"github.com/dvolos/tometran/internal/ratelimit"
	"github.com/dvolos/tometran/internal/retrieval"
)

// ChunkRecord is the persisted unit of one completed chunk run. The JSON
// field names and the on-disk layout are a committed format consumed by
// downstream review tooling.
type ChunkRecord struct {
	ChunkID           int                `json:"chunk_id"`
	SourceText        string             `json:"source_text"`
	Translation       string             `json:"translation"`
	QualityScore      *float64           `json:"quality_score"`
	Glossary          []TermEntry        `json:"glossary"`
	RefinementHistory []EvaluationRecord `json:"refinement_history"`
	RevisionCount     int                `json:"revision_count"`

	// Set by the chapter-level review pass, not by the workflow itself.
	HumanReviewed         bool `json:"human_reviewed,omitempty"`
	ReviewedGlossaryCount int  `json:"reviewed_glossary_count,omitempty"`
}

// RecordWriter persists completed chunk records.
type RecordWriter interface {
	WriteChunk(bookID string, chapterID int, rec ChunkRecord) error
}

// MemoryRecord is one translation-memory row shared with the store.
type MemoryRecord struct {
	BookID       string
	ChapterID    int
	ChunkID      int
	SourceText   string
	Translation  string
	QualityScore *float64
}

// MemoryStore accumulates finished translations and serves them back as
// few-shot context for later chunks.
type MemoryStore interface {
	SaveChunkMemory(ctx context.Context, rec MemoryRecord) error
	SimilarExamples(ctx context.Context, bookID, sourceText string, topK int) ([]MemoryRecord, error)
}

// BackTranslator renders a target-language text back into the source
// language for the consistency check in the evaluate stage.
type BackTranslator interface {
	BackTranslate(ctx context.Context, text, sourceLang, targetLang string) (string, error)
}

// Runtime bundles the injected dependencies every stage draws on. Stages
// never reach for globals; the generator, the shared rate limiter and the
// retry policy all flow through here.
type Runtime struct {
	Generator      llm.Generator
	Retrieval      retrieval.Client
	Limiter        *ratelimit.Limiter
	BackTranslator BackTranslator
	Output         RecordWriter
	Memory         MemoryStore
	Logger         *slog.Logger
}

func (rt *Runtime) logger() *slog.Logger {
	if rt.Logger == nil {
		return slog.Default()
	}
	return rt.Logger
}

func (rt *Runtime) wait(ctx context.Context) error {
	if rt.Limiter == nil {
		return nil
	}
	return rt.Limiter.Wait(ctx)
}

// generate is the single chokepoint for free-text LLM calls: acquire a
// rate-limit slot, then run the shared retry policy.
func (rt *Runtime) generate(ctx context.Context, prompt string) (string, error) {
	if err := rt.wait(ctx); err != nil {
		return "", err
	}
	return llm.GenerateWithRetry(ctx, rt.Generator, prompt)
}

// generateSchema is generate for JSON-schema responses.
func (rt *Runtime) generateSchema(ctx context.Context, prompt string, out any) error {
	if err := rt.wait(ctx); err != nil {
		return err
	}
	return llm.GenerateSchemaWithRetry(ctx, rt.Generator, prompt, out)
}

// backTranslate prefers the dedicated back-translator and falls back to
// prompting the generator when none is configured.
func (rt *Runtime) backTranslate(ctx context.Context, s State, text string) (string, error) {
	if rt.BackTranslator != nil {
		if err := rt.wait(ctx); err != nil {
			return "", err
		}
		out, err := rt.BackTranslator.BackTranslate(ctx, text, s.SourceLang, s.TargetLang)
		if err != nil {
			return "", fmt.Errorf("back-translate: %w", err)
		}
		return out, nil
	}
	return rt.generate(ctx, backTranslationPrompt(s, text))
}
