// Package book drives whole-book translation: chapter loading, chunking,
// one workflow run per chunk, the chapter-level glossary review pass, and
// final chapter assembly.
package book

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/dvolos/tometran/internal/chunker"
	"github.com/dvolos/tometran/internal/markdown"
	"github.com/dvolos/tometran/internal/output"
	"github.com/dvolos/tometran/internal/review"
	"github.com/dvolos/tometran/internal/store"
	"github.com/dvolos/tometran/internal/workflow"
)

// Chapter is one structured chapter of the input book JSON.
type Chapter struct {
	Title   string `json:"title"`
	Level   int    `json:"level,omitempty"`
	Content string `json:"content"`
}

// Load reads a book file: a JSON array of chapters with title and content.
func Load(path string) ([]Chapter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read book file: %w", err)
	}
	var chapters []Chapter
	if err := json.Unmarshal(data, &chapters); err != nil {
		return nil, fmt.Errorf("parse book file %s: %w", path, err)
	}
	return chapters, nil
}

// Options controls a book run.
type Options struct {
	SourceLang    string
	TargetLang    string
	UseRetrieval  bool
	HumanReview   bool
	MaxChunkChars int
	StripMarkup   bool
	AssembleHTML  bool
	PriorChapters int
}

// Orchestrator runs chapters sequentially, chunks strictly in document
// order, one workflow run at a time.
type Orchestrator struct {
	Runner   *workflow.Runner
	Store    *store.Store
	Output   *output.Writer
	Reviewer review.Reviewer
	Logger   *slog.Logger
	Opts     Options
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

func (o *Orchestrator) maxChunkChars() int {
	if o.Opts.MaxChunkChars <= 0 {
		return 1200
	}
	return o.Opts.MaxChunkChars
}

// TranslateBook processes every chapter in order. Empty chapters are
// skipped without consuming a chapter review pass.
func (o *Orchestrator) TranslateBook(ctx context.Context, bookID string, chapters []Chapter) error {
	for chapterID, chap := range chapters {
		title := chap.Title
		if title == "" {
			title = fmt.Sprintf("Chapter %d", chapterID)
		}
		if strings.TrimSpace(chap.Content) == "" {
			o.logger().Info("skipping empty chapter", "book", bookID, "chapter", chapterID, "title", title)
			continue
		}
		o.logger().Info("translating chapter", "book", bookID, "chapter", chapterID, "title", title)
		if err := o.TranslateChapter(ctx, bookID, chapterID, chap.Content); err != nil {
			return fmt.Errorf("chapter %d (%s): %w", chapterID, title, err)
		}
	}
	return nil
}

// TranslateChapter runs the full chapter pipeline: chunk, translate each
// chunk, collect and review the chapter glossary, write the reviewed terms
// back into the persisted chunks and the book-level glossary, then
// assemble the final chapter file.
func (o *Orchestrator) TranslateChapter(ctx context.Context, bookID string, chapterID int, content string) error {
	if o.Opts.StripMarkup {
		content = markdown.ToPlainText([]byte(content))
	}
	chunks := chunker.Chunk(content, o.maxChunkChars())
	if len(chunks) == 0 {
		o.logger().Info("chapter has no translatable text", "chapter", chapterID)
		return nil
	}
	o.logger().Info("chapter chunked", "chapter", chapterID, "chunks", len(chunks))

	memory, err := o.priorMemory(ctx, bookID, chapterID)
	if err != nil {
		return err
	}
	globalGlossary, err := o.bookGlossary(ctx, bookID)
	if err != nil {
		return err
	}

	for chunkID, text := range chunks {
		state := workflow.NewState(bookID, chapterID, chunkID, threadID(chapterID, chunkID), text)
		state.SourceLang = o.Opts.SourceLang
		state.TargetLang = o.Opts.TargetLang
		state.UseRetrieval = o.Opts.UseRetrieval
		state.HumanReviewEnabled = o.Opts.HumanReview
		state.GlobalGlossary = globalGlossary
		state.ChapterMemory = append([]string(nil), memory...)

		res, err := o.Runner.Run(ctx, state)
		if err != nil {
			return fmt.Errorf("chunk %d: %w", chunkID, err)
		}
		if res.Suspended {
			return fmt.Errorf("chunk %d suspended mid-chapter; chapter runs review at chapter granularity", chunkID)
		}
		memory = append(memory, memoryLine(res.State))
	}

	if err := o.reviewChapter(ctx, bookID, chapterID, len(chunks), content); err != nil {
		return err
	}

	assemble := o.Output.AssembleChapter
	if o.Opts.AssembleHTML {
		assemble = o.Output.AssembleChapterHTML
	}
	path, err := assemble(bookID, chapterID)
	if err != nil {
		return fmt.Errorf("assemble chapter %d: %w", chapterID, err)
	}
	o.logger().Info("chapter assembled", "chapter", chapterID, "path", path)
	return nil
}

// reviewChapter runs the chapter-granularity human review pass and merges
// the result back into the persisted chunks and the book-level glossary.
func (o *Orchestrator) reviewChapter(ctx context.Context, bookID string, chapterID, numChunks int, content string) error {
	glossary, err := o.Output.CollectChapterGlossary(bookID, chapterID, numChunks)
	if err != nil {
		return fmt.Errorf("collect chapter glossary: %w", err)
	}
	if len(glossary) == 0 {
		o.logger().Info("no terms to review", "chapter", chapterID)
		return nil
	}

	// Terms reviewed in an earlier chapter are settled: they skip review
	// and their stored rendering overrides this chapter's fresh suggestion.
	settled, err := o.bookGlossary(ctx, bookID)
	if err != nil {
		return err
	}
	var pending, carried []workflow.TermEntry
	for _, term := range glossary {
		if prior, ok := settled[term.Src]; ok && prior.HumanReviewed {
			carried = append(carried, prior)
			continue
		}
		pending = append(pending, term)
	}
	if len(carried) > 0 {
		o.logger().Info("terms carried from earlier review", "chapter", chapterID, "terms", len(carried))
	}

	reviewer := o.Reviewer
	if reviewer == nil || !o.Opts.HumanReview {
		reviewer = review.AutoApprover{}
	}
	reviewed, err := reviewer.ReviewGlossary(pending, content)
	if err != nil {
		return fmt.Errorf("review glossary: %w", err)
	}
	reviewed = append(reviewed, carried...)

	updated, err := o.Output.UpdateChunksWithReviewedGlossary(bookID, chapterID, numChunks, reviewed)
	if err != nil {
		return fmt.Errorf("write back reviewed glossary: %w", err)
	}
	o.logger().Info("reviewed glossary merged", "chapter", chapterID, "terms", len(reviewed), "chunks_updated", updated)

	if o.Store != nil {
		for _, term := range reviewed {
			if err := o.Store.UpsertGlossaryTerm(ctx, bookID, term); err != nil {
				o.logger().Warn("book glossary upsert failed", "term", term.Src, "error", err)
			}
		}
	}
	return nil
}

func (o *Orchestrator) priorMemory(ctx context.Context, bookID string, chapterID int) ([]string, error) {
	if o.Store == nil {
		return nil, nil
	}
	topK := o.Opts.PriorChapters
	if topK <= 0 {
		topK = 5
	}
	recs, err := o.Store.GetPriorChaptersMemory(ctx, bookID, chapterID, topK)
	if err != nil {
		return nil, fmt.Errorf("prior chapter memory: %w", err)
	}
	lines := make([]string, 0, len(recs))
	for _, r := range recs {
		lines = append(lines, fmt.Sprintf("%s => %s", r.SourceText, r.Translation))
	}
	return lines, nil
}

func (o *Orchestrator) bookGlossary(ctx context.Context, bookID string) (map[string]workflow.TermEntry, error) {
	if o.Store == nil {
		return nil, nil
	}
	terms, err := o.Store.GetGlossary(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("book glossary: %w", err)
	}
	return terms, nil
}

func threadID(chapterID, chunkID int) string {
	return fmt.Sprintf("ch%d_ck%d", chapterID, chunkID)
}

func memoryLine(s workflow.State) string {
	src := chunker.ExtractContext(s.SourceText, chunker.DefaultContextWords)
	tgt := chunker.ExtractContext(s.CombinedTranslation, chunker.DefaultContextWords)
	return fmt.Sprintf("%s => %s", src, tgt)
}
