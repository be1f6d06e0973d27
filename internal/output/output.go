// Package output manages the per-chunk JSON records on disk and the
// chapter-level operations built on top of them: glossary collection,
// reviewed-glossary write-back, and final chapter assembly.
package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/dvolos/tometran/internal/markdown"
	"github.com/dvolos/tometran/internal/workflow"
)

// Writer reads and writes chunk records under root. The layout
// {root}/{bookId}/chapter_{N}/chunk_{NNN}.json with a 3-digit zero-padded
// chunk id is a committed format: chapter aggregation enumerates exactly
// this pattern.
type Writer struct {
	Root string
}

func NewWriter(root string) *Writer {
	if root == "" {
		root = "output"
	}
	return &Writer{Root: root}
}

func (w *Writer) chapterDir(bookID string, chapterID int) string {
	return filepath.Join(w.Root, bookID, fmt.Sprintf("chapter_%d", chapterID))
}

func (w *Writer) chunkPath(bookID string, chapterID, chunkID int) string {
	return filepath.Join(w.chapterDir(bookID, chapterID), fmt.Sprintf("chunk_%03d.json", chunkID))
}

// WriteChunk persists one chunk record, creating the chapter directory as
// needed.
func (w *Writer) WriteChunk(bookID string, chapterID int, rec workflow.ChunkRecord) error {
	dir := w.chapterDir(bookID, chapterID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create chapter dir: %w", err)
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode chunk record: %w", err)
	}
	path := w.chunkPath(bookID, chapterID, rec.ChunkID)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write chunk record: %w", err)
	}
	return nil
}

// ReadChunk loads one chunk record; ok is false when the chunk was never
// persisted (empty chunks are skipped at write time, so holes are normal).
func (w *Writer) ReadChunk(bookID string, chapterID, chunkID int) (workflow.ChunkRecord, bool, error) {
	data, err := os.ReadFile(w.chunkPath(bookID, chapterID, chunkID))
	if errors.Is(err, fs.ErrNotExist) {
		return workflow.ChunkRecord{}, false, nil
	}
	if err != nil {
		return workflow.ChunkRecord{}, false, err
	}
	var rec workflow.ChunkRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return workflow.ChunkRecord{}, false, fmt.Errorf("decode chunk record: %w", err)
	}
	return rec, true, nil
}

// ListChunkIDs returns the persisted chunk ids of a chapter in order.
func (w *Writer) ListChunkIDs(bookID string, chapterID int) ([]int, error) {
	pattern := filepath.Join(w.chapterDir(bookID, chapterID), "chunk_*.json")
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	ids := make([]int, 0, len(files))
	for _, f := range files {
		name := strings.TrimSuffix(filepath.Base(f), ".json")
		var id int
		if _, err := fmt.Sscanf(name, "chunk_%d", &id); err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// CollectChapterGlossary gathers the glossaries of chunks 0..numChunks-1,
// de-duplicated by src with the first occurrence winning. Missing chunk
// files are skipped.
func (w *Writer) CollectChapterGlossary(bookID string, chapterID, numChunks int) ([]workflow.TermEntry, error) {
	seen := make(map[string]bool)
	var unique []workflow.TermEntry
	for chunkID := 0; chunkID < numChunks; chunkID++ {
		rec, ok, err := w.ReadChunk(bookID, chapterID, chunkID)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		for _, term := range rec.Glossary {
			if term.Src == "" || seen[term.Src] {
				continue
			}
			seen[term.Src] = true
			unique = append(unique, term)
		}
	}
	return unique, nil
}

// UpdateChunksWithReviewedGlossary merges a reviewed glossary back into
// every persisted chunk of the chapter by src key and propagates changed
// term renderings into the stored translation text. Returns the number of
// chunk files updated. The operation is idempotent: re-applying the same
// reviewed list leaves the records unchanged.
func (w *Writer) UpdateChunksWithReviewedGlossary(bookID string, chapterID, numChunks int, reviewed []workflow.TermEntry) (int, error) {
	bySrc := make(map[string]workflow.TermEntry, len(reviewed))
	for _, term := range reviewed {
		if term.Src != "" {
			bySrc[term.Src] = term
		}
	}

	updated := 0
	for chunkID := 0; chunkID < numChunks; chunkID++ {
		rec, ok, err := w.ReadChunk(bookID, chapterID, chunkID)
		if err != nil {
			return updated, err
		}
		if !ok {
			continue
		}

		merged := make([]workflow.TermEntry, 0, len(rec.Glossary))
		reviewedCount := 0
		for _, term := range rec.Glossary {
			if r, found := bySrc[term.Src]; found {
				if r.ContextMeaning == "" {
					r.ContextMeaning = term.ContextMeaning
				}
				merged = append(merged, r)
				if r.HumanReviewed {
					reviewedCount++
				}
			} else {
				merged = append(merged, term)
			}
		}
		rec.Glossary = merged
		rec.Translation = applyTermReplacements(rec.Translation, merged)
		rec.HumanReviewed = true
		rec.ReviewedGlossaryCount = reviewedCount

		if err := w.WriteChunk(bookID, chapterID, rec); err != nil {
			return updated, err
		}
		updated++
	}
	return updated, nil
}

// applyTermReplacements propagates edited term renderings into translated
// text via literal substring replacement. All substitutions happen in one
// left-to-right pass: at each position the longest original wins, and
// emitted replacement text is never rescanned, so one term's new rendering
// cannot be rewritten by another's.
func applyTermReplacements(text string, glossary []workflow.TermEntry) string {
	replacement := make(map[string]string)
	var originals []string
	for _, term := range glossary {
		if !term.HumanModified ||
			term.OriginalSuggestedTranslation == "" ||
			term.OriginalSuggestedTranslation == term.SuggestedTranslation {
			continue
		}
		if _, dup := replacement[term.OriginalSuggestedTranslation]; !dup {
			originals = append(originals, term.OriginalSuggestedTranslation)
		}
		replacement[term.OriginalSuggestedTranslation] = term.SuggestedTranslation
	}
	if len(originals) == 0 {
		return text
	}

	// Longer alternatives first: the regexp engine prefers the earliest
	// alternative that matches at a position.
	sort.SliceStable(originals, func(i, j int) bool {
		return len(originals[i]) > len(originals[j])
	})
	quoted := make([]string, len(originals))
	for i, orig := range originals {
		quoted[i] = regexp.QuoteMeta(orig)
	}
	re := regexp.MustCompile(strings.Join(quoted, "|"))
	return re.ReplaceAllStringFunc(text, func(m string) string {
		return replacement[m]
	})
}

// AssembleChapter concatenates the chapter's persisted translations into
// {root}/{bookId}/chapter_{N}_final.md and returns the path.
func (w *Writer) AssembleChapter(bookID string, chapterID int) (string, error) {
	ids, err := w.ListChunkIDs(bookID, chapterID)
	if err != nil {
		return "", err
	}
	var parts []string
	for _, id := range ids {
		rec, ok, err := w.ReadChunk(bookID, chapterID, id)
		if err != nil {
			return "", err
		}
		if ok {
			parts = append(parts, rec.Translation)
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("no persisted chunks for %s chapter %d", bookID, chapterID)
	}
	path := filepath.Join(w.Root, bookID, fmt.Sprintf("chapter_%d_final.md", chapterID))
	if err := os.WriteFile(path, []byte(strings.Join(parts, "\n\n")), 0o644); err != nil {
		return "", fmt.Errorf("write assembled chapter: %w", err)
	}
	return path, nil
}

// AssembleChapterHTML renders the assembled chapter markdown to an HTML
// file next to it.
func (w *Writer) AssembleChapterHTML(bookID string, chapterID int) (string, error) {
	mdPath, err := w.AssembleChapter(bookID, chapterID)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(mdPath)
	if err != nil {
		return "", err
	}
	htmlPath := strings.TrimSuffix(mdPath, ".md") + ".html"
	title := fmt.Sprintf("%s - Chapter %d", bookID, chapterID)
	if err := os.WriteFile(htmlPath, []byte(markdown.RenderPage(title, data)), 0o644); err != nil {
		return "", fmt.Errorf("write chapter html: %w", err)
	}
	return htmlPath, nil
}
