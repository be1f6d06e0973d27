package metrics

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dvolos/tometran/internal/output"
)

// ChapterReport aggregates per-chunk reports for one chapter.
type ChapterReport struct {
	BookID       string   `json:"book_id"`
	ChapterID    int      `json:"chapter_id"`
	Chunks       []Report `json:"chunks"`
	AverageScore float64  `json:"average_score"`
}

// EvaluateChapter scores every persisted chunk of a chapter with the
// reference-free metrics.
func (e *Evaluator) EvaluateChapter(w *output.Writer, bookID string, chapterID int) (ChapterReport, error) {
	return e.evaluateChapter(w, bookID, chapterID, nil)
}

// EvaluateChapterWithReferences additionally scores each chunk against a
// reference translation. References are indexed by chunk ID; chunks past
// the end of the slice fall back to the reference-free metrics.
func (e *Evaluator) EvaluateChapterWithReferences(w *output.Writer, bookID string, chapterID int, refs []string) (ChapterReport, error) {
	return e.evaluateChapter(w, bookID, chapterID, refs)
}

func (e *Evaluator) evaluateChapter(w *output.Writer, bookID string, chapterID int, refs []string) (ChapterReport, error) {
	ids, err := w.ListChunkIDs(bookID, chapterID)
	if err != nil {
		return ChapterReport{}, fmt.Errorf("list chunks: %w", err)
	}
	report := ChapterReport{BookID: bookID, ChapterID: chapterID}
	total := 0.0
	for _, id := range ids {
		rec, ok, err := w.ReadChunk(bookID, chapterID, id)
		if err != nil {
			return ChapterReport{}, fmt.Errorf("read chunk %d: %w", id, err)
		}
		if !ok {
			continue
		}
		reference := ""
		if id >= 0 && id < len(refs) {
			reference = refs[id]
		}
		chunk := e.EvaluateChunkWithReference(rec, reference)
		report.Chunks = append(report.Chunks, chunk)
		total += chunk.OverallScore
	}
	if len(report.Chunks) > 0 {
		report.AverageScore = round2(total / float64(len(report.Chunks)))
	}
	return report, nil
}

// LoadReferences reads a JSON array of reference translations ordered by
// chunk ID.
func LoadReferences(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read references: %w", err)
	}
	var refs []string
	if err := json.Unmarshal(data, &refs); err != nil {
		return nil, fmt.Errorf("parse references: %w", err)
	}
	return refs, nil
}

// WriteReport saves a chapter report as indented JSON.
func WriteReport(report ChapterReport, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
