// Package store provides the sqlite persistence layer: cross-chapter
// translation memory, the book-level glossary, and workflow checkpoints.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
	_ "modernc.org/sqlite"

	"github.com/dvolos/tometran/internal/workflow"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS translation_memory (
		id TEXT PRIMARY KEY,
		book_id TEXT NOT NULL,
		chapter_id INTEGER NOT NULL,
		chunk_id INTEGER NOT NULL,
		source_text TEXT NOT NULL,
		translation TEXT NOT NULL,
		quality_score REAL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(book_id, chapter_id, chunk_id)
	);

	-- glossary holds the book-level reviewed terminology keyed by source term
	CREATE TABLE IF NOT EXISTS glossary (
		id TEXT PRIMARY KEY,
		book_id TEXT NOT NULL,
		src TEXT NOT NULL,
		term_type TEXT NOT NULL,
		context_meaning TEXT,
		suggested_trans TEXT NOT NULL,
		rationale TEXT,
		human_reviewed BOOLEAN DEFAULT FALSE,
		human_modified BOOLEAN DEFAULT FALSE,
		original_suggested_trans TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(book_id, src)
	);

	-- checkpoints stores suspended workflow runs as whole-state JSON snapshots
	CREATE TABLE IF NOT EXISTS checkpoints (
		thread_id TEXT PRIMARY KEY,
		state TEXT NOT NULL,
		cursor TEXT NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_memory_book ON translation_memory(book_id, chapter_id, chunk_id);
	CREATE INDEX IF NOT EXISTS idx_glossary_book ON glossary(book_id, src);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SaveChunkMemory upserts one chunk's finished translation into the
// cross-chapter memory. Re-running a chunk replaces its prior record.
func (s *Store) SaveChunkMemory(ctx context.Context, rec workflow.MemoryRecord) error {
	id := fmt.Sprintf("mem_%s_%d_%d", rec.BookID, rec.ChapterID, rec.ChunkID)
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO translation_memory (id, book_id, chapter_id, chunk_id, source_text, translation, quality_score, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, rec.BookID, rec.ChapterID, rec.ChunkID, normalizeText(rec.SourceText), rec.Translation, rec.QualityScore, time.Now())
	return err
}

// GetChapterMemory returns one chapter's records in chunk order, for use
// as preceding context while translating later chunks of the chapter.
func (s *Store) GetChapterMemory(ctx context.Context, bookID string, chapterID int) ([]workflow.MemoryRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT book_id, chapter_id, chunk_id, source_text, translation, quality_score
		 FROM translation_memory WHERE book_id = ? AND chapter_id = ? ORDER BY chunk_id`,
		bookID, chapterID)
	if err != nil {
		return nil, err
	}
	return scanMemoryRows(rows)
}

// GetPriorChaptersMemory returns the most recent topK records from
// chapters before beforeChapter, in chronological order.
func (s *Store) GetPriorChaptersMemory(ctx context.Context, bookID string, beforeChapter, topK int) ([]workflow.MemoryRecord, error) {
	if topK <= 0 {
		topK = 5
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT book_id, chapter_id, chunk_id, source_text, translation, quality_score
		 FROM translation_memory WHERE book_id = ? AND chapter_id < ?
		 ORDER BY chapter_id DESC, chunk_id DESC LIMIT ?`,
		bookID, beforeChapter, topK)
	if err != nil {
		return nil, err
	}
	recs, err := scanMemoryRows(rows)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
		recs[i], recs[j] = recs[j], recs[i]
	}
	return recs, nil
}

// SimilarExamples returns up to topK memory records for the book ranked by
// Jaccard word overlap with sourceText. Records with no overlap at all are
// dropped.
func (s *Store) SimilarExamples(ctx context.Context, bookID, sourceText string, topK int) ([]workflow.MemoryRecord, error) {
	if topK <= 0 {
		topK = 3
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT book_id, chapter_id, chunk_id, source_text, translation, quality_score
		 FROM translation_memory WHERE book_id = ?`,
		bookID)
	if err != nil {
		return nil, err
	}
	recs, err := scanMemoryRows(rows)
	if err != nil {
		return nil, err
	}

	query := tokenSet(sourceText)
	type scored struct {
		rec   workflow.MemoryRecord
		score float64
	}
	var ranked []scored
	for _, r := range recs {
		if sc := jaccard(query, tokenSet(r.SourceText)); sc > 0 {
			ranked = append(ranked, scored{rec: r, score: sc})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}
	out := make([]workflow.MemoryRecord, len(ranked))
	for i, sc := range ranked {
		out[i] = sc.rec
	}
	return out, nil
}

func scanMemoryRows(rows *sql.Rows) ([]workflow.MemoryRecord, error) {
	defer rows.Close()
	var recs []workflow.MemoryRecord
	for rows.Next() {
		var r workflow.MemoryRecord
		if err := rows.Scan(&r.BookID, &r.ChapterID, &r.ChunkID, &r.SourceText, &r.Translation, &r.QualityScore); err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// UpsertGlossaryTerm inserts or replaces a book-level glossary entry keyed
// by (book, src).
func (s *Store) UpsertGlossaryTerm(ctx context.Context, bookID string, e workflow.TermEntry) error {
	id := fmt.Sprintf("gl_%s_%s", bookID, normalizeText(e.Src))
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO glossary (id, book_id, src, term_type, context_meaning, suggested_trans, rationale, human_reviewed, human_modified, original_suggested_trans)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, bookID, e.Src, string(e.Type), e.ContextMeaning, e.SuggestedTranslation, e.Rationale, e.HumanReviewed, e.HumanModified, e.OriginalSuggestedTranslation)
	return err
}

// GetGlossary returns the book's glossary as a src-keyed map, ready to
// seed a workflow run's global glossary.
func (s *Store) GetGlossary(ctx context.Context, bookID string) (map[string]workflow.TermEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT src, term_type, context_meaning, suggested_trans, rationale, human_reviewed, human_modified, original_suggested_trans
		 FROM glossary WHERE book_id = ? ORDER BY src`,
		bookID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	terms := make(map[string]workflow.TermEntry)
	for rows.Next() {
		var e workflow.TermEntry
		var termType string
		var contextMeaning, rationale, original sql.NullString
		if err := rows.Scan(&e.Src, &termType, &contextMeaning, &e.SuggestedTranslation, &rationale, &e.HumanReviewed, &e.HumanModified, &original); err != nil {
			return nil, err
		}
		e.Type = workflow.TermType(termType)
		e.ContextMeaning = contextMeaning.String
		e.Rationale = rationale.String
		e.OriginalSuggestedTranslation = original.String
		terms[e.Src] = e
	}
	return terms, rows.Err()
}

// DeleteGlossaryTerm removes one book-level glossary entry by source term.
func (s *Store) DeleteGlossaryTerm(ctx context.Context, bookID, src string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM glossary WHERE book_id = ? AND src = ?`, bookID, src)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("no glossary entry %q for book %s", src, bookID)
	}
	return nil
}

// SaveCheckpoint persists a suspended run, replacing any prior snapshot
// for the thread.
func (s *Store) SaveCheckpoint(ctx context.Context, cp workflow.Checkpoint) error {
	state, err := json.Marshal(cp.State)
	if err != nil {
		return fmt.Errorf("encode checkpoint state: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO checkpoints (thread_id, state, cursor, updated_at) VALUES (?, ?, ?, ?)`,
		cp.ThreadID, string(state), cp.Cursor, time.Now())
	return err
}

// LoadCheckpoint returns the snapshot for a thread, or
// workflow.ErrNoCheckpoint when the thread never suspended.
func (s *Store) LoadCheckpoint(ctx context.Context, threadID string) (workflow.Checkpoint, error) {
	var raw, cursor string
	err := s.db.QueryRowContext(ctx,
		`SELECT state, cursor FROM checkpoints WHERE thread_id = ?`, threadID).Scan(&raw, &cursor)
	if err == sql.ErrNoRows {
		return workflow.Checkpoint{}, fmt.Errorf("%s: %w", threadID, workflow.ErrNoCheckpoint)
	}
	if err != nil {
		return workflow.Checkpoint{}, err
	}

	cp := workflow.Checkpoint{ThreadID: threadID, Cursor: cursor}
	if err := json.Unmarshal([]byte(raw), &cp.State); err != nil {
		return workflow.Checkpoint{}, fmt.Errorf("decode checkpoint state: %w", err)
	}
	return cp, nil
}

// PatchCheckpoint merges a partial-state mutation into a stored snapshot
// and writes the whole merged state back in one replace.
func (s *Store) PatchCheckpoint(ctx context.Context, threadID string, p workflow.Patch) error {
	cp, err := s.LoadCheckpoint(ctx, threadID)
	if err != nil {
		return err
	}
	cp.State = cp.State.ApplyPatch(p)
	return s.SaveCheckpoint(ctx, cp)
}

// DeleteCheckpoint removes a thread's snapshot once the run completes.
func (s *Store) DeleteCheckpoint(ctx context.Context, threadID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE thread_id = ?`, threadID)
	return err
}

// ClearMemory removes all translation memory entries for a book; pass an
// empty bookID to clear everything.
func (s *Store) ClearMemory(ctx context.Context, bookID string) (int64, error) {
	var res sql.Result
	var err error
	if bookID == "" {
		res, err = s.db.ExecContext(ctx, `DELETE FROM translation_memory`)
	} else {
		res, err = s.db.ExecContext(ctx, `DELETE FROM translation_memory WHERE book_id = ?`, bookID)
	}
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MemoryStats summarises translation memory contents for one book.
type MemoryStats struct {
	TotalChunks  int
	Chapters     int
	AverageScore float64
	ScoredChunks int
}

func (s *Store) Stats(ctx context.Context, bookID string) (*MemoryStats, error) {
	stats := &MemoryStats{}
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(DISTINCT chapter_id),
			COALESCE(AVG(quality_score), 0),
			COALESCE(SUM(CASE WHEN quality_score IS NOT NULL THEN 1 ELSE 0 END), 0)
		FROM translation_memory WHERE book_id = ?`, bookID).Scan(
		&stats.TotalChunks,
		&stats.Chapters,
		&stats.AverageScore,
		&stats.ScoredChunks,
	)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// normalizeText trims whitespace and applies Unicode NFC normalization
// for consistent key comparison.
func normalizeText(text string) string {
	return norm.NFC.String(strings.TrimSpace(text))
}

// tokenSet lowercases and whitespace-tokenizes text into a word set.
func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(text)) {
		set[w] = struct{}{}
	}
	return set
}

// jaccard computes |a∩b| / |a∪b| over two word sets.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
