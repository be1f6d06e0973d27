// Package workflow implements the chunk translation state machine: seven
// processing stages wired into a graph with a retrieval gate after
// translation and a quality gate driving the bounded
// translate→evaluate→refine loop, plus suspend/resume checkpoints for
// human glossary review.
package workflow

import "fmt"

// TermType categorizes a glossary entry.
type TermType string

const (
	TermNER        TermType = "NER"
	TermDomain     TermType = "DomainTerm"
	TermIdiom      TermType = "Idiom"
	TermSlang      TermType = "Slang"
	TermAcronym    TermType = "Acronym"
	TermProperNoun TermType = "ProperNoun"
	TermUnknown    TermType = "Unknown"
)

// TermEntry is one glossary record: a source-language term and its agreed
// target rendering, with provenance metadata. Src is the unique key within
// a chunk or chapter scope.
type TermEntry struct {
	Src                  string   `json:"src"`
	Type                 TermType `json:"type"`
	ContextMeaning       string   `json:"context_meaning,omitempty"`
	SuggestedTranslation string   `json:"suggested_trans"`
	Rationale            string   `json:"rationale"`
	HumanReviewed        bool     `json:"human_reviewed,omitempty"`
	HumanModified        bool     `json:"human_modified,omitempty"`
	// OriginalSuggestedTranslation snapshots the machine suggestion when a
	// human edits it, for audit display.
	OriginalSuggestedTranslation string `json:"original_suggested_trans,omitempty"`
}

// StyleGuide is the advisory style metadata produced by the analyze stage.
type StyleGuide struct {
	Domain     string `json:"domain"`
	Tone       string `json:"tone"`
	Complexity string `json:"complexity"`
}

// DefaultStyleGuide is the fallback when style analysis fails. Style is an
// advisory signal, never fatal.
func DefaultStyleGuide() StyleGuide {
	return StyleGuide{Domain: "general", Tone: "formal", Complexity: "medium"}
}

// EvaluationRecord captures one evaluate pass of the refinement loop.
// Immutable once appended to State.RefinementHistory.
type EvaluationRecord struct {
	Iteration              int      `json:"iteration"`
	Score                  int      `json:"score"`
	Critique               string   `json:"critique"`
	ErrorTypes             []string `json:"error_types,omitempty"`
	SpecificIssues         []string `json:"specific_issues,omitempty"`
	ImprovementSuggestions []string `json:"improvement_suggestions,omitempty"`
	BackTranslation        string   `json:"back_translation"`
}

// State is the unit of context threaded through every stage of one chunk's
// translation run. Stages receive it read-only and return a Delta; the
// graph runtime applies deltas to produce the next snapshot, which keeps
// the data flow auditable and the whole thing trivially serializable for
// checkpointing.
type State struct {
	// Identity, immutable after creation. ThreadID keys the checkpoint.
	BookID    string `json:"book_id"`
	ChapterID int    `json:"chapter_id"`
	ChunkID   int    `json:"chunk_id"`
	ThreadID  string `json:"thread_id"`

	// Input, immutable.
	SourceText string `json:"source_text"`
	SourceLang string `json:"source_lang"`
	TargetLang string `json:"target_lang"`

	// Context, populated early and read-mostly afterwards.
	StyleGuide     StyleGuide           `json:"style_guide"`
	ChapterMemory  []string             `json:"chapter_memory,omitempty"`
	GlobalGlossary map[string]TermEntry `json:"global_glossary,omitempty"`

	// Working set, mutated stage by stage.
	RawTerms            []string    `json:"raw_terms,omitempty"`
	Glossary            []TermEntry `json:"glossary,omitempty"`
	CombinedTranslation string      `json:"combined_translation,omitempty"`
	BackTranslation     string      `json:"back_translation,omitempty"`

	// Control.
	QualityScore       *float64           `json:"quality_score,omitempty"`
	Critique           string             `json:"critique,omitempty"`
	RevisionCount      int                `json:"revision_count"`
	RefinementHistory  []EvaluationRecord `json:"refinement_history,omitempty"`
	UseRetrieval       bool               `json:"use_retrieval"`
	HumanReviewEnabled bool               `json:"human_review_enabled"`
	NeedHumanReview    bool               `json:"need_human_review"`
}

// NewState constructs the initial state for one chunk run.
func NewState(bookID string, chapterID, chunkID int, threadID, sourceText string) State {
	return State{
		BookID:          bookID,
		ChapterID:       chapterID,
		ChunkID:         chunkID,
		ThreadID:        threadID,
		SourceText:      sourceText,
		NeedHumanReview: true,
	}
}

// Delta is the changed-fields record a stage emits. Nil pointer fields are
// untouched; RevisionIncrement adds to the counter and AppendHistory
// appends to the refinement history; both are append-only by contract,
// only the translate and refine stages increment, only evaluate appends.
type Delta struct {
	StyleGuide          *StyleGuide
	RawTerms            []string
	HasRawTerms         bool
	Glossary            []TermEntry
	HasGlossary         bool
	CombinedTranslation *string
	BackTranslation     *string
	QualityScore        *float64
	Critique            *string
	RevisionIncrement   int
	AppendHistory       []EvaluationRecord
	NeedHumanReview     *bool
}

// Apply produces the next state snapshot. Slices carried in the delta are
// adopted as-is; stages must not retain or mutate them afterwards.
func (s State) Apply(d Delta) State {
	next := s
	if d.StyleGuide != nil {
		next.StyleGuide = *d.StyleGuide
	}
	if d.HasRawTerms {
		next.RawTerms = d.RawTerms
	}
	if d.HasGlossary {
		next.Glossary = d.Glossary
	}
	if d.CombinedTranslation != nil {
		next.CombinedTranslation = *d.CombinedTranslation
	}
	if d.BackTranslation != nil {
		next.BackTranslation = *d.BackTranslation
	}
	if d.QualityScore != nil {
		score := *d.QualityScore
		next.QualityScore = &score
	}
	if d.Critique != nil {
		next.Critique = *d.Critique
	}
	next.RevisionCount += d.RevisionIncrement
	if len(d.AppendHistory) > 0 {
		history := make([]EvaluationRecord, 0, len(s.RefinementHistory)+len(d.AppendHistory))
		history = append(history, s.RefinementHistory...)
		history = append(history, d.AppendHistory...)
		next.RefinementHistory = history
	}
	if d.NeedHumanReview != nil {
		next.NeedHumanReview = *d.NeedHumanReview
	}
	return next
}

// Patch is the externally injected mutation merged into a checkpointed
// state before resuming, in practice a human-edited glossary. The merge
// replaces whole fields; unrelated state is untouched.
type Patch struct {
	Glossary []TermEntry `json:"glossary,omitempty"`
}

// ApplyPatch merges an external partial-state mutation. Only the fields a
// patch carries are replaced; everything else is untouched.
func (s State) ApplyPatch(p Patch) State {
	next := s
	if p.Glossary != nil {
		next.Glossary = p.Glossary
	}
	return next
}

func (s State) String() string {
	return fmt.Sprintf("%s/ch%d/ck%d rev=%d", s.BookID, s.ChapterID, s.ChunkID, s.RevisionCount)
}

func strPtr(v string) *string     { return &v }
func boolPtr(v bool) *bool        { return &v }
func floatPtr(v float64) *float64 { return &v }
