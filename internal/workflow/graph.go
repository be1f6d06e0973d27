package workflow

import (
	"context"
	"errors"
	"fmt"
)

// Node names double as checkpoint cursors, so they are part of the
// persisted format.
const (
	NodeAnalyzeStyle = "analyze_style"
	NodeExtractTerms = "extract_terms"
	NodeSearchTerms  = "search_terms"
	NodeTranslate    = "translate"
	NodeEvaluate     = "evaluate"
	NodeRefine       = "refine"
	NodePersist      = "persist"
)

// Loop policy. MaxRevisions counts the initial translation plus refine
// cycles; together with the unconditional refine→evaluate edge it bounds
// every run.
const (
	PassScore    = 7.0
	MaxRevisions = 3
)

// ErrNoCheckpoint is returned when resuming a thread that never suspended.
// There is no safe default state to resume from, so this one is fatal to
// the caller.
var ErrNoCheckpoint = errors.New("workflow: no checkpoint for thread")

// Checkpoint is one suspended run: the full state snapshot plus the cursor
// naming the next node to execute. Overwritten whole on every save.
type Checkpoint struct {
	ThreadID string `json:"thread_id"`
	State    State  `json:"state"`
	Cursor   string `json:"cursor"`
}

// CheckpointStore persists checkpoints keyed by thread id. Load returns
// ErrNoCheckpoint (possibly wrapped) for an unknown thread.
type CheckpointStore interface {
	SaveCheckpoint(ctx context.Context, cp Checkpoint) error
	LoadCheckpoint(ctx context.Context, threadID string) (Checkpoint, error)
}

type edge struct {
	to   string
	when func(State) bool
}

// Graph is the static stage topology. Edges are evaluated in order; the
// first match wins, a nil condition always matches, and no outgoing edge
// means the node is terminal.
type Graph struct {
	entry  string
	stages map[string]Stage
	edges  map[string][]edge
}

// NewGraph builds the chunk translation graph: a linear context-building
// prefix, the retrieval gate after translation, and the quality-gated
// evaluate/refine loop.
func NewGraph() *Graph {
	g := &Graph{
		entry:  NodeAnalyzeStyle,
		stages: make(map[string]Stage),
		edges:  make(map[string][]edge),
	}
	g.addNode(NodeAnalyzeStyle, stageAnalyzeStyle)
	g.addNode(NodeExtractTerms, stageExtractTerms)
	g.addNode(NodeSearchTerms, stageSearchAndConsolidate)
	g.addNode(NodeTranslate, stageTranslateFusion)
	g.addNode(NodeEvaluate, stageTearEvaluate)
	g.addNode(NodeRefine, stageRefineTranslation)
	g.addNode(NodePersist, stagePersist)

	g.addEdge(NodeAnalyzeStyle, NodeExtractTerms, nil)
	g.addEdge(NodeExtractTerms, NodeSearchTerms, nil)
	g.addEdge(NodeSearchTerms, NodeTranslate, nil)

	// Retrieval gate: evaluation and refinement are retrieval-dependent
	// features, so without retrieval the draft persists as-is.
	g.addEdge(NodeTranslate, NodePersist, func(s State) bool { return !s.UseRetrieval })
	g.addEdge(NodeTranslate, NodeEvaluate, nil)

	// Quality gate: iteration budget first, then the score threshold,
	// otherwise another refine pass.
	g.addEdge(NodeEvaluate, NodePersist, func(s State) bool {
		if s.RevisionCount >= MaxRevisions {
			return true
		}
		return s.QualityScore != nil && *s.QualityScore >= PassScore
	})
	g.addEdge(NodeEvaluate, NodeRefine, nil)
	g.addEdge(NodeRefine, NodeEvaluate, nil)
	return g
}

func (g *Graph) addNode(name string, st Stage) { g.stages[name] = st }

func (g *Graph) addEdge(from, to string, when func(State) bool) {
	g.edges[from] = append(g.edges[from], edge{to: to, when: when})
}

// next resolves the node after from for the given state; empty means
// terminal.
func (g *Graph) next(from string, s State) string {
	for _, e := range g.edges[from] {
		if e.when == nil || e.when(s) {
			return e.to
		}
	}
	return ""
}

// Result is the outcome of driving a run: the final (or suspended) state
// and whether the run parked at a checkpoint awaiting resume.
type Result struct {
	State     State
	Suspended bool
}

// Runner drives states through the graph. SuspendAfter names the node
// after which the run checkpoints and parks (typically the term search
// node, so a human can review the glossary before translation); empty
// disables suspension.
type Runner struct {
	graph        *Graph
	rt           *Runtime
	checkpoints  CheckpointStore
	SuspendAfter string
}

func NewRunner(rt *Runtime, checkpoints CheckpointStore) *Runner {
	return &Runner{graph: NewGraph(), rt: rt, checkpoints: checkpoints}
}

// Run executes a fresh state from the entry node to termination or the
// first suspend point.
func (r *Runner) Run(ctx context.Context, s State) (Result, error) {
	return r.drive(ctx, s, r.graph.entry)
}

// Resume re-enters a suspended thread and continues from the checkpointed
// cursor with the state verbatim.
func (r *Runner) Resume(ctx context.Context, threadID string) (Result, error) {
	cp, err := r.loadCheckpoint(ctx, threadID)
	if err != nil {
		return Result{}, err
	}
	return r.drive(ctx, cp.State, cp.Cursor)
}

// ResumeWithPatch merges an externally supplied mutation (a human-edited
// glossary) into the checkpointed state, saves the merged snapshot whole,
// then continues from the cursor. The whole-state save keeps the merge
// atomic with respect to unrelated fields.
func (r *Runner) ResumeWithPatch(ctx context.Context, threadID string, p Patch) (Result, error) {
	cp, err := r.loadCheckpoint(ctx, threadID)
	if err != nil {
		return Result{}, err
	}
	cp.State = cp.State.ApplyPatch(p)
	if err := r.checkpoints.SaveCheckpoint(ctx, cp); err != nil {
		return Result{}, fmt.Errorf("save patched checkpoint %s: %w", threadID, err)
	}
	return r.drive(ctx, cp.State, cp.Cursor)
}

func (r *Runner) loadCheckpoint(ctx context.Context, threadID string) (Checkpoint, error) {
	if r.checkpoints == nil {
		return Checkpoint{}, fmt.Errorf("resume %s: %w", threadID, ErrNoCheckpoint)
	}
	cp, err := r.checkpoints.LoadCheckpoint(ctx, threadID)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("resume %s: %w", threadID, err)
	}
	return cp, nil
}

func (r *Runner) drive(ctx context.Context, s State, node string) (Result, error) {
	for node != "" {
		if err := ctx.Err(); err != nil {
			return Result{State: s}, err
		}
		stage, ok := r.graph.stages[node]
		if !ok {
			return Result{State: s}, fmt.Errorf("workflow: unknown node %q", node)
		}
		delta, err := stage(ctx, r.rt, s)
		if err != nil {
			return Result{State: s}, err
		}
		s = s.Apply(delta)
		next := r.graph.next(node, s)
		if next != "" && node == r.SuspendAfter {
			if r.checkpoints == nil {
				return Result{State: s}, fmt.Errorf("workflow: suspend after %s without a checkpoint store", node)
			}
			cp := Checkpoint{ThreadID: s.ThreadID, State: s, Cursor: next}
			if err := r.checkpoints.SaveCheckpoint(ctx, cp); err != nil {
				return Result{State: s}, fmt.Errorf("save checkpoint %s: %w", s.ThreadID, err)
			}
			r.rt.logger().Info("run suspended", "thread", s.ThreadID, "after", node, "cursor", next)
			return Result{State: s, Suspended: true}, nil
		}
		node = next
	}
	return Result{State: s}, nil
}
