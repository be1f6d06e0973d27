// Package retrieval looks up translation-memory pairs for a term or phrase
// in an Elasticsearch-style index. It is a thin interface boundary: the
// workflow only needs ranked (source, target) pairs and must keep working
// when the index is empty or unreachable.
package retrieval

import (
	"context"
	"fmt"
	"strings"
)

// NoMemorySentinel is what FormatPairs returns when there is nothing to
// show. Prompts embed it verbatim so the model knows retrieval came back
// empty rather than being omitted.
const NoMemorySentinel = "No relevant translation memory found."

// Pair is one retrieved translation-memory example.
type Pair struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Client retrieves ranked translation-memory pairs.
//
// Search returns an empty slice for "no results"; it only errors on
// transport-level failures, which callers treat as "no memory available".
type Client interface {
	Search(ctx context.Context, term string, topK int) ([]Pair, error)
}

// FormatPairs renders pairs as prompt-ready bullet lines, or the
// NoMemorySentinel when pairs is empty.
func FormatPairs(pairs []Pair) string {
	if len(pairs) == 0 {
		return NoMemorySentinel
	}
	var sb strings.Builder
	for _, p := range pairs {
		fmt.Fprintf(&sb, "- %s → %s\n", p.Source, p.Target)
	}
	return strings.TrimRight(sb.String(), "\n")
}
