package review

import (
	"bytes"
	"strings"
	"testing"

	"github.com/dvolos/tometran/internal/workflow"
)

func TestAutoApproverMarksReviewed(t *testing.T) {
	in := []workflow.TermEntry{
		{Src: "fox", SuggestedTranslation: "Fuchs"},
		{Src: "dog", SuggestedTranslation: "Hund"},
	}
	out, err := AutoApprover{}.ReviewGlossary(in, "")
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d terms, want 2", len(out))
	}
	for _, term := range out {
		if !term.HumanReviewed || term.HumanModified {
			t.Errorf("flags wrong for %s: reviewed=%v modified=%v", term.Src, term.HumanReviewed, term.HumanModified)
		}
	}
	if in[0].HumanReviewed {
		t.Error("input slice mutated")
	}
}

func TestInteractiveKeepEditDrop(t *testing.T) {
	glossary := []workflow.TermEntry{
		{Src: "fox", SuggestedTranslation: "Fuchs"},
		{Src: "dog", SuggestedTranslation: "Hund"},
		{Src: "owl", SuggestedTranslation: "Eule"},
	}
	// keep fox, rename dog, drop owl
	r := &Interactive{
		In:  strings.NewReader("\nKöter\nd\n"),
		Out: &bytes.Buffer{},
	}
	out, err := r.ReviewGlossary(glossary, "")
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d terms, want 2 after drop", len(out))
	}
	if out[0].Src != "fox" || !out[0].HumanReviewed || out[0].HumanModified {
		t.Errorf("kept term wrong: %+v", out[0])
	}
	dog := out[1]
	if dog.SuggestedTranslation != "Köter" || !dog.HumanModified {
		t.Errorf("edited term wrong: %+v", dog)
	}
	if dog.OriginalSuggestedTranslation != "Hund" {
		t.Errorf("original suggestion not snapshotted: %q", dog.OriginalSuggestedTranslation)
	}
}

func TestInteractiveRetypingSameValueIsNotAModification(t *testing.T) {
	r := &Interactive{
		In:  strings.NewReader("Fuchs\n"),
		Out: &bytes.Buffer{},
	}
	out, err := r.ReviewGlossary([]workflow.TermEntry{{Src: "fox", SuggestedTranslation: "Fuchs"}}, "")
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if out[0].HumanModified {
		t.Error("unchanged rendering marked as modified")
	}
}

func TestFindTermContext(t *testing.T) {
	text := "First sentence here. The quick Fox jumps over the dog. Last one."

	got := FindTermContext("fox", text, 200)
	if got != "The quick **Fox** jumps over the dog." {
		t.Errorf("context = %q", got)
	}

	if got := FindTermContext("unicorn", text, 200); got != "" {
		t.Errorf("missing term context = %q, want empty", got)
	}
	if got := FindTermContext("", text, 200); got != "" {
		t.Errorf("empty term context = %q, want empty", got)
	}
}
