package workflow

import (
	"fmt"
	"strings"
)

func styleAnalysisPrompt(s State) string {
	chapterCtx := "none"
	if len(s.ChapterMemory) > 0 {
		chapterCtx = strings.Join(s.ChapterMemory, "\n")
	}
	return fmt.Sprintf(`Analyze the domain, register and complexity of the text below.

Preceding chapter context:
%s

Current text:
%s

Respond with a JSON object with exactly these fields:
{"domain": string, "tone": string, "complexity": string}`, chapterCtx, s.SourceText)
}

func extractTermsPrompt(s State) string {
	domain := s.StyleGuide.Domain
	if domain == "" {
		domain = "unknown"
	}
	return fmt.Sprintf(`You are a terminology expert. Identify in the text:
1. Named entities (NER)
2. Domain terms
3. Culture-loaded words, idioms and slang

List only the terms that need verification or a consistent rendering.

Text: %s
Domain: %s

Respond with a JSON object: {"terms": [string, ...]}`, s.SourceText, domain)
}

func consolidateTermPrompt(s State, term, memory string) string {
	return fmt.Sprintf(`You are a terminology expert.

Term: %q
Source text: %q
Target language: %s

Retrieved translation memory:
%s

Output a JSON object with ALL fields:
{
  "src": string,
  "suggested_trans": string,
  "type": string,
  "context_meaning": string,
  "rationale": string
}`, term, s.SourceText, s.TargetLang, memory)
}

func translateFusionPrompt(s State, examples string) string {
	var glossary strings.Builder
	for _, t := range s.Glossary {
		fmt.Fprintf(&glossary, "- %s -> %s (%s)\n", t.Src, t.SuggestedTranslation, t.Rationale)
	}
	for src, t := range s.GlobalGlossary {
		fmt.Fprintf(&glossary, "- %s -> %s (book-level)\n", src, t.SuggestedTranslation)
	}
	glossaryText := glossary.String()
	if glossaryText == "" {
		glossaryText = "(none)"
	}
	feedback := s.Critique
	if feedback == "" {
		feedback = "none"
	}
	var examplesSection string
	if examples != "" {
		examplesSection = fmt.Sprintf("\n[Similar prior translations]\n%s\n", examples)
	}
	return fmt.Sprintf(`You are an advanced translation engine translating %s into %s. Proceed in steps:

1. Understand and deconstruct the sentence structure.
2. Generate two candidate renderings: a literal one and a liberal one.
3. Fuse the best of both into one polished final translation.

[Constraints]
- Strictly follow the style: domain=%s, tone=%s, complexity=%s
- Mandatory glossary:
%s
- Feedback from the previous round (if any): %s
%s
[Source]
%s

Output only the final fused translation.`,
		s.SourceLang, s.TargetLang,
		s.StyleGuide.Domain, s.StyleGuide.Tone, s.StyleGuide.Complexity,
		glossaryText, feedback, examplesSection, s.SourceText)
}

func backTranslationPrompt(s State, translated string) string {
	lang := s.SourceLang
	if lang == "" {
		lang = "the source language"
	}
	return fmt.Sprintf("Translate the following text back to %s strictly, without commentary:\n%s", lang, translated)
}

func evaluationPrompt(s State) string {
	return fmt.Sprintf(`You are a translation quality review system.

Respond strictly with this JSON object and nothing else:
{
  "score": integer 0-10,
  "pass_flag": true or false,
  "critique": "short assessment",
  "error_types": [string, ...],
  "specific_issues": [string, ...],
  "improvement_suggestions": [string, ...]
}

[Source]
%s

[Current translation]
%s

[Back-translation]
%s`, s.SourceText, s.CombinedTranslation, s.BackTranslation)
}

func refinePrompt(s State, last EvaluationRecord) string {
	var glossary strings.Builder
	for _, t := range s.Glossary {
		fmt.Fprintf(&glossary, "- %s -> %s\n", t.Src, t.SuggestedTranslation)
	}
	glossaryText := glossary.String()
	if glossaryText == "" {
		glossaryText = "(none)"
	}
	issues := "none listed"
	if len(last.SpecificIssues) > 0 {
		issues = "- " + strings.Join(last.SpecificIssues, "\n- ")
	}
	suggestions := "none listed"
	if len(last.ImprovementSuggestions) > 0 {
		suggestions = "- " + strings.Join(last.ImprovementSuggestions, "\n- ")
	}
	return fmt.Sprintf(`You are revising a translation into %s based on reviewer feedback. Keep what already works; fix only what the critique flags.

[Style] domain=%s, tone=%s, complexity=%s
[Glossary]
%s
[Critique] %s
[Specific issues]
%s
[Improvement suggestions]
%s

[Source]
%s

[Current translation]
%s

Output only the revised translation.`,
		s.TargetLang,
		s.StyleGuide.Domain, s.StyleGuide.Tone, s.StyleGuide.Complexity,
		glossaryText, last.Critique, issues, suggestions,
		s.SourceText, s.CombinedTranslation)
}
