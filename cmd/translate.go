/*
Copyright © 2025 Dmytro Volos

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"

	"github.com/dvolos/tometran/internal/book"
	"github.com/dvolos/tometran/internal/detector"
	"github.com/dvolos/tometran/internal/output"
	"github.com/dvolos/tometran/internal/review"
	"github.com/dvolos/tometran/internal/store"
	"github.com/dvolos/tometran/internal/workflow"
)

var (
	trBookFile string
	trBookID   string
	trChapter  int
	trSource   string
	trTarget   string

	trOutputRoot    string
	trDBPath        string
	trMaxChunkChars int
	trPriorChapters int
	trStripMarkup   bool
	trHTML          bool

	trUseRetrieval bool
	trHumanReview  bool

	trProvider string
	trModel    string
	trAPIKey   string
	trBaseURL  string
	trRPM      int

	trESURL         string
	trESIndex       string
	trESSourceField string
	trESTargetField string

	trBackTranslator string
	trCredentials    string
)

var translateCmd = &cobra.Command{
	Use:   "translate",
	Short: "Translate a book through the translate-evaluate-refine loop",
	Long: `Translate a structured book file (a JSON array of chapters with
"title" and "content") chapter by chapter. Each chapter is chunked at
paragraph boundaries and every chunk runs through the full workflow:
style analysis, term mining, glossary grounding, fused translation, and
(with --use-retrieval) back-translation scoring with bounded refinement.

After a chapter completes, its glossary is collected for review and the
reviewed renderings are propagated back into every chunk before the
chapter is assembled.

Example:
  tometran translate -b book.json --book-id mybook -s en -t de \
    --provider openai --api-key $OPENAI_API_KEY --use-retrieval`,
	RunE: func(cmd *cobra.Command, args []string) error {
		bindFlags(cmd)

		if _, err := language.Parse(trTarget); err != nil {
			return fmt.Errorf("invalid target language %q: %w", trTarget, err)
		}

		chapters, err := book.Load(trBookFile)
		if err != nil {
			return err
		}
		if trBookID == "" {
			return fmt.Errorf("--book-id is required")
		}

		if trSource == "auto" {
			if len(chapters) == 0 {
				return fmt.Errorf("cannot detect source language of an empty book")
			}
			iso, ok := detector.New().DetectISO(chapters[0].Content)
			if !ok {
				return fmt.Errorf("could not detect source language; pass --source explicitly")
			}
			trSource = strings.ToLower(iso)
			fmt.Fprintf(os.Stderr, "Detected source language: %s\n", trSource)
		}
		if _, err := language.Parse(trSource); err != nil {
			return fmt.Errorf("invalid source language %q: %w", trSource, err)
		}

		db, err := store.New(trDBPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()

		logger := newLogger().With("run_id", uuid.New().String())
		out := output.NewWriter(trOutputRoot)

		rt, err := buildRuntime(runtimeParams{
			llm: llmParams{
				provider: trProvider,
				model:    trModel,
				apiKey:   trAPIKey,
				baseURL:  trBaseURL,
				rpm:      trRPM,
			},
			esURL:          trESURL,
			esIndex:        trESIndex,
			esSourceField:  trESSourceField,
			esTargetField:  trESTargetField,
			backTranslator: trBackTranslator,
			credentials:    trCredentials,
		}, db, out, logger)
		if err != nil {
			return err
		}

		runner := workflow.NewRunner(rt, db)

		var reviewer review.Reviewer
		if trHumanReview {
			reviewer = &review.Interactive{In: os.Stdin, Out: os.Stderr}
		}

		orch := &book.Orchestrator{
			Runner:   runner,
			Store:    db,
			Output:   out,
			Reviewer: reviewer,
			Logger:   logger,
			Opts: book.Options{
				SourceLang:    trSource,
				TargetLang:    trTarget,
				UseRetrieval:  trUseRetrieval,
				HumanReview:   trHumanReview,
				MaxChunkChars: trMaxChunkChars,
				StripMarkup:   trStripMarkup,
				AssembleHTML:  trHTML,
				PriorChapters: trPriorChapters,
			},
		}

		ctx := context.Background()
		if trChapter >= 0 {
			if trChapter >= len(chapters) {
				return fmt.Errorf("chapter %d out of range, book has %d chapters", trChapter, len(chapters))
			}
			ch := chapters[trChapter]
			logger.Info("translating single chapter", "book", trBookID, "chapter", trChapter, "title", ch.Title)
			if err := orch.TranslateChapter(ctx, trBookID, trChapter, ch.Content); err != nil {
				return err
			}
		} else {
			logger.Info("translating book", "book", trBookID, "chapters", len(chapters))
			if err := orch.TranslateBook(ctx, trBookID, chapters); err != nil {
				return err
			}
		}

		fmt.Printf("Translated %s from %s to %s; output under %s/%s\n",
			trBookFile, trSource, trTarget, trOutputRoot, trBookID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(translateCmd)

	translateCmd.Flags().StringVarP(&trBookFile, "book", "b", "", "Book file: JSON array of chapters (required)")
	translateCmd.Flags().StringVar(&trBookID, "book-id", "", "Book identifier used for output and memory (required)")
	translateCmd.Flags().IntVar(&trChapter, "chapter", -1, "Translate a single chapter index instead of the whole book")
	translateCmd.Flags().StringVarP(&trSource, "source", "s", "", "Source language tag, e.g. en, or auto to detect (required)")
	translateCmd.Flags().StringVarP(&trTarget, "target", "t", "", "Target language tag, e.g. de (required)")

	translateCmd.Flags().StringVarP(&trOutputRoot, "output", "o", "output", "Output root directory")
	translateCmd.Flags().StringVar(&trDBPath, "db", "./data/tometran.db", "Database path for memory and checkpoints")
	translateCmd.Flags().IntVar(&trMaxChunkChars, "max-chunk-chars", 1200, "Maximum characters per chunk")
	translateCmd.Flags().IntVar(&trPriorChapters, "prior-chapters", 5, "Prior-chapter memory entries fed into each chapter")
	translateCmd.Flags().BoolVar(&trStripMarkup, "strip-markup", false, "Strip markdown/HTML from chapter content before chunking")
	translateCmd.Flags().BoolVar(&trHTML, "html", false, "Also render each assembled chapter to HTML")

	translateCmd.Flags().BoolVar(&trUseRetrieval, "use-retrieval", false, "Ground terms in retrieval and run the evaluate-refine loop")
	translateCmd.Flags().BoolVar(&trHumanReview, "human-review", false, "Review each chapter's glossary interactively")

	translateCmd.Flags().StringVar(&trProvider, "provider", "openai", "LLM provider: openai, openrouter, ollama")
	translateCmd.Flags().StringVar(&trModel, "model", "gpt-4o-mini", "Model name")
	translateCmd.Flags().StringVar(&trAPIKey, "api-key", "", "API key for openai/openrouter")
	translateCmd.Flags().StringVar(&trBaseURL, "base-url", "", "Override the provider base URL (Ollama default: http://localhost:11434)")
	translateCmd.Flags().IntVar(&trRPM, "rpm", 0, "Model calls per minute, 0 = unlimited")

	translateCmd.Flags().StringVar(&trESURL, "es-url", "", "Elasticsearch base URL for term retrieval")
	translateCmd.Flags().StringVar(&trESIndex, "es-index", "translation_memory", "Elasticsearch index")
	translateCmd.Flags().StringVar(&trESSourceField, "es-source-field", "source", "Index field holding source terms")
	translateCmd.Flags().StringVar(&trESTargetField, "es-target-field", "target", "Index field holding target renderings")

	translateCmd.Flags().StringVar(&trBackTranslator, "back-translator", "llm", "Back-translation engine: llm or google")
	translateCmd.Flags().StringVarP(&trCredentials, "credentials", "c", "", "Google Cloud credentials file (for --back-translator google)")

	translateCmd.MarkFlagRequired("book")
	translateCmd.MarkFlagRequired("source")
	translateCmd.MarkFlagRequired("target")
}
