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
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dvolos/tometran/internal/output"
	"github.com/dvolos/tometran/internal/store"
	"github.com/dvolos/tometran/internal/workflow"
)

// Flags shared by "run" and "resume": both drive a single chunk through
// the workflow against the same runtime.
var (
	wfInputFile string
	wfBookID    string
	wfChapter   int
	wfChunk     int
	wfThreadID  string
	wfSource    string
	wfTarget    string

	wfOutputRoot   string
	wfDBPath       string
	wfUseRetrieval bool
	wfSuspendTerms bool

	wfProvider string
	wfModel    string
	wfAPIKey   string
	wfBaseURL  string
	wfRPM      int

	wfBackTranslator string
	wfCredentials    string

	wfGlossaryFile string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a single chunk through the workflow",
	Long: `Translate one chunk of text from a file through the full workflow.

With --suspend-terms the run pauses after term search, writes a
checkpoint, and prints the mined glossary. Edit the glossary and feed it
back with:

  tometran resume <thread-id> --glossary reviewed.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		bindFlags(cmd)

		data, err := os.ReadFile(wfInputFile)
		if err != nil {
			return fmt.Errorf("failed to read input file: %w", err)
		}

		runner, db, err := buildChunkRunner()
		if err != nil {
			return err
		}
		defer db.Close()

		threadID := wfThreadID
		if threadID == "" {
			threadID = fmt.Sprintf("ch%d_ck%d", wfChapter, wfChunk)
		}
		if wfSuspendTerms {
			runner.SuspendAfter = workflow.NodeSearchTerms
		}

		state := workflow.NewState(wfBookID, wfChapter, wfChunk, threadID, string(data))
		state.SourceLang = wfSource
		state.TargetLang = wfTarget
		state.UseRetrieval = wfUseRetrieval

		res, err := runner.Run(context.Background(), state)
		if err != nil {
			return err
		}
		return printChunkResult(res)
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume <thread-id>",
	Short: "Resume a suspended chunk from its checkpoint",
	Long: `Continue a chunk that was suspended by "run --suspend-terms".

Without --glossary the checkpointed state continues verbatim. With
--glossary the file (a JSON array of glossary entries) replaces the
chunk's glossary before the workflow continues.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bindFlags(cmd)

		runner, db, err := buildChunkRunner()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx := context.Background()
		var res workflow.Result
		if wfGlossaryFile != "" {
			data, err := os.ReadFile(wfGlossaryFile)
			if err != nil {
				return fmt.Errorf("failed to read glossary file: %w", err)
			}
			var glossary []workflow.TermEntry
			if err := json.Unmarshal(data, &glossary); err != nil {
				return fmt.Errorf("failed to parse glossary file: %w", err)
			}
			res, err = runner.ResumeWithPatch(ctx, args[0], workflow.Patch{Glossary: glossary})
			if err != nil {
				return err
			}
		} else {
			res, err = runner.Resume(ctx, args[0])
			if err != nil {
				return err
			}
		}
		return printChunkResult(res)
	},
}

func buildChunkRunner() (*workflow.Runner, *store.Store, error) {
	db, err := store.New(wfDBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	out := output.NewWriter(wfOutputRoot)
	rt, err := buildRuntime(runtimeParams{
		llm: llmParams{
			provider: wfProvider,
			model:    wfModel,
			apiKey:   wfAPIKey,
			baseURL:  wfBaseURL,
			rpm:      wfRPM,
		},
		backTranslator: wfBackTranslator,
		credentials:    wfCredentials,
	}, db, out, newLogger())
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return workflow.NewRunner(rt, db), db, nil
}

func printChunkResult(res workflow.Result) error {
	if res.Suspended {
		fmt.Fprintf(os.Stderr, "Suspended at checkpoint; resume with: tometran resume %s\n", res.State.ThreadID)
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res.State.Glossary)
	}
	if res.State.QualityScore != nil {
		fmt.Fprintf(os.Stderr, "Done after %d revision(s), score %.1f\n",
			res.State.RevisionCount, *res.State.QualityScore)
	} else {
		fmt.Fprintf(os.Stderr, "Done after %d revision(s)\n", res.State.RevisionCount)
	}
	fmt.Println(res.State.CombinedTranslation)
	return nil
}

func addChunkRuntimeFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&wfOutputRoot, "output", "output", "Output root directory")
	cmd.Flags().StringVar(&wfDBPath, "db", "./data/tometran.db", "Database path for memory and checkpoints")

	cmd.Flags().StringVar(&wfProvider, "provider", "openai", "LLM provider: openai, openrouter, ollama")
	cmd.Flags().StringVar(&wfModel, "model", "gpt-4o-mini", "Model name")
	cmd.Flags().StringVar(&wfAPIKey, "api-key", "", "API key for openai/openrouter")
	cmd.Flags().StringVar(&wfBaseURL, "base-url", "", "Override the provider base URL")
	cmd.Flags().IntVar(&wfRPM, "rpm", 0, "Model calls per minute, 0 = unlimited")

	cmd.Flags().StringVar(&wfBackTranslator, "back-translator", "llm", "Back-translation engine: llm or google")
	cmd.Flags().StringVar(&wfCredentials, "credentials", "", "Google Cloud credentials file")
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resumeCmd)

	runCmd.Flags().StringVarP(&wfInputFile, "input", "i", "", "Text file holding the chunk to translate (required)")
	runCmd.Flags().StringVar(&wfBookID, "book-id", "adhoc", "Book identifier")
	runCmd.Flags().IntVar(&wfChapter, "chapter", 0, "Chapter index")
	runCmd.Flags().IntVar(&wfChunk, "chunk", 0, "Chunk index")
	runCmd.Flags().StringVar(&wfThreadID, "thread-id", "", "Checkpoint thread ID (default ch<chapter>_ck<chunk>)")
	runCmd.Flags().StringVarP(&wfSource, "source", "s", "", "Source language tag (required)")
	runCmd.Flags().StringVarP(&wfTarget, "target", "t", "", "Target language tag (required)")
	runCmd.Flags().BoolVar(&wfUseRetrieval, "use-retrieval", false, "Ground terms in retrieval and run the evaluate-refine loop")
	runCmd.Flags().BoolVar(&wfSuspendTerms, "suspend-terms", false, "Suspend after term search for glossary review")
	addChunkRuntimeFlags(runCmd)

	runCmd.MarkFlagRequired("input")
	runCmd.MarkFlagRequired("source")
	runCmd.MarkFlagRequired("target")

	resumeCmd.Flags().StringVar(&wfGlossaryFile, "glossary", "", "Reviewed glossary JSON to merge before continuing")
	addChunkRuntimeFlags(resumeCmd)
}
