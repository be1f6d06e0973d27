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
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dvolos/tometran/internal/detector"
	"github.com/dvolos/tometran/internal/metrics"
	"github.com/dvolos/tometran/internal/output"
)

var (
	evalBookID     string
	evalChapter    int
	evalOutputRoot string
	evalTarget     string
	evalReportFile string
	evalReference  string
	evalNoDetect   bool
)

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Score a translated chapter with offline quality metrics",
	Long: `Evaluate every persisted chunk of a chapter without calling a model:
back-translation consistency, terminology consistency, length ratio,
fluency heuristics, and number preservation. With --reference, each chunk
is also scored against a trusted reference translation by n-gram
precision and edit-distance similarity.

Example:
  tometran eval --book-id mybook --chapter 3 -t de --report report.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		bindFlags(cmd)

		ev := &metrics.Evaluator{TargetLang: evalTarget}
		if !evalNoDetect {
			ev.Detector = detector.New()
		}

		out := output.NewWriter(evalOutputRoot)
		var report metrics.ChapterReport
		var err error
		if evalReference != "" {
			refs, lerr := metrics.LoadReferences(evalReference)
			if lerr != nil {
				return lerr
			}
			report, err = ev.EvaluateChapterWithReferences(out, evalBookID, evalChapter, refs)
		} else {
			report, err = ev.EvaluateChapter(out, evalBookID, evalChapter)
		}
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CHUNK\tOVERALL\tDETAILS")
		for _, chunk := range report.Chunks {
			details := ""
			for name, m := range chunk.Metrics {
				details += fmt.Sprintf("%s=%.1f ", name, m.Score)
			}
			fmt.Fprintf(w, "%d\t%.2f\t%s\n", chunk.ChunkID, chunk.OverallScore, details)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Printf("Chapter %d average score: %.2f over %d chunks\n",
			evalChapter, report.AverageScore, len(report.Chunks))

		if evalReportFile != "" {
			if err := metrics.WriteReport(report, evalReportFile); err != nil {
				return err
			}
			fmt.Printf("Report written to %s\n", evalReportFile)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(evalCmd)

	evalCmd.Flags().StringVar(&evalBookID, "book-id", "", "Book identifier (required)")
	evalCmd.Flags().IntVar(&evalChapter, "chapter", 0, "Chapter index to evaluate")
	evalCmd.Flags().StringVarP(&evalOutputRoot, "output", "o", "output", "Output root directory holding the chunk records")
	evalCmd.Flags().StringVarP(&evalTarget, "target", "t", "", "Target language tag, e.g. de (required)")
	evalCmd.Flags().StringVar(&evalReportFile, "report", "", "Write the full JSON report to this path")
	evalCmd.Flags().StringVar(&evalReference, "reference", "", "JSON array of reference translations (ordered by chunk) for supervised metrics")
	evalCmd.Flags().BoolVar(&evalNoDetect, "no-detect", false, "Skip language detection (faster startup)")

	evalCmd.MarkFlagRequired("book-id")
	evalCmd.MarkFlagRequired("target")
}
