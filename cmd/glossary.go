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
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dvolos/tometran/internal/store"
	"github.com/dvolos/tometran/internal/workflow"
)

var (
	glossaryDBPath string
	glossaryBookID string
)

var glossaryCmd = &cobra.Command{
	Use:   "glossary",
	Short: "Manage a book's terminology glossary",
	Long: `List, add, delete, and export book-level glossary entries.

The glossary accumulates from chapter reviews: every reviewed term is
promoted here and seeds all later chapters of the book, so a name
rendered one way in chapter 2 stays that way in chapter 40.`,
}

var glossaryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the book's glossary entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := store.New(glossaryDBPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()

		terms, err := sortedGlossary(db)
		if err != nil {
			return err
		}
		if len(terms) == 0 {
			fmt.Println("Glossary is empty.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SOURCE\tTRANSLATION\tTYPE\tREVIEWED\tMODIFIED")
		for _, e := range terms {
			fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%v\n",
				e.Src, e.SuggestedTranslation, e.Type, e.HumanReviewed, e.HumanModified)
		}
		return w.Flush()
	},
}

var (
	glossaryAddType      string
	glossaryAddRationale string
)

var glossaryAddCmd = &cobra.Command{
	Use:   "add <source-term> <translation>",
	Short: "Add or update a glossary entry",
	Long: `Pin a source term to a fixed rendering for the whole book.

Example:
  tometran glossary add "Rivendell" "Bruchtal" --book-id lotr --type NER`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := store.New(glossaryDBPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()

		entry := workflow.TermEntry{
			Src:                  args[0],
			SuggestedTranslation: args[1],
			Type:                 workflow.TermType(glossaryAddType),
			Rationale:            glossaryAddRationale,
			HumanReviewed:        true,
		}
		if err := db.UpsertGlossaryTerm(context.Background(), glossaryBookID, entry); err != nil {
			return fmt.Errorf("failed to add glossary entry: %w", err)
		}
		fmt.Printf("Added: %q -> %q for book %s\n", args[0], args[1], glossaryBookID)
		return nil
	},
}

var glossaryDeleteCmd = &cobra.Command{
	Use:   "delete <source-term>",
	Short: "Delete a glossary entry by source term",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := store.New(glossaryDBPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()

		if err := db.DeleteGlossaryTerm(context.Background(), glossaryBookID, args[0]); err != nil {
			return fmt.Errorf("failed to delete glossary entry: %w", err)
		}
		fmt.Printf("Deleted glossary entry: %s\n", args[0])
		return nil
	},
}

var glossaryExportFile string

var glossaryExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the book's glossary to CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := store.New(glossaryDBPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()

		terms, err := sortedGlossary(db)
		if err != nil {
			return err
		}

		out := os.Stdout
		if glossaryExportFile != "" {
			f, err := os.Create(glossaryExportFile)
			if err != nil {
				return fmt.Errorf("failed to create export file: %w", err)
			}
			defer f.Close()
			out = f
		}

		w := csv.NewWriter(out)
		if err := w.Write([]string{"src", "suggested_trans", "type", "context_meaning", "rationale", "human_reviewed", "human_modified"}); err != nil {
			return err
		}
		for _, e := range terms {
			record := []string{
				e.Src, e.SuggestedTranslation, string(e.Type),
				e.ContextMeaning, e.Rationale,
				fmt.Sprintf("%v", e.HumanReviewed), fmt.Sprintf("%v", e.HumanModified),
			}
			if err := w.Write(record); err != nil {
				return err
			}
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return fmt.Errorf("failed to write CSV: %w", err)
		}
		if glossaryExportFile != "" {
			fmt.Printf("Exported %d entries to %s\n", len(terms), glossaryExportFile)
		}
		return nil
	},
}

func sortedGlossary(db *store.Store) ([]workflow.TermEntry, error) {
	byESrc, err := db.GetGlossary(context.Background(), glossaryBookID)
	if err != nil {
		return nil, fmt.Errorf("failed to load glossary: %w", err)
	}
	terms := make([]workflow.TermEntry, 0, len(byESrc))
	for _, e := range byESrc {
		terms = append(terms, e)
	}
	sort.Slice(terms, func(i, j int) bool { return terms[i].Src < terms[j].Src })
	return terms, nil
}

func init() {
	rootCmd.AddCommand(glossaryCmd)

	glossaryCmd.PersistentFlags().StringVar(&glossaryDBPath, "db", "./data/tometran.db", "Database path")
	glossaryCmd.PersistentFlags().StringVar(&glossaryBookID, "book-id", "", "Book identifier (required)")
	glossaryCmd.MarkPersistentFlagRequired("book-id")

	glossaryAddCmd.Flags().StringVar(&glossaryAddType, "type", "Unknown", "Term type: NER, DomainTerm, Idiom, Slang, Acronym, ProperNoun, Unknown")
	glossaryAddCmd.Flags().StringVar(&glossaryAddRationale, "rationale", "", "Why this rendering was chosen")

	glossaryExportCmd.Flags().StringVarP(&glossaryExportFile, "file", "f", "", "Write CSV to a file instead of stdout")

	glossaryCmd.AddCommand(glossaryListCmd)
	glossaryCmd.AddCommand(glossaryAddCmd)
	glossaryCmd.AddCommand(glossaryDeleteCmd)
	glossaryCmd.AddCommand(glossaryExportCmd)
}
