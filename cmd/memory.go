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
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dvolos/tometran/internal/store"
)

var (
	memoryDBPath string
	memoryBookID string
)

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Manage the cross-chapter translation memory",
	Long: `Inspect and clear the SQLite translation memory.

Every persisted chunk lands here; later chapters retrieve the most
similar prior chunks as few-shot context, which is what keeps style and
terminology stable across a long book.`,
}

var memoryStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show translation memory statistics for a book",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := store.New(memoryDBPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()

		stats, err := db.Stats(context.Background(), memoryBookID)
		if err != nil {
			return fmt.Errorf("failed to get stats: %w", err)
		}

		fmt.Printf("Total chunks:  %d\n", stats.TotalChunks)
		fmt.Printf("Chapters:      %d\n", stats.Chapters)
		fmt.Printf("Scored chunks: %d\n", stats.ScoredChunks)
		if stats.ScoredChunks > 0 {
			fmt.Printf("Average score: %.2f\n", stats.AverageScore)
		}
		return nil
	},
}

var memoryListChapter int

var memoryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List memory entries for one chapter",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := store.New(memoryDBPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()

		entries, err := db.GetChapterMemory(context.Background(), memoryBookID, memoryListChapter)
		if err != nil {
			return fmt.Errorf("failed to list entries: %w", err)
		}
		if len(entries) == 0 {
			fmt.Println("No entries for this chapter.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CHUNK\tSCORE\tSOURCE\tTRANSLATION")
		for _, e := range entries {
			score := "-"
			if e.QualityScore != nil {
				score = fmt.Sprintf("%.1f", *e.QualityScore)
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", e.ChunkID, score, snippet(e.SourceText), snippet(e.Translation))
		}
		return w.Flush()
	},
}

var memoryClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove a book's entries from translation memory",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := store.New(memoryDBPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()

		n, err := db.ClearMemory(context.Background(), memoryBookID)
		if err != nil {
			return fmt.Errorf("failed to clear memory: %w", err)
		}
		fmt.Printf("Cleared %d entries from translation memory.\n", n)
		return nil
	},
}

func snippet(s string) string {
	if len(s) > 40 {
		return s[:37] + "..."
	}
	return s
}

func init() {
	rootCmd.AddCommand(memoryCmd)

	memoryCmd.PersistentFlags().StringVar(&memoryDBPath, "db", "./data/tometran.db", "Database path")
	memoryCmd.PersistentFlags().StringVar(&memoryBookID, "book-id", "", "Book identifier (required)")
	memoryCmd.MarkPersistentFlagRequired("book-id")

	memoryListCmd.Flags().IntVar(&memoryListChapter, "chapter", 0, "Chapter index to list")

	memoryCmd.AddCommand(memoryStatsCmd)
	memoryCmd.AddCommand(memoryListCmd)
	memoryCmd.AddCommand(memoryClearCmd)
}
