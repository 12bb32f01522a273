package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// newFAQCmd creates the faq subcommand group.
func newFAQCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "faq",
		Short: "Inspect the FAQ knowledge base",
	}
	cmd.AddCommand(newFAQSearchCmd())
	return cmd
}

func newFAQSearchCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <question>",
		Short: "Rank FAQ entries against a question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			app, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			query := strings.Join(args, " ")
			hits, err := app.Knowledge.SearchScored(ctx, query, limit)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}

			if outputJSON {
				type hit struct {
					Question string  `json:"question"`
					Answer   string  `json:"answer"`
					Category string  `json:"category"`
					Score    float64 `json:"score"`
				}
				out := make([]hit, 0, len(hits))
				for _, h := range hits {
					out = append(out, hit{Question: h.Entry.Question, Answer: h.Entry.Answer, Category: h.Entry.Category, Score: h.Score})
				}
				return printJSON(out)
			}

			ui := NewUI(os.Stdout, false)
			if len(hits) == 0 {
				ui.Warning("No FAQ matches %q", query)
				return nil
			}

			rows := make([][]string, 0, len(hits))
			for i, h := range hits {
				rows = append(rows, []string{
					fmt.Sprintf("%d", i+1),
					fmt.Sprintf("%.2f", h.Score),
					h.Entry.Category,
					h.Entry.Question,
				})
			}
			ui.Table([]string{"#", "Score", "Category", "Question"}, rows)

			ui.Section("Top answer")
			fmt.Fprintln(os.Stdout, hits[0].Entry.Answer)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 5, "maximum results")
	return cmd
}
