package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"

	"github.com/spherical-ai/spherical/libs/sales-engine/internal/storage"
)

// newSeedCmd creates the seed subcommand.
func newSeedCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load catalog, region fees and FAQs from a YAML file",
		Long: `Seed upserts models, variants and FAQs by name and adds a region fee
schedule only when the region has none. Running it twice is safe. Cached
catalog reads are dropped afterwards.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()

			seedFile, err := storage.LoadSeedFile(file)
			if err != nil {
				return err
			}

			app, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			ui := NewUI(os.Stdout, outputJSON)

			var (
				bar    *mpb.Bar
				onItem func()
			)
			if total := seedFile.Total(); total > 0 {
				bar = ui.ProgressBar("seed", int64(total))
				onItem = bar.Increment
			}

			started := time.Now()
			stats, err := app.Seed(ctx, seedFile, onItem)
			if err != nil && bar != nil {
				bar.Abort(false)
			}
			ui.Close()
			if err != nil {
				return fmt.Errorf("seed: %w", err)
			}

			if outputJSON {
				return printJSON(stats)
			}
			ui.Success("Seeded %s in %s", file, FormatDuration(time.Since(started)))
			ui.KeyValue("Models", stats.Models)
			ui.KeyValue("Variants", stats.Variants)
			ui.KeyValue("Regions added", stats.Regions)
			ui.KeyValue("FAQs", stats.FAQs)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "configs/seed.yaml", "seed file path")
	return cmd
}
