package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/spherical-ai/spherical/libs/sales-engine/internal/startup"
	"github.com/spherical-ai/spherical/libs/sales-engine/internal/storage"
)

// newMigrateCmd creates the migrate subcommand.
func newMigrateCmd() *cobra.Command {
	var statusOnly bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()

			db, err := startup.OpenDatabase(ctx, cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			ui := NewUI(os.Stdout, outputJSON)
			migrator := storage.NewMigrator(db, cfg.Database.Driver)

			status, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("migration status: %w", err)
			}

			if !statusOnly && !status.UpToDate() {
				spin := ui.NewSpinner(fmt.Sprintf("Applying %d migration(s) to %s", len(status.Pending), cfg.Database.Driver))
				spin.Start()
				err = migrator.Run(ctx, status)
				spin.Stop()
				if err != nil {
					return fmt.Errorf("migrate: %w", err)
				}
				if status, err = migrator.Status(ctx); err != nil {
					return fmt.Errorf("migration status: %w", err)
				}
			}

			if outputJSON {
				return printJSON(status)
			}
			ui.KeyValue("Driver", cfg.Database.Driver)
			ui.KeyValue("Applied", strings.Join(status.Applied, ", "))
			if status.UpToDate() {
				ui.Success("Schema up to date")
			} else {
				ui.Warning("Pending: %s", strings.Join(status.Pending, ", "))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&statusOnly, "status", false, "report migration status without applying")
	return cmd
}
