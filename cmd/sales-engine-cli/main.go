// Package main provides the Sales Engine CLI entrypoint.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/spherical-ai/spherical/libs/sales-engine/internal/config"
	"github.com/spherical-ai/spherical/libs/sales-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/sales-engine/internal/startup"
)

var (
	// Global flags
	cfgFile    string
	outputJSON bool
	verbose    bool
	noColor    bool

	// Configuration and logger
	cfg    *config.Config
	logger *observability.Logger
)

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:   "sales-engine-cli",
	Short: "Sales Engine CLI for chatting, seeding and pricing",
	Long: `Sales Engine CLI drives the conversational sales assistant from a terminal.

Use this tool to:
- Chat with the assistant as a customer would
- Seed the catalog, region fee schedules and FAQs
- Apply database migrations
- Price a variant and search the FAQ knowledge base
- Replay scripted conversations

Most commands support --json for automation.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logFormat := "console"
		if outputJSON {
			logFormat = "json"
		}
		level := cfg.Observability.LogLevel
		if !verbose {
			// keep the terminal for the conversation
			level = "warn"
		}

		logger = observability.NewLogger(observability.LogConfig{
			Level:       level,
			Format:      logFormat,
			Output:      os.Stderr,
			ServiceName: "sales-engine-cli",
		})

		if noColor || outputJSON || !IsTerminal() {
			color.NoColor = true
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default: uses env vars)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(newChatCmd())
	rootCmd.AddCommand(newSeedCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newPriceCmd())
	rootCmd.AddCommand(newFAQCmd())
	rootCmd.AddCommand(newReplayCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openApp builds the engine from the loaded configuration.
func openApp(ctx context.Context) (*startup.App, error) {
	app, err := startup.New(ctx, cfg, logger, startup.Options{})
	if err != nil {
		return nil, fmt.Errorf("initialize: %w", err)
	}
	return app, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
