package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/spherical-ai/spherical/libs/sales-engine/internal/conversation"
)

// Script is a scripted set of conversations, one message list per user.
type Script struct {
	Conversations []ScriptConversation `yaml:"conversations"`
}

// ScriptConversation is one user's messages in order.
type ScriptConversation struct {
	User     string   `yaml:"user"`
	Messages []string `yaml:"messages"`
	// ExpectRoutes, when set, must match the route of each turn.
	ExpectRoutes []string `yaml:"expect_routes"`
}

// turns counts the messages across all conversations.
func (s *Script) turns() int {
	n := 0
	for _, c := range s.Conversations {
		n += len(c.Messages)
	}
	return n
}

func loadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse script: %w", err)
	}
	for i, c := range s.Conversations {
		if c.User == "" {
			return nil, fmt.Errorf("conversation %d has no user", i+1)
		}
		if len(c.ExpectRoutes) > 0 && len(c.ExpectRoutes) != len(c.Messages) {
			return nil, fmt.Errorf("conversation %s: %d expected routes for %d messages", c.User, len(c.ExpectRoutes), len(c.Messages))
		}
	}
	return &s, nil
}

// ReplayReport summarises a replay run.
type ReplayReport struct {
	Turns      int            `json:"turns"`
	Routes     map[string]int `json:"routes"`
	Errors     int            `json:"errors"`
	Mismatches []string       `json:"mismatches,omitempty"`
	Elapsed    time.Duration  `json:"elapsed_ns"`
}

// replay runs every scripted message through engine. tick is called per turn.
func replay(ctx context.Context, engine turnHandler, s *Script, tick func()) (*ReplayReport, error) {
	report := &ReplayReport{Routes: map[string]int{}}
	started := time.Now()

	for _, c := range s.Conversations {
		for i, msg := range c.Messages {
			turn, err := engine.HandleTurn(ctx, c.User, msg)
			if err != nil {
				return report, fmt.Errorf("%s turn %d: %w", c.User, i+1, err)
			}
			report.Turns++
			report.Routes[turn.Route]++
			if turn.ErrorKind != "" {
				report.Errors++
			}
			if len(c.ExpectRoutes) > 0 && c.ExpectRoutes[i] != turn.Route {
				report.Mismatches = append(report.Mismatches,
					fmt.Sprintf("%s turn %d %q: route %s, want %s", c.User, i+1, msg, turn.Route, c.ExpectRoutes[i]))
			}
			if tick != nil {
				tick()
			}
		}
	}

	report.Elapsed = time.Since(started)
	return report, nil
}

// newReplayCmd creates the replay subcommand.
func newReplayCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Run scripted conversations and report the routes taken",
		Long: `Replay feeds each scripted message through the engine and tallies the
routes. When a conversation lists expect_routes, any difference is reported and
the command exits non-zero.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()

			script, err := loadScript(file)
			if err != nil {
				return err
			}

			app, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			ui := NewUI(os.Stdout, outputJSON)
			bar := ui.NewCounter(script.turns(), "replaying")
			report, err := replay(ctx, app.Engine, script, func() { _ = bar.Add(1) })
			_ = bar.Finish()
			if err != nil {
				return err
			}

			if outputJSON {
				if err := printJSON(report); err != nil {
					return err
				}
			} else {
				routes := make([]string, 0, len(report.Routes))
				for r := range report.Routes {
					routes = append(routes, r)
				}
				sort.Strings(routes)
				rows := make([][]string, 0, len(routes))
				for _, r := range routes {
					rows = append(rows, []string{r, fmt.Sprintf("%d", report.Routes[r])})
				}
				ui.Table([]string{"Route", "Turns"}, rows)
				ui.KeyValue("Turns", report.Turns)
				ui.KeyValue("Error replies", report.Errors)
				ui.KeyValue("Elapsed", FormatDuration(report.Elapsed))
				for _, m := range report.Mismatches {
					ui.Error("%s", m)
				}
			}

			if len(report.Mismatches) > 0 {
				return fmt.Errorf("%d route mismatch(es)", len(report.Mismatches))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "configs/replay.yaml", "script file path")
	return cmd
}

var _ turnHandler = (*conversation.Engine)(nil)
