package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/spherical-ai/spherical/libs/sales-engine/internal/conversation"
)

// newChatCmd creates the chat subcommand.
func newChatCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the assistant in the terminal",
		Long: `Chat starts an interactive conversation. Quick replies are numbered;
type the number to pick one. Type /quit to leave.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			app, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			if userID == "" {
				userID = "cli-" + uuid.NewString()[:8]
			}

			ui := NewUI(os.Stdout, outputJSON)
			ui.Info("Chatting as %s. Type /quit to leave.", userID)

			c := &chat{engine: app.Engine, out: os.Stdout, userID: userID, json: outputJSON}
			return c.run(ctx, os.Stdin)
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "conversation user id (default: random)")
	return cmd
}

type turnHandler interface {
	HandleTurn(ctx context.Context, userID, text string) (*conversation.Turn, error)
}

// chat is one interactive conversation.
type chat struct {
	engine  turnHandler
	out     io.Writer
	userID  string
	json    bool
	choices []conversation.QuickReply
}

func (c *chat) run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for {
		if !c.json {
			color.New(color.FgGreen, color.Bold).Fprint(c.out, "you> ")
		}
		if !scanner.Scan() {
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "/quit" || line == "/exit" {
			return nil
		}
		if line == "" {
			continue
		}

		if err := c.send(ctx, line); err != nil {
			return err
		}
	}
}

// send resolves a numbered choice to its payload and runs one turn.
func (c *chat) send(ctx context.Context, line string) error {
	text := line
	if n, err := strconv.Atoi(line); err == nil && n >= 1 && n <= len(c.choices) {
		text = c.choices[n-1].Payload
	}

	turn, err := c.engine.HandleTurn(ctx, c.userID, text)
	if err != nil {
		return fmt.Errorf("turn: %w", err)
	}

	if c.json {
		c.choices = lastChoices(turn.Replies)
		return printJSON(turn)
	}
	c.choices = renderReplies(c.out, turn.Replies)
	return nil
}

// renderReplies prints replies and returns the quick replies offered last.
func renderReplies(w io.Writer, replies []conversation.Reply) []conversation.QuickReply {
	bot := color.New(color.FgCyan, color.Bold)
	dim := color.New(color.Faint)
	choice := color.New(color.FgYellow)

	for _, r := range replies {
		switch r.Kind {
		case conversation.ReplyText, conversation.ReplyQuickReplies:
			bot.Fprint(w, "bot> ")
			fmt.Fprintln(w, indent(r.Text))
			for i, q := range r.QuickReplies {
				choice.Fprintf(w, "  [%d] %s\n", i+1, q.Title)
			}
		case conversation.ReplyImage:
			bot.Fprint(w, "bot> ")
			dim.Fprintf(w, "[image] %s\n", r.ImageURL)
		case conversation.ReplyCarousel:
			for _, card := range r.Cards {
				bot.Fprint(w, "bot> ")
				color.New(color.Bold).Fprintln(w, card.Title)
				if card.Subtitle != "" {
					fmt.Fprintf(w, "     %s\n", card.Subtitle)
				}
				if card.ImageURL != "" {
					dim.Fprintf(w, "     %s\n", card.ImageURL)
				}
				if card.ButtonTitle != "" {
					dim.Fprintf(w, "     (%s: %s)\n", card.ButtonTitle, card.ButtonPayload)
				}
			}
		}
	}
	return lastChoices(replies)
}

func lastChoices(replies []conversation.Reply) []conversation.QuickReply {
	for i := len(replies) - 1; i >= 0; i-- {
		if len(replies[i].QuickReplies) > 0 {
			return replies[i].QuickReplies
		}
	}
	return nil
}

func indent(text string) string {
	return strings.ReplaceAll(text, "\n", "\n     ")
}
