package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/sales-engine/internal/config"
	"github.com/spherical-ai/spherical/libs/sales-engine/internal/conversation"
	"github.com/spherical-ai/spherical/libs/sales-engine/internal/startup"
	"github.com/spherical-ai/spherical/libs/sales-engine/internal/storage"
	"github.com/spherical-ai/spherical/libs/sales-engine/internal/storage/storagetest"
)

func init() {
	color.NoColor = true
}

type scriptedEngine struct {
	turns []*conversation.Turn
	sent  []string
}

func (s *scriptedEngine) HandleTurn(_ context.Context, _ string, text string) (*conversation.Turn, error) {
	s.sent = append(s.sent, text)
	turn := s.turns[0]
	if len(s.turns) > 1 {
		s.turns = s.turns[1:]
	}
	return turn, nil
}

func TestParseAddon(t *testing.T) {
	a, err := parseAddon("Tint = 5,000")
	require.NoError(t, err)
	assert.Equal(t, "Tint", a.Name)
	assert.Equal(t, "5000", a.Price.String())

	for _, bad := range []string{"Tint", "=5000", "Tint=abc"} {
		_, err := parseAddon(bad)
		assert.Error(t, err, bad)
	}
}

func TestRenderReplies(t *testing.T) {
	var buf bytes.Buffer
	choices := renderReplies(&buf, []conversation.Reply{
		conversation.Carousel([]conversation.Card{{Title: "Xpander", Subtitle: "MPV · from ₱1,068,000.00", ButtonTitle: "View variants", ButtonPayload: "SHOW_MODELS:Xpander"}}),
		conversation.Image("https://cdn.example.com/xpander/front.jpg"),
		conversation.Choices("Cash or financing?\nPick one.", []conversation.QuickReply{
			{Title: "Cash", Payload: "PAYMENT_CASH"},
			{Title: "Financing", Payload: "PAYMENT_FINANCING"},
		}),
	})

	out := buf.String()
	assert.Contains(t, out, "bot> Xpander")
	assert.Contains(t, out, "(View variants: SHOW_MODELS:Xpander)")
	assert.Contains(t, out, "[image] https://cdn.example.com/xpander/front.jpg")
	assert.Contains(t, out, "Cash or financing?\n     Pick one.")
	assert.Contains(t, out, "  [2] Financing")
	require.Len(t, choices, 2)
}

func TestChat_NumberedChoiceSendsPayload(t *testing.T) {
	engine := &scriptedEngine{turns: []*conversation.Turn{
		{Replies: []conversation.Reply{conversation.Choices("Cash or financing?", []conversation.QuickReply{
			{Title: "Cash", Payload: "PAYMENT_CASH"},
			{Title: "Financing", Payload: "PAYMENT_FINANCING"},
		})}},
		{Replies: []conversation.Reply{conversation.Text("Done.")}},
	}}

	var out bytes.Buffer
	c := &chat{engine: engine, out: &out, userID: "u1"}
	err := c.run(context.Background(), strings.NewReader("quote xpander\n\n2\n7\n/quit\nignored\n"))
	require.NoError(t, err)

	assert.Equal(t, []string{"quote xpander", "PAYMENT_FINANCING", "7"}, engine.sent)
}

func TestUI_Table(t *testing.T) {
	var buf bytes.Buffer
	NewUI(&buf, false).Table([]string{"Route", "Turns"}, [][]string{{"greeting", "2"}})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "│ greeting │ 2     │", lines[3])

	buf.Reset()
	NewUI(&buf, true).Table([]string{"Route"}, nil)
	assert.Empty(t, buf.String())
}

func TestLoadScript(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
		return path
	}

	s, err := loadScript(write("ok.yaml", `
conversations:
  - user: u1
    messages: ["hi", "show me models"]
  - user: u2
    messages: ["GET_QUOTE:Xpander GLS A/T"]
`))
	require.NoError(t, err)
	assert.Equal(t, 3, s.turns())

	_, err = loadScript(write("nouser.yaml", "conversations:\n  - messages: [hi]\n"))
	assert.Error(t, err)

	_, err = loadScript(write("mismatch.yaml", "conversations:\n  - user: u1\n    messages: [hi, bye]\n    expect_routes: [greeting]\n"))
	assert.Error(t, err)
}

func TestReplay_AgainstSeededEngine(t *testing.T) {
	ctx := context.Background()
	appCfg := config.DefaultConfig()
	appCfg.Database.SQLite.Path = ":memory:"

	app, err := startup.New(ctx, appCfg, nil, startup.Options{})
	require.NoError(t, err)
	defer app.Close()
	_, err = storage.NewSeeder(app.DB, nil).Seed(ctx, storagetest.Fixture())
	require.NoError(t, err)

	script := &Script{Conversations: []ScriptConversation{
		{
			User:         "u1",
			Messages:     []string{"hello", "GET_QUOTE:Xpander GLS A/T", "PAYMENT_CASH"},
			ExpectRoutes: []string{"greeting", "get_quote", "quote_flow"},
		},
		{
			User:         "u2",
			Messages:     []string{"hello"},
			ExpectRoutes: []string{"show_models"},
		},
	}}

	var ticks int
	report, err := replay(ctx, app.Engine, script, func() { ticks++ })
	require.NoError(t, err)

	assert.Equal(t, 4, report.Turns)
	assert.Equal(t, 4, ticks)
	assert.Equal(t, 2, report.Routes["greeting"])
	assert.Equal(t, 1, report.Routes["quote_flow"])
	assert.Zero(t, report.Errors)
	require.Len(t, report.Mismatches, 1)
	assert.Contains(t, report.Mismatches[0], "u2 turn 1")
}
