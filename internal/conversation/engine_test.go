package conversation_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/sales-engine/internal/conversation"
	"github.com/spherical-ai/spherical/libs/sales-engine/internal/domain"
	"github.com/spherical-ai/spherical/libs/sales-engine/internal/guardrail"
	"github.com/spherical-ai/spherical/libs/sales-engine/internal/intent"
	"github.com/spherical-ai/spherical/libs/sales-engine/internal/llm"
	"github.com/spherical-ai/spherical/libs/sales-engine/internal/monitoring"
	"github.com/spherical-ai/spherical/libs/sales-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/sales-engine/internal/pricing"
	"github.com/spherical-ai/spherical/libs/sales-engine/internal/quote"
	"github.com/spherical-ai/spherical/libs/sales-engine/internal/retrieval"
	"github.com/spherical-ai/spherical/libs/sales-engine/internal/session"
	"github.com/spherical-ai/spherical/libs/sales-engine/internal/storage"
	"github.com/spherical-ai/spherical/libs/sales-engine/internal/storage/storagetest"
)

type stubPhraser struct {
	out   string
	err   error
	calls int
}

func (s *stubPhraser) Complete(context.Context, string, string) (string, error) {
	s.calls++
	return s.out, s.err
}

type brokenSessions struct{ session.Store }

func (brokenSessions) Get(context.Context, string) (*session.State, error) {
	return nil, domain.Persistence("get session", errors.New("connection reset"))
}

type harness struct {
	engine  *conversation.Engine
	audit   *storage.AuditRepository
	quotes  *storage.QuoteRepository
	metrics *observability.Metrics
}

type options struct {
	phraser  llm.Completer
	sessions func(session.Store) session.Store
	prepare  func(*testing.T, *sql.DB)
}

func newHarness(t *testing.T, opts options) *harness {
	t.Helper()
	db := storagetest.Seeded(t)
	if opts.prepare != nil {
		opts.prepare(t, db)
	}
	reader := storage.NewReader(db)

	h := &harness{
		audit:   storage.NewAuditRepository(db),
		quotes:  storage.NewQuoteRepository(db),
		metrics: observability.NewMetrics(prometheus.NewRegistry()),
	}

	var sessions session.Store = session.NewSQLStore(db, time.Hour, time.Second)
	if opts.sessions != nil {
		sessions = opts.sessions(sessions)
	}

	resolver := retrieval.NewCatalogResolver(reader, nil, retrieval.DefaultThreshold)
	calc := pricing.NewCalculator(reader, reader, pricing.DefaultConfig())
	audit := monitoring.NewAuditLogger(nil, h.audit)

	h.engine = conversation.NewEngine(conversation.Deps{
		Policy:     guardrail.NewPolicy(resolver, reader, guardrail.DefaultConfig()),
		Classifier: intent.NewFallbackClassifier(nil, intent.NewRuleClassifier(reader), nil, h.metrics),
		Quotes: quote.NewController(sessions, resolver, calc, h.quotes, quote.Config{
			Recorder: audit,
			Metrics:  h.metrics,
		}),
		Resolver:  resolver,
		Catalog:   reader,
		Knowledge: retrieval.NewKnowledgeRetriever(reader),
		Pricer:    calc,
		Phraser:   opts.phraser,
		Audit:     audit,
		Metrics:   h.metrics,
	}, conversation.Config{})
	return h
}

func (h *harness) turn(t *testing.T, userID, text string) *conversation.Turn {
	t.Helper()
	turn, err := h.engine.HandleTurn(context.Background(), userID, text)
	require.NoError(t, err)
	require.NotEmpty(t, turn.Replies)
	return turn
}

func (h *harness) auditKinds(t *testing.T, userID string) []storage.AuditKind {
	t.Helper()
	events, err := h.audit.ListByUser(context.Background(), userID, 0)
	require.NoError(t, err)
	kinds := make([]storage.AuditKind, len(events))
	for i, e := range events {
		kinds[i] = e.Kind
	}
	return kinds
}

func lastText(turn *conversation.Turn) string {
	return turn.Replies[len(turn.Replies)-1].Text
}

func TestHandleTurn_Greeting(t *testing.T) {
	h := newHarness(t, options{})

	turn := h.turn(t, "u1", "Hello!")
	assert.Equal(t, intent.IntentGreeting, turn.Intent)
	assert.Equal(t, intent.SourceRules, turn.Source)
	require.Len(t, turn.Replies, 1)
	assert.Equal(t, conversation.ReplyQuickReplies, turn.Replies[0].Kind)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Turns.WithLabelValues("greeting")))
}

func TestHandleTurn_EmptyAfterSanitize(t *testing.T) {
	h := newHarness(t, options{})

	turn := h.turn(t, "u1", "  <> ")
	assert.Equal(t, conversation.RouteEmpty, turn.Route)
	assert.Empty(t, turn.Intent)
}

func TestHandleTurn_ContentDenied(t *testing.T) {
	h := newHarness(t, options{})

	turn := h.turn(t, "u1", "where can I buy a firearm")
	assert.Equal(t, conversation.RouteContentDenied, turn.Route)
	assert.Empty(t, turn.Intent)
	assert.NotContains(t, turn.Replies[0].Text, "blocked_topic")
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.GuardrailDenials.WithLabelValues(guardrail.CheckContent)))
	assert.Equal(t, []storage.AuditKind{storage.AuditKindGuardrailDenied}, h.auditKinds(t, "u1"))
}

func TestHandleTurn_ShowModels(t *testing.T) {
	h := newHarness(t, options{})

	turn := h.turn(t, "u1", "what models do you have?")
	assert.Equal(t, intent.IntentShowModels, turn.Intent)
	require.Len(t, turn.Replies, 2)
	carousel := turn.Replies[1]
	assert.Equal(t, conversation.ReplyCarousel, carousel.Kind)
	require.Len(t, carousel.Cards, 3)
	assert.Equal(t, "Montero Sport", carousel.Cards[0].Title)
	assert.Empty(t, carousel.Cards[0].ImageURL)
	xpander := carousel.Cards[2]
	assert.Equal(t, "Xpander", xpander.Title)
	assert.Equal(t, "MPV · from ₱1,068,000.00", xpander.Subtitle)
	assert.Equal(t, "https://cdn.example.com/xpander/front.jpg", xpander.ImageURL)
	assert.Equal(t, "SHOW_MODELS:Xpander", xpander.ButtonPayload)
}

func TestHandleTurn_KnownModelShowsVariants(t *testing.T) {
	h := newHarness(t, options{})

	turn := h.turn(t, "u1", "xpander")
	assert.Equal(t, intent.IntentShowModels, turn.Intent)
	require.Len(t, turn.Replies, 2)
	cards := turn.Replies[1].Cards
	require.Len(t, cards, 2)
	assert.Equal(t, "Xpander GLX M/T", cards[0].Title)
	assert.Equal(t, "₱1,068,000.00 · Manual", cards[0].Subtitle)
	assert.Equal(t, "GET_QUOTE:Xpander GLX M/T", cards[0].ButtonPayload)
}

func TestHandleTurn_Photos(t *testing.T) {
	h := newHarness(t, options{})

	turn := h.turn(t, "u1", "show me photos of the vios")
	assert.Equal(t, intent.IntentShowPhotos, turn.Intent)
	require.Len(t, turn.Replies, 2)
	assert.Equal(t, conversation.ReplyImage, turn.Replies[1].Kind)
	assert.Equal(t, "https://cdn.example.com/vios/front.jpg", turn.Replies[1].ImageURL)

	turn = h.turn(t, "u1", "pictures of the montero sport")
	require.Len(t, turn.Replies, 1)
	assert.Contains(t, turn.Replies[0].Text, "don't have photos")
}

func TestHandleTurn_Specs(t *testing.T) {
	h := newHarness(t, options{})

	turn := h.turn(t, "u1", "xpander gls a/t specs")
	assert.Equal(t, intent.IntentShowSpecs, turn.Intent)
	text := turn.Replies[0].Text
	assert.Contains(t, text, "Xpander GLS A/T specifications")
	assert.Contains(t, text, "• Engine: 1.5L MIVEC")
	assert.Contains(t, text, "• Seating: 7")
	assert.Contains(t, text, "• Keyless entry")

	turn = h.turn(t, "u1", "vios j m/t specs")
	assert.Contains(t, turn.Replies[0].Text, "don't have verified specifications")
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.GuardrailDenials.WithLabelValues(guardrail.CheckSpecs)))
}

func TestHandleTurn_PriceAnswers(t *testing.T) {
	h := newHarness(t, options{})

	t.Run("specific variant gets a breakdown", func(t *testing.T) {
		turn := h.turn(t, "u1", "how much is the xpander gls a/t?")
		assert.Equal(t, intent.IntentGetQuote, turn.Intent)
		assert.Contains(t, lastText(turn), "Total cash price: ₱1,247,950.00")
		assert.Equal(t, session.Step(""), turn.Step)
	})

	t.Run("loose match gets an SRP summary", func(t *testing.T) {
		turn := h.turn(t, "u2", "how much is the xpandr?")
		assert.Contains(t, lastText(turn), "(SRP)")
		assert.NotContains(t, lastText(turn), "Total cash price")
	})

	t.Run("no variant is denied with suggestions", func(t *testing.T) {
		turn := h.turn(t, "u3", "how much?")
		reply := turn.Replies[0]
		assert.Equal(t, conversation.ReplyQuickReplies, reply.Kind)
		require.Len(t, reply.QuickReplies, 5)
		assert.Equal(t, "GET_PRICE:"+reply.QuickReplies[0].Title, reply.QuickReplies[0].Payload)

		followUp := h.turn(t, "u3", reply.QuickReplies[0].Payload)
		assert.Contains(t, lastText(followUp), "Total cash price")
	})
}

func TestHandleTurn_StalePriceWarning(t *testing.T) {
	h := newHarness(t, options{prepare: func(t *testing.T, db *sql.DB) {
		storagetest.SetVariantUpdatedAt(t, db, "GLS A/T", time.Now().Add(-40*24*time.Hour))
	}})

	turn := h.turn(t, "u1", "how much is the xpander gls a/t?")
	require.Len(t, turn.Replies, 2)
	assert.Contains(t, turn.Replies[0].Text, "may have changed")
	assert.Contains(t, turn.Replies[1].Text, "Total cash price")
	assert.Equal(t, []storage.AuditKind{storage.AuditKindStaleWarning}, h.auditKinds(t, "u1"))
}

func TestHandleTurn_CashQuoteFlow(t *testing.T) {
	h := newHarness(t, options{})
	ctx := context.Background()

	turn := h.turn(t, "u1", "I want a quote for the xpander gls a/t")
	assert.Equal(t, session.StepAskPaymentType, turn.Step)
	assert.Contains(t, turn.Replies[0].Text, "Xpander GLS A/T")
	require.Len(t, turn.Replies[0].QuickReplies, 3)

	turn = h.turn(t, "u1", "cash")
	assert.Equal(t, conversation.RouteQuoteFlow, turn.Route)
	assert.Equal(t, session.StepIdle, turn.Step)
	require.NotNil(t, turn.Quote)
	assert.Contains(t, turn.Replies[0].Text, "Total cash price: ₱1,247,950.00")

	stored, err := h.quotes.GetByID(ctx, turn.Quote.ID)
	require.NoError(t, err)
	assert.Equal(t, "Xpander GLS A/T", stored.VariantName)
	assert.Contains(t, h.auditKinds(t, "u1"), storage.AuditKindQuoteGenerated)

	// the dialogue is over, so the next message is classified again
	turn = h.turn(t, "u1", "hi")
	assert.Equal(t, intent.IntentGreeting, turn.Intent)
}

func TestHandleTurn_FinancingQuoteViaPayloads(t *testing.T) {
	h := newHarness(t, options{})

	turn := h.turn(t, "u1", "GET_QUOTE:Xpander GLS A/T")
	assert.Equal(t, intent.SourcePayload, turn.Source)
	assert.Equal(t, session.StepAskPaymentType, turn.Step)

	turn = h.turn(t, "u1", quote.PayloadFinancing)
	assert.Equal(t, session.StepAskDownPayment, turn.Step)

	turn = h.turn(t, "u1", quote.PayloadDownPaymentPrefix+"20")
	assert.Equal(t, session.StepAskFinancingTerm, turn.Step)

	turn = h.turn(t, "u1", quote.PayloadTermPrefix+"60")
	assert.Equal(t, session.StepIdle, turn.Step)
	require.NotNil(t, turn.Quote)
	assert.Contains(t, turn.Replies[0].Text, "Monthly payment: ₱21,215.15")
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.QuotesGenerated))
}

func TestHandleTurn_QuoteWithoutVariantAsksForOne(t *testing.T) {
	h := newHarness(t, options{})

	turn := h.turn(t, "u1", "can I get a quotation?")
	assert.Equal(t, session.StepAskVariant, turn.Step)

	turn = h.turn(t, "u1", "vios xle")
	assert.Equal(t, session.StepAskPaymentType, turn.Step)
	assert.Contains(t, turn.Replies[0].Text, "Vios XLE CVT")
}

func TestHandleTurn_CancelFlow(t *testing.T) {
	h := newHarness(t, options{})

	h.turn(t, "u1", "GET_QUOTE")
	turn := h.turn(t, "u1", "cancel")
	assert.Equal(t, conversation.RouteQuoteFlow, turn.Route)
	assert.Equal(t, session.StepIdle, turn.Step)
	assert.Contains(t, h.auditKinds(t, "u1"), storage.AuditKindFlowCancelled)
}

func TestHandleTurn_ActiveFlowTakesPrecedence(t *testing.T) {
	h := newHarness(t, options{})

	h.turn(t, "u1", "GET_QUOTE:Vios G CVT")
	turn := h.turn(t, "u1", "what models do you have?")
	assert.Equal(t, conversation.RouteQuoteFlow, turn.Route)
	assert.Equal(t, session.StepAskPaymentType, turn.Step)
}

func TestHandleTurn_FAQ(t *testing.T) {
	const warranty = "Every new vehicle comes with a 3-year or 100,000 km warranty, whichever comes first."

	tests := []struct {
		name    string
		phraser *stubPhraser
		want    string
	}{
		{"no phraser", nil, warranty},
		{"phrased answer", &stubPhraser{out: "You get 3 years or 100,000 km of warranty coverage."}, "You get 3 years or 100,000 km of warranty coverage."},
		{"phraser failure", &stubPhraser{err: llm.ErrUnavailable}, warranty},
		{"phrased amount without a variant", &stubPhraser{out: "Warranty costs ₱50,000 extra."}, warranty},
		{"phrased blocked topic", &stubPhraser{out: "Warranty does not cover weapon damage."}, warranty},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			opts := options{}
			if tc.phraser != nil {
				opts.phraser = tc.phraser
			}
			h := newHarness(t, opts)

			turn := h.turn(t, "u1", "is there a warranty on your cars")
			assert.Equal(t, intent.IntentUnknown, turn.Intent)
			assert.Equal(t, tc.want, turn.Replies[0].Text)
			if tc.phraser != nil {
				assert.Equal(t, 1, tc.phraser.calls)
			}
		})
	}
}

func TestHandleTurn_NoAnswerFallsBack(t *testing.T) {
	h := newHarness(t, options{})

	turn := h.turn(t, "u1", "qwertyuiop")
	assert.Equal(t, intent.IntentUnknown, turn.Intent)
	assert.Contains(t, turn.Replies[0].Text, "not sure")
	assert.Len(t, turn.Replies[0].QuickReplies, 2)
}

func TestHandleTurn_SessionStoreFailure(t *testing.T) {
	h := newHarness(t, options{sessions: func(s session.Store) session.Store { return brokenSessions{s} }})

	turn := h.turn(t, "u1", "hi")
	assert.Equal(t, domain.KindPersistence, turn.ErrorKind)
	assert.Contains(t, turn.Replies[0].Text, "try again")
}

func TestHandleTurn_CancelledContext(t *testing.T) {
	h := newHarness(t, options{sessions: func(s session.Store) session.Store { return brokenSessions{s} }})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.engine.HandleTurn(ctx, "u1", "hi")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFormatSpecs_LabelsAndOrder(t *testing.T) {
	v := &storage.CatalogVariant{
		ModelName: "Xpander",
		Name:      "GLS A/T",
		Specs: storage.Attributes{
			"fuel_consumption": "14 km/L",
			"engine":           "1.5L",
			"features":         []interface{}{"Rear AC"},
		},
	}

	got := conversation.FormatSpecs(v)
	assert.Equal(t, fmt.Sprintf("%s\n%s\n%s\n\n%s\n%s",
		"Xpander GLS A/T specifications:",
		"• Engine: 1.5L",
		"• Fuel Consumption: 14 km/L",
		"Key features:",
		"• Rear AC",
	), got)
}
