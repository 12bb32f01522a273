package conversation

import (
	"context"
	"errors"
	"strings"
	"time"

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
)

// Postback payloads. A payload may carry an argument after a colon,
// e.g. "GET_QUOTE:Xpander GLS A/T".
const (
	PayloadGetStarted = "GET_STARTED"
	PayloadShowModels = "SHOW_MODELS"
	PayloadShowSpecs  = "SHOW_SPECS"
	PayloadShowPhotos = "SHOW_PHOTOS"
	PayloadGetQuote   = "GET_QUOTE"
	PayloadGetPrice   = "GET_PRICE"
)

// Routes that are not classifier intents.
const (
	RouteContentDenied = "content_denied"
	RouteQuoteFlow     = "quote_flow"
	RouteEmpty         = "empty"
)

// Turn is the outcome of one inbound message.
type Turn struct {
	UserID     string           `json:"user_id"`
	Route      string           `json:"route"`
	Intent     intent.Intent    `json:"intent,omitempty"`
	Confidence float64          `json:"confidence,omitempty"`
	Source     intent.Source    `json:"source,omitempty"`
	Replies    []Reply          `json:"replies"`
	Step       session.Step     `json:"step,omitempty"`
	Quote      *storage.Quote   `json:"quote,omitempty"`
	ErrorKind  domain.ErrorKind `json:"error_kind,omitempty"`
}

// Deps are the engine's collaborators. Phraser, Audit, Logger and Metrics are optional.
type Deps struct {
	Policy     *guardrail.Policy
	Classifier intent.Classifier
	Quotes     *quote.Controller
	Resolver   *retrieval.CatalogResolver
	Catalog    storage.CatalogReader
	Knowledge  *retrieval.KnowledgeRetriever
	Pricer     quote.Pricer
	Phraser    llm.Completer
	Audit      *monitoring.AuditLogger
	Logger     *observability.Logger
	Metrics    *observability.Metrics
}

// Config holds engine settings.
type Config struct {
	FAQLimit int
	Currency string
}

// Engine handles conversation turns. It keeps no per-user state; the quote
// dialogue lives in the session store behind the quote controller.
type Engine struct {
	Deps
	cfg        Config
	normalizer *retrieval.QueryNormalizer
}

// NewEngine creates an engine.
func NewEngine(deps Deps, cfg Config) *Engine {
	if deps.Logger == nil {
		deps.Logger = observability.NopLogger()
	}
	if deps.Audit == nil {
		deps.Audit = monitoring.NewAuditLogger(deps.Logger, nil)
	}
	if cfg.FAQLimit <= 0 {
		cfg.FAQLimit = retrieval.DefaultFAQLimit
	}
	if cfg.Currency == "" {
		cfg.Currency = pricing.DefaultConfig().Currency
	}
	return &Engine{Deps: deps, cfg: cfg, normalizer: retrieval.NewQueryNormalizer()}
}

// HandleTurn runs one message through sanitation, content safety, the active
// quote dialogue and intent routing. Component failures become user-facing
// replies; an error is returned only when ctx is done.
func (e *Engine) HandleTurn(ctx context.Context, userID, text string) (*Turn, error) {
	started := time.Now()
	turn := &Turn{UserID: userID}
	log := e.Logger.WithContext(ctx).WithUser(userID)

	err := e.route(ctx, turn, text)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		turn.ErrorKind = domain.KindOf(err)
		turn.Replies = []Reply{errorReply(err)}
		log.Error().
			Err(err).
			Str("route", turn.Route).
			Str("error_kind", string(turn.ErrorKind)).
			Msg("turn failed")
	}

	e.Metrics.ObserveTurn(turn.Route, started)
	log.Info().
		Str("route", turn.Route).
		Str("intent", string(turn.Intent)).
		Str("step", string(turn.Step)).
		Dur("latency", time.Since(started)).
		Msg("turn handled")

	return turn, nil
}

func (e *Engine) route(ctx context.Context, turn *Turn, text string) error {
	text = e.Policy.Sanitize(text)
	if text == "" {
		turn.Route = RouteEmpty
		turn.Replies = []Reply{helpReply()}
		return nil
	}

	if d := e.Policy.CheckContent(text); !d.Allowed {
		turn.Route = RouteContentDenied
		e.deny(ctx, turn.UserID, d)
		turn.Replies = []Reply{Text(d.Message)}
		return nil
	}

	resp, err := e.Quotes.Handle(ctx, turn.UserID, text)
	if err != nil {
		turn.Route = RouteQuoteFlow
		return err
	}
	if resp != nil {
		turn.Route = RouteQuoteFlow
		turn.Intent = intent.IntentGetQuote
		e.applyQuote(ctx, turn, resp)
		return nil
	}

	res, arg, ok := parsePayload(text)
	if !ok {
		res, err = e.Classifier.Classify(ctx, text)
		if err != nil {
			return err
		}
		arg = text
	}
	turn.Route = string(res.Intent)
	turn.Intent = res.Intent
	turn.Confidence = res.Confidence
	turn.Source = res.Source

	switch res.Intent {
	case intent.IntentGreeting:
		turn.Replies = []Reply{greetingReply()}
		return nil
	case intent.IntentShowModels:
		return e.showModels(ctx, turn, res.Entities)
	case intent.IntentShowPhotos:
		return e.showPhotos(ctx, turn, arg, res.Entities)
	case intent.IntentShowSpecs:
		return e.showSpecs(ctx, turn, arg, res.Entities)
	case intent.IntentGetQuote:
		if ok && strings.HasPrefix(text, PayloadGetPrice) {
			return e.priceAnswer(ctx, turn, arg, res.Entities)
		}
		return e.getQuote(ctx, turn, arg, res.Entities, ok)
	default:
		return e.answerFAQ(ctx, turn, text)
	}
}

// parsePayload maps a postback payload to a synthetic classification.
func parsePayload(text string) (*intent.Result, string, bool) {
	name, arg, _ := strings.Cut(text, ":")
	arg = strings.TrimSpace(arg)

	var i intent.Intent
	entities := intent.Entities{}
	switch name {
	case PayloadGetStarted:
		i = intent.IntentGreeting
	case PayloadShowModels:
		i = intent.IntentShowModels
		entities.ModelName = arg
	case PayloadShowSpecs:
		i = intent.IntentShowSpecs
	case PayloadShowPhotos:
		i = intent.IntentShowPhotos
		entities.ModelName = arg
	case PayloadGetQuote, PayloadGetPrice:
		i = intent.IntentGetQuote
	default:
		return nil, "", false
	}
	return &intent.Result{Intent: i, Confidence: 1, Entities: entities, Source: intent.SourcePayload}, arg, true
}

func (e *Engine) applyQuote(ctx context.Context, turn *Turn, resp *quote.Response) {
	turn.Step = resp.Step
	turn.Quote = resp.Quote
	turn.Replies = []Reply{Choices(resp.Text, quickReplies(resp.Options))}
	if resp.Cancelled {
		e.Audit.FlowCancelled(ctx, turn.UserID)
	}
	if resp.Completed {
		turn.Replies = append(turn.Replies, Choices("Anything else I can help you with?", []QuickReply{
			{Title: "View models", Payload: PayloadShowModels},
			{Title: "Another quote", Payload: PayloadGetQuote},
		}))
	}
}

func (e *Engine) showModels(ctx context.Context, turn *Turn, entities intent.Entities) error {
	if entities.ModelName != "" {
		model, err := e.Catalog.FindModelByName(ctx, entities.ModelName)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		if model != nil && len(model.Variants) > 0 {
			turn.Replies = []Reply{
				Text("Here are the " + model.Name + " variants:"),
				Carousel(variantCards(model, e.cfg.Currency)),
			}
			return nil
		}
	}

	models, err := e.Catalog.ListModels(ctx)
	if err != nil {
		return err
	}
	if len(models) == 0 {
		turn.Replies = []Reply{Text("Our lineup is being updated. Please check back soon.")}
		return nil
	}
	turn.Replies = []Reply{
		Text("Here's our current lineup:"),
		Carousel(modelCards(models, e.cfg.Currency)),
	}
	return nil
}

func (e *Engine) showPhotos(ctx context.Context, turn *Turn, text string, entities intent.Entities) error {
	query := text
	if entities.ModelName != "" {
		query = entities.ModelName
	}
	model, err := e.Resolver.ResolveModel(ctx, query)
	if err != nil {
		return err
	}
	if model == nil {
		models, err := e.Catalog.ListModels(ctx)
		if err != nil {
			return err
		}
		replies := make([]QuickReply, 0, len(models))
		for _, m := range models {
			replies = append(replies, QuickReply{Title: m.Name, Payload: PayloadShowPhotos + ":" + m.Name})
		}
		turn.Replies = []Reply{Choices("Which model would you like to see?", replies)}
		return nil
	}
	if len(model.Media) == 0 {
		turn.Replies = []Reply{Text("I don't have photos of the " + model.Name + " yet. A sales consultant can send you some.")}
		return nil
	}

	turn.Replies = []Reply{Text("Here's the " + model.Name + ":")}
	for i, m := range model.Media {
		if i == MaxCarouselCards {
			break
		}
		turn.Replies = append(turn.Replies, Image(m.URL))
	}
	return nil
}

func (e *Engine) showSpecs(ctx context.Context, turn *Turn, text string, entities intent.Entities) error {
	d := e.Policy.CheckSpecs(ctx, text, hintsFrom(entities))
	if !d.Allowed {
		e.deny(ctx, turn.UserID, d)
		turn.Replies = []Reply{Choices(d.Message, suggestionReplies(PayloadShowSpecs, d.Suggestions))}
		return nil
	}

	v := d.Variant
	turn.Replies = []Reply{Choices(FormatSpecs(v), []QuickReply{
		{Title: "Get a quote", Payload: PayloadGetQuote + ":" + v.DisplayName()},
		{Title: "Photos", Payload: PayloadShowPhotos + ":" + v.ModelName},
	})}
	return nil
}

// getQuote starts the dialogue for quotation and financing requests and
// answers plain price questions directly under the pricing guardrail.
func (e *Engine) getQuote(ctx context.Context, turn *Turn, text string, entities intent.Entities, fromPayload bool) error {
	if fromPayload || e.normalizer.IsQuoteRequest(text) || entities.PaymentType != "" {
		// a model name alone would resolve to its cheapest variant, so the
		// raw text wins unless a variant entity was extracted
		hint := text
		if !fromPayload && entities.VariantName != "" {
			hint = hintsFrom(entities).Query()
		}
		resp, err := e.Quotes.Start(ctx, turn.UserID, hint)
		if err != nil {
			return err
		}
		e.applyQuote(ctx, turn, resp)
		return nil
	}
	return e.priceAnswer(ctx, turn, text, entities)
}

func (e *Engine) priceAnswer(ctx context.Context, turn *Turn, text string, entities intent.Entities) error {
	d := e.Policy.CheckPricing(ctx, text, hintsFrom(entities))
	if !d.Allowed {
		e.deny(ctx, turn.UserID, d)
		turn.Replies = []Reply{Choices(d.Message, suggestionReplies(PayloadGetPrice, d.Suggestions))}
		return nil
	}

	v := d.Variant
	if len(d.Warnings) > 0 {
		e.Audit.StalePrice(ctx, turn.UserID, v)
	}
	next := []QuickReply{
		{Title: "Get a quote", Payload: PayloadGetQuote + ":" + v.DisplayName()},
		{Title: "Specs", Payload: PayloadShowSpecs + ":" + v.DisplayName()},
	}

	if d.General {
		turn.Replies = append(warningReplies(d.Warnings), Choices(d.Summary, next))
		return nil
	}

	b, err := e.Pricer.Calculate(ctx, pricing.Request{VariantID: v.ID})
	if err != nil {
		return err
	}
	turn.Replies = append(warningReplies(d.Warnings), Choices(quote.FormatBreakdown(b, e.cfg.Currency), next))
	return nil
}

// answerFAQ answers from the knowledge base. With a phraser configured the
// top answer is rewritten, and the rewrite is used only when it passes the
// content and price checks.
func (e *Engine) answerFAQ(ctx context.Context, turn *Turn, text string) error {
	entries, err := e.Knowledge.Search(ctx, text, e.cfg.FAQLimit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		turn.Replies = []Reply{helpReply()}
		return nil
	}

	answer := entries[0].Answer
	if phrased := e.phrase(ctx, text, entries[0]); phrased != "" {
		answer = phrased
	}

	related := make([]QuickReply, 0, len(entries)-1)
	for _, entry := range entries[1:] {
		related = append(related, QuickReply{Title: entry.Question, Payload: entry.Question})
	}
	turn.Replies = []Reply{Choices(answer, related)}
	return nil
}

const phrasePrompt = `You are a friendly car dealership assistant. Rewrite the provided answer
to reply to the customer's question in at most three sentences. Use only facts from the answer.
Do not add prices, discounts or figures that are not in the answer.`

func (e *Engine) phrase(ctx context.Context, question string, entry *storage.FAQEntry) string {
	if e.Phraser == nil {
		return ""
	}
	log := e.Logger.WithContext(ctx).WithOperation("phrase_faq")

	out, err := e.Phraser.Complete(ctx, phrasePrompt, "Question: "+question+"\nAnswer: "+entry.Answer)
	if err != nil {
		if !errors.Is(err, llm.ErrDisabled) {
			log.Warn().Err(err).Msg("answer phrasing failed, using stored answer")
		}
		return ""
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return ""
	}

	if d := e.Policy.CheckContent(out); !d.Allowed {
		log.Warn().Str("reason", string(d.Reason)).Msg("phrased answer rejected")
		return ""
	}
	v, err := e.Resolver.ResolveVariant(ctx, question)
	if err != nil {
		log.Warn().Err(err).Msg("variant lookup for phrased answer failed")
		return ""
	}
	if d := e.Policy.ValidateText(out, v); !d.Allowed {
		log.Warn().Str("reason", string(d.Reason)).Msg("phrased answer rejected")
		return ""
	}
	return out
}

func (e *Engine) deny(ctx context.Context, userID string, d *guardrail.Decision) {
	e.Metrics.Denied(d.Check)
	e.Audit.GuardrailDenied(ctx, userID, d)
}

func hintsFrom(entities intent.Entities) guardrail.Hints {
	return guardrail.Hints{ModelName: entities.ModelName, VariantName: entities.VariantName}
}

func quickReplies(options []quote.Option) []QuickReply {
	out := make([]QuickReply, len(options))
	for i, o := range options {
		out[i] = QuickReply{Title: o.Title, Payload: o.Payload}
	}
	return out
}

func suggestionReplies(payload string, names []string) []QuickReply {
	out := make([]QuickReply, len(names))
	for i, n := range names {
		out[i] = QuickReply{Title: n, Payload: payload + ":" + n}
	}
	return out
}

func warningReplies(warnings []string) []Reply {
	out := make([]Reply, 0, len(warnings))
	for _, w := range warnings {
		out = append(out, Text(w))
	}
	return out
}

func greetingReply() Reply {
	return Choices("Hi! I'm your virtual sales assistant. I can show you our models, share specs and photos, or prepare a price quote for you.",
		[]QuickReply{
			{Title: "View models", Payload: PayloadShowModels},
			{Title: "Get a quote", Payload: PayloadGetQuote},
		})
}

func helpReply() Reply {
	return Choices("I'm not sure I can help with that yet. I can show you our models, share specs and photos, or prepare a quote.",
		[]QuickReply{
			{Title: "View models", Payload: PayloadShowModels},
			{Title: "Get a quote", Payload: PayloadGetQuote},
		})
}

func errorReply(err error) Reply {
	switch domain.KindOf(err) {
	case domain.KindNotFound:
		return Text("Sorry, I couldn't find that. Could you try again with the model and variant name?")
	case domain.KindValidation:
		return Text("Sorry, I couldn't use that value. Could you try again?")
	default:
		return Text("Sorry, something went wrong on our side. Please try again in a moment.")
	}
}
