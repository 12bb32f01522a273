// Package quote drives the multi-turn quotation dialogue.
package quote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spherical-ai/spherical/libs/sales-engine/internal/domain"
	"github.com/spherical-ai/spherical/libs/sales-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/sales-engine/internal/pricing"
	"github.com/spherical-ai/spherical/libs/sales-engine/internal/session"
	"github.com/spherical-ai/spherical/libs/sales-engine/internal/storage"
)

// VariantResolver resolves free text to a catalog variant.
type VariantResolver interface {
	ResolveVariant(ctx context.Context, query string) (*storage.CatalogVariant, error)
}

// Pricer computes a breakdown.
type Pricer interface {
	Calculate(ctx context.Context, req pricing.Request) (*pricing.Breakdown, error)
}

// QuoteStore persists generated quotes.
type QuoteStore interface {
	Create(ctx context.Context, q *storage.Quote) error
}

// Recorder is notified after a quote is persisted.
type Recorder interface {
	QuoteGenerated(ctx context.Context, q *storage.Quote)
}

// Option is a quick-reply choice offered with a prompt.
type Option struct {
	Title   string
	Payload string
}

// Response is the controller's reply for one turn.
type Response struct {
	// Step is the dialogue step after the turn.
	Step session.Step
	// Transitions lists every step entered during the turn, in order.
	Transitions []session.Step
	Text        string
	Options     []Option
	Quote       *storage.Quote
	Breakdown   *pricing.Breakdown
	Completed   bool
	Cancelled   bool
}

// Controller is the per-user quote state machine. It holds no state between
// turns; every turn reads and writes the session store.
type Controller struct {
	sessions session.Store
	resolver VariantResolver
	pricer   Pricer
	quotes   QuoteStore
	recorder Recorder
	currency string
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// Config holds optional collaborators.
type Config struct {
	Recorder Recorder
	Currency string
	Logger   *observability.Logger
	Metrics  *observability.Metrics
}

// NewController creates a controller.
func NewController(sessions session.Store, resolver VariantResolver, pricer Pricer, quotes QuoteStore, cfg Config) *Controller {
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger()
	}
	if cfg.Currency == "" {
		cfg.Currency = pricing.DefaultConfig().Currency
	}
	return &Controller{
		sessions: sessions,
		resolver: resolver,
		pricer:   pricer,
		quotes:   quotes,
		recorder: cfg.Recorder,
		currency: cfg.Currency,
		logger:   cfg.Logger.WithOperation("quote"),
		metrics:  cfg.Metrics,
	}
}

// Active reports whether userID is mid-dialogue.
func (c *Controller) Active(ctx context.Context, userID string) (bool, error) {
	state, err := c.sessions.Get(ctx, userID)
	if err != nil {
		return false, err
	}
	return state.Active(), nil
}

// Start begins a dialogue. When hint resolves to a variant the variant
// question is skipped.
func (c *Controller) Start(ctx context.Context, userID, hint string) (*Response, error) {
	state := session.New(userID)

	var variant *storage.CatalogVariant
	if hint != "" {
		v, err := c.resolver.ResolveVariant(ctx, hint)
		if err != nil {
			return nil, err
		}
		variant = v
	}

	if variant == nil {
		state.Step = session.StepAskVariant
		if err := c.save(ctx, state); err != nil {
			return nil, err
		}
		return c.prompt(state), nil
	}

	selectVariant(state, variant)
	if err := c.save(ctx, state); err != nil {
		return nil, err
	}
	return c.prompt(state), nil
}

// Handle advances an active dialogue with the user's text. It returns
// (nil, nil) when the user has no active dialogue.
func (c *Controller) Handle(ctx context.Context, userID, text string) (*Response, error) {
	state, err := c.sessions.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !state.Active() {
		return nil, nil
	}

	if IsCancel(text) {
		return c.Cancel(ctx, userID)
	}

	switch state.Step {
	case session.StepAskVariant:
		v, err := c.resolver.ResolveVariant(ctx, text)
		if err != nil {
			return nil, err
		}
		if v == nil {
			return c.retry(state, "I couldn't find that variant. Please type the model and variant, for example \"Xpander GLS\"."), nil
		}
		selectVariant(state, v)
		return c.advance(ctx, state)

	case session.StepAskPaymentType:
		switch ParsePaymentType(text) {
		case session.PaymentCash:
			state.Context.PaymentType = session.PaymentCash
			return c.generate(ctx, state)
		case session.PaymentFinancing:
			state.Context.PaymentType = session.PaymentFinancing
			state.Step = session.StepAskDownPayment
			return c.advance(ctx, state)
		default:
			return c.retry(state, "Please choose how you'd like to pay: cash or financing."), nil
		}

	case session.StepAskDownPayment:
		pct, ok := ParsePercent(text)
		if !ok {
			return c.retry(state, "Please enter a down payment between 0 and 100 percent, for example 20%."), nil
		}
		state.Context.DownPaymentPercent = &pct
		state.Step = session.StepAskFinancingTerm
		return c.advance(ctx, state)

	case session.StepAskFinancingTerm:
		months, ok := ParseTerm(text)
		if !ok {
			return c.retry(state, "Please choose a term of 12, 24, 36, 48 or 60 months."), nil
		}
		state.Context.Months = months
		return c.generate(ctx, state)

	case session.StepGenerateQuote:
		return c.generate(ctx, state)

	default:
		return nil, domain.Validation(fmt.Sprintf("unknown dialogue step %q", state.Step), nil)
	}
}

// Cancel clears the user's dialogue.
func (c *Controller) Cancel(ctx context.Context, userID string) (*Response, error) {
	if err := c.sessions.Delete(ctx, userID); err != nil {
		return nil, err
	}
	return &Response{
		Step:        session.StepIdle,
		Transitions: []session.Step{session.StepIdle},
		Text:        "Okay, I've cancelled your quote request. Let me know if you need anything else.",
		Cancelled:   true,
	}, nil
}

func selectVariant(state *session.State, v *storage.CatalogVariant) {
	state.Context.VariantID = v.ID
	state.Context.VariantName = v.DisplayName()
	state.Step = session.StepAskPaymentType
}

// advance persists the new step and prompts for the next input. A failed
// write leaves the stored step where it was.
func (c *Controller) advance(ctx context.Context, state *session.State) (*Response, error) {
	if err := c.save(ctx, state); err != nil {
		return nil, err
	}
	return c.prompt(state), nil
}

func (c *Controller) save(ctx context.Context, state *session.State) error {
	state.UpdatedAt = time.Now().UTC()
	if err := c.sessions.Save(ctx, state); err != nil {
		c.logger.Error().Err(err).Str("user_id", state.UserID).Str("step", string(state.Step)).Msg("failed to save session")
		return err
	}
	return nil
}

func (c *Controller) retry(state *session.State, text string) *Response {
	r := c.prompt(state)
	r.Transitions = nil
	r.Text = text + "\n\n" + r.Text
	return r
}

func (c *Controller) prompt(state *session.State) *Response {
	r := &Response{Step: state.Step, Transitions: []session.Step{state.Step}}

	switch state.Step {
	case session.StepAskVariant:
		r.Text = "Which model and variant would you like a quote for?"
	case session.StepAskPaymentType:
		r.Text = fmt.Sprintf("Great choice, the %s. How would you like to pay?", state.Context.VariantName)
		r.Options = []Option{
			{Title: "Cash", Payload: PayloadCash},
			{Title: "Financing", Payload: PayloadFinancing},
		}
	case session.StepAskDownPayment:
		r.Text = "How much down payment would you like to make? (0 to 100%)"
		for _, pct := range []int{20, 30, 50} {
			r.Options = append(r.Options, Option{Title: fmt.Sprintf("%d%%", pct), Payload: fmt.Sprintf("%s%d", PayloadDownPaymentPrefix, pct)})
		}
	case session.StepAskFinancingTerm:
		r.Text = "Over how many months would you like to pay?"
		for _, m := range pricing.ValidTerms {
			r.Options = append(r.Options, Option{Title: fmt.Sprintf("%d months", m), Payload: fmt.Sprintf("%s%d", PayloadTermPrefix, m)})
		}
	}
	r.Options = append(r.Options, Option{Title: "Cancel", Payload: PayloadCancel})
	return r
}

// generate prices the selection, persists one quote and clears the session.
// The quote insert is not retried.
func (c *Controller) generate(ctx context.Context, state *session.State) (*Response, error) {
	req := pricing.Request{VariantID: state.Context.VariantID, Region: state.Context.Region}
	if state.Context.PaymentType == session.PaymentFinancing {
		if state.Context.DownPaymentPercent == nil || state.Context.Months == 0 {
			return nil, domain.Validation("financing details are incomplete", nil)
		}
		req.Financing = &pricing.Financing{
			DownPaymentPercent: *state.Context.DownPaymentPercent,
			Months:             state.Context.Months,
		}
	}

	breakdown, err := c.pricer.Calculate(ctx, req)
	if errors.Is(err, domain.ErrNotFound) {
		// the variant or region disappeared; start over at variant selection
		state.Context = session.Context{Region: state.Context.Region}
		state.Step = session.StepAskVariant
		if saveErr := c.save(ctx, state); saveErr != nil {
			return nil, saveErr
		}
		return c.retry(state, "Sorry, I couldn't price that selection anymore."), nil
	}
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(breakdown)
	if err != nil {
		return nil, fmt.Errorf("marshal breakdown: %w", err)
	}
	q := &storage.Quote{
		UserID:      state.UserID,
		VariantID:   state.Context.VariantID,
		VariantName: state.Context.VariantName,
		Breakdown:   payload,
	}
	if err := c.quotes.Create(ctx, q); err != nil {
		c.logger.Error().Err(err).Str("user_id", state.UserID).Msg("failed to persist quote")
		return nil, domain.Persistence("failed to save quote", err)
	}

	c.metrics.QuoteGenerated()
	if c.recorder != nil {
		c.recorder.QuoteGenerated(ctx, q)
	}

	if err := c.sessions.Delete(ctx, state.UserID); err != nil {
		c.logger.Warn().Err(err).Str("user_id", state.UserID).Msg("failed to clear session after quote")
		// an undeleted session must still read as idle, or the next reply prices again
		if err := c.save(ctx, session.New(state.UserID)); err != nil {
			return nil, domain.Persistence(fmt.Sprintf("quote %s was saved but the dialogue could not be closed", q.ID), err)
		}
	}

	c.logger.Info().
		Str("user_id", state.UserID).
		Str("quote_id", q.ID.String()).
		Str("variant", q.VariantName).
		Str("payment_type", string(state.Context.PaymentType)).
		Msg("quote generated")

	return &Response{
		Step:        session.StepIdle,
		Transitions: []session.Step{session.StepGenerateQuote, session.StepIdle},
		Text:        FormatBreakdown(breakdown, c.currency),
		Quote:       q,
		Breakdown:   breakdown,
		Completed:   true,
	}, nil
}
