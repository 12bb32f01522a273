// Package guardrail gates what the engine may tell a user. Every check fails closed.
package guardrail

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/spherical-ai/spherical/libs/sales-engine/internal/domain"
	"github.com/spherical-ai/spherical/libs/sales-engine/internal/pricing"
	"github.com/spherical-ai/spherical/libs/sales-engine/internal/retrieval"
	"github.com/spherical-ai/spherical/libs/sales-engine/internal/storage"
)

// Check names, used as metric labels and audit payload keys.
const (
	CheckContent         = "content"
	CheckPricing         = "pricing"
	CheckSpecs           = "specs"
	CheckPriceValidation = "price_validation"
)

// Reason is a machine-readable decision code. It is never shown to users.
type Reason string

const (
	ReasonOK               Reason = "ok"
	ReasonBlockedTopic     Reason = "blocked_topic"
	ReasonVariantRequired  Reason = "variant_required"
	ReasonSpecsUnavailable Reason = "specs_unavailable"
	ReasonPriceMismatch    Reason = "price_mismatch"
	ReasonLookupFailed     Reason = "lookup_failed"
)

// Canned messages returned in place of a denied answer.
const (
	msgBlocked        = "Sorry, I can only help with questions about our vehicles, pricing, and financing."
	msgVariantPricing = "Which variant would you like pricing for?"
	msgVariantSpecs   = "Which variant would you like specifications for?"
	msgLookupFailed   = "I couldn't check that right now. Please try again in a moment."
)

var defaultBlockedTopics = []string{
	"bomb", "explosive", "firearm", "weapon", "narcotic", "cocaine", "shabu", "marijuana",
	"hacking", "malware", "suicide", "self-harm", "porn", "terroris",
}

// DefaultBlockedTopics returns a copy of the built-in blocked-topic tokens.
func DefaultBlockedTopics() []string {
	return append([]string(nil), defaultBlockedTopics...)
}

// Hints are entities extracted from the message by the classifier.
type Hints struct {
	ModelName   string
	VariantName string
}

// Query joins the hints into a resolver query.
func (h Hints) Query() string {
	return strings.TrimSpace(h.ModelName + " " + h.VariantName)
}

// Decision is the outcome of a check.
type Decision struct {
	Allowed  bool
	Check    string
	Reason   Reason
	Message  string
	Warnings []string

	Variant *storage.CatalogVariant

	// General is set when a price question did not commit to a specific variant.
	General bool
	Summary string

	Suggestions []string

	OfficialPrice decimal.Decimal
	DiffPercent   decimal.Decimal
}

func allow(check string, v *storage.CatalogVariant) *Decision {
	return &Decision{Allowed: true, Check: check, Reason: ReasonOK, Variant: v}
}

func deny(check string, reason Reason, message string) *Decision {
	return &Decision{Check: check, Reason: reason, Message: message}
}

// Err converts a denial into a PolicyDenied error.
func (d *Decision) Err() error {
	if d == nil || d.Allowed {
		return nil
	}
	return domain.PolicyDenied(fmt.Sprintf("%s: %s", d.Check, d.Reason), nil)
}

// Config holds policy thresholds.
type Config struct {
	BlockedTopics         []string
	StaleAfter            time.Duration
	PriceTolerancePercent decimal.Decimal
	MaxInputLength        int
	MaxSuggestions        int
	Currency              string
}

// DefaultConfig returns 30-day staleness, 5% tolerance and a 500 rune input cap.
func DefaultConfig() Config {
	return Config{
		BlockedTopics:         DefaultBlockedTopics(),
		StaleAfter:            30 * 24 * time.Hour,
		PriceTolerancePercent: decimal.NewFromInt(5),
		MaxInputLength:        500,
		MaxSuggestions:        5,
		Currency:              "₱",
	}
}

// Policy runs guardrail checks against the catalog.
type Policy struct {
	resolver   *retrieval.CatalogResolver
	catalog    storage.CatalogReader
	normalizer *retrieval.QueryNormalizer
	cfg        Config
	now        func() time.Time
}

// NewPolicy creates a policy. Zero config fields take their defaults.
func NewPolicy(resolver *retrieval.CatalogResolver, catalog storage.CatalogReader, cfg Config) *Policy {
	def := DefaultConfig()
	if cfg.BlockedTopics == nil {
		cfg.BlockedTopics = def.BlockedTopics
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = def.StaleAfter
	}
	if cfg.PriceTolerancePercent.IsZero() {
		cfg.PriceTolerancePercent = def.PriceTolerancePercent
	}
	if cfg.MaxInputLength <= 0 {
		cfg.MaxInputLength = def.MaxInputLength
	}
	if cfg.MaxSuggestions <= 0 {
		cfg.MaxSuggestions = def.MaxSuggestions
	}
	if cfg.Currency == "" {
		cfg.Currency = def.Currency
	}
	for i, t := range cfg.BlockedTopics {
		cfg.BlockedTopics[i] = strings.ToLower(t)
	}
	return &Policy{
		resolver:   resolver,
		catalog:    catalog,
		normalizer: retrieval.NewQueryNormalizer(),
		cfg:        cfg,
		now:        time.Now,
	}
}

// WithClock replaces the policy's clock.
func (p *Policy) WithClock(now func() time.Time) *Policy {
	p.now = now
	return p
}

// MaxInputLength returns the sanitation cap.
func (p *Policy) MaxInputLength() int {
	return p.cfg.MaxInputLength
}

// CheckContent denies messages containing a blocked topic.
func (p *Policy) CheckContent(message string) *Decision {
	lower := strings.ToLower(message)
	for _, topic := range p.cfg.BlockedTopics {
		if topic != "" && strings.Contains(lower, topic) {
			return deny(CheckContent, ReasonBlockedTopic, msgBlocked)
		}
	}
	return allow(CheckContent, nil)
}

// CheckPricing allows a price answer only for a resolvable variant.
// A message that asks about price without naming the resolved model or variant
// is marked General and gets an SRP-only summary instead of a breakdown.
func (p *Policy) CheckPricing(ctx context.Context, message string, hints Hints) *Decision {
	v, err := p.resolve(ctx, message, hints)
	if err != nil {
		return deny(CheckPricing, ReasonLookupFailed, msgLookupFailed)
	}
	if v == nil {
		d := deny(CheckPricing, ReasonVariantRequired, msgVariantPricing)
		d.Suggestions = p.suggestions(ctx)
		return d
	}

	d := allow(CheckPricing, v)
	if w := p.staleWarning(v); w != "" {
		d.Warnings = append(d.Warnings, w)
	}

	if p.normalizer.IsPriceQuestion(message) && !p.mentions(message, hints, v) {
		d.General = true
		d.Summary = fmt.Sprintf("The %s starts at %s (SRP). Fees and promos vary by region, so ask me for a quote to get the full breakdown.",
			v.DisplayName(), pricing.FormatMoney(p.cfg.Currency, v.Price))
	}
	return d
}

// CheckSpecs allows a specs answer only for a resolvable variant with recorded specs.
func (p *Policy) CheckSpecs(ctx context.Context, message string, hints Hints) *Decision {
	v, err := p.resolve(ctx, message, hints)
	if err != nil {
		return deny(CheckSpecs, ReasonLookupFailed, msgLookupFailed)
	}
	if v == nil {
		d := deny(CheckSpecs, ReasonVariantRequired, msgVariantSpecs)
		d.Suggestions = p.suggestions(ctx)
		return d
	}
	if len(v.Specs) == 0 {
		d := deny(CheckSpecs, ReasonSpecsUnavailable,
			fmt.Sprintf("I don't have verified specifications for the %s yet. A sales consultant can send them to you.", v.DisplayName()))
		d.Variant = v
		return d
	}
	return allow(CheckSpecs, v)
}

// ValidatePrice compares a claimed price with the stored one. The official price
// and the percent difference are always reported.
func (p *Policy) ValidatePrice(ctx context.Context, variantID uuid.UUID, claimed decimal.Decimal) *Decision {
	v, err := p.catalog.GetVariant(ctx, variantID)
	if errors.Is(err, storage.ErrNotFound) {
		return deny(CheckPriceValidation, ReasonVariantRequired, msgVariantPricing)
	}
	if err != nil {
		return deny(CheckPriceValidation, ReasonLookupFailed, msgLookupFailed)
	}
	return p.validateAgainst(v, claimed)
}

func (p *Policy) validateAgainst(v *storage.CatalogVariant, claimed decimal.Decimal) *Decision {
	diff := percentDiff(v.Price, claimed)

	d := allow(CheckPriceValidation, v)
	if diff.GreaterThan(p.cfg.PriceTolerancePercent) {
		d = deny(CheckPriceValidation, ReasonPriceMismatch,
			fmt.Sprintf("The official SRP of the %s is %s.", v.DisplayName(), pricing.FormatMoney(p.cfg.Currency, v.Price)))
		d.Variant = v
	}
	d.OfficialPrice = v.Price
	d.DiffPercent = diff
	return d
}

// ValidateText checks every amount written in text against the variant's price.
// Text without amounts is allowed.
func (p *Policy) ValidateText(text string, v *storage.CatalogVariant) *Decision {
	amounts := ExtractAmounts(text)
	if len(amounts) == 0 {
		return allow(CheckPriceValidation, v)
	}
	if v == nil {
		return deny(CheckPriceValidation, ReasonVariantRequired, msgVariantPricing)
	}
	for _, a := range amounts {
		if d := p.validateAgainst(v, a); !d.Allowed {
			return d
		}
	}
	return allow(CheckPriceValidation, v)
}

// resolve prefers a variant the message names explicitly, then the entity
// hints, then whatever looser match the message yields.
func (p *Policy) resolve(ctx context.Context, message string, hints Hints) (*storage.CatalogVariant, error) {
	match, err := p.resolver.Resolve(ctx, message)
	if err != nil {
		return nil, err
	}
	if match != nil && (match.Tier == retrieval.TierExact || match.Tier == retrieval.TierModelHint) {
		return match.Variant, nil
	}
	if q := hints.Query(); q != "" {
		v, err := p.resolver.ResolveVariant(ctx, q)
		if err != nil || v != nil {
			return v, err
		}
	}
	if match == nil {
		return nil, nil
	}
	return match.Variant, nil
}

// mentions checks the raw text and the extracted entities for the variant or its model.
func (p *Policy) mentions(message string, hints Hints, v *storage.CatalogVariant) bool {
	if p.resolver.MentionsVariant(message, v) {
		return true
	}
	return (hints.VariantName != "" && strings.EqualFold(strings.TrimSpace(hints.VariantName), v.Name)) ||
		(hints.ModelName != "" && strings.EqualFold(strings.TrimSpace(hints.ModelName), v.ModelName))
}

func (p *Policy) staleWarning(v *storage.CatalogVariant) string {
	if v.UpdatedAt.IsZero() || p.now().Sub(v.UpdatedAt) <= p.cfg.StaleAfter {
		return ""
	}
	return fmt.Sprintf("Prices for the %s were last updated on %s and may have changed. Please confirm with a sales consultant.",
		v.DisplayName(), v.UpdatedAt.Format("January 2, 2006"))
}

// suggestions lists catalog variants the user can pick from.
func (p *Policy) suggestions(ctx context.Context) []string {
	variants, err := p.catalog.ListVariants(ctx)
	if err != nil {
		return nil
	}
	out := make([]string, 0, p.cfg.MaxSuggestions)
	for _, v := range variants {
		if len(out) == p.cfg.MaxSuggestions {
			break
		}
		out = append(out, v.DisplayName())
	}
	return out
}

func percentDiff(official, claimed decimal.Decimal) decimal.Decimal {
	if official.IsZero() {
		if claimed.IsZero() {
			return decimal.Zero
		}
		return decimal.NewFromInt(100)
	}
	return claimed.Sub(official).Abs().Div(official).Mul(decimal.NewFromInt(100)).Round(2)
}

var amountPattern = regexp.MustCompile(`(?:₱|\bphp|\bp)\s?(\d[\d,]*(?:\.\d+)?)|(\d[\d,]*(?:\.\d+)?)\s?pesos\b`)

// ExtractAmounts returns the peso amounts written in text.
func ExtractAmounts(text string) []decimal.Decimal {
	var out []decimal.Decimal
	for _, m := range amountPattern.FindAllStringSubmatch(strings.ToLower(text), -1) {
		raw := m[1]
		if raw == "" {
			raw = m[2]
		}
		d, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", ""))
		if err == nil {
			out = append(out, d)
		}
	}
	return out
}
