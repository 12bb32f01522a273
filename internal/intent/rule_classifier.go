package intent

import (
	"context"
	"regexp"
	"strings"

	"github.com/spherical-ai/spherical/libs/sales-engine/internal/retrieval"
	"github.com/spherical-ai/spherical/libs/sales-engine/internal/storage"
)

// Fixed confidences for each rule.
const (
	confGreeting   = 0.9
	confModels     = 0.85
	confSpecs      = 0.85
	confPhotos     = 0.85
	confQuote      = 0.9
	confKnownModel = 0.7
	confUnknown    = 0.3
)

var (
	greetingPattern = regexp.MustCompile(`^(hi|hello|hey|hiya|yo|greetings|good (morning|afternoon|evening|day)|kumusta|musta|get started|get_started)( there| po| everyone)?[\s!.,]*$`)

	modelPatterns = []string{
		"models", "what cars", "which cars", "what vehicles", "which vehicles", "available cars",
		"available vehicles", "lineup", "line-up", "line up", "catalog", "catalogue",
		"browse", "show cars", "show vehicles", "what do you sell",
	}

	cashWords      = []string{"cash", "full payment", "straight payment", "spot cash"}
	financingWords = []string{"financing", "finance", "installment", "loan", "monthly", "down payment", "downpayment"}
)

// ModelLister is the catalog read used for known-model detection.
type ModelLister interface {
	ListModels(ctx context.Context) ([]*storage.CatalogModel, error)
}

// RuleClassifier is the deterministic classifier. It never makes network calls.
type RuleClassifier struct {
	normalizer *retrieval.QueryNormalizer
	models     ModelLister
}

// NewRuleClassifier creates a rule classifier. models may be nil, which disables
// known-model detection.
func NewRuleClassifier(models ModelLister) *RuleClassifier {
	return &RuleClassifier{
		normalizer: retrieval.NewQueryNormalizer(),
		models:     models,
	}
}

// Classify evaluates the rules in priority order: greeting, models, specs, photos,
// quote, known model name, unknown. It never returns an error.
func (c *RuleClassifier) Classify(ctx context.Context, text string) (*Result, error) {
	q := strings.ToLower(strings.TrimSpace(text))
	entities := Entities{
		ModelName:   c.knownModel(ctx, q),
		PaymentType: paymentType(q),
	}
	result := func(i Intent, conf float64) (*Result, error) {
		return &Result{Intent: i, Confidence: conf, Entities: entities, Source: SourceRules}, nil
	}

	switch {
	case greetingPattern.MatchString(q):
		return result(IntentGreeting, confGreeting)
	case containsAny(q, modelPatterns):
		return result(IntentShowModels, confModels)
	case c.normalizer.IsSpecRequest(q):
		return result(IntentShowSpecs, confSpecs)
	case c.normalizer.IsPhotoRequest(q):
		return result(IntentShowPhotos, confPhotos)
	case c.normalizer.IsQuoteRequest(q) || c.normalizer.IsPriceQuestion(q):
		return result(IntentGetQuote, confQuote)
	case entities.ModelName != "":
		return result(IntentShowModels, confKnownModel)
	default:
		return result(IntentUnknown, confUnknown)
	}
}

// knownModel returns the catalog model named verbatim in q, if any.
// Store errors disable the rule for this message.
func (c *RuleClassifier) knownModel(ctx context.Context, q string) string {
	if c.models == nil || q == "" {
		return ""
	}
	models, err := c.models.ListModels(ctx)
	if err != nil {
		return ""
	}

	text := " " + c.normalizer.Simplify(q) + " "
	for _, m := range models {
		if name := c.normalizer.Simplify(m.Name); name != "" && strings.Contains(text, " "+name+" ") {
			return m.Name
		}
	}
	return ""
}

func paymentType(q string) string {
	switch {
	case containsAny(q, financingWords):
		return PaymentFinancing
	case containsAny(q, cashWords):
		return PaymentCash
	default:
		return ""
	}
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
