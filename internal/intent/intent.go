// Package intent classifies user messages into a fixed set of intents with extracted entities.
package intent

import (
	"context"
	"strings"
)

// Intent represents the classified intent of a message.
type Intent string

const (
	IntentGreeting        Intent = "greeting"
	IntentShowModels      Intent = "show_models"
	IntentShowSpecs       Intent = "show_specs"
	IntentShowPhotos      Intent = "show_photos"
	IntentGetQuote        Intent = "get_quote"
	IntentGeneralQuestion Intent = "general_question"
	IntentUnknown         Intent = "unknown"
)

// All lists every intent in classifier priority order.
var All = []Intent{
	IntentGreeting,
	IntentShowModels,
	IntentShowSpecs,
	IntentShowPhotos,
	IntentGetQuote,
	IntentGeneralQuestion,
	IntentUnknown,
}

// Parse maps a string to an Intent.
func Parse(s string) (Intent, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, i := range All {
		if string(i) == s {
			return i, true
		}
	}
	return IntentUnknown, false
}

// Payment types carried in Entities.PaymentType.
const (
	PaymentCash      = "cash"
	PaymentFinancing = "financing"
)

// Entities are the catalog and payment mentions extracted from a message.
type Entities struct {
	ModelName   string `json:"model_name,omitempty"`
	VariantName string `json:"variant_name,omitempty"`
	PaymentType string `json:"payment_type,omitempty"`
}

// Source identifies which classifier produced a result.
type Source string

const (
	SourceLLM     Source = "llm"
	SourceRules   Source = "rules"
	SourcePayload Source = "payload"
)

// Result is a classification outcome.
type Result struct {
	Intent     Intent   `json:"intent"`
	Confidence float64  `json:"confidence"`
	Entities   Entities `json:"entities"`
	Source     Source   `json:"source"`
}

// Classifier maps raw text to an intent.
type Classifier interface {
	Classify(ctx context.Context, text string) (*Result, error)
}
