package intent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spherical-ai/spherical/libs/sales-engine/internal/llm"
)

const classifyPrompt = `You classify messages sent to a car dealership assistant.
Reply with ONLY a JSON object, no prose:
{"intent": "<intent>", "confidence": <0..1>, "entities": {"model_name": "", "variant_name": "", "payment_type": ""}}

Intents:
- greeting: hello, hi, good morning
- show_models: wants to see the available models or a model's line-up
- show_specs: asks about specifications, features, engine, dimensions
- show_photos: wants pictures of a vehicle
- get_quote: asks about price, quotation, financing, down payment, monthly amortization
- general_question: dealership questions such as warranty, showroom, trade-ins, test drives
- unknown: anything else

payment_type is "cash", "financing" or "". Leave entities empty when not mentioned.`

// llmResult is the wire shape requested from the model.
type llmResult struct {
	Intent     string   `json:"intent"`
	Confidence float64  `json:"confidence"`
	Entities   Entities `json:"entities"`
}

func validateLLMResult(r llmResult) error {
	if _, ok := Parse(r.Intent); !ok {
		return fmt.Errorf("unknown intent %q", r.Intent)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("confidence %v out of range", r.Confidence)
	}
	switch strings.ToLower(r.Entities.PaymentType) {
	case "", PaymentCash, PaymentFinancing:
		return nil
	default:
		return fmt.Errorf("unknown payment type %q", r.Entities.PaymentType)
	}
}

// LLMClassifier asks a language model for a strict JSON classification.
type LLMClassifier struct {
	completer llm.Completer
	timeout   time.Duration
}

// NewLLMClassifier creates a model-backed classifier. timeout bounds each call.
func NewLLMClassifier(completer llm.Completer, timeout time.Duration) *LLMClassifier {
	return &LLMClassifier{completer: completer, timeout: timeout}
}

// Classify returns an error on any call failure or malformed output.
func (c *LLMClassifier) Classify(ctx context.Context, text string) (*Result, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	raw, err := c.completer.Complete(ctx, classifyPrompt, text)
	if err != nil {
		return nil, err
	}

	parsed, err := llm.ExtractJSON(raw, llm.Validator[llmResult](validateLLMResult))
	if err != nil {
		return nil, err
	}

	i, _ := Parse(parsed.Intent)
	e := parsed.Entities
	return &Result{
		Intent:     i,
		Confidence: parsed.Confidence,
		Entities: Entities{
			ModelName:   strings.TrimSpace(e.ModelName),
			VariantName: strings.TrimSpace(e.VariantName),
			PaymentType: strings.ToLower(e.PaymentType),
		},
		Source: SourceLLM,
	}, nil
}
