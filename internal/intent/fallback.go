package intent

import (
	"context"
	"errors"

	"github.com/spherical-ai/spherical/libs/sales-engine/internal/llm"
	"github.com/spherical-ai/spherical/libs/sales-engine/internal/observability"
)

// FallbackClassifier tries a primary classifier and falls back to a second
// one on any failure. A nil primary always uses the fallback.
type FallbackClassifier struct {
	primary  Classifier
	fallback Classifier
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewFallbackClassifier creates the decorator. logger and metrics may be nil.
func NewFallbackClassifier(primary, fallback Classifier, logger *observability.Logger, metrics *observability.Metrics) *FallbackClassifier {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &FallbackClassifier{primary: primary, fallback: fallback, logger: logger, metrics: metrics}
}

// Classify never surfaces a primary failure. Only a fallback error is returned.
func (c *FallbackClassifier) Classify(ctx context.Context, text string) (*Result, error) {
	if c.primary != nil {
		res, err := c.primary.Classify(ctx, text)
		if err == nil && res != nil {
			return res, nil
		}

		reason := fallbackReason(err)
		c.metrics.Fallback(reason)
		c.logger.WithContext(ctx).Warn().
			Str("reason", reason).
			Err(err).
			Msg("intent classification fell back to rules")
	}
	return c.fallback.Classify(ctx, text)
}

func fallbackReason(err error) string {
	switch {
	case err == nil:
		return "empty_result"
	case errors.Is(err, llm.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, llm.ErrInvalidOutput):
		return "invalid_output"
	case errors.Is(err, llm.ErrDisabled):
		return "disabled"
	case errors.Is(err, llm.ErrUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
