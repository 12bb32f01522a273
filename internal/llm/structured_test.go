package llm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type classification struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		intent string
	}{
		{"bare object", `{"intent":"greeting","confidence":0.9}`, "greeting"},
		{"fenced", "```json\n{\"intent\":\"get_quote\",\"confidence\":0.8}\n```", "get_quote"},
		{"prose around", `Sure! Here you go: {"intent":"show_specs","confidence":0.7} Hope that helps.`, "show_specs"},
		{"braces in strings", `{"intent":"unknown","confidence":0.1,"note":"a } b {"}`, "unknown"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ExtractJSON[classification](tc.raw, nil)
			require.NoError(t, err)
			assert.Equal(t, tc.intent, got.Intent)
		})
	}
}

func TestExtractJSON_Invalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"no object", "I think it's a greeting"},
		{"unbalanced", `{"intent":"greeting"`},
		{"wrong types", `{"intent":42}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ExtractJSON[classification](tc.raw, nil)
			assert.ErrorIs(t, err, ErrInvalidOutput)
		})
	}
}

func TestExtractJSON_Validator(t *testing.T) {
	validate := func(c classification) error {
		if c.Confidence < 0 || c.Confidence > 1 {
			return errors.New("confidence out of range")
		}
		return nil
	}

	_, err := ExtractJSON(`{"intent":"greeting","confidence":7}`, Validator[classification](validate))
	assert.ErrorIs(t, err, ErrInvalidOutput)

	got, err := ExtractJSON(`{"intent":"greeting","confidence":0.5}`, Validator[classification](validate))
	require.NoError(t, err)
	assert.Equal(t, 0.5, got.Confidence)
}
