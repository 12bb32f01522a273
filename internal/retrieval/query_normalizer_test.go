package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueryNormalizer_Normalize(t *testing.T) {
	n := NewQueryNormalizer()

	tests := []struct {
		query string
		want  string
	}{
		{"How much is the Xpander GLS?", "xpander gls"},
		{"Show me photos of the Vios", "vios"},
		{"Can you show me the specs of Montero Sport?", "montero sport"},
		{"I want a quote for the Xpander GLS A/T", "xpander gls t"},
		{"what's the price of vios xle cvt", "vios xle cvt"},
		{"Price!!!", ""},
		{"", ""},
		{"   ", ""},
		{"specsheet", "specsheet"},
	}

	for _, tc := range tests {
		t.Run(tc.query, func(t *testing.T) {
			assert.Equal(t, tc.want, n.Normalize(tc.query))
		})
	}
}

func TestQueryNormalizer_LongestIndicatorFirst(t *testing.T) {
	n := NewQueryNormalizer()
	// "how much is" must be removed whole, leaving no stray "is".
	assert.Equal(t, "vios", n.Normalize("how much is vios"))
	// "down payment" is removed as one phrase.
	assert.Equal(t, "xpander", n.Normalize("down payment xpander"))
}

func TestQueryNormalizer_Classifiers(t *testing.T) {
	n := NewQueryNormalizer()

	tests := []struct {
		query                      string
		photo, spec, quote, priceQ bool
	}{
		{"show me pictures of the vios", true, false, false, false},
		{"xpander specs please", false, true, false, false},
		{"I want a quotation", false, false, true, false},
		{"how much is the montero", false, false, false, true},
		{"financing for xpander, what's the monthly?", false, false, true, false},
		{"hello", false, false, false, false},
	}

	for _, tc := range tests {
		t.Run(tc.query, func(t *testing.T) {
			assert.Equal(t, tc.photo, n.IsPhotoRequest(tc.query), "photo")
			assert.Equal(t, tc.spec, n.IsSpecRequest(tc.query), "spec")
			assert.Equal(t, tc.quote, n.IsQuoteRequest(tc.query), "quote")
			assert.Equal(t, tc.priceQ, n.IsPriceQuestion(tc.query), "price")
		})
	}
}

func TestQueryNormalizer_Simplify(t *testing.T) {
	n := NewQueryNormalizer()
	assert.Equal(t, "gls t", n.Simplify("GLS A/T"))
	assert.Equal(t, "gls 4x2 at", n.Simplify("GLS 4x2 AT"))
	assert.Equal(t, "montero sport", n.Simplify("Montero Sport"))
}
