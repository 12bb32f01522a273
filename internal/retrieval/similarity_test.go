package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSimilarity_Properties(t *testing.T) {
	samples := []string{"", "x", "vios", "xpander gls", "montero sport", "ñandú"}

	for _, s := range samples {
		assert.Equal(t, 1.0, Similarity(s, s), "identity for %q", s)
	}
	for _, a := range samples {
		for _, b := range samples {
			assert.Equal(t, Similarity(a, b), Similarity(b, a), "symmetry for %q/%q", a, b)
		}
	}

	assert.Equal(t, 1.0, Similarity("", ""))
	assert.Equal(t, 0.0, Similarity("", "x"))
	assert.Equal(t, 0.0, Similarity("x", ""))
}

func TestSimilarity_Values(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"kitten", "sitting", 1 - 3.0/7.0},
		{"xpandr", "xpander", 1 - 1.0/7.0},
		{"abc", "xyz", 0},
		{"ñ", "n", 0},
	}

	for _, tc := range tests {
		t.Run(tc.a+"/"+tc.b, func(t *testing.T) {
			assert.InDelta(t, tc.want, Similarity(tc.a, tc.b), 1e-9)
		})
	}
}

func TestBestMatch(t *testing.T) {
	t.Run("highest score wins", func(t *testing.T) {
		got, score, ok := BestMatch("montero", []string{"mirage", "montero sport", "monterro"}, DefaultThreshold)
		assert.True(t, ok)
		assert.Equal(t, "monterro", got)
		assert.Greater(t, score, 0.8)
	})

	t.Run("ties keep first seen", func(t *testing.T) {
		got, _, ok := BestMatch("abcd", []string{"abcx", "abcy"}, 0.5)
		assert.True(t, ok)
		assert.Equal(t, "abcx", got)
	})

	t.Run("below threshold", func(t *testing.T) {
		_, _, ok := BestMatch("zzz", []string{"vios", "xpander"}, DefaultThreshold)
		assert.False(t, ok)
	})

	t.Run("threshold is inclusive", func(t *testing.T) {
		// "abcde" vs "abxyz": distance 3 of 5, similarity 0.4
		got, _, ok := BestMatch("abcde", []string{"abxyz"}, 0.4)
		assert.True(t, ok)
		assert.Equal(t, "abxyz", got)
	})

	t.Run("no candidates", func(t *testing.T) {
		_, _, ok := BestMatch("vios", nil, DefaultThreshold)
		assert.False(t, ok)
	})
}
