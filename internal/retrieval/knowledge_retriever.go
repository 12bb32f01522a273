package retrieval

import (
	"context"
	"sort"
	"strings"

	"github.com/spherical-ai/spherical/libs/sales-engine/internal/storage"
)

// DefaultFAQLimit is the number of entries Search returns when limit <= 0.
const DefaultFAQLimit = 3

// Keyword overlap weights.
const (
	weightKeywordExact  = 3.0
	weightKeywordSubstr = 2.0
	weightQuestion      = 1.5
	weightAnswer        = 0.5
)

// ScoredEntry is an FAQ entry with its relevance score.
type ScoredEntry struct {
	Entry *storage.FAQEntry
	Score float64
}

// KnowledgeRetriever ranks FAQ entries by weighted keyword overlap.
type KnowledgeRetriever struct {
	faqs storage.FAQReader
}

// NewKnowledgeRetriever creates a retriever over a read-only FAQ store.
func NewKnowledgeRetriever(faqs storage.FAQReader) *KnowledgeRetriever {
	return &KnowledgeRetriever{faqs: faqs}
}

// Search returns up to limit entries with a positive score, best first.
func (k *KnowledgeRetriever) Search(ctx context.Context, query string, limit int) ([]*storage.FAQEntry, error) {
	scored, err := k.SearchScored(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*storage.FAQEntry, len(scored))
	for i, s := range scored {
		out[i] = s.Entry
	}
	return out, nil
}

// SearchScored is Search with scores attached.
func (k *KnowledgeRetriever) SearchScored(ctx context.Context, query string, limit int) ([]ScoredEntry, error) {
	if limit <= 0 {
		limit = DefaultFAQLimit
	}

	words := queryWords(query)
	if len(words) == 0 {
		return nil, nil
	}

	entries, err := k.faqs.ListFAQs(ctx)
	if err != nil {
		return nil, err
	}

	var scored []ScoredEntry
	for _, e := range entries {
		if s := ScoreEntry(words, e); s > 0 {
			scored = append(scored, ScoredEntry{Entry: e, Score: s})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

// ScoreEntry scores one entry against lower-cased query words.
func ScoreEntry(words []string, e *storage.FAQEntry) float64 {
	question := strings.ToLower(e.Question)
	answer := strings.ToLower(e.Answer)
	keywords := make([]string, len(e.Keywords))
	for i, kw := range e.Keywords {
		keywords[i] = strings.ToLower(kw)
	}

	var score float64
	for _, w := range words {
		switch {
		case containsExact(keywords, w):
			score += weightKeywordExact
		case containsSubstring(keywords, w):
			score += weightKeywordSubstr
		}
		if strings.Contains(question, w) {
			score += weightQuestion
		}
		if strings.Contains(answer, w) {
			score += weightAnswer
		}
	}
	return score
}

// queryWords splits on whitespace and trims punctuation. Every word is
// scored, stop words included.
func queryWords(query string) []string {
	var words []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		w = strings.Trim(w, ".,!?;:()[]{}'\"")
		if w == "" {
			continue
		}
		words = append(words, w)
	}
	return words
}

func containsExact(list []string, w string) bool {
	for _, item := range list {
		if item == w {
			return true
		}
	}
	return false
}

func containsSubstring(list []string, w string) bool {
	for _, item := range list {
		if strings.Contains(item, w) {
			return true
		}
	}
	return false
}
