package retrieval

import (
	"sort"
	"strings"
	"unicode"
)

// Indicator phrase tables. Each is matched on word boundaries.
var (
	photoIndicators = []string{
		"photos", "photo", "pictures", "picture", "pics", "pic", "images", "image",
		"gallery", "what it looks like", "looks like",
	}
	specIndicators = []string{
		"specifications", "specification", "specs", "spec", "features", "feature",
		"engine", "horsepower", "dimensions", "fuel consumption", "mileage",
		"seating capacity", "details",
	}
	quoteIndicators = []string{
		"quotation", "quote", "financing", "finance", "installment", "down payment",
		"downpayment", "monthly", "amortization", "loan", "compute",
	}
	priceIndicators = []string{
		"how much is", "how much", "price", "prices", "pricing", "cost", "srp", "worth",
	}
	fillerIndicators = []string{
		"can you show me", "could you show me", "show me", "i want to see", "i would like to see",
		"i'd like to see", "tell me about", "tell me more about", "what is the", "what are the",
		"what's the", "do you have", "give me", "send me", "i want", "i need", "let me see",
	}
	stopWords = map[string]bool{
		"the": true, "a": true, "an": true, "of": true, "for": true, "in": true, "on": true,
		"is": true, "are": true, "me": true, "my": true, "i": true, "you": true, "your": true,
		"can": true, "could": true, "please": true, "what": true, "whats": true, "about": true,
		"with": true, "to": true, "do": true, "does": true, "have": true, "has": true,
		"it": true, "its": true, "this": true, "that": true, "and": true, "or": true,
		"want": true, "like": true, "would": true, "need": true, "see": true, "know": true,
		"tell": true, "give": true, "get": true, "some": true, "any": true, "how": true,
		"much": true, "there": true, "pls": true, "po": true,
	}
	// removal order: longest phrase first so "how much is" wins over "how much"
	allIndicators = sortedByLength(photoIndicators, specIndicators, quoteIndicators, priceIndicators, fillerIndicators)
)

// QueryNormalizer strips filler and indicator phrases and tags request kinds.
type QueryNormalizer struct{}

// NewQueryNormalizer creates a query normalizer.
func NewQueryNormalizer() *QueryNormalizer {
	return &QueryNormalizer{}
}

// Normalize returns the entity-bearing remainder of a query, possibly empty.
func (n *QueryNormalizer) Normalize(query string) string {
	padded := " " + stripPunctuation(strings.ToLower(query)) + " "
	padded = collapse(padded)

	for _, phrase := range allIndicators {
		needle := " " + stripPunctuation(phrase) + " "
		for strings.Contains(padded, needle) {
			padded = strings.ReplaceAll(padded, needle, " ")
		}
	}
	return removeStopWords(padded)
}

// Simplify lower-cases, strips punctuation and stop words without removing
// indicator phrases. Catalog names go through this so they compare with
// normalized queries token for token.
func (n *QueryNormalizer) Simplify(s string) string {
	return removeStopWords(stripPunctuation(strings.ToLower(s)))
}

// IsPhotoRequest reports whether the query asks for images.
func (n *QueryNormalizer) IsPhotoRequest(query string) bool {
	return containsAny(strings.ToLower(query), photoIndicators)
}

// IsSpecRequest reports whether the query asks for specifications.
func (n *QueryNormalizer) IsSpecRequest(query string) bool {
	return containsAny(strings.ToLower(query), specIndicators)
}

// IsQuoteRequest reports whether the query asks for a quotation or financing.
func (n *QueryNormalizer) IsQuoteRequest(query string) bool {
	return containsAny(strings.ToLower(query), quoteIndicators)
}

// IsPriceQuestion reports whether the query asks about price.
func (n *QueryNormalizer) IsPriceQuestion(query string) bool {
	return containsAny(strings.ToLower(query), priceIndicators)
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// stripPunctuation maps every rune that is not a letter, digit or space to a space.
// Apostrophes are dropped so "what's" becomes "whats".
func stripPunctuation(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\'' || r == '’':
			return -1
		case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsSpace(r):
			return r
		default:
			return ' '
		}
	}, s)
}

func removeStopWords(s string) string {
	words := strings.Fields(s)
	kept := words[:0]
	for _, w := range words {
		if !stopWords[w] {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, " ")
}

func collapse(s string) string {
	return " " + strings.Join(strings.Fields(s), " ") + " "
}

func sortedByLength(groups ...[]string) []string {
	var all []string
	for _, g := range groups {
		all = append(all, g...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		return len(all[i]) > len(all[j])
	})
	return all
}
