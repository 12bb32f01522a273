package retrieval

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/spherical-ai/spherical/libs/sales-engine/internal/storage"
)

// MatchTier records which search tier produced a variant match.
type MatchTier int

const (
	TierNone MatchTier = iota
	TierExact
	TierModelHint
	TierFuzzy
	TierFirstToken
)

func (t MatchTier) String() string {
	switch t {
	case TierExact:
		return "exact"
	case TierModelHint:
		return "model_hint"
	case TierFuzzy:
		return "fuzzy"
	case TierFirstToken:
		return "first_token"
	default:
		return "none"
	}
}

// minHintRunes keeps one- and two-letter tokens from substring-matching half the catalog.
const minHintRunes = 3

// VariantMatch is a resolved variant and how it was found.
type VariantMatch struct {
	Variant *storage.CatalogVariant
	Tier    MatchTier
	Score   float64
}

// CatalogResolver resolves free text to catalog models and variants.
type CatalogResolver struct {
	catalog    storage.CatalogReader
	normalizer *QueryNormalizer
	threshold  float64
}

// NewCatalogResolver creates a resolver over a read-only catalog.
func NewCatalogResolver(catalog storage.CatalogReader, normalizer *QueryNormalizer, threshold float64) *CatalogResolver {
	if normalizer == nil {
		normalizer = NewQueryNormalizer()
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &CatalogResolver{catalog: catalog, normalizer: normalizer, threshold: threshold}
}

// ResolveVariant returns the variant a query refers to, or nil if none does.
func (r *CatalogResolver) ResolveVariant(ctx context.Context, query string) (*storage.CatalogVariant, error) {
	m, err := r.Resolve(ctx, query)
	if err != nil || m == nil {
		return nil, err
	}
	return m.Variant, nil
}

// Resolve runs the four search tiers in order and stops at the first hit.
func (r *CatalogResolver) Resolve(ctx context.Context, query string) (*VariantMatch, error) {
	q := r.normalizer.Normalize(query)
	if q == "" {
		return nil, nil
	}

	variants, err := r.catalog.ListVariants(ctx)
	if err != nil {
		return nil, err
	}

	if v := r.exactVariant(q, variants); v != nil {
		return &VariantMatch{Variant: v, Tier: TierExact, Score: 1}, nil
	}

	tokens := strings.Fields(q)
	if v, err := r.modelHintVariant(ctx, tokens); err != nil {
		return nil, err
	} else if v != nil {
		return &VariantMatch{Variant: v, Tier: TierModelHint, Score: 1}, nil
	}

	models, err := r.catalog.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	if v, score := r.fuzzyVariant(q, models); v != nil {
		return &VariantMatch{Variant: v, Tier: TierFuzzy, Score: score}, nil
	}

	if utf8.RuneCountInString(tokens[0]) >= minHintRunes {
		for _, v := range variants {
			if strings.Contains(r.normalizer.Simplify(v.Name), tokens[0]) {
				return &VariantMatch{Variant: v, Tier: TierFirstToken}, nil
			}
		}
	}
	return nil, nil
}

// exactVariant finds a variant whose name contains q. Equality with the
// variant name or the full "model variant" name is preferred over a partial hit.
func (r *CatalogResolver) exactVariant(q string, variants []*storage.CatalogVariant) *storage.CatalogVariant {
	var partial *storage.CatalogVariant
	for _, v := range variants {
		name := r.normalizer.Simplify(v.Name)
		if name == q || r.normalizer.Simplify(v.DisplayName()) == q {
			return v
		}
		if partial == nil && strings.Contains(name, q) {
			partial = v
		}
	}
	return partial
}

// modelHintVariant treats the first token as a model and the rest as a variant.
func (r *CatalogResolver) modelHintVariant(ctx context.Context, tokens []string) (*storage.CatalogVariant, error) {
	if utf8.RuneCountInString(tokens[0]) < minHintRunes {
		return nil, nil
	}

	model, err := r.catalog.FindModelByName(ctx, tokens[0])
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(model.Variants) == 0 {
		return nil, nil
	}

	modelWords := make(map[string]bool)
	for _, w := range strings.Fields(r.normalizer.Simplify(model.Name)) {
		modelWords[w] = true
	}
	var rest []string
	for _, t := range tokens[1:] {
		if !modelWords[t] {
			rest = append(rest, t)
		}
	}

	if len(rest) > 0 {
		hint := strings.Join(rest, " ")
		for _, v := range model.Variants {
			name := r.normalizer.Simplify(v.Name)
			if strings.Contains(name, hint) || containsAllWords(name, rest) {
				return withModel(v, model), nil
			}
		}
	}
	return withModel(model.CheapestVariant(), model), nil
}

// fuzzyVariant scores every (model, variant) pair and keeps the global best.
func (r *CatalogResolver) fuzzyVariant(q string, models []*storage.CatalogModel) (*storage.CatalogVariant, float64) {
	var (
		best      *storage.CatalogVariant
		bestScore float64
	)
	compact := strings.ReplaceAll(q, " ", "")

	for _, m := range models {
		modelName := r.normalizer.Simplify(m.Name)
		for _, v := range m.Variants {
			variantName := r.normalizer.Simplify(v.Name)
			spaced := modelName + " " + variantName
			scores := []float64{
				Similarity(q, variantName),
				Similarity(q, modelName),
				Similarity(q, spaced),
				Similarity(compact, strings.ReplaceAll(spaced, " ", "")),
			}
			for _, s := range scores {
				if s >= r.threshold && s > bestScore {
					best, bestScore = withModel(v, m), s
				}
			}
		}
	}
	return best, bestScore
}

// ResolveModel returns the model a query refers to, or nil if none does.
func (r *CatalogResolver) ResolveModel(ctx context.Context, query string) (*storage.CatalogModel, error) {
	q := r.normalizer.Normalize(query)
	if q == "" {
		return nil, nil
	}

	models, err := r.catalog.ListModels(ctx)
	if err != nil {
		return nil, err
	}

	names := make([]string, len(models))
	byName := make(map[string]*storage.CatalogModel, len(models))
	for i, m := range models {
		names[i] = r.normalizer.Simplify(m.Name)
		if strings.Contains(names[i], q) || containsWord(q, names[i]) {
			return m, nil
		}
		if _, dup := byName[names[i]]; !dup {
			byName[names[i]] = m
		}
	}

	var (
		best      *storage.CatalogModel
		bestScore float64
	)
	for _, c := range append([]string{q}, strings.Fields(q)...) {
		if name, score, ok := BestMatch(c, names, r.threshold); ok && score > bestScore {
			best, bestScore = byName[name], score
		}
	}
	return best, nil
}

// MentionsVariant reports whether text names the variant or its model verbatim.
func (r *CatalogResolver) MentionsVariant(text string, v *storage.CatalogVariant) bool {
	if v == nil {
		return false
	}
	t := " " + r.normalizer.Simplify(text) + " "
	for _, name := range []string{v.Name, v.ModelName} {
		if n := r.normalizer.Simplify(name); n != "" && strings.Contains(t, " "+n+" ") {
			return true
		}
	}
	return false
}

func withModel(v *storage.CatalogVariant, m *storage.CatalogModel) *storage.CatalogVariant {
	if v == nil {
		return nil
	}
	if v.ModelName == "" {
		v.ModelName = m.Name
	}
	if len(v.Media) == 0 {
		v.Media = m.Media
	}
	return v
}

func containsAllWords(text string, words []string) bool {
	have := make(map[string]bool)
	for _, w := range strings.Fields(text) {
		have[w] = true
	}
	for _, w := range words {
		if !have[w] {
			return false
		}
	}
	return true
}

// containsWord reports whether phrase occurs in text on word boundaries.
func containsWord(text, phrase string) bool {
	return phrase != "" && strings.Contains(" "+text+" ", " "+phrase+" ")
}
