package conversation

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/spherical-ai/spherical/libs/sales-engine/internal/pricing"
	"github.com/spherical-ai/spherical/libs/sales-engine/internal/storage"
)

func modelCards(models []*storage.CatalogModel, currency string) []Card {
	cards := make([]Card, 0, len(models))
	for _, m := range models {
		card := Card{
			Title:         m.Name,
			Subtitle:      m.Segment,
			ButtonTitle:   "View variants",
			ButtonPayload: PayloadShowModels + ":" + m.Name,
		}
		if v := m.CheapestVariant(); v != nil {
			card.Subtitle = strings.TrimSpace(fmt.Sprintf("%s · from %s", m.Segment, pricing.FormatMoney(currency, v.Price)))
		}
		if len(m.Media) > 0 {
			card.ImageURL = m.Media[0].URL
		}
		cards = append(cards, card)
	}
	return cards
}

func variantCards(m *storage.CatalogModel, currency string) []Card {
	var image string
	if len(m.Media) > 0 {
		image = m.Media[0].URL
	}

	cards := make([]Card, 0, len(m.Variants))
	for _, v := range m.Variants {
		subtitle := pricing.FormatMoney(currency, v.Price)
		if v.Transmission != "" {
			subtitle += " · " + v.Transmission
		}
		cards = append(cards, Card{
			Title:         m.Name + " " + v.Name,
			Subtitle:      subtitle,
			ImageURL:      image,
			ButtonTitle:   "Get a quote",
			ButtonPayload: PayloadGetQuote + ":" + m.Name + " " + v.Name,
		})
	}
	return cards
}

// FormatSpecs renders a variant's specifications, keys sorted, followed by
// its feature list.
func FormatSpecs(v *storage.CatalogVariant) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s specifications:\n", v.DisplayName())

	keys := make([]string, 0, len(v.Specs))
	for k := range v.Specs {
		if k != storage.FeaturesKey {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	if v.Transmission != "" {
		fmt.Fprintf(&sb, "• Transmission: %s\n", v.Transmission)
	}
	if v.FuelType != "" {
		fmt.Fprintf(&sb, "• Fuel type: %s\n", v.FuelType)
	}
	for _, k := range keys {
		fmt.Fprintf(&sb, "• %s: %v\n", specLabel(k), v.Specs[k])
	}

	if features := v.Features(); len(features) > 0 {
		sb.WriteString("\nKey features:\n")
		for _, f := range features {
			fmt.Fprintf(&sb, "• %s\n", f)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// specLabel turns "fuel_consumption" into "Fuel Consumption". A Caser holds
// state, so each call gets its own.
func specLabel(key string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(key, "_", " "))
}
