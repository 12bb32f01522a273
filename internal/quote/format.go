package quote

import (
	"fmt"
	"strings"

	"github.com/spherical-ai/spherical/libs/sales-engine/internal/pricing"
)

// FormatBreakdown renders a breakdown as a chat message.
func FormatBreakdown(b *pricing.Breakdown, currency string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Here's your quote for the %s %s (%s):\n\n", b.ModelName, b.VariantName, b.Region)
	fmt.Fprintf(&sb, "SRP: %s\n", pricing.FormatMoney(currency, b.SRP))
	for _, a := range b.Addons {
		fmt.Fprintf(&sb, "%s: %s\n", a.Name, pricing.FormatMoney(currency, a.Price))
	}
	for _, f := range b.Fees {
		fmt.Fprintf(&sb, "%s: %s\n", f.Name, pricing.FormatMoney(currency, f.Amount))
	}
	if b.PromoDiscount.IsPositive() {
		fmt.Fprintf(&sb, "Promo discount: -%s\n", pricing.FormatMoney(currency, b.PromoDiscount))
	}
	fmt.Fprintf(&sb, "Total cash price: %s\n", pricing.FormatMoney(currency, b.CashTotal))

	if f := b.Financing; f != nil {
		fmt.Fprintf(&sb, "\nFinancing (%s down, %d months at %s a year):\n",
			pricing.FormatPercent(f.DownPaymentPercent), f.Months, pricing.FormatPercent(f.AnnualRate))
		fmt.Fprintf(&sb, "Down payment: %s\n", pricing.FormatMoney(currency, f.DownPayment))
		fmt.Fprintf(&sb, "Amount financed: %s\n", pricing.FormatMoney(currency, f.AmountFinanced))
		fmt.Fprintf(&sb, "Monthly payment: %s\n", pricing.FormatMoney(currency, f.MonthlyPayment))
		fmt.Fprintf(&sb, "Total payable: %s\n", pricing.FormatMoney(currency, f.TotalPayable))
	}

	if len(b.Freebies) > 0 {
		fmt.Fprintf(&sb, "\nFreebies: %s\n", strings.Join(b.Freebies, ", "))
	}
	sb.WriteString("\nPrices are subject to change without prior notice.")
	return sb.String()
}
