package pricing

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var printer = message.NewPrinter(language.English)

// FormatMoney renders an amount with thousands separators and two decimals,
// e.g. "₱1,247,950.00".
func FormatMoney(currency string, d decimal.Decimal) string {
	return currency + printer.Sprint(number.Decimal(d.Round(2).InexactFloat64(), number.Scale(2)))
}

// FormatPercent renders a percent without trailing zeros, e.g. "5.5%".
func FormatPercent(d decimal.Decimal) string {
	return d.String() + "%"
}
