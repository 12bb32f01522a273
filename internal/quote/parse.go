package quote

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/spherical-ai/spherical/libs/sales-engine/internal/pricing"
	"github.com/spherical-ai/spherical/libs/sales-engine/internal/session"
)

// Quick-reply payloads understood by the dialogue.
const (
	PayloadCash              = "PAYMENT_CASH"
	PayloadFinancing         = "PAYMENT_FINANCING"
	PayloadCancel            = "CANCEL_QUOTE"
	PayloadDownPaymentPrefix = "DOWN_PAYMENT_"
	PayloadTermPrefix        = "TERM_"
)

var (
	cancelWords    = map[string]bool{"cancel": true, "stop": true, "exit": true}
	cashWords      = []string{"cash", "full payment", "straight"}
	financingWords = []string{"financing", "finance", "installment", "loan", "monthly", "hulugan"}

	numberPattern = regexp.MustCompile(`-?\d+(?:\.\d+)?`)
	yearsPattern  = regexp.MustCompile(`(\d+)\s*(?:years?|yrs?)\b`)
)

// IsCancel reports whether text asks to abandon the dialogue.
func IsCancel(text string) bool {
	if strings.EqualFold(strings.TrimSpace(text), PayloadCancel) {
		return true
	}
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z')
	}) {
		if cancelWords[w] {
			return true
		}
	}
	return false
}

// ParsePaymentType reads a payment choice from a payload or keywords.
func ParsePaymentType(text string) session.PaymentType {
	t := strings.TrimSpace(text)
	switch strings.ToUpper(t) {
	case PayloadCash:
		return session.PaymentCash
	case PayloadFinancing:
		return session.PaymentFinancing
	}

	lower := strings.ToLower(t)
	for _, w := range financingWords {
		if strings.Contains(lower, w) {
			return session.PaymentFinancing
		}
	}
	for _, w := range cashWords {
		if strings.Contains(lower, w) {
			return session.PaymentCash
		}
	}
	return ""
}

// ParsePercent reads a down-payment percent in [0,100] from "20", "20%" or a payload.
func ParsePercent(text string) (decimal.Decimal, bool) {
	t := strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(text)), PayloadDownPaymentPrefix)
	m := numberPattern.FindString(t)
	if m == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(m)
	if err != nil || d.IsNegative() || d.GreaterThan(decimal.NewFromInt(100)) {
		return decimal.Zero, false
	}
	return d, true
}

// ParseTerm reads a financing term in months from "60", "60 months", "5 years"
// or a payload. Only offered terms are accepted.
func ParseTerm(text string) (int, bool) {
	t := strings.ToLower(strings.TrimSpace(text))
	t = strings.TrimPrefix(t, strings.ToLower(PayloadTermPrefix))

	months := 0
	if m := yearsPattern.FindStringSubmatch(t); m != nil {
		years, err := strconv.Atoi(m[1])
		if err != nil {
			return 0, false
		}
		months = years * 12
	} else {
		m := numberPattern.FindString(t)
		if m == "" {
			return 0, false
		}
		n, err := strconv.Atoi(m)
		if err != nil {
			return 0, false
		}
		months = n
	}

	if !pricing.IsValidTerm(months) {
		return 0, false
	}
	return months, true
}
