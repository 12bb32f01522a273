// Package pricing computes cash and financing breakdowns in fixed-point decimal.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/spherical-ai/spherical/libs/sales-engine/internal/domain"
	"github.com/spherical-ai/spherical/libs/sales-engine/internal/storage"
)

var hundred = decimal.NewFromInt(100)

// Addon is an optional accessory or package added to the price.
type Addon struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// Financing holds the loan parameters. AnnualRate is a percent; nil uses the default.
type Financing struct {
	DownPaymentPercent decimal.Decimal  `json:"down_payment_percent"`
	Months             int              `json:"months"`
	AnnualRate         *decimal.Decimal `json:"annual_rate,omitempty"`
}

// Request is the input to Calculate. An empty Region uses the default.
type Request struct {
	VariantID uuid.UUID  `json:"variant_id"`
	Region    string     `json:"region,omitempty"`
	Addons    []Addon    `json:"addons,omitempty"`
	Financing *Financing `json:"financing,omitempty"`
}

// FeeLine is one named fee in a breakdown.
type FeeLine struct {
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

// FinancingBreakdown is the simple-interest schedule.
type FinancingBreakdown struct {
	DownPaymentPercent decimal.Decimal `json:"down_payment_percent"`
	DownPayment        decimal.Decimal `json:"down_payment"`
	AmountFinanced     decimal.Decimal `json:"amount_financed"`
	AnnualRate         decimal.Decimal `json:"annual_rate"`
	Months             int             `json:"months"`
	Interest           decimal.Decimal `json:"interest"`
	MonthlyPayment     decimal.Decimal `json:"monthly_payment"`
	TotalPayable       decimal.Decimal `json:"total_payable"`
}

// Breakdown is the full cost of a variant in a region.
type Breakdown struct {
	VariantID      uuid.UUID           `json:"variant_id"`
	ModelName      string              `json:"model_name"`
	VariantName    string              `json:"variant_name"`
	Region         string              `json:"region"`
	Currency       string              `json:"currency"`
	SRP            decimal.Decimal     `json:"srp"`
	Addons         []Addon             `json:"addons,omitempty"`
	AddonsTotal    decimal.Decimal     `json:"addons_total"`
	Fees           []FeeLine           `json:"fees"`
	FeesTotal      decimal.Decimal     `json:"fees_total"`
	Subtotal       decimal.Decimal     `json:"subtotal"`
	PromoDiscount  decimal.Decimal     `json:"promo_discount"`
	Freebies       []string            `json:"freebies,omitempty"`
	Total          decimal.Decimal     `json:"total"`
	CashTotal      decimal.Decimal     `json:"cash_total"`
	Financing      *FinancingBreakdown `json:"financing,omitempty"`
	PriceUpdatedAt time.Time           `json:"price_updated_at"`
}

// Config holds calculator defaults.
type Config struct {
	DefaultRegion     string
	DefaultAnnualRate decimal.Decimal // percent
	InsuranceRate     decimal.Decimal // fraction of SRP
	Currency          string
}

// DefaultConfig returns NCR, 5.5% a year and 2.5% insurance.
func DefaultConfig() Config {
	return Config{
		DefaultRegion:     "NCR",
		DefaultAnnualRate: decimal.RequireFromString("5.5"),
		InsuranceRate:     decimal.RequireFromString("0.025"),
		Currency:          "₱",
	}
}

// ValidTerms are the financing terms offered, in months.
var ValidTerms = []int{12, 24, 36, 48, 60}

// IsValidTerm reports whether months is an offered term.
func IsValidTerm(months int) bool {
	for _, t := range ValidTerms {
		if t == months {
			return true
		}
	}
	return false
}

// Calculator prices variants against region fee schedules.
type Calculator struct {
	catalog storage.CatalogReader
	regions storage.RegionReader
	cfg     Config
}

// NewCalculator creates a calculator.
func NewCalculator(catalog storage.CatalogReader, regions storage.RegionReader, cfg Config) *Calculator {
	if cfg.DefaultRegion == "" {
		cfg.DefaultRegion = DefaultConfig().DefaultRegion
	}
	if cfg.Currency == "" {
		cfg.Currency = DefaultConfig().Currency
	}
	return &Calculator{catalog: catalog, regions: regions, cfg: cfg}
}

// Config returns the calculator defaults.
func (c *Calculator) Config() Config {
	return c.cfg
}

// Calculate loads the variant and the region's current rule and computes the breakdown.
func (c *Calculator) Calculate(ctx context.Context, req Request) (*Breakdown, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	variant, err := c.catalog.GetVariant(ctx, req.VariantID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, domain.NotFound(fmt.Sprintf("variant %s not found", req.VariantID), err)
	}
	if err != nil {
		return nil, err
	}

	region := strings.ToUpper(strings.TrimSpace(req.Region))
	if region == "" {
		region = c.cfg.DefaultRegion
	}
	rule, err := c.regions.GetCurrentRegion(ctx, region)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, domain.NotFound(fmt.Sprintf("no pricing rule for region %s", region), err)
	}
	if err != nil {
		return nil, err
	}

	return Compute(variant, rule, req, c.cfg), nil
}

// Validate checks ranges. It does not touch the store.
func (r Request) Validate() error {
	if r.VariantID == uuid.Nil {
		return domain.Validation("variant is required", nil)
	}
	for _, a := range r.Addons {
		if a.Price.IsNegative() {
			return domain.Validation(fmt.Sprintf("add-on %s has a negative price", a.Name), nil)
		}
	}
	if f := r.Financing; f != nil {
		if f.DownPaymentPercent.LessThan(decimal.Zero) || f.DownPaymentPercent.GreaterThan(hundred) {
			return domain.Validation("down payment must be between 0 and 100 percent", nil)
		}
		if f.Months <= 0 {
			return domain.Validation("financing term must be a positive number of months", nil)
		}
		if f.AnnualRate != nil && f.AnnualRate.IsNegative() {
			return domain.Validation("annual rate cannot be negative", nil)
		}
	}
	return nil
}

// Compute is the pure pricing formula:
//
//	subtotal = price + addons + fees
//	total    = subtotal - promo
//	down     = total * pct/100, financed = total - down
//	interest = financed * rate/100 * months/12
//	monthly  = (financed + interest) / months
func Compute(variant *storage.CatalogVariant, rule *storage.RegionPriceRule, req Request, cfg Config) *Breakdown {
	price := variant.Price

	b := &Breakdown{
		VariantID:      variant.ID,
		ModelName:      variant.ModelName,
		VariantName:    variant.Name,
		Region:         rule.Region,
		Currency:       cfg.Currency,
		SRP:            money(price),
		Addons:         req.Addons,
		PromoDiscount:  money(rule.PromoDiscount),
		Freebies:       rule.Freebies,
		PriceUpdatedAt: variant.UpdatedAt,
	}

	addons := decimal.Zero
	for _, a := range req.Addons {
		addons = addons.Add(a.Price)
	}
	b.AddonsTotal = money(addons)

	insurance := insuranceFor(price, rule, cfg)
	b.Fees = []FeeLine{
		{Name: "Registration", Amount: money(rule.RegistrationFee)},
		{Name: "Chattel mortgage", Amount: money(rule.ChattelFee)},
		{Name: "Insurance", Amount: money(insurance)},
	}
	fees := rule.RegistrationFee.Add(rule.ChattelFee).Add(insurance)
	for _, f := range rule.ExtraFees {
		b.Fees = append(b.Fees, FeeLine{Name: f.Name, Amount: money(f.Amount)})
		fees = fees.Add(f.Amount)
	}
	b.FeesTotal = money(fees)

	subtotal := price.Add(addons).Add(fees)
	total := subtotal.Sub(rule.PromoDiscount)
	b.Subtotal = money(subtotal)
	b.Total = money(total)
	b.CashTotal = b.Total

	if f := req.Financing; f != nil {
		rate := cfg.DefaultAnnualRate
		if f.AnnualRate != nil {
			rate = *f.AnnualRate
		}
		months := decimal.NewFromInt(int64(f.Months))

		down := total.Mul(f.DownPaymentPercent).Div(hundred)
		financed := total.Sub(down)
		interest := financed.Mul(rate).Div(hundred).Mul(months).Div(decimal.NewFromInt(12))
		monthly := money(financed.Add(interest).Div(months))

		b.Financing = &FinancingBreakdown{
			DownPaymentPercent: f.DownPaymentPercent,
			DownPayment:        money(down),
			AmountFinanced:     money(financed),
			AnnualRate:         rate,
			Months:             f.Months,
			Interest:           money(interest),
			MonthlyPayment:     monthly,
			TotalPayable:       money(down).Add(monthly.Mul(months)),
		}
	}
	return b
}

// insuranceFor uses the rule's flat fee, else its rate, else the configured rate.
func insuranceFor(price decimal.Decimal, rule *storage.RegionPriceRule, cfg Config) decimal.Decimal {
	if rule.InsuranceFee != nil {
		return *rule.InsuranceFee
	}
	rate := cfg.InsuranceRate
	if rule.InsuranceRate != nil {
		rate = *rule.InsuranceRate
	}
	return price.Mul(rate)
}

func money(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
