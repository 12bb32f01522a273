package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/spherical-ai/spherical/libs/sales-engine/internal/guardrail"
	"github.com/spherical-ai/spherical/libs/sales-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/sales-engine/internal/pricing"
	"github.com/spherical-ai/spherical/libs/sales-engine/internal/storage"
)

// Pricer computes breakdowns.
type Pricer interface {
	Calculate(ctx context.Context, req pricing.Request) (*pricing.Breakdown, error)
}

// VariantResolver maps free text to a catalog variant.
type VariantResolver interface {
	ResolveVariant(ctx context.Context, query string) (*storage.CatalogVariant, error)
}

// PriceValidator checks a claimed price against the catalog.
type PriceValidator interface {
	ValidatePrice(ctx context.Context, variantID uuid.UUID, claimed decimal.Decimal) *guardrail.Decision
}

// PricingHandler serves ad-hoc price calculations and price checks.
type PricingHandler struct {
	logger    *observability.Logger
	pricer    Pricer
	resolver  VariantResolver
	validator PriceValidator
}

// NewPricingHandler creates a new pricing handler.
func NewPricingHandler(logger *observability.Logger, pricer Pricer, resolver VariantResolver, validator PriceValidator) *PricingHandler {
	return &PricingHandler{logger: logger, pricer: pricer, resolver: resolver, validator: validator}
}

// CalculateRequestDTO selects a variant by id or by name.
type CalculateRequestDTO struct {
	VariantID   string        `json:"variantId,omitempty"`
	VariantName string        `json:"variantName,omitempty"`
	Region      string        `json:"region,omitempty"`
	Addons      []AddonDTO    `json:"addons,omitempty"`
	Financing   *FinancingDTO `json:"financing,omitempty"`
}

// AddonDTO is an optional extra.
type AddonDTO struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// FinancingDTO holds loan parameters. AnnualRate is a percent.
type FinancingDTO struct {
	DownPaymentPercent decimal.Decimal  `json:"downPaymentPercent"`
	Months             int              `json:"months"`
	AnnualRate         *decimal.Decimal `json:"annualRate,omitempty"`
}

// Calculate handles POST /pricing/calculate.
func (h *PricingHandler) Calculate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var reqDTO CalculateRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&reqDTO); err != nil {
		writeError(h.logger, w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	id, ok := h.variantID(ctx, w, reqDTO.VariantID, reqDTO.VariantName)
	if !ok {
		return
	}
	req := pricing.Request{VariantID: id, Region: strings.TrimSpace(reqDTO.Region)}

	for _, a := range reqDTO.Addons {
		req.Addons = append(req.Addons, pricing.Addon{Name: a.Name, Price: a.Price})
	}
	if f := reqDTO.Financing; f != nil {
		req.Financing = &pricing.Financing{
			DownPaymentPercent: f.DownPaymentPercent,
			Months:             f.Months,
			AnnualRate:         f.AnnualRate,
		}
	}

	breakdown, err := h.pricer.Calculate(ctx, req)
	if err != nil {
		writeDomainError(h.logger, w, err, "calculation failed")
		return
	}
	writeJSON(h.logger, w, http.StatusOK, breakdown)
}

// ValidateRequestDTO is a price someone quoted for a variant.
type ValidateRequestDTO struct {
	VariantID    string          `json:"variantId,omitempty"`
	VariantName  string          `json:"variantName,omitempty"`
	ClaimedPrice decimal.Decimal `json:"claimedPrice"`
}

// ValidateResponseDTO reports whether the claimed price is within tolerance.
type ValidateResponseDTO struct {
	Allowed       bool            `json:"allowed"`
	Reason        string          `json:"reason"`
	Message       string          `json:"message,omitempty"`
	Variant       string          `json:"variant"`
	OfficialPrice decimal.Decimal `json:"officialPrice"`
	DiffPercent   decimal.Decimal `json:"diffPercent"`
}

// Validate handles POST /pricing/validate.
func (h *PricingHandler) Validate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var reqDTO ValidateRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&reqDTO); err != nil {
		writeError(h.logger, w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if !reqDTO.ClaimedPrice.IsPositive() {
		writeError(h.logger, w, http.StatusBadRequest, "claimedPrice must be positive", reqDTO.ClaimedPrice.String())
		return
	}

	id, ok := h.variantID(ctx, w, reqDTO.VariantID, reqDTO.VariantName)
	if !ok {
		return
	}

	d := h.validator.ValidatePrice(ctx, id, reqDTO.ClaimedPrice)
	switch d.Reason {
	case guardrail.ReasonVariantRequired:
		writeError(h.logger, w, http.StatusNotFound, "variant not found", id.String())
		return
	case guardrail.ReasonLookupFailed:
		writeError(h.logger, w, http.StatusServiceUnavailable, "catalog unavailable", "")
		return
	}

	resp := ValidateResponseDTO{
		Allowed:       d.Allowed,
		Reason:        string(d.Reason),
		Message:       d.Message,
		OfficialPrice: d.OfficialPrice,
		DiffPercent:   d.DiffPercent,
	}
	if d.Variant != nil {
		resp.Variant = d.Variant.DisplayName()
	}
	writeJSON(h.logger, w, http.StatusOK, resp)
}

// variantID resolves a variant by id or by name. On failure it writes the
// response and returns false.
func (h *PricingHandler) variantID(ctx context.Context, w http.ResponseWriter, rawID, name string) (uuid.UUID, bool) {
	switch {
	case rawID != "":
		id, err := uuid.Parse(rawID)
		if err != nil {
			writeError(h.logger, w, http.StatusBadRequest, "invalid variantId", err.Error())
			return uuid.Nil, false
		}
		return id, true
	case strings.TrimSpace(name) != "":
		v, err := h.resolver.ResolveVariant(ctx, name)
		if err != nil {
			writeDomainError(h.logger, w, err, "variant lookup failed")
			return uuid.Nil, false
		}
		if v == nil {
			writeError(h.logger, w, http.StatusNotFound, "variant not found", name)
			return uuid.Nil, false
		}
		return v.ID, true
	default:
		writeError(h.logger, w, http.StatusBadRequest, "variantId or variantName is required", "")
		return uuid.Nil, false
	}
}
