// Package storage provides database models and repositories for the Sales Engine.
package storage

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// QuoteStatus represents the lifecycle status of a quote.
type QuoteStatus string

const (
	QuoteStatusGenerated QuoteStatus = "GENERATED"
	QuoteStatusSent      QuoteStatus = "SENT"
	QuoteStatusAccepted  QuoteStatus = "ACCEPTED"
	QuoteStatusExpired   QuoteStatus = "EXPIRED"
)

// AuditKind represents audit trail event kinds.
type AuditKind string

const (
	AuditKindGuardrailDenied AuditKind = "guardrail_denied"
	AuditKindStaleWarning    AuditKind = "stale_price_warning"
	AuditKindQuoteGenerated  AuditKind = "quote_generated"
	AuditKindFlowCancelled   AuditKind = "flow_cancelled"
)

// FeaturesKey is the attribute key holding the ordered feature list of a variant.
const FeaturesKey = "features"

// CatalogModel represents a vehicle model line.
type CatalogModel struct {
	ID          uuid.UUID         `json:"id"`
	Name        string            `json:"name"`
	Segment     string            `json:"segment"`
	Description string            `json:"description"`
	Media       []Media           `json:"media,omitempty"`
	Variants    []*CatalogVariant `json:"variants,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// CheapestVariant returns the lowest-priced variant, keeping the first on ties.
func (m *CatalogModel) CheapestVariant() *CatalogVariant {
	var best *CatalogVariant
	for _, v := range m.Variants {
		if best == nil || v.Price.LessThan(best.Price) {
			best = v
		}
	}
	return best
}

// CatalogVariant is a purchasable configuration of a model.
type CatalogVariant struct {
	ID           uuid.UUID       `json:"id"`
	ModelID      uuid.UUID       `json:"model_id"`
	ModelName    string          `json:"model_name"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	Transmission string          `json:"transmission"`
	FuelType     string          `json:"fuel_type"`
	Specs        Attributes      `json:"specs"`
	Media        []Media         `json:"media,omitempty"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// DisplayName returns "Model Variant".
func (v *CatalogVariant) DisplayName() string {
	if v.ModelName == "" {
		return v.Name
	}
	return v.ModelName + " " + v.Name
}

// Features returns the ordered feature list stored under the "features" attribute.
func (v *CatalogVariant) Features() []string {
	raw, ok := v.Specs[FeaturesKey]
	if !ok {
		return nil
	}
	switch list := raw.(type) {
	case []string:
		return list
	case []interface{}:
		out := make([]string, 0, len(list))
		for _, item := range list {
			out = append(out, fmt.Sprint(item))
		}
		return out
	}
	return nil
}

// Media is an image attached to a model.
type Media struct {
	URL     string `json:"url" yaml:"url"`
	Caption string `json:"caption,omitempty" yaml:"caption"`
}

// Fee is a named region-specific charge.
type Fee struct {
	Name   string          `json:"name" yaml:"name"`
	Amount decimal.Decimal `json:"amount" yaml:"amount"`
}

// RegionPriceRule is a per-region fee and promo schedule.
type RegionPriceRule struct {
	ID              uuid.UUID        `json:"id"`
	Region          string           `json:"region"`
	RegistrationFee decimal.Decimal  `json:"registration_fee"`
	ChattelFee      decimal.Decimal  `json:"chattel_fee"`
	InsuranceFee    *decimal.Decimal `json:"insurance_fee,omitempty"`
	InsuranceRate   *decimal.Decimal `json:"insurance_rate,omitempty"`
	ExtraFees       FeeList          `json:"extra_fees,omitempty"`
	PromoDiscount   decimal.Decimal  `json:"promo_discount"`
	Freebies        StringList       `json:"freebies,omitempty"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// FAQEntry is a knowledge-base answer.
type FAQEntry struct {
	ID        uuid.UUID  `json:"id"`
	Question  string     `json:"question"`
	Answer    string     `json:"answer"`
	Category  string     `json:"category"`
	Keywords  StringList `json:"keywords"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Quote is a frozen pricing snapshot produced at the end of a quote dialogue.
type Quote struct {
	ID          uuid.UUID       `json:"id"`
	UserID      string          `json:"user_id"`
	VariantID   uuid.UUID       `json:"variant_id"`
	VariantName string          `json:"variant_name"`
	Breakdown   json.RawMessage `json:"breakdown"`
	Status      QuoteStatus     `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
}

// AuditEvent records a policy decision or a business event for a user.
type AuditEvent struct {
	ID         uuid.UUID       `json:"id"`
	UserID     string          `json:"user_id"`
	Kind       AuditKind       `json:"kind"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Attributes is an open key/value attribute map stored as JSON text.
type Attributes map[string]interface{}

// Value implements driver.Valuer.
func (a Attributes) Value() (driver.Value, error) {
	if a == nil {
		return "{}", nil
	}
	return marshalColumn(a)
}

// Scan implements sql.Scanner.
func (a *Attributes) Scan(src interface{}) error {
	return scanColumn(src, a)
}

// StringList is a string slice stored as JSON text.
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	return marshalColumn(l)
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(src interface{}) error {
	return scanColumn(src, l)
}

// FeeList is a fee slice stored as JSON text.
type FeeList []Fee

// Value implements driver.Valuer.
func (l FeeList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	return marshalColumn(l)
}

// Scan implements sql.Scanner.
func (l *FeeList) Scan(src interface{}) error {
	return scanColumn(src, l)
}

func marshalColumn(v interface{}) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func scanColumn(src interface{}, dst interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported column type %T", src)
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dst)
}
