// Package session persists per-user quote dialogue state between turns.
package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Step is a quote dialogue state.
type Step string

const (
	StepIdle             Step = "IDLE"
	StepAskVariant       Step = "ASK_VARIANT"
	StepAskPaymentType   Step = "ASK_PAYMENT_TYPE"
	StepAskDownPayment   Step = "ASK_DOWN_PAYMENT"
	StepAskFinancingTerm Step = "ASK_FINANCING_TERM"
	StepGenerateQuote    Step = "GENERATE_QUOTE"
)

// PaymentType is how the user intends to pay.
type PaymentType string

const (
	PaymentCash      PaymentType = "cash"
	PaymentFinancing PaymentType = "financing"
)

// Context is the data collected so far in a quote dialogue.
type Context struct {
	VariantID          uuid.UUID        `json:"variant_id,omitempty"`
	VariantName        string           `json:"variant_name,omitempty"`
	PaymentType        PaymentType      `json:"payment_type,omitempty"`
	DownPaymentPercent *decimal.Decimal `json:"down_payment_percent,omitempty"`
	Months             int              `json:"months,omitempty"`
	Region             string           `json:"region,omitempty"`
}

// State is one user's dialogue session.
type State struct {
	UserID    string    `json:"user_id"`
	Step      Step      `json:"step"`
	Context   Context   `json:"context"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New returns an idle session for userID.
func New(userID string) *State {
	return &State{UserID: userID, Step: StepIdle}
}

// Active reports whether a dialogue is in progress.
func (s *State) Active() bool {
	return s != nil && s.Step != "" && s.Step != StepIdle
}

// Store is the session persistence contract. Get returns (nil, nil) when
// the user has no session; Delete tolerates a missing key.
type Store interface {
	Get(ctx context.Context, userID string) (*State, error)
	Save(ctx context.Context, state *State) error
	Delete(ctx context.Context, userID string) error
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}
