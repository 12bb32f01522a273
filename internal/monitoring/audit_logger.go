// Package monitoring records the engine's audit trail.
package monitoring

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/spherical-ai/spherical/libs/sales-engine/internal/guardrail"
	"github.com/spherical-ai/spherical/libs/sales-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/sales-engine/internal/storage"
)

// AuditWriter persists audit events.
type AuditWriter interface {
	Record(ctx context.Context, event *storage.AuditEvent) error
}

// AuditLogger writes audit events to the structured log and, when a writer
// is configured, to the audit_events table.
type AuditLogger struct {
	logger *observability.Logger
	writer AuditWriter
}

// AuditEvent represents an auditable action.
type AuditEvent struct {
	ID         uuid.UUID
	UserID     string
	Kind       storage.AuditKind
	Payload    map[string]interface{}
	OccurredAt time.Time
}

// NewAuditLogger creates a new audit logger. writer may be nil.
func NewAuditLogger(logger *observability.Logger, writer AuditWriter) *AuditLogger {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &AuditLogger{logger: logger, writer: writer}
}

// LogEvent records an audit event.
func (a *AuditLogger) LogEvent(ctx context.Context, event AuditEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	a.logger.WithContext(ctx).Info().
		Str("event_id", event.ID.String()).
		Str("user_id", event.UserID).
		Str("kind", string(event.Kind)).
		Msg("Audit event")

	if a.writer == nil {
		return nil
	}

	var payload []byte
	if event.Payload != nil {
		var err error
		if payload, err = json.Marshal(event.Payload); err != nil {
			return err
		}
	}
	return a.writer.Record(ctx, &storage.AuditEvent{
		ID:         event.ID,
		UserID:     event.UserID,
		Kind:       event.Kind,
		Payload:    payload,
		OccurredAt: event.OccurredAt,
	})
}

// GuardrailDenied records a denied check. The reason code stays internal.
func (a *AuditLogger) GuardrailDenied(ctx context.Context, userID string, d *guardrail.Decision) {
	payload := map[string]interface{}{
		"check":  d.Check,
		"reason": string(d.Reason),
	}
	if d.Variant != nil {
		payload["variant_id"] = d.Variant.ID.String()
	}
	if d.Check == guardrail.CheckPriceValidation {
		payload["official_price"] = d.OfficialPrice.String()
		payload["diff_percent"] = d.DiffPercent.String()
	}
	a.record(ctx, AuditEvent{UserID: userID, Kind: storage.AuditKindGuardrailDenied, Payload: payload})
}

// StalePrice records that a staleness warning was attached to an answer.
func (a *AuditLogger) StalePrice(ctx context.Context, userID string, v *storage.CatalogVariant) {
	a.record(ctx, AuditEvent{
		UserID: userID,
		Kind:   storage.AuditKindStaleWarning,
		Payload: map[string]interface{}{
			"variant_id": v.ID.String(),
			"updated_at": v.UpdatedAt.Format(time.RFC3339),
		},
	})
}

// QuoteGenerated records a persisted quote.
func (a *AuditLogger) QuoteGenerated(ctx context.Context, q *storage.Quote) {
	a.record(ctx, AuditEvent{
		UserID: q.UserID,
		Kind:   storage.AuditKindQuoteGenerated,
		Payload: map[string]interface{}{
			"quote_id":     q.ID.String(),
			"variant_id":   q.VariantID.String(),
			"variant_name": q.VariantName,
		},
	})
}

// FlowCancelled records a user-cancelled quote dialogue.
func (a *AuditLogger) FlowCancelled(ctx context.Context, userID string) {
	a.record(ctx, AuditEvent{UserID: userID, Kind: storage.AuditKindFlowCancelled})
}

// record never fails the turn; write errors are logged.
func (a *AuditLogger) record(ctx context.Context, event AuditEvent) {
	if err := a.LogEvent(ctx, event); err != nil {
		a.logger.Warn().Err(err).Str("kind", string(event.Kind)).Msg("failed to persist audit event")
	}
}
