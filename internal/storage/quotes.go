package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"github.com/spherical-ai/spherical/libs/sales-engine/internal/domain"
)

// QuoteRepository handles generated quotes.
type QuoteRepository struct {
	db DB
}

// NewQuoteRepository creates a new quote repository.
func NewQuoteRepository(db DB) *QuoteRepository {
	return &QuoteRepository{db: db}
}

// Create persists a quote. Quotes are never updated by the engine.
func (r *QuoteRepository) Create(ctx context.Context, q *Quote) error {
	if len(q.Breakdown) == 0 {
		return domain.Validation("quote breakdown is required", nil)
	}
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	if q.Status == "" {
		q.Status = QuoteStatusGenerated
	}
	q.CreatedAt = now()

	query := `
		INSERT INTO quotes (id, user_id, variant_id, variant_name, breakdown, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		q.ID, q.UserID, q.VariantID, q.VariantName, string(q.Breakdown), q.Status, q.CreatedAt,
	)
	return err
}

// GetByID retrieves a quote by ID.
func (r *QuoteRepository) GetByID(ctx context.Context, id uuid.UUID) (*Quote, error) {
	query := `
		SELECT id, user_id, variant_id, variant_name, breakdown, status, created_at
		FROM quotes WHERE id = $1
	`
	q := &Quote{}
	var breakdown string
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&q.ID, &q.UserID, &q.VariantID, &q.VariantName, &breakdown, &q.Status, &q.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	q.Breakdown = json.RawMessage(breakdown)
	return q, nil
}

// ListByUser returns a user's quotes, newest first.
func (r *QuoteRepository) ListByUser(ctx context.Context, userID string) ([]*Quote, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, variant_id, variant_name, breakdown, status, created_at
		FROM quotes WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var quotes []*Quote
	for rows.Next() {
		q := &Quote{}
		var breakdown string
		if err := rows.Scan(&q.ID, &q.UserID, &q.VariantID, &q.VariantName, &breakdown, &q.Status, &q.CreatedAt); err != nil {
			return nil, err
		}
		q.Breakdown = json.RawMessage(breakdown)
		quotes = append(quotes, q)
	}
	return quotes, rows.Err()
}

// AuditRepository handles the audit trail.
type AuditRepository struct {
	db DB
}

// NewAuditRepository creates a new audit repository.
func NewAuditRepository(db DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Record appends an audit event.
func (r *AuditRepository) Record(ctx context.Context, event *AuditEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = now()
	}
	payload := "{}"
	if len(event.Payload) > 0 {
		payload = string(event.Payload)
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, user_id, kind, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
	`, event.ID, event.UserID, event.Kind, payload, event.OccurredAt)
	return err
}

// ListByUser returns a user's audit events, newest first.
func (r *AuditRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*AuditEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, kind, payload, occurred_at
		FROM audit_events WHERE user_id = $1
		ORDER BY occurred_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*AuditEvent
	for rows.Next() {
		e := &AuditEvent{}
		var payload string
		if err := rows.Scan(&e.ID, &e.UserID, &e.Kind, &payload, &e.OccurredAt); err != nil {
			return nil, err
		}
		e.Payload = json.RawMessage(payload)
		events = append(events, e)
	}
	return events, rows.Err()
}
