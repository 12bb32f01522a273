package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/sales-engine/internal/guardrail"
	"github.com/spherical-ai/spherical/libs/sales-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/sales-engine/internal/storage"
	"github.com/spherical-ai/spherical/libs/sales-engine/internal/storage/storagetest"
)

func TestAuditLogger_PersistsEvents(t *testing.T) {
	db := storagetest.NewDB(t)
	repo := storage.NewAuditRepository(db)
	audit := NewAuditLogger(nil, repo)
	ctx := context.Background()

	audit.GuardrailDenied(ctx, "u1", &guardrail.Decision{
		Check:         guardrail.CheckPriceValidation,
		Reason:        guardrail.ReasonPriceMismatch,
		OfficialPrice: decimal.NewFromInt(1198000),
		DiffPercent:   decimal.RequireFromString("8.51"),
	})
	audit.QuoteGenerated(ctx, &storage.Quote{ID: uuid.New(), UserID: "u1", VariantID: uuid.New(), VariantName: "Vios XLE CVT"})
	audit.FlowCancelled(ctx, "u1")
	audit.StalePrice(ctx, "u2", &storage.CatalogVariant{ID: uuid.New(), UpdatedAt: time.Now().Add(-40 * 24 * time.Hour)})

	events, err := repo.ListByUser(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, events, 3)

	kinds := make([]storage.AuditKind, len(events))
	for i, e := range events {
		kinds[i] = e.Kind
	}
	assert.ElementsMatch(t, []storage.AuditKind{
		storage.AuditKindGuardrailDenied,
		storage.AuditKindQuoteGenerated,
		storage.AuditKindFlowCancelled,
	}, kinds)

	for _, e := range events {
		if e.Kind != storage.AuditKindGuardrailDenied {
			continue
		}
		var payload map[string]string
		require.NoError(t, json.Unmarshal(e.Payload, &payload))
		assert.Equal(t, "price_mismatch", payload["reason"])
		assert.Equal(t, "8.51", payload["diff_percent"])
	}
}

type failingWriter struct{}

func (failingWriter) Record(context.Context, *storage.AuditEvent) error {
	return errors.New("db down")
}

func TestAuditLogger_WriteFailureIsLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := observability.NewLogger(observability.LogConfig{Level: "debug", Output: &buf})
	audit := NewAuditLogger(logger, failingWriter{})

	assert.NotPanics(t, func() { audit.FlowCancelled(context.Background(), "u1") })
	assert.Contains(t, buf.String(), "failed to persist audit event")
	assert.Contains(t, buf.String(), "Audit event")
}

func TestAuditLogger_LogOnly(t *testing.T) {
	require.NoError(t, NewAuditLogger(nil, nil).LogEvent(context.Background(), AuditEvent{Kind: storage.AuditKindFlowCancelled}))
}
