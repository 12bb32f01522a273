package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "debug", Format: "json", Output: &buf, ServiceName: "sales-engine"})

	ctx := ContextWithRequestID(context.Background(), "req-1")
	logger.WithContext(ctx).WithUser("u-42").Info().Str("intent", "greeting").Msg("turn handled")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "sales-engine", entry["service"])
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, "u-42", entry["user_id"])
	assert.Equal(t, "greeting", entry["intent"])
	assert.Equal(t, "turn handled", entry["message"])
}

func TestLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "warn", Output: &buf})

	logger.Info().Msg("hidden")
	assert.Empty(t, buf.String())

	logger.Warn().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveTurn("greeting", time.Now())
	m.ObserveTurn("greeting", time.Now())
	m.Fallback("timeout")
	m.Denied("pricing")
	m.QuoteGenerated()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Turns.WithLabelValues("greeting")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ClassifierFallbacks.WithLabelValues("timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GuardrailDenials.WithLabelValues("pricing")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QuotesGenerated))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveTurn("x", time.Now())
		m.Fallback("x")
		m.Denied("x")
		m.QuoteGenerated()
	})
}
