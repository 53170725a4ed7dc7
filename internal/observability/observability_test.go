package observability

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel(" error "))
	assert.Equal(t, slog.LevelInfo, ParseLevel("chatty"))
}

func TestLoggerJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "info", Format: "json", Output: &buf})

	logger.Debug("hidden")
	logger.Info("stage done", "stage", "plan_actions")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"stage":"plan_actions"`)
}

func TestNoopTracerSpans(t *testing.T) {
	tp := NoopTracerProvider()
	ctx, span := tp.StartSpan(context.Background(), SpanWorkflowRun)
	_, child := ChildSpan(ctx, SpanStageRun)
	EndSpan(child, errors.New("boom"))
	EndSpan(span, nil)
	require.NoError(t, tp.Shutdown(context.Background()))

	var nilProvider *TracerProvider
	_, span = nilProvider.StartSpan(context.Background(), SpanLLMGenerate)
	EndSpan(span, nil)
}

func TestMetricsCollectorExportsToRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetricsCollector(MetricsConfig{Enabled: true, Registerer: reg})
	require.NoError(t, err)
	defer func() { _ = m.Shutdown(context.Background()) }()

	m.RecordLLMRequest(context.Background(), "gpt-test", "plan_actions", "success", 150*time.Millisecond, 120, 40)

	families, err := reg.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	joined := strings.Join(names, ",")
	assert.Contains(t, joined, "meetflow_llm_requests")
	assert.Contains(t, joined, "meetflow_llm_latency")
}

func TestDisabledMetricsCollectorIsInert(t *testing.T) {
	m, err := NewMetricsCollector(MetricsConfig{})
	require.NoError(t, err)
	m.RecordLLMRequest(context.Background(), "m", "t", "error", time.Second, 1, 0)
	require.NoError(t, m.Shutdown(context.Background()))

	var nilCollector *MetricsCollector
	nilCollector.RecordLLMRequest(context.Background(), "m", "t", "error", time.Second, 1, 0)
}
