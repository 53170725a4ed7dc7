package observability

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MetricsCollector records model traffic through an OpenTelemetry meter
// exported to a Prometheus registry.
type MetricsCollector struct {
	provider *sdkmetric.MeterProvider

	llmRequests    metric.Int64Counter
	llmLatency     metric.Float64Histogram
	llmPromptChars metric.Int64Counter
	llmReplyChars  metric.Int64Counter
}

// MetricsConfig configures the metrics collector.
type MetricsConfig struct {
	Enabled bool
	// Registerer receives the exported collectors. Nil means the default
	// Prometheus registerer.
	Registerer prometheus.Registerer
}

// NewMetricsCollector creates a collector. A disabled collector accepts
// every call and records nothing.
func NewMetricsCollector(config MetricsConfig) (*MetricsCollector, error) {
	if !config.Enabled {
		return &MetricsCollector{}, nil
	}
	reg := config.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter(tracerName)

	llmRequests, err := meter.Int64Counter(
		"meetflow.llm.requests",
		metric.WithDescription("Total number of LLM requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm_requests counter: %w", err)
	}

	llmLatency, err := meter.Float64Histogram(
		"meetflow.llm.latency",
		metric.WithDescription("LLM request latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm_latency histogram: %w", err)
	}

	llmPromptChars, err := meter.Int64Counter(
		"meetflow.llm.prompt.chars",
		metric.WithDescription("Characters sent to the LLM"),
		metric.WithUnit("{char}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm_prompt_chars counter: %w", err)
	}

	llmReplyChars, err := meter.Int64Counter(
		"meetflow.llm.reply.chars",
		metric.WithDescription("Characters received from the LLM"),
		metric.WithUnit("{char}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm_reply_chars counter: %w", err)
	}

	return &MetricsCollector{
		provider:       provider,
		llmRequests:    llmRequests,
		llmLatency:     llmLatency,
		llmPromptChars: llmPromptChars,
		llmReplyChars:  llmReplyChars,
	}, nil
}

// Shutdown flushes and stops the meter provider.
func (m *MetricsCollector) Shutdown(ctx context.Context) error {
	if m == nil || m.provider == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}

// RecordLLMRequest records one generation call. tag names the pipeline step
// that issued it.
func (m *MetricsCollector) RecordLLMRequest(ctx context.Context, model, tag, status string, latency time.Duration, promptChars, replyChars int) {
	if m == nil || m.llmRequests == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("model", model),
		attribute.String("tag", tag),
		attribute.String("status", status),
	}

	m.llmRequests.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.llmLatency.Record(ctx, latency.Seconds(), metric.WithAttributes(attrs...))
	m.llmPromptChars.Add(ctx, int64(promptChars), metric.WithAttributes(attribute.String("model", model)))
	if replyChars > 0 {
		m.llmReplyChars.Add(ctx, int64(replyChars), metric.WithAttributes(attribute.String("model", model)))
	}
}
