package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/flowpilot-io/flowpilot/pkg/workflow"
)

// PrometheusMetrics records execution and trigger metrics through the otel
// SDK with a prometheus exporter. A zero-value instance is a safe no-op,
// which is what a disabled metrics config produces.
type PrometheusMetrics struct {
	executionDuration   metric.Float64Histogram
	executionsTotal     metric.Int64Counter
	executionErrors     metric.Int64Counter
	rateLimitRejects    metric.Int64Counter
	triggerMatchesTotal metric.Int64Counter
}

// InitMetrics sets up the prometheus exporter and instruments. With enabled
// false every recording call becomes a no-op.
func InitMetrics(enabled bool) (*PrometheusMetrics, error) {
	if !enabled {
		return &PrometheusMetrics{}, nil
	}

	promExporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(promExporter),
	)
	meter := meterProvider.Meter("flowpilot")

	executionDuration, err := meter.Float64Histogram(
		"flowpilot_execution_duration_seconds",
		metric.WithDescription("Workflow execution duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create execution duration histogram: %w", err)
	}

	executionsTotal, err := meter.Int64Counter(
		"flowpilot_executions_total",
		metric.WithDescription("Total workflow executions dispatched"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create executions counter: %w", err)
	}

	executionErrors, err := meter.Int64Counter(
		"flowpilot_execution_errors_total",
		metric.WithDescription("Total workflow executions that did not complete"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create execution errors counter: %w", err)
	}

	rateLimitRejects, err := meter.Int64Counter(
		"flowpilot_rate_limit_rejections_total",
		metric.WithDescription("Total executions denied by the rate limiter"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limit rejections counter: %w", err)
	}

	triggerMatches, err := meter.Int64Counter(
		"flowpilot_trigger_matches_total",
		metric.WithDescription("Total trigger matches by recommended action"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create trigger matches counter: %w", err)
	}

	return &PrometheusMetrics{
		executionDuration:   executionDuration,
		executionsTotal:     executionsTotal,
		executionErrors:     executionErrors,
		rateLimitRejects:    rateLimitRejects,
		triggerMatchesTotal: triggerMatches,
	}, nil
}

// RecordExecution records one dispatched execution outcome.
func (m *PrometheusMetrics) RecordExecution(platformName string, status workflow.Status, duration time.Duration) {
	if m == nil || m.executionsTotal == nil {
		return
	}

	ctx := context.Background()
	attrs := []attribute.KeyValue{
		attribute.String("platform", platformName),
		attribute.String("status", string(status)),
	}

	m.executionDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.executionsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))

	if status != workflow.StatusCompleted && m.executionErrors != nil {
		m.executionErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordRateLimitRejection records one admission denial.
func (m *PrometheusMetrics) RecordRateLimitRejection(agentID string) {
	if m == nil || m.rateLimitRejects == nil {
		return
	}
	m.rateLimitRejects.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("agent_id", agentID)))
}

// RecordTriggerMatch records one matched message by recommended action.
func (m *PrometheusMetrics) RecordTriggerMatch(action workflow.RecommendedAction) {
	if m == nil || m.triggerMatchesTotal == nil {
		return
	}
	m.triggerMatchesTotal.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("action", string(action))))
}

// MetricsHandler serves the prometheus scrape endpoint.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
