package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys
const (
	attrMethod     = "method"
	attrPath       = "path"
	attrStatus     = "status"
	attrOperation  = "operation"
	attrService    = "service"
	attrTool       = "tool"
	attrAccount    = "account"
	attrCategory   = "category"
	attrOutcome    = "outcome"
	attrTransition = "transition"
	attrKind       = "kind"
)

// Metrics provides methods for recording observability metrics. A nil
// *Metrics records nothing, so callers never need to check.
type Metrics struct {
	// HTTP metrics
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	// Cycle metrics
	cyclesTotal     metric.Int64Counter
	cycleDuration   metric.Float64Histogram
	messagesTotal   metric.Int64Counter
	handlerDuration metric.Float64Histogram
	followUpsTotal  metric.Int64Counter
	reportsTotal    metric.Int64Counter

	// Mail provider metrics
	mailOperationsTotal   metric.Int64Counter
	mailOperationDuration metric.Float64Histogram

	// MCP Tool metrics
	toolInvocationsTotal metric.Int64Counter
	toolDuration         metric.Float64Histogram

	// detailedLabels controls whether high-cardinality labels are included
	detailedLabels bool
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The detailedLabels parameter controls whether high-cardinality labels are included.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{
		detailedLabels: detailedLabels,
	}

	var err error

	// HTTP Metrics
	m.httpRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	m.httpRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_request_duration_seconds histogram: %w", err)
	}

	// Cycle Metrics
	m.cyclesTotal, err = meter.Int64Counter(
		"agent_cycles_total",
		metric.WithDescription("Total number of processing cycles"),
		metric.WithUnit("{cycle}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent_cycles_total counter: %w", err)
	}

	m.cycleDuration, err = meter.Float64Histogram(
		"agent_cycle_duration_seconds",
		metric.WithDescription("Processing cycle duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1.0, 5.0, 10.0, 30.0, 60.0, 300.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent_cycle_duration_seconds histogram: %w", err)
	}

	m.messagesTotal, err = meter.Int64Counter(
		"agent_messages_total",
		metric.WithDescription("Total number of fetched messages by category and outcome"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent_messages_total counter: %w", err)
	}

	m.handlerDuration, err = meter.Float64Histogram(
		"agent_handler_duration_seconds",
		metric.WithDescription("Category handler duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent_handler_duration_seconds histogram: %w", err)
	}

	m.followUpsTotal, err = meter.Int64Counter(
		"agent_followups_total",
		metric.WithDescription("Total number of outreach stage transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent_followups_total counter: %w", err)
	}

	m.reportsTotal, err = meter.Int64Counter(
		"agent_reports_total",
		metric.WithDescription("Total number of report publications by kind and status"),
		metric.WithUnit("{report}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent_reports_total counter: %w", err)
	}

	// Mail provider Metrics
	m.mailOperationsTotal, err = meter.Int64Counter(
		"agent_mail_operations_total",
		metric.WithDescription("Total number of mail provider operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent_mail_operations_total counter: %w", err)
	}

	m.mailOperationDuration, err = meter.Float64Histogram(
		"agent_mail_operation_duration_seconds",
		metric.WithDescription("Mail provider operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent_mail_operation_duration_seconds histogram: %w", err)
	}

	// MCP Tool Metrics
	m.toolInvocationsTotal, err = meter.Int64Counter(
		"agent_tool_invocations_total",
		metric.WithDescription("Total number of MCP tool invocations"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent_tool_invocations_total counter: %w", err)
	}

	m.toolDuration, err = meter.Float64Histogram(
		"agent_tool_duration_seconds",
		metric.WithDescription("MCP tool execution duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent_tool_duration_seconds histogram: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request with method, path, status code, and duration.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m == nil || m.httpRequestsTotal == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	}

	m.httpRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.httpRequestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordCycle records a finished processing cycle.
// Status is one of "success", "partial" or "error".
func (m *Metrics) RecordCycle(ctx context.Context, status string, duration time.Duration) {
	if m == nil || m.cyclesTotal == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String(attrStatus, status))
	m.cyclesTotal.Add(ctx, 1, attrs)
	m.cycleDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordMessage records the outcome of one fetched message.
func (m *Metrics) RecordMessage(ctx context.Context, category, outcome string) {
	if m == nil || m.messagesTotal == nil {
		return
	}

	m.messagesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrCategory, category),
		attribute.String(attrOutcome, outcome),
	))
}

// RecordHandler records the duration of one handler invocation.
func (m *Metrics) RecordHandler(ctx context.Context, category, status string, duration time.Duration) {
	if m == nil || m.handlerDuration == nil {
		return
	}

	m.handlerDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String(attrCategory, category),
		attribute.String(attrStatus, status),
	))
}

// RecordMailOperation records a mail provider operation.
//
// Parameters:
//   - service: provider name (gmail, imap)
//   - operation: operation type (list, get, send, attachment)
//   - status: result status ("success" or "error")
//   - duration: time taken for the operation
func (m *Metrics) RecordMailOperation(ctx context.Context, service, operation, status string, duration time.Duration) {
	if m == nil || m.mailOperationsTotal == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(attrService, service),
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	)

	m.mailOperationsTotal.Add(ctx, 1, attrs)
	m.mailOperationDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordFollowUp records outreach transitions, e.g. "initial->followed_up_1".
func (m *Metrics) RecordFollowUp(ctx context.Context, transition string, n int) {
	if m == nil || m.followUpsTotal == nil || n == 0 {
		return
	}

	m.followUpsTotal.Add(ctx, int64(n), metric.WithAttributes(attribute.String(attrTransition, transition)))
}

// RecordReport records a report publication attempt.
func (m *Metrics) RecordReport(ctx context.Context, kind, status string) {
	if m == nil || m.reportsTotal == nil {
		return
	}

	m.reportsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrKind, kind),
		attribute.String(attrStatus, status),
	))
}

// RecordToolInvocation records an MCP tool invocation with tool name, status, and duration.
func (m *Metrics) RecordToolInvocation(ctx context.Context, toolName, status string, duration time.Duration) {
	m.RecordToolInvocationWithAccount(ctx, toolName, status, "", duration)
}

// RecordToolInvocationWithAccount records an MCP tool invocation with account info.
// The account label is only added when detailedLabels is enabled.
func (m *Metrics) RecordToolInvocationWithAccount(ctx context.Context, toolName, status, account string, duration time.Duration) {
	if m == nil || m.toolInvocationsTotal == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrTool, toolName),
		attribute.String(attrStatus, status),
	}

	if m.detailedLabels && account != "" {
		attrs = append(attrs, attribute.String(attrAccount, account))
	}

	m.toolInvocationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.toolDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}
