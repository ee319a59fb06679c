// Package instrumentation provides OpenTelemetry metrics, tracing and the
// tool audit trail for the inboxagent triage agent.
//
// # Metrics
//
// Pipeline:
//   - agent_cycles_total: processing cycles by status (success, partial, error)
//   - agent_cycle_duration_seconds: cycle durations
//   - agent_messages_total: fetched messages by category and outcome
//   - agent_handler_duration_seconds: handler durations by category and status
//   - agent_followups_total: outreach stage transitions
//   - agent_reports_total: report publications by kind and status
//
// Mail providers:
//   - agent_mail_operations_total: Gmail and IMAP calls by service, operation, status
//   - agent_mail_operation_duration_seconds: provider call durations
//
// Operator surface:
//   - agent_tool_invocations_total, agent_tool_duration_seconds: MCP tools
//   - http_requests_total, http_request_duration_seconds: health and metrics server
//
// Every recorder method is safe on a nil *Metrics, so components take an
// optional recorder without guarding each call.
//
// # Tracing
//
// Spans are created per cycle ("cycle"), per handler invocation
// ("handler.<category>"), per provider call ("mail.<service>.<operation>")
// and per tool call ("tool.<name>").
//
// # Configuration
//
// DefaultConfig reads:
//   - INSTRUMENTATION_ENABLED: enable or disable instrumentation (default: true)
//   - METRICS_EXPORTER: prometheus, otlp or stdout (default: prometheus)
//   - TRACING_EXPORTER: otlp, stdout or none (default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint for traces and metrics
//   - OTEL_EXPORTER_OTLP_INSECURE: plain HTTP to the OTLP endpoint (default: false)
//   - OTEL_TRACES_SAMPLER_ARG: sampling rate from 0.0 to 1.0 (default: 0.1)
//   - OTEL_SERVICE_NAME: service name (default: inboxagent)
//   - OTEL_RESOURCE_ATTRIBUTES: extra resource attributes, merged into the service resource
//   - METRICS_INTERVAL: push interval for the otlp and stdout readers (default: 30s)
//   - METRICS_DETAILED_LABELS: add the mailbox label to tool metrics (default: false)
//   - AUDIT_LOGGING_ENABLED, AUDIT_LOGGING_INCLUDE_PII, AUDIT_LOGGING_LEVEL: tool audit trail
//
// # Example Usage
//
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	m := provider.Metrics()
//	m.RecordCycle(ctx, instrumentation.StatusSuccess, time.Since(start))
//	m.RecordMailOperation(ctx, instrumentation.ServiceGmail, instrumentation.OperationList,
//		instrumentation.StatusSuccess, time.Since(start))
package instrumentation
