package common

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/teemow/inboxagent/internal/instrumentation"
	"github.com/teemow/inboxagent/internal/server"
)

// ToolHandler is the signature of an MCP tool handler.
type ToolHandler func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)

// ToolOptions describes a tool for instrumentation.
type ToolOptions struct {
	// ReadOnly marks tools that do not change the Context Store or send mail.
	ReadOnly bool
	// TargetArg names the argument recorded as the audit target.
	TargetArg string
}

// InstrumentedToolHandler wraps a tool handler with a span, metrics and
// audit logging. A result with IsError set counts as a failure.
//
// Usage:
//
//	s.AddTool(myTool, common.InstrumentedToolHandler("my_tool", sc, common.ToolOptions{ReadOnly: true}, handler))
func InstrumentedToolHandler(toolName string, sc *server.ServerContext, opts ToolOptions, handler ToolHandler) ToolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		metrics := sc.Metrics()
		auditLogger := sc.AuditLogger()
		operator := Operator(sc)

		ctx, span := instrumentation.StartToolSpan(ctx, toolName,
			instrumentation.NewSpanAttributeBuilder().WithAccount(operator).WithReadOnly(opts.ReadOnly).Build()...)
		defer span.End()

		start := time.Now()
		invocation := instrumentation.NewToolInvocation(toolName).
			WithOperator(operator).
			WithSpanContext(ctx)
		if opts.TargetArg != "" {
			invocation.WithTarget(TargetArg(request.GetArguments(), opts.TargetArg))
		}

		result, err := handler(ctx, request)

		failure := err
		if failure == nil && result != nil && result.IsError {
			failure = toolError(result)
		}
		invocation.Complete(failure)
		if failure != nil {
			instrumentation.SetSpanError(span, failure)
		} else {
			instrumentation.SetSpanSuccess(span)
		}

		metrics.RecordToolInvocationWithAccount(ctx, toolName, invocation.Status(), operator, time.Since(start))
		auditLogger.LogToolInvocation(invocation)

		return result, err
	}
}

type resultError string

func (e resultError) Error() string { return string(e) }

// toolError extracts the message of an error result.
func toolError(result *mcp.CallToolResult) error {
	for _, c := range result.Content {
		if text, ok := mcp.AsTextContent(c); ok {
			return resultError(text.Text)
		}
	}
	return resultError("tool returned an error result")
}
