package common

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/teemow/inboxagent/internal/app"
	"github.com/teemow/inboxagent/internal/config"
	"github.com/teemow/inboxagent/internal/instrumentation"
	"github.com/teemow/inboxagent/internal/mailbox"
	"github.com/teemow/inboxagent/internal/server"
)

func newServerContext(t *testing.T, metrics *instrumentation.Metrics) *server.ServerContext {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.Source.Type = config.SourceIMAP
	cfg.IMAP.Username = "buyer@yahoo.example"
	cfg.Persistence.Path = filepath.Join(dir, "context.json")
	cfg.Tender.Dir = filepath.Join(dir, "tenders")

	a, err := app.Build(context.Background(), cfg, metrics, slog.New(slog.NewTextHandler(io.Discard, nil)), app.Options{
		Source: mailbox.NewStaticSource(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	sc := server.NewServerContext(context.Background(), a)
	t.Cleanup(func() { _ = sc.Shutdown() })
	return sc
}

func request(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func TestArgs(t *testing.T) {
	args := map[string]interface{}{
		"kind":    "  weekly_outreach ",
		"publish": true,
		"count":   3,
		"ids":     []interface{}{"m-1", 7, "m-2"},
	}

	assert.Equal(t, "weekly_outreach", StringArg(args, "kind"))
	assert.Empty(t, StringArg(args, "count"))
	assert.Empty(t, StringArg(nil, "kind"))

	assert.True(t, BoolArg(args, "publish", false))
	assert.True(t, BoolArg(args, "missing", true))
	assert.False(t, BoolArg(args, "kind", false))

	assert.Equal(t, "m-1,m-2", TargetArg(args, "ids"))
	assert.Equal(t, "  weekly_outreach ", TargetArg(args, "kind"))
	assert.Empty(t, TargetArg(args, "count"))
}

func TestOperator(t *testing.T) {
	assert.Empty(t, Operator(nil))
	assert.Equal(t, "buyer@yahoo.example", Operator(newServerContext(t, nil)))
}

func TestInstrumentedToolHandler(t *testing.T) {
	tests := []struct {
		name       string
		handler    ToolHandler
		wantErr    bool
		wantStatus string
		wantMsg    string
	}{
		{
			name: "success",
			handler: func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return mcp.NewToolResultText("ok"), nil
			},
			wantStatus: instrumentation.StatusSuccess,
			wantMsg:    "tool_executed",
		},
		{
			name: "error result",
			handler: func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return mcp.NewToolResultError("draft not found"), nil
			},
			wantStatus: instrumentation.StatusError,
			wantMsg:    "tool_failed",
		},
		{
			name: "go error",
			handler: func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return nil, errors.New("boom")
			},
			wantErr:    true,
			wantStatus: instrumentation.StatusError,
			wantMsg:    "tool_failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := sdkmetric.NewManualReader()
			mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
			metrics, err := instrumentation.NewMetrics(mp.Meter("test"), false)
			require.NoError(t, err)

			sc := newServerContext(t, metrics)
			var buf bytes.Buffer
			sc.SetAuditLogger(instrumentation.NewAuditLogger(
				slog.New(slog.NewJSONHandler(&buf, nil)),
				instrumentation.AuditLoggingConfig{Enabled: true},
			))

			wrapped := InstrumentedToolHandler("agent_update_draft", sc, ToolOptions{TargetArg: "sourceMessageIds"}, tt.handler)
			_, err = wrapped(context.Background(), request(map[string]any{"sourceMessageIds": []interface{}{"m-1", "m-2"}}))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}

			var rec map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
			assert.Equal(t, tt.wantMsg, rec["msg"])
			assert.Equal(t, "agent_update_draft", rec["tool"])
			assert.Equal(t, "m-1,m-2", rec["target"])
			assert.Equal(t, "yahoo.example", rec["operator_domain"])

			var rm metricdata.ResourceMetrics
			require.NoError(t, reader.Collect(context.Background(), &rm))
			assert.Equal(t, tt.wantStatus, toolStatus(t, rm))
		})
	}
}

func TestInstrumentedToolHandler_NoInstrumentation(t *testing.T) {
	sc := newServerContext(t, nil)
	called := false
	wrapped := InstrumentedToolHandler("agent_context_stats", sc, ToolOptions{ReadOnly: true},
		func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			called = true
			return mcp.NewToolResultText("ok"), nil
		})

	result, err := wrapped(context.Background(), request(nil))
	require.NoError(t, err)
	assert.True(t, called)
	assert.False(t, result.IsError)
}

func TestToolError(t *testing.T) {
	assert.EqualError(t, toolError(mcp.NewToolResultError("bad kind")), "bad kind")
	assert.True(t, strings.Contains(toolError(&mcp.CallToolResult{IsError: true}).Error(), "error result"))
}

func toolStatus(t *testing.T, rm metricdata.ResourceMetrics) string {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "agent_tool_invocations_total" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			require.Len(t, sum.DataPoints, 1)
			status, _ := sum.DataPoints[0].Attributes.Value("status")
			return status.AsString()
		}
	}
	t.Fatal("agent_tool_invocations_total not recorded")
	return ""
}
