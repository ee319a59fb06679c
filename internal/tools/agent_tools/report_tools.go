package agent_tools

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxagent/internal/report"
	"github.com/teemow/inboxagent/internal/server"
	"github.com/teemow/inboxagent/internal/tools/common"
)

func registerReportTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) {
	description := "Render a report from the Context Store. Publishing sends it to the configured sinks " +
		"and records its period, so the scheduled report continues from it."
	if readOnly {
		description = "Render a report preview from the Context Store"
	}

	add(s, sc, mcp.NewTool(ToolGenerateReport,
		mcp.WithDescription(description),
		mcp.WithString("kind",
			mcp.Required(),
			mcp.Description("Report kind"),
			mcp.Enum(string(report.WeeklyOutreach), string(report.BiweeklyMedical)),
		),
		mcp.WithString("asOf",
			mcp.Description("End of the report window as RFC 3339 (default: now)"),
		),
		mcp.WithBoolean("publish",
			mcp.Description("Publish the report instead of only returning it (default: false)"),
		),
	), common.ToolOptions{ReadOnly: readOnly, TargetArg: "kind"}, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleGenerateReport(ctx, request, sc, readOnly)
	})
}

func handleGenerateReport(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext, readOnly bool) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	kind, err := report.ParseKind(common.StringArg(args, "kind"))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var asOf time.Time
	if raw := common.StringArg(args, "asOf"); raw != "" {
		if asOf, err = time.Parse(time.RFC3339, raw); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("asOf must be RFC 3339: %v", err)), nil
		}
	}

	publish := common.BoolArg(args, "publish", false)
	if publish && readOnly {
		return mcp.NewToolResultError("publishing reports is disabled in read-only mode"), nil
	}

	rep, err := sc.App().GenerateReport(ctx, kind, asOf, publish)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to generate report: %v", err)), nil
	}
	return mcp.NewToolResultText(rep.Content), nil
}
