package agent_tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxagent/internal/server"
	"github.com/teemow/inboxagent/internal/state"
	"github.com/teemow/inboxagent/internal/tools/batch"
	"github.com/teemow/inboxagent/internal/tools/common"
)

// Draft actions.
const (
	ActionSend    = "send"
	ActionDiscard = "discard"
)

func registerActionTools(s *mcpserver.MCPServer, sc *server.ServerContext) {
	add(s, sc, mcp.NewTool(ToolRunCycle,
		mcp.WithDescription("Run one processing cycle now: fetch, triage, handle, follow up, publish due reports and save"),
		mcp.WithDestructiveHintAnnotation(false),
	), common.ToolOptions{}, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleRunCycle(ctx, request, sc)
	})

	add(s, sc, mcp.NewTool(ToolUpdateDraft,
		mcp.WithDescription("Send or discard one or more pending drafts. Sent drafts are replies to their source message."),
		mcp.WithString("sourceMessageIds",
			mcp.Required(),
			mcp.Description("Source message ID (string) or array of IDs of the drafts"),
		),
		mcp.WithString("action",
			mcp.Required(),
			mcp.Description("What to do with the drafts"),
			mcp.Enum(ActionSend, ActionDiscard),
		),
	), common.ToolOptions{TargetArg: "sourceMessageIds"}, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleUpdateDraft(ctx, request, sc)
	})

	add(s, sc, mcp.NewTool(ToolRetryTenders,
		mcp.WithDescription("Download the missing attachments of partial or failed tenders again"),
		mcp.WithString("sourceMessageIds",
			mcp.Required(),
			mcp.Description("Source message ID (string) or array of IDs of the tenders"),
		),
	), common.ToolOptions{TargetArg: "sourceMessageIds"}, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleRetryTenders(ctx, request, sc)
	})
}

func handleRunCycle(ctx context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	sum, err := sc.RunCycle(ctx)
	if err != nil {
		msg := fmt.Sprintf("Cycle aborted: %v", err)
		if sum != nil {
			msg += "\n" + sum.Format()
		}
		return mcp.NewToolResultError(msg), nil
	}
	return mcp.NewToolResultText(sum.Format()), nil
}

func handleUpdateDraft(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	ids, err := batch.ParseStringOrArray(args["sourceMessageIds"], "sourceMessageIds")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	a := sc.App()
	var update func(ctx context.Context, id string) (state.Draft, error)
	switch action := common.StringArg(args, "action"); action {
	case ActionSend:
		update = a.SendDraft
	case ActionDiscard:
		update = a.DiscardDraft
	default:
		return mcp.NewToolResultError(fmt.Sprintf("action must be %q or %q, got %q", ActionSend, ActionDiscard, action)), nil
	}

	results := batch.ProcessBatch(ctx, ids, func(ctx context.Context, id string) (string, error) {
		d, err := update(ctx, id)
		if err != nil {
			return "", err
		}
		if d.SentID != "" {
			return fmt.Sprintf("%s (sent id %s)", d.Status, d.SentID), nil
		}
		return string(d.Status), nil
	})
	return mcp.NewToolResultText(batch.FormatResults(results)), nil
}

func handleRetryTenders(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	ids, err := batch.ParseStringOrArray(request.GetArguments()["sourceMessageIds"], "sourceMessageIds")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	results := batch.ProcessBatch(ctx, ids, func(ctx context.Context, id string) (string, error) {
		t, err := sc.App().RetryTender(ctx, id)
		if err != nil {
			return "", err
		}
		if t.Status != state.TenderDownloaded {
			return "", fmt.Errorf("tender still %s: %s", t.Status, t.LastError)
		}
		return fmt.Sprintf("%s (%d of %d attachments)", t.Status, len(t.Handles), len(t.AttachmentRefs)), nil
	})
	return mcp.NewToolResultText(batch.FormatResults(results)), nil
}
