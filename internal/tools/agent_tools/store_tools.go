package agent_tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxagent/internal/server"
	"github.com/teemow/inboxagent/internal/state"
	"github.com/teemow/inboxagent/internal/tools/common"
)

// contextStats is the agent_context_stats result.
type contextStats struct {
	Mailbox   string              `json:"mailbox"`
	Store     state.Stats         `json:"store"`
	Cycles    int                 `json:"cycles"`
	LastCycle *server.CycleStatus `json:"last_cycle,omitempty"`
}

func registerStoreTools(s *mcpserver.MCPServer, sc *server.ServerContext) {
	readOnly := common.ToolOptions{ReadOnly: true}

	add(s, sc, mcp.NewTool(ToolContextStats,
		mcp.WithDescription("Show Context Store counts, the checkpoint and the last cycle"),
		mcp.WithReadOnlyHintAnnotation(true),
	), readOnly, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleContextStats(ctx, request, sc)
	})

	add(s, sc, mcp.NewTool(ToolListDrafts,
		mcp.WithDescription("List drafted replies awaiting or past operator approval"),
		mcp.WithString("status",
			mcp.Description("Only drafts with this status"),
			mcp.Enum(string(state.DraftPending), string(state.DraftSent), string(state.DraftDiscarded)),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	), readOnly, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleListDrafts(ctx, request, sc)
	})

	add(s, sc, mcp.NewTool(ToolListContacts,
		mcp.WithDescription("List supplier outreach contacts and their follow-up stage"),
		mcp.WithString("stage",
			mcp.Description("Only contacts in this stage"),
			mcp.Enum(string(state.StageInitial), string(state.StageFollowedUp1), string(state.StageFollowedUp2), string(state.StageClosed)),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	), readOnly, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleListContacts(ctx, request, sc)
	})

	add(s, sc, mcp.NewTool(ToolListTenders,
		mcp.WithDescription("List KOC tenders and the state of their attachment downloads"),
		mcp.WithString("status",
			mcp.Description("Only tenders with this status"),
			mcp.Enum(string(state.TenderDownloaded), string(state.TenderPartial), string(state.TenderFailed)),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	), readOnly, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleListTenders(ctx, request, sc)
	})
}

func handleContextStats(_ context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	out := contextStats{
		Mailbox: common.Operator(sc),
		Store:   sc.App().Store.Stats(),
		Cycles:  sc.Cycles(),
	}
	if last, ok := sc.LastCycle(); ok {
		out.LastCycle = &last
	}
	return jsonResult(out)
}

func handleListDrafts(_ context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	status := state.DraftStatus(common.StringArg(request.GetArguments(), "status"))
	if status != "" && !status.Valid() {
		return mcp.NewToolResultError(fmt.Sprintf("invalid status %q", status)), nil
	}

	drafts := []state.Draft{}
	for _, d := range sc.App().Store.Drafts() {
		if status == "" || d.Status == status {
			drafts = append(drafts, d)
		}
	}
	return jsonResult(drafts)
}

func handleListContacts(_ context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	stage := state.Stage(common.StringArg(request.GetArguments(), "stage"))
	if stage != "" && !stage.Valid() {
		return mcp.NewToolResultError(fmt.Sprintf("invalid stage %q", stage)), nil
	}

	contacts := []state.Contact{}
	for _, c := range sc.App().Store.Contacts() {
		if stage == "" || c.Stage == stage {
			contacts = append(contacts, c)
		}
	}
	return jsonResult(contacts)
}

func handleListTenders(_ context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	status := state.TenderStatus(common.StringArg(request.GetArguments(), "status"))
	if status != "" && !status.Valid() {
		return mcp.NewToolResultError(fmt.Sprintf("invalid status %q", status)), nil
	}

	tenders := []state.Tender{}
	for _, t := range sc.App().Store.Tenders() {
		if status == "" || t.Status == status {
			tenders = append(tenders, t)
		}
	}
	return jsonResult(tenders)
}
