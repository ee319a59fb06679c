package agent_tools

import (
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxagent/internal/server"
	"github.com/teemow/inboxagent/internal/tools/common"
)

// Tool names.
const (
	ToolRunCycle       = "agent_run_cycle"
	ToolContextStats   = "agent_context_stats"
	ToolListDrafts     = "agent_list_drafts"
	ToolUpdateDraft    = "agent_update_draft"
	ToolListContacts   = "agent_list_contacts"
	ToolListTenders    = "agent_list_tenders"
	ToolRetryTenders   = "agent_retry_tenders"
	ToolGenerateReport = "agent_generate_report"
)

// RegisterAgentTools registers the operator tools with the MCP server.
func RegisterAgentTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	if sc == nil || sc.App() == nil {
		return fmt.Errorf("agent tools require a server context with a wired agent")
	}

	registerStoreTools(s, sc)
	registerReportTools(s, sc, readOnly)

	if !readOnly {
		registerActionTools(s, sc)
	}
	return nil
}

func add(s *mcpserver.MCPServer, sc *server.ServerContext, tool mcp.Tool, opts common.ToolOptions, h common.ToolHandler) {
	s.AddTool(tool, mcpserver.ToolHandlerFunc(common.InstrumentedToolHandler(tool.Name, sc, opts, h)))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
