// Package agent_tools exposes the triage agent to an operator over MCP.
//
// Read-only tools inspect the Context Store: counts, pending drafts,
// outreach contacts, tenders and report previews. The remaining tools act:
// they run a cycle, send or discard drafts, retry tender downloads and
// publish reports. They are not registered in read-only mode.
package agent_tools
