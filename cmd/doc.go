// Package cmd implements the command-line interface for inboxagent.
//
// This package provides the following commands:
//   - run: Run a single triage cycle and print its summary
//   - serve: Run cycles on a schedule with metrics and health endpoints
//   - report: Preview or publish a periodic report
//   - mcp: Serve the operator tools over MCP on stdio
//   - auth: Authorize a Google account for the Gmail source and sender
//   - generate-docs: Generate markdown documentation for the MCP tools
//   - version: Display version information
//
// The run command is the default command when no subcommand is specified.
package cmd
