// Package common provides helpers shared by the operator MCP tools:
// argument parsing, the mailbox identity used for auditing, and the
// instrumentation wrapper every tool handler is registered through.
package common
