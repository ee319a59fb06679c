package cmd

import (
	"context"
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/teemow/inboxagent/internal/app"
	"github.com/teemow/inboxagent/internal/config"
	"github.com/teemow/inboxagent/internal/server"
)

func newGenerateDocsCmd() *cobra.Command {
	var outputFile string

	cmd := &cobra.Command{
		Use:   "generate-docs",
		Short: "Generate MCP tool documentation",
		Long: `Generate markdown documentation for the MCP tools.
The registered tools are introspected, so the documentation always matches
the tool definitions. No mailbox or credentials are needed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			markdown, err := toolsMarkdown()
			if err != nil {
				return err
			}
			if outputFile == "" {
				fmt.Fprint(cmd.OutOrStdout(), markdown)
				return nil
			}
			if err := os.WriteFile(outputFile, []byte(markdown), 0o644); err != nil {
				return fmt.Errorf("failed to write output file: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Documentation written to: %s\n", outputFile)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")

	return cmd
}

// registeredTools lists the tools of a server in the given mode. The agent
// is never called while tools are listed, so an unwired one is enough.
func registeredTools(readOnly bool) ([]mcp.Tool, error) {
	sc := server.NewServerContext(context.Background(), &app.App{Config: config.Default()})
	defer func() {
		_ = sc.Shutdown()
	}()

	mcpSrv, err := newMCPServer(sc, readOnly)
	if err != nil {
		return nil, err
	}

	serverTools := mcpSrv.ListTools()
	tools := make([]mcp.Tool, 0, len(serverTools))
	for _, serverTool := range serverTools {
		tools = append(tools, serverTool.Tool)
	}
	sort.Slice(tools, func(i, j int) bool {
		return tools[i].Name < tools[j].Name
	})
	return tools, nil
}

func toolsMarkdown() (string, error) {
	readOnlyTools, err := registeredTools(true)
	if err != nil {
		return "", err
	}
	allTools, err := registeredTools(false)
	if err != nil {
		return "", err
	}

	readOnlyNames := make([]string, 0, len(readOnlyTools))
	for _, tool := range readOnlyTools {
		readOnlyNames = append(readOnlyNames, tool.Name)
	}
	var writeTools []mcp.Tool
	for _, tool := range allTools {
		if !slices.Contains(readOnlyNames, tool.Name) {
			writeTools = append(writeTools, tool)
		}
	}

	var sb strings.Builder
	sb.WriteString("# MCP Tools Reference\n\n")
	sb.WriteString("This document lists the tools available when running inboxagent as an MCP server (`inboxagent mcp` or `inboxagent serve --mcp-addr`).\n\n")
	sb.WriteString("**Note:** This documentation is automatically generated from the tool definitions.\n\n")

	sb.WriteString("## Table of Contents\n\n")
	sb.WriteString("- [Read-only Tools](#read-only-tools)\n")
	sb.WriteString("- [Write Tools](#write-tools)\n\n")

	sb.WriteString("## Read-only Tools\n\n")
	sb.WriteString("Always available. `agent_generate_report` only previews in read-only mode.\n\n")
	for _, tool := range readOnlyTools {
		sb.WriteString(toolMarkdown(tool))
		sb.WriteString("\n")
	}

	sb.WriteString("## Write Tools\n\n")
	sb.WriteString("Registered only when the server runs with `--yolo`.\n\n")
	for _, tool := range writeTools {
		sb.WriteString(toolMarkdown(tool))
		sb.WriteString("\n")
	}

	return sb.String(), nil
}

func toolMarkdown(tool mcp.Tool) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("### %s\n\n", tool.Name))
	if tool.Description != "" {
		sb.WriteString(fmt.Sprintf("%s\n\n", tool.Description))
	}

	if len(tool.InputSchema.Properties) == 0 {
		sb.WriteString("**Arguments:** none\n")
		return sb.String()
	}

	sb.WriteString("**Arguments:**\n")
	propNames := make([]string, 0, len(tool.InputSchema.Properties))
	for name := range tool.InputSchema.Properties {
		propNames = append(propNames, name)
	}
	sort.Strings(propNames)

	for _, name := range propNames {
		propMap, ok := tool.InputSchema.Properties[name].(map[string]any)
		if !ok {
			continue
		}

		requiredStr := "optional"
		if slices.Contains(tool.InputSchema.Required, name) {
			requiredStr = "required"
		}

		sb.WriteString(fmt.Sprintf("- `%s` (%s, %s): ", name, propertyType(propMap), requiredStr))
		if desc, ok := propMap["description"].(string); ok {
			sb.WriteString(desc)
		}
		if values := enumValues(propMap); len(values) > 0 {
			sb.WriteString(fmt.Sprintf(" One of: `%s`.", strings.Join(values, "`, `")))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

func propertyType(prop map[string]any) string {
	if t, ok := prop["type"].(string); ok {
		return t
	}
	return "any"
}

func enumValues(prop map[string]any) []string {
	switch values := prop["enum"].(type) {
	case []string:
		return values
	case []any:
		out := make([]string, 0, len(values))
		for _, v := range values {
			out = append(out, fmt.Sprint(v))
		}
		return out
	default:
		return nil
	}
}
