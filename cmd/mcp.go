package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxagent/internal/app"
	"github.com/teemow/inboxagent/internal/instrumentation"
	"github.com/teemow/inboxagent/internal/logging"
	"github.com/teemow/inboxagent/internal/server"
	"github.com/teemow/inboxagent/internal/tools/agent_tools"
)

func newMCPCmd(flags *globalFlags) *cobra.Command {
	var (
		yolo   bool
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the operator tools over MCP on stdio",
		Long: `Start an MCP server on stdin/stdout exposing the agent's operator tools:
context statistics, drafts, contacts, tenders, reports and manual cycles.

The server is read-only by default. Use --yolo to enable tools that send
mail, discard drafts, retry tenders, publish reports or run cycles.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCP(cmd.Context(), cmd.ErrOrStderr(), flags, !yolo, runOptions{dryRun: dryRun})
		},
	}

	cmd.Flags().BoolVar(&yolo, "yolo", false, "Enable write operations (sending drafts, publishing reports, running cycles). Default is read-only mode.")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Log outgoing mail instead of sending it")

	return cmd
}

func runMCP(ctx context.Context, stderr io.Writer, flags *globalFlags, readOnly bool, opts runOptions) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := flags.loadConfig(opts.overrides()...)
	if err != nil {
		return err
	}
	logger := newLogger(cfg, stderr)

	provider, instrConfig, stopInstrumentation, err := startInstrumentation(ctx, logger)
	if err != nil {
		return err
	}
	defer stopInstrumentation()

	a, err := app.Build(ctx, cfg, provider.Metrics(), logger, app.Options{})
	if err != nil {
		return fmt.Errorf("failed to start agent: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("error closing agent", logging.Err(err))
		}
	}()

	sc := server.NewServerContext(ctx, a)
	sc.SetAuditLogger(instrumentation.NewAuditLogger(logger, instrConfig.AuditLogging))
	defer func() {
		_ = sc.Shutdown()
	}()

	mcpSrv, err := newMCPServer(sc, readOnly)
	if err != nil {
		return err
	}

	if err := mcpserver.ServeStdio(mcpSrv); err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}

// newMCPServer creates the MCP server with every agent tool registered.
func newMCPServer(sc *server.ServerContext, readOnly bool) (*mcpserver.MCPServer, error) {
	mcpSrv := mcpserver.NewMCPServer("inboxagent", version,
		mcpserver.WithToolCapabilities(true),
	)

	if err := agent_tools.RegisterAgentTools(mcpSrv, sc, readOnly); err != nil {
		return nil, fmt.Errorf("failed to register agent tools: %w", err)
	}
	return mcpSrv, nil
}
