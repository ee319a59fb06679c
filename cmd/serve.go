package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxagent/internal/app"
	"github.com/teemow/inboxagent/internal/instrumentation"
	"github.com/teemow/inboxagent/internal/logging"
	"github.com/teemow/inboxagent/internal/pipeline"
	"github.com/teemow/inboxagent/internal/server"
)

// MetricsConfig holds configuration for the metrics server
type MetricsConfig struct {
	// Enabled determines whether to start the metrics server (default: true)
	Enabled bool

	// Addr is the address for the metrics server (e.g., ":9090")
	Addr string
}

// serveOptions are the flags of the serve command.
type serveOptions struct {
	run     runOptions
	metrics MetricsConfig
	mcpAddr string
	yolo    bool
}

func newServeCmd(flags *globalFlags) *cobra.Command {
	opts := serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run triage cycles on a schedule",
		Long: `Run a cycle immediately and then once per poll interval until interrupted.
A failed cycle is logged and retried on the next tick.

Prometheus metrics and the health probes (/healthz, /readyz, /healthz/detailed) are
served on a dedicated port. With --mcp-addr the operator tools are also
served over streamable HTTP at /mcp.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.metrics.loadEnv(cmd)
			return runServe(cmd.Context(), cmd.ErrOrStderr(), flags, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.run.dryRun, "dry-run", false, "Log outgoing mail instead of sending it")
	cmd.Flags().BoolVar(&opts.metrics.Enabled, "metrics-enabled", true, "Enable the metrics server on a dedicated port. Can also use METRICS_ENABLED env var.")
	cmd.Flags().StringVar(&opts.metrics.Addr, "metrics-addr", server.DefaultMetricsAddr, "Metrics server address. Can also use METRICS_ADDR env var.")
	cmd.Flags().StringVar(&opts.mcpAddr, "mcp-addr", "", "Also serve the MCP tools over streamable HTTP on this address (e.g. :8080)")
	cmd.Flags().BoolVar(&opts.yolo, "yolo", false, "Enable write operations on the MCP endpoint. Default is read-only mode.")

	return cmd
}

// loadEnv fills values that were not set on the command line from the
// environment.
func (m *MetricsConfig) loadEnv(cmd *cobra.Command) {
	if !cmd.Flags().Changed("metrics-enabled") {
		if v := os.Getenv("METRICS_ENABLED"); v != "" {
			m.Enabled = v == "true"
		}
	}
	if !cmd.Flags().Changed("metrics-addr") {
		if addr := os.Getenv("METRICS_ADDR"); addr != "" {
			m.Addr = addr
		}
	}
}

func runServe(ctx context.Context, stderr io.Writer, flags *globalFlags, opts serveOptions) error {
	// Setup graceful shutdown
	shutdownCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := flags.loadConfig(opts.run.overrides()...)
	if err != nil {
		return err
	}
	logger := newLogger(cfg, stderr)

	provider, instrConfig, stopInstrumentation, err := startInstrumentation(shutdownCtx, logger)
	if err != nil {
		return err
	}
	defer stopInstrumentation()

	a, err := app.Build(shutdownCtx, cfg, provider.Metrics(), logger, app.Options{})
	if err != nil {
		return fmt.Errorf("failed to start agent: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("error closing agent", logging.Err(err))
		}
	}()

	serverContext := server.NewServerContext(shutdownCtx, a)
	serverContext.SetAuditLogger(instrumentation.NewAuditLogger(logger, instrConfig.AuditLogging))
	defer func() {
		if err := serverContext.Shutdown(); err != nil {
			logger.Warn("error during server context shutdown", logging.Err(err))
		}
	}()
	health := server.NewHealthChecker(serverContext)

	serveErr := make(chan error, 2)

	var metricsServer *server.MetricsServer
	if opts.metrics.Enabled && provider.Enabled() && provider.PrometheusHandler() == nil {
		logger.Warn("metrics server disabled, it requires the prometheus exporter")
	} else if opts.metrics.Enabled && provider.Enabled() {
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    opts.metrics.Addr,
			Enabled:                 true,
			InstrumentationProvider: provider,
			Health:                  health,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}
		go func() {
			if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- fmt.Errorf("metrics server failed: %w", err)
			}
		}()
	}

	var mcpHTTP *http.Server
	if opts.mcpAddr != "" {
		mcpSrv, err := newMCPServer(serverContext, !opts.yolo)
		if err != nil {
			return err
		}
		mcpHTTP = newMCPHTTPServer(mcpSrv, opts.mcpAddr)
		if opts.yolo {
			logger.Info("serving MCP tools with write operations enabled", "addr", opts.mcpAddr)
		} else {
			logger.Info("serving MCP tools in read-only mode (use --yolo to enable write operations)", "addr", opts.mcpAddr)
		}
		go func() {
			if err := mcpHTTP.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- fmt.Errorf("MCP server failed: %w", err)
			}
		}()
	}

	scheduler := &pipeline.Scheduler{
		Runner:   a.Runner,
		Interval: cfg.PollInterval,
		Logger:   logger,
		OnCycle:  serverContext.RecordCycle,
	}
	schedulerDone := make(chan error, 1)
	go func() {
		schedulerDone <- scheduler.Run(serverContext.Context())
	}()

	var runErr error
	select {
	case <-shutdownCtx.Done():
		logger.Info("shutdown signal received, stopping")
	case runErr = <-serveErr:
		logger.Error("server failed, stopping", logging.Err(runErr))
	case runErr = <-schedulerDone:
		schedulerDone = nil
	}

	health.SetReady(false)
	if err := serverContext.Shutdown(); err != nil {
		logger.Warn("error during server context shutdown", logging.Err(err))
	}
	if schedulerDone != nil {
		// The running cycle finishes its save before the scheduler returns.
		if err := <-schedulerDone; err != nil && runErr == nil {
			runErr = err
		}
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
	defer stopCancel()
	if mcpHTTP != nil {
		if err := mcpHTTP.Shutdown(stopCtx); err != nil {
			logger.Warn("error during MCP server shutdown", logging.Err(err))
		}
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(stopCtx); err != nil {
			logger.Warn("error during metrics server shutdown", logging.Err(err))
		}
	}

	return runErr
}

// newMCPHTTPServer serves the MCP endpoint at /mcp.
func newMCPHTTPServer(mcpSrv *mcpserver.MCPServer, addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/mcp", mcpserver.NewStreamableHTTPServer(mcpSrv,
		mcpserver.WithEndpointPath("/mcp"),
	))

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
