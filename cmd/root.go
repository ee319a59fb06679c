package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxagent/internal/config"
	"github.com/teemow/inboxagent/internal/logging"
)

// version will be set by main
var version = "dev"

// SetVersion sets the version reported by the CLI.
func SetVersion(v string) {
	version = v
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configFile string
	logLevel   string
	logFormat  string
}

// newRootCmd builds the command tree.
func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "inboxagent",
		Short: "Triages a supplier mailbox and keeps outreach moving",
		Long: `inboxagent polls a mailbox, classifies each new message and hands it to
the matching handler: tender downloads, medical summaries, reply drafts and
supplier outreach. It sends due follow-ups and publishes periodic reports.

It can run as:
  - A single cycle (default)
  - A scheduled service with metrics and health endpoints
  - An MCP (Model Context Protocol) server for operators and AI assistants`,
		Version:      version,
		SilenceUsage: true,
	}
	rootCmd.SetVersionTemplate(`{{printf "inboxagent version %s\n" .Version}}`)

	rootCmd.PersistentFlags().StringVarP(&flags.configFile, "config", "c", "", "Path to a YAML configuration file. Can also use INBOXAGENT_CONFIG env var.")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn or error. Overrides LOG_LEVEL.")
	rootCmd.PersistentFlags().StringVar(&flags.logFormat, "log-format", "", "Log format: text or json. Overrides LOG_FORMAT.")

	rootCmd.AddCommand(newRunCmd(flags))
	rootCmd.AddCommand(newServeCmd(flags))
	rootCmd.AddCommand(newReportCmd(flags))
	rootCmd.AddCommand(newMCPCmd(flags))
	rootCmd.AddCommand(newAuthCmd(flags))
	rootCmd.AddCommand(newGenerateDocsCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// Execute is the main entry point for the CLI application
func Execute() {
	// If no subcommand is provided, run a single cycle
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "run")
	}

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig resolves the configuration file, the environment, the global
// flags and any command specific overrides.
func (f *globalFlags) loadConfig(overrides ...func(*config.Config)) (config.Config, error) {
	path := f.configFile
	if path == "" {
		path = os.Getenv("INBOXAGENT_CONFIG")
	}

	overrides = append([]func(*config.Config){func(c *config.Config) {
		if f.logLevel != "" {
			c.Log.Level = f.logLevel
		}
		if f.logFormat != "" {
			c.Log.Format = f.logFormat
		}
	}}, overrides...)

	cfg, err := config.Load(path, overrides...)
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger. Logs always go to w so stdout stays
// free for command output and the MCP stdio transport.
func newLogger(cfg config.Config, w io.Writer) *slog.Logger {
	logger := logging.New(w, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)
	return logger
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of inboxagent",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "inboxagent version %s\n", version)
		},
	}
}
