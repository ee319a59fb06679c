package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxagent/internal/app"
	"github.com/teemow/inboxagent/internal/config"
	"github.com/teemow/inboxagent/internal/logging"
)

// runOptions are the flags of the run command.
type runOptions struct {
	replayFile string
	dryRun     bool
}

func newRunCmd(flags *globalFlags) *cobra.Command {
	opts := runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a single triage cycle",
		Long: `Run a single cycle: fetch messages since the checkpoint, handle each new
message, send due follow-ups and publish due reports. The cycle summary is
printed as JSON on stdout. The command fails when the cycle aborts.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), flags, opts)
		},
	}

	cmd.Flags().StringVar(&opts.replayFile, "replay", "", "Read messages from a JSON file instead of the configured mailbox")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Log outgoing mail instead of sending it")

	return cmd
}

// overrides turns the run flags into configuration overrides.
func (o runOptions) overrides() []func(*config.Config) {
	var out []func(*config.Config)
	if o.replayFile != "" {
		out = append(out, func(c *config.Config) {
			c.Source.Type = config.SourceReplay
			c.Source.ReplayFile = o.replayFile
		})
	}
	if o.dryRun {
		out = append(out, func(c *config.Config) {
			c.Sender.Type = config.SenderLog
		})
	}
	return out
}

func runOnce(ctx context.Context, stdout, stderr io.Writer, flags *globalFlags, opts runOptions) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := flags.loadConfig(opts.overrides()...)
	if err != nil {
		return err
	}
	logger := newLogger(cfg, stderr)

	provider, _, stopInstrumentation, err := startInstrumentation(ctx, logger)
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

	sum, err := a.Runner.RunCycle(ctx)
	if sum != nil {
		fmt.Fprintln(stdout, sum.Format())
	}
	if err != nil {
		return fmt.Errorf("cycle aborted: %w", err)
	}
	return nil
}
