package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxagent/internal/app"
	"github.com/teemow/inboxagent/internal/logging"
	"github.com/teemow/inboxagent/internal/report"
)

// reportOptions are the flags of the report command.
type reportOptions struct {
	kind    string
	asOf    string
	publish bool
}

func newReportCmd(flags *globalFlags) *cobra.Command {
	opts := reportOptions{}

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Preview or publish a periodic report",
		Long: `Render a report from the current context and print it. The period ends at
--as-of (default: now) and spans the configured window for the kind.

With --publish the report is also delivered to the configured sinks and
recorded, which moves the next scheduled report of that kind.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), flags, opts)
		},
	}

	cmd.Flags().StringVar(&opts.kind, "kind", string(report.WeeklyOutreach), "Report kind: weekly_outreach or biweekly_medical")
	cmd.Flags().StringVar(&opts.asOf, "as-of", "", "End of the report period in RFC3339 (default: now)")
	cmd.Flags().BoolVar(&opts.publish, "publish", false, "Publish and record the report instead of only printing it")

	return cmd
}

func runReport(ctx context.Context, stdout, stderr io.Writer, flags *globalFlags, opts reportOptions) error {
	kind, err := report.ParseKind(opts.kind)
	if err != nil {
		return err
	}
	var asOf time.Time
	if opts.asOf != "" {
		asOf, err = time.Parse(time.RFC3339, opts.asOf)
		if err != nil {
			return fmt.Errorf("invalid --as-of %q: %w", opts.asOf, err)
		}
	}

	cfg, err := flags.loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, stderr)

	a, err := app.Build(ctx, cfg, nil, logger, app.Options{})
	if err != nil {
		return fmt.Errorf("failed to start agent: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("error closing agent", logging.Err(err))
		}
	}()

	rep, err := a.GenerateReport(ctx, kind, asOf, opts.publish)
	if errors.Is(err, report.ErrAlreadyPublished) {
		logger.Warn("report was already published for this period", logging.ReportKind(string(kind)))
		err = nil
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(stdout, rep.Content)
	return nil
}
