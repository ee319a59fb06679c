package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/teemow/inboxagent/internal/logging"
	"github.com/teemow/inboxagent/internal/mailbox"
	"github.com/teemow/inboxagent/internal/report"
	"github.com/teemow/inboxagent/internal/retry"
	"github.com/teemow/inboxagent/internal/state"
)

// SendDraft sends a pending draft as a reply to its source message and
// marks it sent. Sending an already sent draft returns it unchanged.
func (a *App) SendDraft(ctx context.Context, id string) (state.Draft, error) {
	d, ok := a.Store.Draft(id)
	if !ok {
		return state.Draft{}, state.ErrDraftNotFound
	}
	switch d.Status {
	case state.DraftSent:
		return d, nil
	case state.DraftDiscarded:
		return d, state.ErrDraftFinalized
	}

	receipt, err := retry.Value(ctx, a.Config.RetryPolicy(), nil, func(ctx context.Context) (mailbox.Receipt, error) {
		return a.Sender.Send(ctx, mailbox.Outgoing{
			To:        []string{d.To},
			Subject:   d.Subject,
			Body:      d.Text,
			InReplyTo: d.SourceMessageID,
		})
	})
	if err != nil {
		return d, fmt.Errorf("failed to send draft: %w", err)
	}
	if err := a.Store.SetDraftStatus(id, state.DraftSent, a.now(), receipt.ID); err != nil {
		return d, err
	}
	a.Logger.Info("draft sent", slog.String(logging.KeyMessage, id), logging.Domain(d.To))

	d, _ = a.Store.Draft(id)
	return d, a.Save(ctx)
}

// DiscardDraft marks a pending draft discarded without sending it.
func (a *App) DiscardDraft(ctx context.Context, id string) (state.Draft, error) {
	if err := a.Store.SetDraftStatus(id, state.DraftDiscarded, a.now(), ""); err != nil {
		return state.Draft{}, err
	}
	a.Logger.Info("draft discarded", slog.String(logging.KeyMessage, id))

	d, _ := a.Store.Draft(id)
	return d, a.Save(ctx)
}

// RetryTender downloads the attachments a partial or failed tender is
// still missing and stores the new outcome.
func (a *App) RetryTender(ctx context.Context, id string) (state.Tender, error) {
	t, ok := a.Store.Tender(id)
	if !ok {
		return state.Tender{}, state.ErrTenderNotFound
	}
	if t.Status == state.TenderDownloaded {
		return t, nil
	}

	t, err := a.Tender.Retry(ctx, t)
	if err != nil {
		return t, err
	}
	if err := a.Store.ReplaceTender(t); err != nil {
		return t, err
	}
	a.Logger.Info("tender retried", slog.String(logging.KeyMessage, id), logging.Status(string(t.Status)), "attempts", t.Attempts)
	return t, a.Save(ctx)
}

// GenerateReport renders a report of kind for the window ending at asOf. A
// zero asOf means now. With publish set the report goes to the configured
// sinks and its period is recorded, so the scheduled report of that kind
// continues from it.
func (a *App) GenerateReport(ctx context.Context, kind report.Kind, asOf time.Time, publish bool) (report.Report, error) {
	now := a.now()
	if asOf.IsZero() {
		asOf = now
	}
	asOf = asOf.UTC().Truncate(time.Second)

	rep, err := a.Reports.Generate(a.Store.Snapshot(), kind, asOf)
	if err != nil || !publish {
		return rep, err
	}

	err = a.Sink.Publish(ctx, rep)
	if err != nil && !errors.Is(err, report.ErrAlreadyPublished) {
		return rep, fmt.Errorf("failed to publish report: %w", err)
	}
	a.Store.RecordReport(report.Record(rep, now))
	a.Logger.Info("report published", logging.ReportKind(string(kind)), "period_end", rep.PeriodEnd)
	if err != nil {
		return rep, err
	}
	return rep, a.Save(ctx)
}
