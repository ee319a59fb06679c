package app

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxagent/internal/mailbox"
	"github.com/teemow/inboxagent/internal/report"
	"github.com/teemow/inboxagent/internal/state"
)

const tenderRef = "mem:m-tender/rfq.pdf"

type fixture struct {
	app         *App
	sender      *mailbox.LogSender
	attachments *mailbox.MemoryAttachments
}

// newFixture builds an app and runs one cycle over a tender whose
// attachment is missing and a question that gets a draft.
func newFixture(t *testing.T) fixture {
	t.Helper()
	f := fixture{
		sender:      mailbox.NewLogSender(quietLogger()),
		attachments: mailbox.NewMemoryAttachments(),
	}
	source := mailbox.NewStaticSource(
		mailbox.Message{
			ID:             "m-tender",
			Sender:         "tenders@koc.example",
			Subject:        "KOC Tender 2025/17 for medical consumables",
			Body:           "Tender documents attached.",
			ReceivedAt:     t0.Add(-2 * time.Hour),
			AttachmentRefs: []string{tenderRef},
		},
		mailbox.Message{
			ID:         "m-question",
			Sender:     "Clinic Buyer <buyer@clinic.example>",
			Subject:    "Quotation",
			Body:       "Could you send prices for gloves? Please reply by Friday.",
			ReceivedAt: t0.Add(-time.Hour),
		},
	)

	a, err := Build(context.Background(), replayConfig(t), nil, quietLogger(), Options{
		Source:      source,
		Sender:      f.sender,
		Attachments: f.attachments,
		Now:         func() time.Time { return t0 },
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	f.app = a

	_, err = a.Runner.RunCycle(context.Background())
	require.NoError(t, err)
	return f
}

// saved reloads the persisted store.
func saved(t *testing.T, a *App) *state.Store {
	t.Helper()
	snap, ok, err := a.Persistence.Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	s, err := state.FromSnapshot(snap)
	require.NoError(t, err)
	return s
}

func TestApp_SendDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d, err := f.app.SendDraft(ctx, "m-question")
	require.NoError(t, err)
	assert.Equal(t, state.DraftSent, d.Status)
	assert.Equal(t, "dry-run-1", d.SentID)

	sent := f.sender.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, []string{"buyer@clinic.example"}, sent[0].To)
	assert.Equal(t, "Re: Quotation", sent[0].Subject)
	assert.Equal(t, "m-question", sent[0].InReplyTo)

	persisted, ok := saved(t, f.app).Draft("m-question")
	require.True(t, ok)
	assert.Equal(t, state.DraftSent, persisted.Status)

	// Sending again does not send a second email.
	d, err = f.app.SendDraft(ctx, "m-question")
	require.NoError(t, err)
	assert.Equal(t, state.DraftSent, d.Status)
	assert.Len(t, f.sender.Sent(), 1)

	_, err = f.app.DiscardDraft(ctx, "m-question")
	assert.ErrorIs(t, err, state.ErrDraftFinalized)
}

func TestApp_DiscardDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d, err := f.app.DiscardDraft(ctx, "m-question")
	require.NoError(t, err)
	assert.Equal(t, state.DraftDiscarded, d.Status)

	_, err = f.app.SendDraft(ctx, "m-question")
	assert.ErrorIs(t, err, state.ErrDraftFinalized)
	assert.Empty(t, f.sender.Sent())

	_, err = f.app.SendDraft(ctx, "m-unknown")
	assert.ErrorIs(t, err, state.ErrDraftNotFound)
	_, err = f.app.DiscardDraft(ctx, "m-unknown")
	assert.ErrorIs(t, err, state.ErrDraftNotFound)
}

func TestApp_RetryTender(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	before, ok := f.app.Store.Tender("m-tender")
	require.True(t, ok)
	assert.Equal(t, state.TenderFailed, before.Status)
	assert.NotEmpty(t, before.LastError)

	f.attachments.Put(tenderRef, []byte("%PDF-1.7"))

	after, err := f.app.RetryTender(ctx, "m-tender")
	require.NoError(t, err)
	assert.Equal(t, state.TenderDownloaded, after.Status)
	assert.Empty(t, after.LastError)
	assert.Greater(t, after.Attempts, before.Attempts)
	require.Len(t, after.Handles, 1)

	data, err := os.ReadFile(after.Handles[0])
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7", string(data))

	persisted, ok := saved(t, f.app).Tender("m-tender")
	require.True(t, ok)
	assert.Equal(t, state.TenderDownloaded, persisted.Status)

	// A downloaded tender is not fetched again.
	calls := f.attachments.Calls(tenderRef)
	_, err = f.app.RetryTender(ctx, "m-tender")
	require.NoError(t, err)
	assert.Equal(t, calls, f.attachments.Calls(tenderRef))

	_, err = f.app.RetryTender(ctx, "m-unknown")
	assert.ErrorIs(t, err, state.ErrTenderNotFound)
}

func TestApp_GenerateReport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	before := len(f.app.Store.Snapshot().Reports)

	preview, err := f.app.GenerateReport(ctx, report.WeeklyOutreach, time.Time{}, false)
	require.NoError(t, err)
	assert.Equal(t, report.WeeklyOutreach, preview.Kind)
	assert.Equal(t, t0, preview.PeriodEnd)
	assert.Equal(t, t0.Add(-7*24*time.Hour), preview.PeriodStart)
	assert.Contains(t, preview.Content, report.WeeklyOutreach.Title())
	assert.Len(t, f.app.Store.Snapshot().Reports, before)

	asOf := t0.Add(7 * 24 * time.Hour)
	published, err := f.app.GenerateReport(ctx, report.WeeklyOutreach, asOf, true)
	require.NoError(t, err)
	assert.Equal(t, asOf, published.PeriodEnd)
	assert.Len(t, f.app.Store.Snapshot().Reports, before+1)

	_, err = os.Stat(report.FileSink{Dir: f.app.Config.Reports.Dir}.Path(published))
	assert.NoError(t, err)

	// The scheduled report continues from the published period.
	_, due := f.app.Reports.Due(f.app.Store.Snapshot().Reports, report.WeeklyOutreach, asOf)
	assert.False(t, due)
}
