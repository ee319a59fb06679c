package report

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxagent/internal/mailbox"
	"github.com/teemow/inboxagent/internal/retry"
	"github.com/teemow/inboxagent/internal/state"
)

var asOf = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

func ts(month time.Month, day, hour int) time.Time {
	return time.Date(2025, month, day, hour, 0, 0, 0, time.UTC)
}

func newGenerator(t *testing.T) *Generator {
	t.Helper()
	g, err := NewGenerator(DefaultWindows())
	require.NoError(t, err)
	return g
}

func addContact(t *testing.T, s *state.Store, id, name string, created time.Time) {
	t.Helper()
	require.NoError(t, s.Commit(state.ContactUpdate{
		SourceMessageID: "msg-" + id,
		ContactID:       id,
		Name:            name,
		Email:           id,
		At:              created,
		NextActionAt:    created.Add(48 * time.Hour),
	}))
}

func outreachStore(t *testing.T) *state.Store {
	t.Helper()
	s := state.New()

	addContact(t, s, "sales@acmemed.com", "Acme Medical", ts(time.February, 20, 10))
	require.NoError(t, s.TransitionContact("sales@acmemed.com", state.StageInitial, state.StageFollowedUp1, ts(time.February, 22, 10), ts(time.March, 1, 10), state.OutcomeNone))
	require.NoError(t, s.TransitionContact("sales@acmemed.com", state.StageFollowedUp1, state.StageFollowedUp2, ts(time.March, 1, 10), ts(time.March, 8, 10), state.OutcomeNone))
	require.NoError(t, s.TransitionContact("sales@acmemed.com", state.StageFollowedUp2, state.StageClosed, ts(time.March, 8, 10), time.Time{}, state.OutcomeUnresponsive))

	addContact(t, s, "inquiries@globalpharma.com", "Global Pharma", ts(time.March, 4, 9))
	require.NoError(t, s.TransitionContact("inquiries@globalpharma.com", state.StageInitial, state.StageFollowedUp1, ts(time.March, 6, 9), ts(time.March, 11, 9), state.OutcomeNone))

	addContact(t, s, "bd@medico.com", "Medico", ts(time.March, 5, 12))
	require.NoError(t, s.Commit(state.ContactUpdate{
		SourceMessageID: "reply-medico",
		ContactID:       "bd@medico.com",
		Action:          state.ContactClose,
		Outcome:         state.OutcomeReplied,
		At:              ts(time.March, 7, 8),
	}))

	// Created exactly at as_of: belongs to the next report.
	addContact(t, s, "late@x.com", "Late Co", asOf)
	return s
}

func addSummary(t *testing.T, s *state.Store, id, subject, summary string, created time.Time, tags ...string) {
	t.Helper()
	require.NoError(t, s.Commit(state.MedicalUpdate{Summary: state.MedicalSummary{
		SourceMessageID: id,
		Subject:         subject,
		Summary:         summary,
		TrendTags:       tags,
		CreatedAt:       created,
	}}))
}

func medicalStore(t *testing.T) *state.Store {
	t.Helper()
	s := state.New()
	addSummary(t, s, "m1", "Gene therapy weekly", "CRISPR trial expands.", ts(time.February, 25, 8), "Gene Therapy", "oncology")
	addSummary(t, s, "m2", "AI digest", "AI speeds drug discovery.", ts(time.March, 1, 9), "ai in healthcare", "drug discovery")
	addSummary(t, s, "m3", "Oncology news", "New cancer screening approved.", ts(time.March, 5, 10), "oncology")
	addSummary(t, s, "m4", "Old news", "Outside window.", ts(time.February, 20, 0), "vaccines")
	addSummary(t, s, "m5", "Boundary", "At as_of.", asOf, "vaccines")
	addSummary(t, s, "m6", "Start boundary", "Exactly at start.", ts(time.February, 24, 0))
	return s
}

func golden(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestGenerate_WeeklyOutreach(t *testing.T) {
	g := newGenerator(t)
	r, err := g.Generate(outreachStore(t).Snapshot(), WeeklyOutreach, asOf)
	require.NoError(t, err)

	assert.Equal(t, WeeklyOutreach, r.Kind)
	assert.Equal(t, asOf.Add(-7*24*time.Hour), r.PeriodStart)
	assert.Equal(t, asOf, r.PeriodEnd)
	golden(t).Assert(t, "weekly_outreach", []byte(r.Content))
}

func TestGenerate_BiweeklyMedical(t *testing.T) {
	g := newGenerator(t)
	r, err := g.Generate(medicalStore(t).Snapshot(), BiweeklyMedical, asOf)
	require.NoError(t, err)

	assert.Equal(t, asOf.Add(-14*24*time.Hour), r.PeriodStart)
	golden(t).Assert(t, "biweekly_medical", []byte(r.Content))
}

func TestGenerate_ByteIdenticalForSameInput(t *testing.T) {
	g := newGenerator(t)
	snap := outreachStore(t).Snapshot()

	a, err := g.Generate(snap, WeeklyOutreach, asOf)
	require.NoError(t, err)
	b, err := g.Generate(snap, WeeklyOutreach, asOf)
	require.NoError(t, err)
	assert.Equal(t, []byte(a.Content), []byte(b.Content))

	// A store rebuilt from the snapshot renders the same bytes.
	rebuilt, err := state.FromSnapshot(snap)
	require.NoError(t, err)
	c, err := g.Generate(rebuilt.Snapshot(), WeeklyOutreach, asOf)
	require.NoError(t, err)
	assert.Equal(t, a.Content, c.Content)
}

func TestGenerate_HalfOpenBoundary(t *testing.T) {
	g := newGenerator(t)
	snap := medicalStore(t).Snapshot()

	current, err := g.Generate(snap, BiweeklyMedical, asOf)
	require.NoError(t, err)
	assert.NotContains(t, current.Content, "At as_of.")

	next, err := g.Generate(snap, BiweeklyMedical, asOf.Add(14*24*time.Hour))
	require.NoError(t, err)
	assert.Contains(t, next.Content, "At as_of.")
	assert.NotContains(t, next.Content, "Exactly at start.")

	weekly, err := g.Generate(outreachStore(t).Snapshot(), WeeklyOutreach, asOf.Add(7*24*time.Hour))
	require.NoError(t, err)
	assert.Contains(t, weekly.Content, "Late Co (late@x.com) - first contacted 2025-03-10")
	assert.NotContains(t, weekly.Content, "Medico (bd@medico.com) - first contacted")
}

func TestGenerate_Empty(t *testing.T) {
	g := newGenerator(t)
	snap := state.New().Snapshot()

	weekly, err := g.Generate(snap, WeeklyOutreach, asOf)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(weekly.Content, "No supplier outreach activity this week.\n"))

	medical, err := g.Generate(snap, BiweeklyMedical, asOf)
	require.NoError(t, err)
	assert.Contains(t, medical.Content, "No medical news summaries recorded in the last 14 days.")

	_, err = g.Generate(snap, Kind("monthly"), asOf)
	assert.Error(t, err)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" Weekly_Outreach ")
	require.NoError(t, err)
	assert.Equal(t, WeeklyOutreach, k)
	_, err = ParseKind("daily")
	assert.Error(t, err)
}

func TestNewGenerator_ValidatesWindows(t *testing.T) {
	_, err := NewGenerator(Windows{WeeklyOutreach: time.Hour})
	assert.Error(t, err)
}

func TestDue(t *testing.T) {
	g := newGenerator(t)
	now := asOf.Add(90 * time.Minute).Add(123 * time.Millisecond)

	first, ok := g.Due(nil, WeeklyOutreach, now)
	require.True(t, ok)
	assert.Equal(t, now.Truncate(time.Second), first)

	log := []state.ReportRecord{{Kind: string(WeeklyOutreach), PeriodEnd: asOf}}
	_, ok = g.Due(log, WeeklyOutreach, asOf.Add(7*24*time.Hour-time.Second))
	assert.False(t, ok)

	next, ok := g.Due(log, WeeklyOutreach, asOf.Add(7*24*time.Hour))
	require.True(t, ok)
	assert.Equal(t, asOf.Add(7*24*time.Hour), next)

	// Catch-up after an outage continues from the last period end.
	next, ok = g.Due(log, WeeklyOutreach, asOf.Add(30*24*time.Hour))
	require.True(t, ok)
	assert.Equal(t, asOf.Add(7*24*time.Hour), next)

	// Other kinds have their own log.
	_, ok = g.Due(log, BiweeklyMedical, asOf)
	assert.True(t, ok)
}

func TestRecord(t *testing.T) {
	r := Report{Kind: BiweeklyMedical, PeriodStart: asOf.Add(-time.Hour), PeriodEnd: asOf}
	rec := Record(r, asOf.Add(time.Minute))
	assert.Equal(t, "biweekly_medical", rec.Kind)
	assert.Equal(t, asOf, rec.PeriodEnd)
}

func sample() Report {
	return Report{Kind: WeeklyOutreach, PeriodStart: asOf.Add(-7 * 24 * time.Hour), PeriodEnd: asOf, Content: "hello\n"}
}

func TestFileSink_WriteOnce(t *testing.T) {
	sink := FileSink{Dir: t.TempDir()}
	r := sample()

	require.NoError(t, sink.Publish(context.Background(), r))
	data, err := os.ReadFile(sink.Path(r))
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))
	assert.True(t, strings.HasSuffix(sink.Path(r), "weekly_outreach-20250310T000000Z.txt"))

	assert.NoError(t, sink.Publish(context.Background(), r), "identical republish is a no-op")

	r.Content = "changed\n"
	assert.ErrorIs(t, sink.Publish(context.Background(), r), ErrAlreadyPublished)
	data, _ = os.ReadFile(sink.Path(r))
	assert.Equal(t, "hello\n", string(data))
}

func TestMailSink(t *testing.T) {
	sender := mailbox.NewLogSender(slog.New(slog.NewTextHandler(io.Discard, nil)))
	sink := MailSink{Sender: sender, To: []string{"ops@example.com"}, Policy: retry.DefaultPolicy()}

	require.NoError(t, sink.Publish(context.Background(), sample()))
	sent := sender.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "Weekly Supplier Outreach Report (2025-03-10)", sent[0].Subject)
	assert.Equal(t, "hello\n", sent[0].Body)

	assert.Error(t, MailSink{Sender: sender}.Publish(context.Background(), sample()))
}

type failSink struct{ err error }

func (f failSink) Publish(context.Context, Report) error { return f.err }

func TestMultiSink(t *testing.T) {
	boom := errors.New("disk full")
	var buf strings.Builder
	logSink := LogSink{Logger: slog.New(slog.NewTextHandler(&buf, nil))}

	require.NoError(t, MultiSink{logSink}.Publish(context.Background(), sample()))
	assert.Contains(t, buf.String(), "report published")

	err := MultiSink{logSink, failSink{err: boom}}.Publish(context.Background(), sample())
	assert.ErrorIs(t, err, boom)
}

// countSink counts publications and optionally fails them.
type countSink struct {
	calls *int
	err   error
}

func (c countSink) Publish(context.Context, Report) error {
	*c.calls++
	return c.err
}

func TestMultiSink_AllOrNothing(t *testing.T) {
	dir := t.TempDir()
	file := FileSink{Dir: dir}
	r := sample()

	var mailed int
	err := MultiSink{file, countSink{calls: &mailed, err: errors.New("smtp down")}}.Publish(context.Background(), r)
	require.Error(t, err)
	assert.Equal(t, 1, mailed)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "no report file after a failed sink")

	require.NoError(t, MultiSink{file, countSink{calls: &mailed}}.Publish(context.Background(), r))
	assert.Equal(t, 2, mailed)
	entries, err = os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, filepath.Base(file.Path(r)), entries[0].Name())

	changed := r
	changed.Content = "changed\n"
	err = MultiSink{file, countSink{calls: &mailed}}.Publish(context.Background(), changed)
	assert.ErrorIs(t, err, ErrAlreadyPublished)
	assert.Equal(t, 2, mailed, "a conflicting report is not mailed")
}
