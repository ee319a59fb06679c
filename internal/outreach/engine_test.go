package outreach

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxagent/internal/mailbox"
	"github.com/teemow/inboxagent/internal/retry"
	"github.com/teemow/inboxagent/internal/state"
)

var t0 = time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)

const day = 24 * time.Hour

type failingSender struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (f *failingSender) Send(context.Context, mailbox.Outgoing) (mailbox.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return mailbox.Receipt{}, f.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func onePolicy() retry.Policy {
	p := retry.DefaultPolicy()
	p.MaxAttempts = 1
	return p
}

func setup(t *testing.T, iv Intervals, sender mailbox.Sender) (*state.Store, *Engine) {
	t.Helper()
	s := state.New()
	require.NoError(t, s.Commit(state.ContactUpdate{
		SourceMessageID: "m-c1",
		ContactID:       "c1",
		Name:            "Acme Medical",
		Email:           "sales@acmemed.com",
		At:              t0,
		NextActionAt:    t0.Add(iv.For(state.StageInitial)),
	}))
	e, err := NewEngine(s, sender, Templates{}, iv, onePolicy(), quietLogger())
	require.NoError(t, err)
	return s, e
}

func TestEngine_FollowUpTiming(t *testing.T) {
	sender := mailbox.NewLogSender(quietLogger())
	s, e := setup(t, Uniform(3*day), sender)

	res, err := e.Run(context.Background(), t0.Add(2*day))
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
	c, _ := s.Contact("c1")
	assert.Equal(t, state.StageInitial, c.Stage)

	scan := t0.Add(3*day + time.Second)
	res, err = e.Run(context.Background(), scan)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Advanced)

	c, _ = s.Contact("c1")
	assert.Equal(t, state.StageFollowedUp1, c.Stage)
	require.NotNil(t, c.NextActionAt)
	assert.Equal(t, t0.Add(6*day+time.Second), *c.NextActionAt)
	assert.Equal(t, scan, c.LastContactedAt)

	sent := sender.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, []string{"sales@acmemed.com"}, sent[0].To)
	assert.Equal(t, "Checking In: Distribution Opportunities in Kuwait", sent[0].Subject)
	assert.Contains(t, sent[0].Body, "Dear Acme Medical Team")
}

func TestEngine_RescanIsIdempotent(t *testing.T) {
	sender := mailbox.NewLogSender(quietLogger())
	s, e := setup(t, Uniform(3*day), sender)
	scan := t0.Add(3*day + time.Second)

	_, err := e.Run(context.Background(), scan)
	require.NoError(t, err)
	res, err := e.Run(context.Background(), scan)
	require.NoError(t, err)
	assert.Zero(t, res.Planned)

	c, _ := s.Contact("c1")
	assert.Equal(t, state.StageFollowedUp1, c.Stage)
	assert.Len(t, sender.Sent(), 1)
}

func TestEngine_ConcurrentRunsTransitionOnce(t *testing.T) {
	sender := mailbox.NewLogSender(quietLogger())
	s, e := setup(t, Uniform(3*day), sender)
	scan := t0.Add(3*day + time.Second)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Run(context.Background(), scan)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	c, _ := s.Contact("c1")
	assert.Equal(t, state.StageFollowedUp1, c.Stage)
	assert.Len(t, c.History, 2)
	assert.Len(t, sender.Sent(), 1)
}

func TestEngine_FullSequenceClosesUnresponsive(t *testing.T) {
	sender := mailbox.NewLogSender(quietLogger())
	iv := DefaultIntervals()
	s, e := setup(t, iv, sender)

	now := t0
	var seen []state.Stage
	for range 10 {
		c, _ := s.Contact("c1")
		seen = append(seen, c.Stage)
		if c.Stage == state.StageClosed {
			break
		}
		now = c.NextActionAt.Add(time.Minute)
		_, err := e.Run(context.Background(), now)
		require.NoError(t, err)
	}

	assert.Equal(t, state.Stages, seen)
	c, _ := s.Contact("c1")
	assert.Equal(t, state.OutcomeUnresponsive, c.Outcome)
	assert.Nil(t, c.NextActionAt)
	assert.Len(t, sender.Sent(), 2, "closing sends no email")

	res, err := e.Run(context.Background(), now.Add(365*day))
	require.NoError(t, err)
	assert.Zero(t, res.Planned, "closed contacts are not scanned")
}

func TestEngine_SendFailureLeavesContactUntouched(t *testing.T) {
	sender := &failingSender{err: errors.New("smtp down")}
	s, e := setup(t, Uniform(day), sender)

	res, err := e.Run(context.Background(), t0.Add(2*day))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0].Error(), "smtp down")

	c, _ := s.Contact("c1")
	assert.Equal(t, state.StageInitial, c.Stage)
	assert.Equal(t, t0.Add(day), *c.NextActionAt)

	sender.err = nil
	res, err = e.Run(context.Background(), t0.Add(2*day))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Advanced)
}

func TestEngine_RepliedContactIsNotFollowedUp(t *testing.T) {
	sender := mailbox.NewLogSender(quietLogger())
	s, e := setup(t, Uniform(day), sender)
	require.NoError(t, s.Commit(state.ContactUpdate{
		SourceMessageID: "m-reply",
		ContactID:       "c1",
		Action:          state.ContactClose,
		Outcome:         state.OutcomeReplied,
		At:              t0.Add(time.Hour),
	}))

	assert.Empty(t, e.Plan(t0.Add(10*day)))
}

func TestNewEngine_ValidatesIntervals(t *testing.T) {
	_, err := NewEngine(state.New(), mailbox.NewLogSender(quietLogger()), Templates{}, Intervals{state.StageInitial: day}, onePolicy(), quietLogger())
	assert.Error(t, err)
}

func TestTemplates(t *testing.T) {
	initial := Templates{}.Initial("Global Pharma", "inquiries@globalpharma.com")
	assert.Equal(t, "Exploring Distribution Opportunities in Kuwait with Global Pharma", initial.Subject)
	assert.Contains(t, initial.Body, "Dear Global Pharma Team,")
	assert.Contains(t, initial.Body, "[Your Name]")

	signed := Templates{SignerName: "Layla", SignerTitle: "Director", Company: "Gulf Med", ContactInfo: "+965 1234"}.Initial("X", "x@y.z")
	assert.Contains(t, signed.Body, "My name is Layla and I am the Director at Gulf Med.")
	assert.NotContains(t, signed.Body, "[Your")

	follow := Templates{SignerName: "Layla"}.FollowUp("X", "x@y.z")
	assert.Contains(t, follow.Body, "follow up on my previous message")
	assert.Contains(t, follow.Body, "Best regards,\nLayla")
}
