package handlers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/teemow/inboxagent/internal/logging"
	"github.com/teemow/inboxagent/internal/mailbox"
	"github.com/teemow/inboxagent/internal/outreach"
	"github.com/teemow/inboxagent/internal/retry"
	"github.com/teemow/inboxagent/internal/state"
	"github.com/teemow/inboxagent/internal/triage"
)

// Outreach opens the follow-up sequence for new suppliers and closes it
// when a contacted supplier writes back.
type Outreach struct {
	sender    mailbox.Sender
	templates outreach.Templates
	intervals outreach.Intervals
	policy    retry.Policy
	now       func() time.Time
	logger    logging.Logger

	locks contactLocks
	// sent holds contacts whose initial email went out but whose contact
	// may not be committed yet.
	sentMu sync.Mutex
	sent   map[string]struct{}
}

var _ triage.Handler = (*Outreach)(nil)

// NewOutreach creates the outreach handler.
func NewOutreach(sender mailbox.Sender, templates outreach.Templates, intervals outreach.Intervals, policy retry.Policy, now func() time.Time, logger logging.Logger) *Outreach {
	return &Outreach{
		sender:    sender,
		templates: templates,
		intervals: intervals,
		policy:    policy,
		now:       now,
		logger:    logger,
		locks:     contactLocks{locks: make(map[string]*contactLock)},
		sent:      make(map[string]struct{}),
	}
}

// Handle implements triage.Handler.
//
// Unknown sender: the initial outreach email is sent and the contact is
// created at stage initial. Open contact: closed with outcome replied,
// unless the message predates the contact. Closed contact: nothing
// changes, but the message is still consumed.
//
// Messages for the same contact are serialized around the initial send,
// so concurrent messages from a new sender produce a single email.
func (h *Outreach) Handle(ctx context.Context, msg mailbox.Message, view state.View) (state.Update, error) {
	email := msg.SenderAddress()
	id := state.ContactID(email)
	if id == "" {
		return nil, fmt.Errorf("message %s has no sender address", msg.ID)
	}
	now := h.now().UTC()

	if view != nil {
		if c, ok := view.Contact(id); ok {
			h.forgetSent(id)
			return h.known(msg, c, now), nil
		}
	}

	unlock := h.locks.lock(id)
	defer unlock()

	name := msg.SenderName()
	created := state.ContactUpdate{
		SourceMessageID: msg.ID,
		ContactID:       id,
		Name:            name,
		Email:           email,
		At:              now,
		NextActionAt:    now.Add(h.intervals.For(state.StageInitial)),
	}
	if h.wasSent(id) {
		h.logger.Debug("initial outreach already sent",
			logging.Contact(id),
			logging.Message(msg.ID))
		return created, nil
	}

	out := h.templates.Initial(name, email)
	receipt, err := retry.Value(ctx, h.policy, nil, func(ctx context.Context) (mailbox.Receipt, error) {
		return h.sender.Send(ctx, out)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to send initial outreach: %w", err)
	}
	h.markSent(id)
	h.logger.Info("initial outreach sent",
		logging.Contact(id),
		"receipt", receipt.ID)

	return created, nil
}

// known handles a message from an existing contact.
func (h *Outreach) known(msg mailbox.Message, c state.Contact, now time.Time) state.Update {
	consumed := state.ContactUpdate{SourceMessageID: msg.ID, ContactID: c.ID, At: now}
	if c.Stage == state.StageClosed {
		return consumed
	}
	if !msg.ReceivedAt.IsZero() && msg.ReceivedAt.Before(c.CreatedAt) {
		return consumed
	}
	return state.ContactUpdate{
		SourceMessageID: msg.ID,
		ContactID:       c.ID,
		Action:          state.ContactClose,
		Outcome:         state.OutcomeReplied,
		At:              now,
	}
}

func (h *Outreach) wasSent(id string) bool {
	h.sentMu.Lock()
	defer h.sentMu.Unlock()
	_, ok := h.sent[id]
	return ok
}

func (h *Outreach) markSent(id string) {
	h.sentMu.Lock()
	defer h.sentMu.Unlock()
	h.sent[id] = struct{}{}
}

func (h *Outreach) forgetSent(id string) {
	h.sentMu.Lock()
	defer h.sentMu.Unlock()
	delete(h.sent, id)
}

// contactLocks is a set of mutexes keyed by contact id. Entries are
// dropped when nobody holds or waits for them.
type contactLocks struct {
	mu    sync.Mutex
	locks map[string]*contactLock
}

type contactLock struct {
	sync.Mutex
	refs int
}

func (l *contactLocks) lock(id string) (unlock func()) {
	l.mu.Lock()
	cl, ok := l.locks[id]
	if !ok {
		cl = &contactLock{}
		l.locks[id] = cl
	}
	cl.refs++
	l.mu.Unlock()

	cl.Lock()
	return func() {
		cl.Unlock()
		l.mu.Lock()
		cl.refs--
		if cl.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
