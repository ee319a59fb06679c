package outreach

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/teemow/inboxagent/internal/logging"
	"github.com/teemow/inboxagent/internal/mailbox"
	"github.com/teemow/inboxagent/internal/retry"
	"github.com/teemow/inboxagent/internal/state"
)

// ContactStore is the part of the Context Store the engine uses.
type ContactStore interface {
	Contacts() []state.Contact
	TransitionContact(id string, from, to state.Stage, at, next time.Time, outcome state.Outcome) error
}

// Task is one due transition.
type Task struct {
	ContactID string
	Name      string
	Email     string
	From      state.Stage
	To        state.Stage
	Due       time.Time
}

// SendsEmail reports whether the transition sends a follow-up.
func (t Task) SendsEmail() bool {
	return t.To != state.StageClosed
}

// TaskError records a task that could not be completed.
type TaskError struct {
	Task Task
	Err  error
}

func (e TaskError) Error() string {
	return fmt.Sprintf("follow-up %s -> %s for contact %s: %v", e.Task.From, e.Task.To, logging.AnonymizeEmail(e.Task.ContactID), e.Err)
}

// Result summarizes one Run.
type Result struct {
	Planned  int         `json:"planned"`
	Advanced int         `json:"advanced"`
	Closed   int         `json:"closed"`
	Stale    int         `json:"stale"`
	Failed   int         `json:"failed"`
	Errors   []TaskError `json:"-"`
}

// Engine plans and runs follow-ups. Runs are serialized so a follow-up
// email is never sent twice for the same transition.
type Engine struct {
	mu sync.Mutex

	store     ContactStore
	sender    mailbox.Sender
	templates Templates
	intervals Intervals
	policy    retry.Policy
	logger    logging.Logger
}

// NewEngine creates a follow-up engine.
func NewEngine(store ContactStore, sender mailbox.Sender, templates Templates, intervals Intervals, policy retry.Policy, logger logging.Logger) (*Engine, error) {
	if err := intervals.Validate(); err != nil {
		return nil, err
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		store:     store,
		sender:    sender,
		templates: templates,
		intervals: intervals,
		policy:    policy,
		logger:    logger,
	}, nil
}

// Plan returns the transitions due at now, ordered by contact id. Closed
// contacts and contacts whose next action lies after now are skipped.
func (e *Engine) Plan(now time.Time) []Task {
	var tasks []Task
	for _, c := range e.store.Contacts() {
		if c.Stage == state.StageClosed || c.NextActionAt == nil || now.Before(*c.NextActionAt) {
			continue
		}
		to, ok := c.Stage.Next()
		if !ok {
			continue
		}
		tasks = append(tasks, Task{
			ContactID: c.ID,
			Name:      c.Name,
			Email:     c.Email,
			From:      c.Stage,
			To:        to,
			Due:       *c.NextActionAt,
		})
	}
	return tasks
}

// Run executes every task due at now. A failed send leaves the contact
// unchanged so the next scan tries again; it never aborts the run. The
// returned error is non-nil only for store invariant violations.
func (e *Engine) Run(ctx context.Context, now time.Time) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	tasks := e.Plan(now)
	res := Result{Planned: len(tasks)}

	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if task.SendsEmail() {
			if err := e.sendFollowUp(ctx, task); err != nil {
				res.Failed++
				res.Errors = append(res.Errors, TaskError{Task: task, Err: err})
				e.logger.Warn("follow-up send failed",
					logging.Contact(task.ContactID),
					"from", task.From,
					"to", task.To,
					logging.Err(err))
				continue
			}
		}

		var next time.Time
		outcome := state.OutcomeNone
		if task.To == state.StageClosed {
			outcome = state.OutcomeUnresponsive
		} else {
			next = now.Add(e.intervals.For(task.To))
		}

		err := e.store.TransitionContact(task.ContactID, task.From, task.To, now, next, outcome)
		switch {
		case errors.Is(err, state.ErrStaleTransition), errors.Is(err, state.ErrContactNotFound):
			res.Stale++
			continue
		case err != nil:
			return res, fmt.Errorf("failed to transition contact: %w", err)
		}

		if task.To == state.StageClosed {
			res.Closed++
		} else {
			res.Advanced++
		}
		e.logger.Info("contact advanced",
			logging.Contact(task.ContactID),
			"from", task.From,
			"to", task.To)
	}
	return res, nil
}

func (e *Engine) sendFollowUp(ctx context.Context, task Task) error {
	msg := e.templates.FollowUp(supplierName(task), task.Email)
	return retry.Do(ctx, e.policy, nil, func(ctx context.Context) error {
		_, err := e.sender.Send(ctx, msg)
		return err
	})
}

func supplierName(t Task) string {
	if t.Name != "" {
		return t.Name
	}
	return t.Email
}
