package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/teemow/inboxagent/internal/llm"
	"github.com/teemow/inboxagent/internal/mailbox"
	"github.com/teemow/inboxagent/internal/state"
	"github.com/teemow/inboxagent/internal/triage"
)

// Drafting prepares reply drafts for human approval.
type Drafting struct {
	inferer llm.Inferer
	now     func() time.Time
}

var _ triage.Handler = (*Drafting)(nil)

// NewDrafting creates the response drafting handler.
func NewDrafting(inferer llm.Inferer, now func() time.Time) *Drafting {
	return &Drafting{inferer: inferer, now: now}
}

// Handle implements triage.Handler. A message that already has a draft, in
// any status, yields state.ErrDedupConflict without calling the inferer.
func (h *Drafting) Handle(ctx context.Context, msg mailbox.Message, view state.View) (state.Update, error) {
	if view != nil {
		if _, ok := view.Draft(msg.ID); ok {
			return nil, state.ErrDedupConflict
		}
	}
	reply, err := h.inferer.Infer(ctx, llm.DraftPrompt(msg.Content()))
	if err != nil {
		return nil, fmt.Errorf("failed to draft reply: %w", err)
	}
	text, err := llm.ParseDraft(reply)
	if err != nil {
		return nil, fmt.Errorf("failed to parse draft: %w", err)
	}
	return state.DraftUpdate{Draft: state.Draft{
		SourceMessageID: msg.ID,
		To:              msg.SenderAddress(),
		Subject:         ReplySubject(msg.Subject),
		Text:            text,
		Status:          state.DraftPending,
		CreatedAt:       h.now().UTC(),
	}}, nil
}

// ReplySubject prefixes subject with "Re: " unless it already is a reply.
func ReplySubject(subject string) string {
	s := strings.TrimSpace(subject)
	if len(s) >= 3 && strings.EqualFold(s[:3], "re:") {
		return s
	}
	return "Re: " + s
}
