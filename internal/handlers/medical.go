package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/teemow/inboxagent/internal/llm"
	"github.com/teemow/inboxagent/internal/mailbox"
	"github.com/teemow/inboxagent/internal/state"
	"github.com/teemow/inboxagent/internal/triage"
)

// Medical summarizes medical news and extracts trend tags.
type Medical struct {
	inferer llm.Inferer
	now     func() time.Time
}

var _ triage.Handler = (*Medical)(nil)

// NewMedical creates the medical news handler.
func NewMedical(inferer llm.Inferer, now func() time.Time) *Medical {
	return &Medical{inferer: inferer, now: now}
}

// Handle implements triage.Handler.
func (h *Medical) Handle(ctx context.Context, msg mailbox.Message, _ state.View) (state.Update, error) {
	reply, err := h.inferer.Infer(ctx, llm.SummarizePrompt(msg.Content()))
	if err != nil {
		return nil, fmt.Errorf("failed to summarize message: %w", err)
	}
	summary, err := llm.ParseSummary(reply)
	if err != nil {
		return nil, fmt.Errorf("failed to parse summary: %w", err)
	}
	return state.MedicalUpdate{Summary: state.MedicalSummary{
		SourceMessageID: msg.ID,
		Subject:         msg.Subject,
		Summary:         summary.Text,
		TrendTags:       summary.Trends,
		CreatedAt:       h.now().UTC(),
	}}, nil
}
