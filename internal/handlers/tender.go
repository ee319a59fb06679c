package handlers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/teemow/inboxagent/internal/logging"
	"github.com/teemow/inboxagent/internal/mailbox"
	"github.com/teemow/inboxagent/internal/retry"
	"github.com/teemow/inboxagent/internal/state"
	"github.com/teemow/inboxagent/internal/triage"
)

// ErrNoAttachments is recorded for tender messages that reference nothing.
var ErrNoAttachments = errors.New("tender message references no attachments")

// Tender downloads the attachments of KOC tender messages into Dir. Each
// attachment is tried up to the policy's attempt limit; the outcome is
// committed whatever it is so the message is not downloaded again.
type Tender struct {
	store  mailbox.AttachmentStore
	dir    string
	policy retry.Policy
	now    func() time.Time
	logger logging.Logger
}

var _ triage.Handler = (*Tender)(nil)

// NewTender creates the tender handler.
func NewTender(store mailbox.AttachmentStore, dir string, policy retry.Policy, now func() time.Time, logger logging.Logger) *Tender {
	return &Tender{store: store, dir: dir, policy: policy, now: now, logger: logger}
}

// Handle implements triage.Handler. Download failures are folded into the
// tender status; only a cancelled context or a local write error fails the
// handler.
func (h *Tender) Handle(ctx context.Context, msg mailbox.Message, _ state.View) (state.Update, error) {
	t := state.Tender{
		SourceMessageID: msg.ID,
		Subject:         msg.Subject,
		AttachmentRefs:  append([]string{}, msg.AttachmentRefs...),
		Handles:         []string{},
	}
	if err := h.fetch(ctx, &t); err != nil {
		return nil, err
	}
	return state.TenderUpdate{Tender: t}, nil
}

// Retry downloads the attachments a partial or failed tender is missing and
// returns the updated record. The caller stores it with ReplaceTender.
func (h *Tender) Retry(ctx context.Context, t state.Tender) (state.Tender, error) {
	if t.Status == state.TenderDownloaded {
		return t, nil
	}
	if err := h.fetch(ctx, &t); err != nil {
		return t, err
	}
	return t, nil
}

func (h *Tender) fetch(ctx context.Context, t *state.Tender) error {
	have := make(map[string]bool, len(t.Handles))
	for _, handle := range t.Handles {
		have[handle] = true
	}

	var (
		handles []string
		lastErr error
	)
	for i, ref := range t.AttachmentRefs {
		target := h.handlePath(t.SourceMessageID, i, ref)
		if have[target] {
			handles = append(handles, target)
			continue
		}

		data, err := retry.Value(ctx, h.policy, nil, func(ctx context.Context) ([]byte, error) {
			t.Attempts++
			return h.store.Download(ctx, ref)
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			lastErr = err
			h.logger.Warn("tender attachment download failed",
				logging.Message(t.SourceMessageID),
				"ref_index", i,
				logging.Err(err))
			continue
		}
		if err := writeFile(target, data); err != nil {
			return fmt.Errorf("failed to store tender attachment: %w", err)
		}
		handles = append(handles, target)
	}

	if handles == nil {
		handles = []string{}
	}
	t.Handles = handles
	t.UpdatedAt = h.now().UTC()
	t.LastError = ""

	switch {
	case len(t.AttachmentRefs) == 0:
		t.Status = state.TenderFailed
		t.LastError = ErrNoAttachments.Error()
	case len(handles) == len(t.AttachmentRefs):
		t.Status = state.TenderDownloaded
	case len(handles) == 0:
		t.Status = state.TenderFailed
	default:
		t.Status = state.TenderPartial
	}
	if lastErr != nil {
		t.LastError = lastErr.Error()
	}
	return nil
}

// handlePath places attachment i of a message under Dir. The index keeps
// equal file names apart and makes the path stable across retries.
func (h *Tender) handlePath(messageID string, i int, ref string) string {
	name := safeName(path.Base(strings.ReplaceAll(ref, "\\", "/")))
	return filepath.Join(h.dir, safeName(messageID), fmt.Sprintf("%02d-%s", i, name))
}

func writeFile(target string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return err
	}
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, target)
}

// safeName keeps a single path element free of separators and traversal.
func safeName(s string) string {
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, "..", "_")
	s = strings.Map(func(r rune) rune {
		if r < 0x20 || r == ':' || r == '<' || r == '>' || r == '"' || r == '|' || r == '?' || r == '*' {
			return '_'
		}
		return r
	}, s)
	if s == "" || s == "." {
		return "_"
	}
	return s
}
