package mailbox

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/teemow/inboxagent/internal/logging"
)

// StaticSource serves a fixed set of messages. Every Fetch returns the
// messages received at or after since, oldest first, which makes it a
// faithful stand-in for a provider that re-delivers unseen mail.
type StaticSource struct {
	mu       sync.Mutex
	messages []Message
	err      error
}

// NewStaticSource creates a source over msgs.
func NewStaticSource(msgs ...Message) *StaticSource {
	s := &StaticSource{}
	s.Add(msgs...)
	return s
}

// LoadStaticSource reads a JSON array of messages from path.
func LoadStaticSource(path string) (*StaticSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read replay file: %w", err)
	}
	var msgs []Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, fmt.Errorf("failed to parse replay file %s: %w", path, err)
	}
	return NewStaticSource(msgs...), nil
}

// Add appends messages to the source.
func (s *StaticSource) Add(msgs ...Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msgs...)
	sort.SliceStable(s.messages, func(i, j int) bool {
		return s.messages[i].ReceivedAt.Before(s.messages[j].ReceivedAt)
	})
}

// FailWith makes subsequent fetches return err. Pass nil to recover.
func (s *StaticSource) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Fetch implements Source.
func (s *StaticSource) Fetch(_ context.Context, since time.Time) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	var out []Message
	for _, m := range s.messages {
		if !m.ReceivedAt.Before(since) {
			out = append(out, m)
		}
	}
	return out, nil
}

// LogSender is a Sender for dry runs: it logs the message and records it
// instead of delivering it.
type LogSender struct {
	logger logging.Logger
	now    func() time.Time

	mu   sync.Mutex
	sent []Outgoing
}

// NewLogSender creates a LogSender writing to logger.
func NewLogSender(logger logging.Logger) *LogSender {
	return &LogSender{logger: logger, now: time.Now}
}

// Send implements Sender.
func (s *LogSender) Send(_ context.Context, msg Outgoing) (Receipt, error) {
	if len(msg.To) == 0 {
		return Receipt{}, fmt.Errorf("at least one recipient is required")
	}
	s.mu.Lock()
	s.sent = append(s.sent, msg)
	n := len(s.sent)
	s.mu.Unlock()

	recipients := make([]string, 0, len(msg.To))
	for _, to := range msg.To {
		recipients = append(recipients, logging.AnonymizeEmail(NormalizeAddress(to)))
	}
	s.logger.Info("dry-run send",
		"to", strings.Join(recipients, ","),
		"subject", msg.Subject,
		"body_chars", len(msg.Body))

	return Receipt{ID: fmt.Sprintf("dry-run-%d", n), SentAt: s.now().UTC()}, nil
}

// Sent returns a copy of every message passed to Send.
func (s *LogSender) Sent() []Outgoing {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Outgoing, len(s.sent))
	copy(out, s.sent)
	return out
}

// MemoryAttachments is an AttachmentStore backed by a map. Refs listed in
// failing return an error on every download.
type MemoryAttachments struct {
	mu      sync.Mutex
	files   map[string][]byte
	failing map[string]error
	calls   map[string]int
}

// NewMemoryAttachments creates an empty in-memory attachment store.
func NewMemoryAttachments() *MemoryAttachments {
	return &MemoryAttachments{
		files:   make(map[string][]byte),
		failing: make(map[string]error),
		calls:   make(map[string]int),
	}
}

// Put stores content under ref.
func (m *MemoryAttachments) Put(ref string, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[ref] = content
}

// Fail makes every download of ref return err.
func (m *MemoryAttachments) Fail(ref string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failing[ref] = err
}

// Calls returns how many times ref was requested.
func (m *MemoryAttachments) Calls(ref string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[ref]
}

// Download implements AttachmentStore.
func (m *MemoryAttachments) Download(_ context.Context, ref string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[ref]++
	if err, ok := m.failing[ref]; ok {
		return nil, err
	}
	data, ok := m.files[ref]
	if !ok {
		return nil, fmt.Errorf("attachment %s not found", ref)
	}
	return data, nil
}
