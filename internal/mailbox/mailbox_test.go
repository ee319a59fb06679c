package mailbox

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxagent/internal/logging"
)

func TestMessage_SenderParts(t *testing.T) {
	tests := []struct {
		name     string
		sender   string
		wantAddr string
		wantName string
	}{
		{"display name", "Jane Doe <Jane@Example.com>", "jane@example.com", "Jane Doe"},
		{"bare address", "Sales@Supplier.io", "sales@supplier.io", "Sales"},
		{"unparseable", "  not an address ", "not an address", "not an address"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Message{Sender: tt.sender}
			assert.Equal(t, tt.wantAddr, m.SenderAddress())
			assert.Equal(t, tt.wantName, m.SenderName())
		})
	}
}

func TestMessage_Content(t *testing.T) {
	m := Message{Sender: "a@b.c", Subject: "Hello", Body: "World"}
	assert.Equal(t, "From: a@b.c\nSubject: Hello\n\nWorld", m.Content())
}

func TestStaticSource_FetchSince(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	src := NewStaticSource(
		Message{ID: "late", ReceivedAt: base.Add(2 * time.Hour)},
		Message{ID: "early", ReceivedAt: base},
		Message{ID: "mid", ReceivedAt: base.Add(time.Hour)},
	)

	msgs, err := src.Fetch(context.Background(), base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "mid", msgs[0].ID)
	assert.Equal(t, "late", msgs[1].ID)

	// Re-delivery: the same window yields the same messages again.
	again, err := src.Fetch(context.Background(), base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, msgs, again)

	boom := errors.New("imap down")
	src.FailWith(boom)
	_, err = src.Fetch(context.Background(), base)
	assert.ErrorIs(t, err, boom)
}

func TestLoadStaticSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"id":"m1","sender":"news@med.org","subject":"Trends","body":"trend X rising","received_at":"2025-01-01T10:00:00Z"}
	]`), 0o600))

	src, err := LoadStaticSource(path)
	require.NoError(t, err)
	msgs, err := src.Fetch(context.Background(), time.Time{})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "m1", msgs[0].ID)

	_, err = LoadStaticSource(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestLogSender(t *testing.T) {
	var buf bytes.Buffer
	sender := NewLogSender(logging.New(&buf, "info", "text"))

	_, err := sender.Send(context.Background(), Outgoing{Subject: "no one"})
	assert.Error(t, err)

	receipt, err := sender.Send(context.Background(), Outgoing{To: []string{"Buyer <buyer@example.com>"}, Subject: "Hello", Body: "Hi"})
	require.NoError(t, err)
	assert.Equal(t, "dry-run-1", receipt.ID)
	assert.Len(t, sender.Sent(), 1)

	out := buf.String()
	assert.Contains(t, out, "dry-run send")
	assert.NotContains(t, out, "buyer@example.com")
	assert.Contains(t, out, logging.AnonymizeEmail("buyer@example.com"))
}

func TestMemoryAttachments(t *testing.T) {
	store := NewMemoryAttachments()
	store.Put("r1", []byte("pdf"))
	store.Fail("r2", errors.New("timeout"))

	data, err := store.Download(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, []byte("pdf"), data)

	_, err = store.Download(context.Background(), "r2")
	assert.EqualError(t, err, "timeout")
	_, err = store.Download(context.Background(), "r3")
	assert.Error(t, err)

	assert.Equal(t, 1, store.Calls("r1"))
	assert.Equal(t, 1, store.Calls("r2"))
}
