package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/teemow/inboxagent/internal/mailbox"
	"github.com/teemow/inboxagent/internal/retry"
)

const basePath = "/gmail/v1/users/me/messages"

func encode(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	assert.NoError(t, json.NewEncoder(w).Encode(v))
}

func writeError(w http.ResponseWriter, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = fmt.Fprintf(w, `{"error":{"code":%d,"message":"boom"}}`, code)
}

func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c, err := New(context.Background(), "test", nil, slog.New(slog.NewTextHandler(io.Discard, nil)),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	c.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	return c
}

func tenderMessage(id string, received time.Time) *gmail.Message {
	return &gmail.Message{
		Id:           id,
		ThreadId:     "thread-" + id,
		InternalDate: received.UnixMilli(),
		Snippet:      "snippet",
		Payload: &gmail.MessagePart{
			MimeType: "multipart/mixed",
			Headers: []*gmail.MessagePartHeader{
				{Name: "From", Value: "KOC Tenders <tenders@koc.example>"},
				{Name: "subject", Value: "KOC Tender 42"},
			},
			Parts: []*gmail.MessagePart{
				{
					MimeType: "multipart/alternative",
					Parts: []*gmail.MessagePart{
						{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: encode("Please find the tender attached.")}},
						{MimeType: "text/html", Body: &gmail.MessagePartBody{Data: encode("<p>ignored</p>")}},
					},
				},
				{
					MimeType: "application/pdf",
					Filename: "specs/../rfq.pdf",
					Body:     &gmail.MessagePartBody{AttachmentId: "att-1", Size: 4},
				},
			},
		},
	}
}

func TestQuery(t *testing.T) {
	assert.Equal(t, "in:inbox", Query(time.Time{}))
	since := time.Unix(1700000000, 0)
	assert.Equal(t, "in:inbox after:1699999999", Query(since))
}

func TestClient_Fetch(t *testing.T) {
	since := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	var queries []string
	var mu sync.Mutex
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+basePath, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		queries = append(queries, r.URL.Query().Get("q"))
		mu.Unlock()
		if r.URL.Query().Get("pageToken") == "" {
			writeJSON(t, w, gmail.ListMessagesResponse{
				Messages:      []*gmail.Message{{Id: "m2"}, {Id: "old"}},
				NextPageToken: "page-2",
			})
			return
		}
		writeJSON(t, w, gmail.ListMessagesResponse{Messages: []*gmail.Message{{Id: "m1"}, {Id: "gone"}}})
	})
	mux.HandleFunc("GET "+basePath+"/{id}", func(w http.ResponseWriter, r *http.Request) {
		switch id := r.PathValue("id"); id {
		case "m1":
			writeJSON(t, w, tenderMessage("m1", since.Add(time.Hour)))
		case "m2":
			writeJSON(t, w, &gmail.Message{
				Id:           "m2",
				InternalDate: since.Add(2 * time.Hour).UnixMilli(),
				Payload: &gmail.MessagePart{
					MimeType: "text/html",
					Headers:  []*gmail.MessagePartHeader{{Name: "From", Value: "a@b.example"}},
					Body:     &gmail.MessagePartBody{Data: encode("<p>Hello &amp; welcome</p>")},
				},
			})
		case "old":
			writeJSON(t, w, &gmail.Message{Id: "old", InternalDate: since.Add(-time.Second).UnixMilli(), Snippet: "x"})
		default:
			writeError(w, http.StatusNotFound)
		}
	})

	c := newTestClient(t, mux)
	msgs, err := c.Fetch(context.Background(), since)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	assert.Equal(t, []string{"in:inbox after:1740787199", "in:inbox after:1740787199"}, queries)

	m1 := msgs[0]
	assert.Equal(t, "m1", m1.ID)
	assert.Equal(t, "KOC Tenders <tenders@koc.example>", m1.Sender)
	assert.Equal(t, "KOC Tender 42", m1.Subject)
	assert.Equal(t, "Please find the tender attached.", m1.Body)
	assert.Equal(t, since.Add(time.Hour), m1.ReceivedAt)
	assert.Equal(t, []string{"gmail:m1/att-1/specs___rfq.pdf"}, m1.AttachmentRefs)

	m2 := msgs[1]
	assert.Equal(t, "m2", m2.ID)
	assert.Equal(t, "Hello & welcome", m2.Body)
	assert.Empty(t, m2.AttachmentRefs)
}

func TestClient_FetchTransientError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+basePath, func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusServiceUnavailable)
	})

	c := newTestClient(t, mux)
	_, err := c.Fetch(context.Background(), time.Time{})
	require.Error(t, err)
	assert.True(t, retry.IsTransient(err))
}

func TestClient_Download(t *testing.T) {
	content := "%PDF-1.7 tender"
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+basePath+"/{id}/attachments/{att}", func(w http.ResponseWriter, r *http.Request) {
		switch r.PathValue("att") {
		case "att-1":
			writeJSON(t, w, gmail.MessagePartBody{Data: encode(content), Size: int64(len(content))})
		case "huge":
			writeJSON(t, w, gmail.MessagePartBody{Data: "", Size: MaxAttachmentSize + 1})
		case "limited":
			writeError(w, http.StatusTooManyRequests)
		default:
			writeError(w, http.StatusNotFound)
		}
	})

	c := newTestClient(t, mux)
	ctx := context.Background()

	data, err := c.Download(ctx, "gmail:m1/att-1/rfq.pdf")
	require.NoError(t, err)
	assert.Equal(t, content, string(data))

	_, err = c.Download(ctx, "gmail:m1/huge/big.zip")
	assert.ErrorContains(t, err, "exceeds maximum size")

	_, err = c.Download(ctx, "gmail:m1/limited/a.pdf")
	require.Error(t, err)
	assert.True(t, retry.IsTransient(err))

	_, err = c.Download(ctx, "gmail:m1/missing/a.pdf")
	require.Error(t, err)
	assert.False(t, retry.IsTransient(err))

	_, err = c.Download(ctx, "imap:1:2")
	assert.Error(t, err)
}

func TestClient_Send(t *testing.T) {
	var got gmail.Message
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+basePath+"/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "orig" {
			writeError(w, http.StatusNotFound)
			return
		}
		assert.Equal(t, "metadata", r.URL.Query().Get("format"))
		writeJSON(t, w, &gmail.Message{
			Id:       "orig",
			ThreadId: "thread-orig",
			Payload: &gmail.MessagePart{Headers: []*gmail.MessagePartHeader{
				{Name: "Message-ID", Value: "<abc@mail.example>"},
			}},
		})
	})
	mux.HandleFunc("POST "+basePath+"/send", func(w http.ResponseWriter, r *http.Request) {
		got = gmail.Message{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(t, w, &gmail.Message{Id: "sent-1"})
	})

	c := newTestClient(t, mux)
	receipt, err := c.Send(context.Background(), mailbox.Outgoing{
		To:        []string{"buyer@hospital.example"},
		Subject:   "Re: Angebot für Größen",
		Body:      "Thank you for your inquiry.",
		InReplyTo: "orig",
	})
	require.NoError(t, err)
	assert.Equal(t, "sent-1", receipt.ID)
	assert.Equal(t, time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC), receipt.SentAt)

	assert.Equal(t, "thread-orig", got.ThreadId)
	raw, err := base64.URLEncoding.DecodeString(got.Raw)
	require.NoError(t, err)
	text := string(raw)
	assert.Contains(t, text, "To: buyer@hospital.example\r\n")
	assert.Contains(t, text, "Subject: =?UTF-8?b?")
	assert.Contains(t, text, "In-Reply-To: <abc@mail.example>\r\n")
	assert.True(t, strings.HasSuffix(text, "\r\n\r\nThank you for your inquiry."))

	receipt, err = c.Send(context.Background(), mailbox.Outgoing{
		To:        []string{"x@y.example"},
		Subject:   "Hello",
		Body:      "Body",
		InReplyTo: "deleted",
	})
	require.NoError(t, err)
	assert.Equal(t, "sent-1", receipt.ID)
	assert.Empty(t, got.ThreadId)
}

func TestClient_SendValidation(t *testing.T) {
	c := newTestClient(t, http.NewServeMux())

	tests := []struct {
		name string
		msg  mailbox.Outgoing
	}{
		{name: "no recipient", msg: mailbox.Outgoing{Subject: "s", Body: "b"}},
		{name: "no subject", msg: mailbox.Outgoing{To: []string{"a@b"}, Body: "b"}},
		{name: "no body", msg: mailbox.Outgoing{To: []string{"a@b"}, Subject: "s"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Send(context.Background(), tt.msg)
			assert.Error(t, err)
		})
	}
}
