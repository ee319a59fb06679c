package mailbox

import (
	"context"
	"net/mail"
	"strings"
	"time"
)

// Message is an inbound email as yielded by a Source. It is never mutated
// after fetch; triage results are kept alongside it, not inside it.
type Message struct {
	// ID is the stable provider-assigned identifier.
	ID         string    `json:"id"`
	Sender     string    `json:"sender"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	ReceivedAt time.Time `json:"received_at"`

	// AttachmentRefs are opaque handles understood by the AttachmentStore
	// of the same provider.
	AttachmentRefs []string `json:"attachment_refs,omitempty"`
}

// SenderAddress returns the bare, lower-cased address of the sender.
// "Jane Doe <Jane@Example.com>" becomes "jane@example.com".
func (m Message) SenderAddress() string {
	return NormalizeAddress(m.Sender)
}

// SenderName returns the display name of the sender, or the local part of
// the address when no display name is present.
func (m Message) SenderName() string {
	if addr, err := mail.ParseAddress(m.Sender); err == nil {
		if addr.Name != "" {
			return addr.Name
		}
		local, _, _ := strings.Cut(addr.Address, "@")
		return local
	}
	local, _, _ := strings.Cut(strings.TrimSpace(m.Sender), "@")
	return local
}

// Content renders the message the way it is handed to the inference
// capability.
func (m Message) Content() string {
	var b strings.Builder
	b.WriteString("From: ")
	b.WriteString(m.Sender)
	b.WriteString("\nSubject: ")
	b.WriteString(m.Subject)
	b.WriteString("\n\n")
	b.WriteString(m.Body)
	return b.String()
}

// NormalizeAddress extracts the bare address from an RFC 5322 address and
// lower-cases it. Unparseable input is trimmed and lower-cased as is.
func NormalizeAddress(s string) string {
	if addr, err := mail.ParseAddress(s); err == nil {
		return strings.ToLower(addr.Address)
	}
	return strings.ToLower(strings.TrimSpace(s))
}

// Outgoing is an email to be delivered by a Sender.
type Outgoing struct {
	To      []string
	Subject string
	Body    string

	// InReplyTo is the provider id of the message being answered, if any.
	InReplyTo string
}

// Receipt confirms delivery of an Outgoing message.
type Receipt struct {
	ID     string
	SentAt time.Time
}

// Source yields raw inbound messages received at or after since.
// Implementations may return messages already seen in earlier cycles; the
// dedup ledger filters them.
type Source interface {
	Fetch(ctx context.Context, since time.Time) ([]Message, error)
}

// Sender delivers outbound mail.
type Sender interface {
	Send(ctx context.Context, msg Outgoing) (Receipt, error)
}

// AttachmentStore resolves an attachment ref to its content.
type AttachmentStore interface {
	Download(ctx context.Context, ref string) ([]byte, error)
}
