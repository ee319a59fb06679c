package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"strings"

	gmail "google.golang.org/api/gmail/v1"

	"github.com/teemow/inboxagent/internal/instrumentation"
	"github.com/teemow/inboxagent/internal/mailbox"
)

// Send delivers msg. When InReplyTo names a Gmail message the reply is
// threaded under it.
func (c *Client) Send(ctx context.Context, msg mailbox.Outgoing) (mailbox.Receipt, error) {
	if len(msg.To) == 0 {
		return mailbox.Receipt{}, fmt.Errorf("at least one recipient is required")
	}
	if msg.Subject == "" {
		return mailbox.Receipt{}, fmt.Errorf("subject is required")
	}
	if msg.Body == "" {
		return mailbox.Receipt{}, fmt.Errorf("body is required")
	}

	var threadID, parentID string
	if msg.InReplyTo != "" {
		parent, err := c.parentHeaders(ctx, msg.InReplyTo)
		switch {
		case isNotFound(err):
			c.logger.Warn("reply parent not found, sending unthreaded", "in_reply_to", msg.InReplyTo)
		case err != nil:
			return mailbox.Receipt{}, err
		default:
			threadID = parent.ThreadId
			if parent.Payload != nil {
				parentID = headerValue(parent.Payload.Headers, "Message-ID")
			}
		}
	}

	out := &gmail.Message{
		Raw:      base64.URLEncoding.EncodeToString([]byte(buildRFC2822(msg, parentID))),
		ThreadId: threadID,
	}

	var sent *gmail.Message
	err := c.observe(ctx, instrumentation.OperationSend, func(ctx context.Context) error {
		var err error
		sent, err = c.svc.Messages.Send(me, out).Context(ctx).Do()
		return err
	})
	if err != nil {
		return mailbox.Receipt{}, fmt.Errorf("failed to send email: %w", err)
	}
	return mailbox.Receipt{ID: sent.Id, SentAt: c.now().UTC()}, nil
}

func (c *Client) parentHeaders(ctx context.Context, id string) (*gmail.Message, error) {
	var parent *gmail.Message
	err := c.observe(ctx, instrumentation.OperationGet, func(ctx context.Context) error {
		var err error
		parent, err = c.svc.Messages.Get(me, id).Format("metadata").MetadataHeaders("Message-ID").Context(ctx).Do()
		return err
	})
	return parent, err
}

// buildRFC2822 renders a plain-text message. parentID is the RFC 5322
// Message-ID of the message being answered, if any.
func buildRFC2822(msg mailbox.Outgoing, parentID string) string {
	var b strings.Builder

	b.WriteString("To: ")
	b.WriteString(strings.Join(msg.To, ", "))
	b.WriteString("\r\n")

	b.WriteString("Subject: ")
	b.WriteString(encodeRFC2047(msg.Subject))
	b.WriteString("\r\n")

	if parentID != "" {
		b.WriteString("In-Reply-To: ")
		b.WriteString(parentID)
		b.WriteString("\r\nReferences: ")
		b.WriteString(parentID)
		b.WriteString("\r\n")
	}

	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Body)

	return b.String()
}

// encodeRFC2047 encodes non-ASCII header values (umlauts, Arabic names).
func encodeRFC2047(s string) string {
	for _, r := range s {
		if r > 127 {
			return mime.BEncoding.Encode("UTF-8", s)
		}
	}
	return s
}

var (
	_ mailbox.Source          = (*Client)(nil)
	_ mailbox.Sender          = (*Client)(nil)
	_ mailbox.AttachmentStore = (*Client)(nil)
)
