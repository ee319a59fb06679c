package gmail

import (
	"context"
	"fmt"
	"html"
	"regexp"
	"sort"
	"strings"
	"time"

	gmail "google.golang.org/api/gmail/v1"

	"github.com/teemow/inboxagent/internal/instrumentation"
	"github.com/teemow/inboxagent/internal/logging"
	"github.com/teemow/inboxagent/internal/mailbox"
)

// Query returns the search used to list inbox messages received at or after
// since. Gmail's after: operator has second granularity and is exclusive, so
// the bound is moved back one second and the result filtered precisely.
func Query(since time.Time) string {
	if since.IsZero() {
		return "in:inbox"
	}
	return fmt.Sprintf("in:inbox after:%d", since.Unix()-1)
}

// Fetch lists inbox messages received at or after since, oldest first.
// Messages that disappear between listing and retrieval are skipped.
func (c *Client) Fetch(ctx context.Context, since time.Time) ([]mailbox.Message, error) {
	ids, err := c.listMessageIDs(ctx, Query(since))
	if err != nil {
		return nil, err
	}

	msgs := make([]mailbox.Message, 0, len(ids))
	for _, id := range ids {
		raw, err := c.getMessage(ctx, id)
		if isNotFound(err) {
			c.logger.Warn("message vanished before retrieval", logging.KeyMessage, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		msg := convertMessage(raw)
		if msg.ReceivedAt.Before(since) {
			continue
		}
		msgs = append(msgs, msg)
	}

	sort.SliceStable(msgs, func(i, j int) bool {
		if !msgs[i].ReceivedAt.Equal(msgs[j].ReceivedAt) {
			return msgs[i].ReceivedAt.Before(msgs[j].ReceivedAt)
		}
		return msgs[i].ID < msgs[j].ID
	})
	return msgs, nil
}

func (c *Client) listMessageIDs(ctx context.Context, q string) ([]string, error) {
	var ids []string
	pageToken := ""
	for {
		var res *gmail.ListMessagesResponse
		err := c.observe(ctx, instrumentation.OperationList, func(ctx context.Context) error {
			req := c.svc.Messages.List(me).Q(q).MaxResults(pageSize).Context(ctx)
			if pageToken != "" {
				req.PageToken(pageToken)
			}
			var err error
			res, err = req.Do()
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list messages: %w", err)
		}
		for _, m := range res.Messages {
			ids = append(ids, m.Id)
		}
		if res.NextPageToken == "" {
			return ids, nil
		}
		pageToken = res.NextPageToken
	}
}

func (c *Client) getMessage(ctx context.Context, id string) (*gmail.Message, error) {
	var msg *gmail.Message
	err := c.observe(ctx, instrumentation.OperationGet, func(ctx context.Context) error {
		var err error
		msg, err = c.svc.Messages.Get(me, id).Format("full").Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get message %s: %w", id, err)
	}
	return msg, nil
}

func convertMessage(m *gmail.Message) mailbox.Message {
	var headers []*gmail.MessagePartHeader
	if m.Payload != nil {
		headers = m.Payload.Headers
	}
	return mailbox.Message{
		ID:             m.Id,
		Sender:         headerValue(headers, "From"),
		Subject:        headerValue(headers, "Subject"),
		Body:           extractBody(m),
		ReceivedAt:     time.UnixMilli(m.InternalDate).UTC(),
		AttachmentRefs: attachmentRefs(m),
	}
}

func headerValue(headers []*gmail.MessagePartHeader, name string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

var tagPattern = regexp.MustCompile(`(?s)<[^>]*>`)

// extractBody prefers the first text/plain part, then a tag-stripped
// text/html part, then the snippet.
func extractBody(m *gmail.Message) string {
	if text := findPart(m.Payload, "text/plain"); text != "" {
		return text
	}
	if markup := findPart(m.Payload, "text/html"); markup != "" {
		return strings.TrimSpace(html.UnescapeString(tagPattern.ReplaceAllString(markup, " ")))
	}
	return m.Snippet
}

func findPart(root *gmail.MessagePart, mimeType string) string {
	var found string
	walkParts(root, func(part *gmail.MessagePart) {
		if found != "" || part.MimeType != mimeType || part.Filename != "" {
			return
		}
		if part.Body == nil || part.Body.Data == "" {
			return
		}
		if data, err := decodeData(part.Body.Data); err == nil {
			found = string(data)
		}
	})
	return found
}

// walkParts visits part and all of its descendants depth first.
func walkParts(part *gmail.MessagePart, fn func(*gmail.MessagePart)) {
	if part == nil {
		return
	}
	fn(part)
	for _, p := range part.Parts {
		walkParts(p, fn)
	}
}
