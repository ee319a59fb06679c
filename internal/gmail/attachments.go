package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	gmail "google.golang.org/api/gmail/v1"

	"github.com/teemow/inboxagent/internal/instrumentation"
)

const (
	// MaxAttachmentSize defines the maximum attachment size in bytes (25MB)
	MaxAttachmentSize = 25 * 1024 * 1024

	refPrefix = "gmail:"
)

// AttachmentRef identifies one attachment of one message.
type AttachmentRef struct {
	MessageID    string
	AttachmentID string
	Filename     string
}

// String renders the ref as gmail:<messageID>/<attachmentID>/<filename>.
func (r AttachmentRef) String() string {
	return refPrefix + r.MessageID + "/" + r.AttachmentID + "/" + r.Filename
}

// ParseAttachmentRef parses a ref produced by AttachmentRef.String.
func ParseAttachmentRef(ref string) (AttachmentRef, error) {
	rest, ok := strings.CutPrefix(ref, refPrefix)
	if !ok {
		return AttachmentRef{}, fmt.Errorf("not a gmail attachment ref: %q", ref)
	}
	parts := strings.SplitN(rest, "/", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return AttachmentRef{}, fmt.Errorf("malformed gmail attachment ref: %q", ref)
	}
	return AttachmentRef{MessageID: parts[0], AttachmentID: parts[1], Filename: parts[2]}, nil
}

func attachmentRefs(m *gmail.Message) []string {
	var refs []string
	walkParts(m.Payload, func(part *gmail.MessagePart) {
		if part.Filename == "" || part.Body == nil || part.Body.AttachmentId == "" {
			return
		}
		refs = append(refs, AttachmentRef{
			MessageID:    m.Id,
			AttachmentID: part.Body.AttachmentId,
			Filename:     SanitizeFilename(part.Filename),
		}.String())
	})
	return refs
}

// Download resolves a gmail attachment ref to its content.
func (c *Client) Download(ctx context.Context, ref string) ([]byte, error) {
	r, err := ParseAttachmentRef(ref)
	if err != nil {
		return nil, err
	}

	var att *gmail.MessagePartBody
	err = c.observe(ctx, instrumentation.OperationAttachment, func(ctx context.Context) error {
		var err error
		att, err = c.svc.Messages.Attachments.Get(me, r.MessageID, r.AttachmentID).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get attachment %s: %w", r.Filename, err)
	}

	if att.Size > MaxAttachmentSize {
		return nil, fmt.Errorf("attachment size %d exceeds maximum size %d", att.Size, MaxAttachmentSize)
	}

	data, err := decodeData(att.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode attachment data: %w", err)
	}
	if len(data) > MaxAttachmentSize {
		return nil, fmt.Errorf("attachment size %d exceeds maximum size %d", len(data), MaxAttachmentSize)
	}
	return data, nil
}

// decodeData decodes Gmail body data. The API uses base64url; padded,
// unpadded and standard alphabets are all accepted.
func decodeData(s string) ([]byte, error) {
	if data, err := base64.URLEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	if data, err := base64.RawURLEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	return base64.StdEncoding.DecodeString(s)
}

// SanitizeFilename removes path separators so a filename cannot escape the
// directory it is saved in.
func SanitizeFilename(filename string) string {
	filename = strings.ReplaceAll(filename, "/", "_")
	filename = strings.ReplaceAll(filename, "\\", "_")
	filename = strings.ReplaceAll(filename, "..", "_")
	return filename
}
