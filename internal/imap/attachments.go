package imap

import (
	"context"
	"fmt"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"github.com/teemow/inboxagent/internal/instrumentation"
	"github.com/teemow/inboxagent/internal/mailbox"
)

// Download fetches and decodes the attachment named by ref. A ref minted
// under a different UIDVALIDITY no longer identifies the same message and
// is rejected.
func (s *Source) Download(ctx context.Context, ref string) ([]byte, error) {
	r, err := ParseAttachmentRef(ref)
	if err != nil {
		return nil, err
	}

	var data []byte
	err = s.session(ctx, instrumentation.OperationAttachment, func(c *client.Client, status *imap.MailboxStatus) error {
		if status.UidValidity != r.UIDValidity {
			return fmt.Errorf("mailbox uidvalidity changed (%d != %d), attachment %s is gone", status.UidValidity, r.UIDValidity, r.Filename)
		}

		seqset := new(imap.SeqSet)
		seqset.AddNum(r.UID)
		msgs, err := collect(c, seqset, []imap.FetchItem{imap.FetchUid, imap.FetchBodyStructure})
		if err != nil {
			return err
		}
		if len(msgs) == 0 {
			return fmt.Errorf("message uid %d not found", r.UID)
		}
		p, ok := partAt(msgs[0].BodyStructure, r.Path)
		if !ok {
			return fmt.Errorf("message uid %d has no part %v", r.UID, r.Path)
		}

		raw, err := fetchSection(c, r.UID, p.section())
		if err != nil {
			return err
		}
		data, err = decodePart(raw, p.Encoding)
		if err != nil {
			return fmt.Errorf("failed to decode attachment %s: %w", r.Filename, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

var (
	_ mailbox.Source          = (*Source)(nil)
	_ mailbox.AttachmentStore = (*Source)(nil)
)
