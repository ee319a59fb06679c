// Package gmail adapts the Gmail API to the agent's mailbox contracts.
//
// A Client is at once a mailbox.Source (inbox listing with full message
// retrieval), a mailbox.AttachmentStore (refs of the form
// gmail:<messageID>/<attachmentID>/<filename>) and a mailbox.Sender (RFC 2822
// messages, threaded when replying).
//
// Rate limiting (429), server errors (5xx) and transport failures are
// reported as transient so callers can retry them with a retry.Policy.
//
// Example usage:
//
//	auth := google.Config{ClientID: id, ClientSecret: secret}
//	client, err := gmail.NewForAccount(ctx, auth, metrics, logger)
//	if err != nil {
//	    return err
//	}
//	msgs, err := client.Fetch(ctx, since)
package gmail
