// Package imap reads a mailbox over IMAPS (Yahoo by default) and serves it
// as a mailbox.Source and mailbox.AttachmentStore.
//
// The mailbox is always selected read-only and bodies are fetched with
// BODY.PEEK, so the agent never changes flags on the server. Messages stay
// unseen until the operator reads them; the dedup ledger keeps them from
// being processed twice.
package imap
