// Package mailbox defines the message model and the external collaborators
// the pipeline talks to: a Source that yields inbound messages, a Sender that
// delivers outbound mail and an AttachmentStore that resolves attachment refs.
//
// Concrete implementations live in the gmail and imap packages. This package
// also carries small in-memory implementations (StaticSource, LogSender,
// MemoryAttachments) used for dry runs, replays and tests.
package mailbox
