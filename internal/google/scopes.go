package google

import gmail "google.golang.org/api/gmail/v1"

// DefaultOAuthScopes are the scopes the agent requests. Reading the inbox and
// downloading attachments needs gmail.readonly; drafts and follow-ups are sent
// with gmail.send. Nothing is ever modified or deleted in the mailbox.
var DefaultOAuthScopes = []string{
	gmail.GmailReadonlyScope,
	gmail.GmailSendScope,
}
