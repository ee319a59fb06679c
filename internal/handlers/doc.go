// Package handlers converts classified messages into Context Store updates.
//
// Each handler writes exactly one collection: Medical writes
// medical_summaries, Tender writes tenders, Drafting writes
// draft_responses and Outreach writes outreach_contacts. Handlers only read
// the store through state.View and never commit; the caller commits the
// returned update and marks the message processed.
package handlers
