// Package state holds the Context Store: the single mutable aggregate that
// every handler of a cycle reads and writes, together with the dedup ledger
// of processed message ids.
//
// # Ownership
//
// Each collection has its own lock and exactly one writer kind:
//
//   - medical_summaries: MedicalUpdate
//   - tenders: TenderUpdate
//   - draft_responses: DraftUpdate
//   - outreach_contacts: ContactUpdate and the follow-up engine
//
// Handlers for different messages can therefore commit concurrently; they
// only meet briefly on the ledger lock.
//
// # Invariants
//
// Every entry keyed by a source message id has that id in the processed set.
// Commit applies the update and marks the id while still holding the
// collection lock (lock order: collection, then ledger), so a Snapshot never
// observes one without the other. Contact stages only move forward along
// initial, followed_up_1, followed_up_2, closed; closed may be entered from
// any open stage. Updates that would break either rule are rejected with an
// *InvariantViolation and leave the store untouched.
package state
