// Package pipeline runs processing cycles.
//
// A cycle fetches messages received since the checkpoint, drops those the
// dedup ledger has already seen, routes each remaining message to its
// category handler and commits the handler's update to the Context Store.
// Handlers for distinct messages run concurrently up to a limit. After the
// messages, the cycle runs the outreach follow-up engine, publishes due
// reports, advances the checkpoint and saves the store.
//
// Failures of a single message never abort a cycle; they are recorded in
// the Summary and the message is fetched again next cycle. A dedup ledger
// that cannot be consulted aborts the cycle before any handler runs for the
// affected message.
package pipeline
