// Package outreach runs the supplier follow-up sequence.
//
// A contact enters at stage initial when the first outreach email is sent.
// Each time now reaches its next_action_at, the engine sends a follow-up
// and moves it one stage on; after the second follow-up the next due scan
// closes it as unresponsive. A reply closes it at any stage.
//
// Transitions are compare-and-set on the store, so running the engine twice
// for the same instant, or concurrently, performs each transition once.
package outreach
