// Package persistence loads and saves Context Store snapshots between runs.
//
// Three backends share one JSON encoding of state.Snapshot: a local file
// written atomically, a single-row SQLite table, and one Valkey key. Open
// picks the backend from configuration.
package persistence
