// Package batch provides helpers for operator tools that act on several
// records at once, such as sending a set of drafts or retrying tenders.
//
// Each item is processed independently: one failure is reported next to
// the successes instead of aborting the rest.
package batch
