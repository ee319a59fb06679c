// Package retry runs operations against external collaborators with a
// bounded number of attempts and exponential backoff.
//
// Only transient failures are retried. An error is transient when it was
// wrapped with Transient, when it is a network timeout, when a per-attempt
// deadline expired, or when a Google API call answered 429 or 5xx. Anything
// else stops the loop immediately and is returned as is.
package retry
