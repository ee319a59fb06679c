package state

import (
	"errors"
	"fmt"
)

var (
	// ErrDedupConflict is returned when an update targets a message id that
	// is already processed. Callers skip the message silently.
	ErrDedupConflict = errors.New("message already processed")

	// ErrLedgerUnavailable is returned when the ledger cannot be consulted.
	// A cycle that sees it must abort rather than risk duplicate side effects.
	ErrLedgerUnavailable = errors.New("dedup ledger unavailable")

	// ErrContactNotFound is returned for transitions on unknown contacts.
	ErrContactNotFound = errors.New("contact not found")

	// ErrStaleTransition is returned when a contact is no longer in the
	// stage a transition was planned from. Re-scans hit this and do nothing.
	ErrStaleTransition = errors.New("contact stage changed since transition was planned")

	// ErrDraftNotFound is returned for status changes on unknown drafts.
	ErrDraftNotFound = errors.New("draft not found")

	// ErrDraftFinalized is returned when a sent or discarded draft would be changed.
	ErrDraftFinalized = errors.New("draft is no longer pending")

	// ErrTenderNotFound is returned when replacing an unknown tender.
	ErrTenderNotFound = errors.New("tender not found")
)

// InvariantViolation reports an update that would break a Context Store
// invariant. It indicates a programming fault and is never retried.
type InvariantViolation struct {
	Collection Collection
	ID         string
	Reason     string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation in %s for %q: %s", e.Collection, e.ID, e.Reason)
}

func violation(c Collection, id, format string, args ...any) error {
	return &InvariantViolation{Collection: c, ID: id, Reason: fmt.Sprintf(format, args...)}
}

// IsInvariantViolation reports whether err carries an *InvariantViolation.
func IsInvariantViolation(err error) bool {
	var iv *InvariantViolation
	return errors.As(err, &iv)
}
