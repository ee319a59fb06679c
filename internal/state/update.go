package state

import (
	"strings"
	"time"
)

// Update is a typed change produced by a handler for one message. Each
// update kind writes exactly one collection.
type Update interface {
	// SourceID is the message id the update was produced for.
	SourceID() string
	// Collection is the only collection the update writes.
	Collection() Collection

	validate() error
	apply(s *Store) error
}

// MedicalUpdate appends a medical news summary.
type MedicalUpdate struct {
	Summary MedicalSummary
}

func (u MedicalUpdate) SourceID() string       { return u.Summary.SourceMessageID }
func (u MedicalUpdate) Collection() Collection { return CollectionMedical }

func (u MedicalUpdate) validate() error {
	if strings.TrimSpace(u.Summary.Summary) == "" {
		return violation(CollectionMedical, u.SourceID(), "summary text is empty")
	}
	if u.Summary.CreatedAt.IsZero() {
		return violation(CollectionMedical, u.SourceID(), "created_at is zero")
	}
	return nil
}

func (u MedicalUpdate) apply(s *Store) error {
	if _, ok := s.medicalIndex[u.SourceID()]; ok {
		return ErrDedupConflict
	}
	m := u.Summary.clone()
	m.TrendTags = NormalizeTags(m.TrendTags)
	m.CreatedAt = m.CreatedAt.UTC()
	s.medicalIndex[m.SourceMessageID] = len(s.medical)
	s.medical = append(s.medical, m)
	return nil
}

// TenderUpdate appends a tender with its download outcome.
type TenderUpdate struct {
	Tender Tender
}

func (u TenderUpdate) SourceID() string       { return u.Tender.SourceMessageID }
func (u TenderUpdate) Collection() Collection { return CollectionTenders }

func (u TenderUpdate) validate() error {
	t := u.Tender
	if !t.Status.Valid() {
		return violation(CollectionTenders, t.SourceMessageID, "unknown status %q", t.Status)
	}
	return validateTenderHandles(t)
}

func validateTenderHandles(t Tender) error {
	switch {
	case t.Status == TenderDownloaded && len(t.Handles) != len(t.AttachmentRefs):
		return violation(CollectionTenders, t.SourceMessageID, "downloaded tender has %d of %d handles", len(t.Handles), len(t.AttachmentRefs))
	case t.Status == TenderFailed && len(t.Handles) != 0:
		return violation(CollectionTenders, t.SourceMessageID, "failed tender carries handles")
	case t.Status == TenderPartial && (len(t.Handles) == 0 || len(t.Handles) >= len(t.AttachmentRefs)):
		return violation(CollectionTenders, t.SourceMessageID, "partial tender has %d of %d handles", len(t.Handles), len(t.AttachmentRefs))
	}
	return nil
}

func (u TenderUpdate) apply(s *Store) error {
	if _, ok := s.tenderIndex[u.SourceID()]; ok {
		return ErrDedupConflict
	}
	t := u.Tender.clone()
	t.UpdatedAt = t.UpdatedAt.UTC()
	s.tenderIndex[t.SourceMessageID] = len(s.tenders)
	s.tenders = append(s.tenders, t)
	return nil
}

// DraftUpdate records a pending reply draft. An existing draft for the same
// message is left untouched whatever its status.
type DraftUpdate struct {
	Draft Draft
}

func (u DraftUpdate) SourceID() string       { return u.Draft.SourceMessageID }
func (u DraftUpdate) Collection() Collection { return CollectionDrafts }

func (u DraftUpdate) validate() error {
	if u.Draft.Status != DraftPending {
		return violation(CollectionDrafts, u.SourceID(), "new draft must be pending, got %q", u.Draft.Status)
	}
	if strings.TrimSpace(u.Draft.Text) == "" {
		return violation(CollectionDrafts, u.SourceID(), "draft text is empty")
	}
	return nil
}

func (u DraftUpdate) apply(s *Store) error {
	if _, ok := s.drafts[u.SourceID()]; ok {
		return ErrDedupConflict
	}
	d := u.Draft
	d.CreatedAt = d.CreatedAt.UTC()
	d.UpdatedAt = d.CreatedAt
	s.drafts[d.SourceMessageID] = d
	return nil
}

// ContactAction selects what a ContactUpdate does to its contact.
type ContactAction int

const (
	// ContactEnsure creates the contact at stage initial if it is unknown and
	// leaves known contacts alone.
	ContactEnsure ContactAction = iota
	// ContactClose closes an open contact with the given outcome.
	ContactClose
)

// ContactUpdate creates or closes an outreach contact in response to a message.
type ContactUpdate struct {
	SourceMessageID string
	ContactID       string
	Name            string
	Email           string
	Action          ContactAction
	Outcome         Outcome
	At              time.Time
	// NextActionAt is required when the update creates the contact.
	NextActionAt time.Time
}

func (u ContactUpdate) SourceID() string       { return u.SourceMessageID }
func (u ContactUpdate) Collection() Collection { return CollectionContacts }

func (u ContactUpdate) validate() error {
	if u.ContactID == "" {
		return violation(CollectionContacts, u.SourceMessageID, "contact id is empty")
	}
	if u.At.IsZero() {
		return violation(CollectionContacts, u.ContactID, "update time is zero")
	}
	if u.Action == ContactClose && u.Outcome == OutcomeNone {
		return violation(CollectionContacts, u.ContactID, "closing requires an outcome")
	}
	return nil
}

func (u ContactUpdate) apply(s *Store) error {
	at := u.At.UTC()
	c, exists := s.contacts[u.ContactID]

	switch {
	case !exists && u.Action == ContactEnsure:
		if u.NextActionAt.IsZero() || !u.NextActionAt.After(at) {
			return violation(CollectionContacts, u.ContactID, "new contact needs next_action_at after creation")
		}
		next := u.NextActionAt.UTC()
		s.contacts[u.ContactID] = Contact{
			ID:              u.ContactID,
			Name:            u.Name,
			Email:           u.Email,
			Stage:           StageInitial,
			SourceMessageID: u.SourceMessageID,
			CreatedAt:       at,
			LastContactedAt: at,
			NextActionAt:    &next,
			History:         []Transition{{To: StageInitial, At: at}},
		}
	case !exists && u.Action == ContactClose:
		return violation(CollectionContacts, u.ContactID, "cannot close unknown contact")
	case exists && u.Action == ContactClose && c.Stage != StageClosed:
		closeContact(&c, u.Outcome, at)
		s.contacts[u.ContactID] = c
	}
	// Known contacts that are already closed, or re-ensured, stay as they are.
	return nil
}

func closeContact(c *Contact, outcome Outcome, at time.Time) {
	c.History = append(c.History, Transition{From: c.Stage, To: StageClosed, At: at})
	c.Stage = StageClosed
	c.Outcome = outcome
	c.NextActionAt = nil
}
