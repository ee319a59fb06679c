package state

import (
	"cmp"
	"slices"
	"sync"
	"time"
)

// Ledger is the dedup gate consulted before any handler runs.
type Ledger interface {
	IsNew(id string) (bool, error)
	MarkProcessed(id string) error
}

// View is the read-only slice of the store handlers may consult.
type View interface {
	Draft(id string) (Draft, bool)
	Contact(id string) (Contact, bool)
}

// Store is the Context Store for one run.
type Store struct {
	medicalMu    sync.Mutex
	medical      []MedicalSummary
	medicalIndex map[string]int

	tendersMu   sync.Mutex
	tenders     []Tender
	tenderIndex map[string]int

	draftsMu sync.Mutex
	drafts   map[string]Draft

	contactsMu sync.Mutex
	contacts   map[string]Contact

	// ledgerMu also guards the checkpoint and the report log.
	ledgerMu   sync.Mutex
	processed  map[string]struct{}
	inflight   map[string]struct{}
	checkpoint time.Time
	reports    []ReportRecord
}

var (
	_ Ledger = (*Store)(nil)
	_ View   = (*Store)(nil)
)

// New returns an empty store.
func New() *Store {
	return &Store{
		medicalIndex: make(map[string]int),
		tenderIndex:  make(map[string]int),
		drafts:       make(map[string]Draft),
		contacts:     make(map[string]Contact),
		processed:    make(map[string]struct{}),
		inflight:     make(map[string]struct{}),
	}
}

func (s *Store) lockFor(c Collection) *sync.Mutex {
	switch c {
	case CollectionMedical:
		return &s.medicalMu
	case CollectionTenders:
		return &s.tendersMu
	case CollectionDrafts:
		return &s.draftsMu
	case CollectionContacts:
		return &s.contactsMu
	}
	return nil
}

// Commit validates and applies u, then marks its source id processed. Both
// happen under the owning collection's lock so no snapshot can see the entry
// without the id. A rejected update changes nothing and marks nothing.
func (s *Store) Commit(u Update) error {
	id := u.SourceID()
	if id == "" {
		return violation(u.Collection(), id, "source message id is empty")
	}
	mu := s.lockFor(u.Collection())
	if mu == nil {
		return violation(u.Collection(), id, "update targets unknown collection")
	}
	if err := u.validate(); err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()

	s.ledgerMu.Lock()
	_, done := s.processed[id]
	s.ledgerMu.Unlock()
	if done {
		return ErrDedupConflict
	}

	if err := u.apply(s); err != nil {
		return err
	}

	s.ledgerMu.Lock()
	s.processed[id] = struct{}{}
	delete(s.inflight, id)
	s.ledgerMu.Unlock()
	return nil
}

// IsNew reports whether id has not been processed yet.
func (s *Store) IsNew(id string) (bool, error) {
	s.ledgerMu.Lock()
	defer s.ledgerMu.Unlock()
	_, done := s.processed[id]
	return !done, nil
}

// MarkProcessed adds id to the processed set. Marking twice is a no-op.
func (s *Store) MarkProcessed(id string) error {
	if id == "" {
		return violation(CollectionLedger, id, "message id is empty")
	}
	s.ledgerMu.Lock()
	defer s.ledgerMu.Unlock()
	s.processed[id] = struct{}{}
	delete(s.inflight, id)
	return nil
}

// Reserve atomically checks that id is neither processed nor in flight and
// claims it. The claim ends with a successful Commit or with Release.
func (s *Store) Reserve(id string) bool {
	s.ledgerMu.Lock()
	defer s.ledgerMu.Unlock()
	if _, done := s.processed[id]; done {
		return false
	}
	if _, busy := s.inflight[id]; busy {
		return false
	}
	s.inflight[id] = struct{}{}
	return true
}

// Release drops a reservation without marking the id processed.
func (s *Store) Release(id string) {
	s.ledgerMu.Lock()
	defer s.ledgerMu.Unlock()
	delete(s.inflight, id)
}

// Processed returns the number of processed ids.
func (s *Store) Processed() int {
	s.ledgerMu.Lock()
	defer s.ledgerMu.Unlock()
	return len(s.processed)
}

// Checkpoint returns the fetch cursor.
func (s *Store) Checkpoint() time.Time {
	s.ledgerMu.Lock()
	defer s.ledgerMu.Unlock()
	return s.checkpoint
}

// AdvanceCheckpoint moves the fetch cursor forward to t. Earlier values are
// ignored so the cursor never moves back.
func (s *Store) AdvanceCheckpoint(t time.Time) {
	s.ledgerMu.Lock()
	defer s.ledgerMu.Unlock()
	if t.After(s.checkpoint) {
		s.checkpoint = t.UTC()
	}
}

// RecordReport remembers that a report period was published.
func (s *Store) RecordReport(r ReportRecord) {
	r.PeriodStart = r.PeriodStart.UTC()
	r.PeriodEnd = r.PeriodEnd.UTC()
	r.PublishedAt = r.PublishedAt.UTC()
	s.ledgerMu.Lock()
	defer s.ledgerMu.Unlock()
	s.reports = append(s.reports, r)
}

// LastReport returns the most recently ending published period of kind.
func (s *Store) LastReport(kind string) (ReportRecord, bool) {
	s.ledgerMu.Lock()
	defer s.ledgerMu.Unlock()
	return lastReport(s.reports, kind)
}

func lastReport(reports []ReportRecord, kind string) (ReportRecord, bool) {
	var (
		last  ReportRecord
		found bool
	)
	for _, r := range reports {
		if r.Kind == kind && (!found || r.PeriodEnd.After(last.PeriodEnd)) {
			last, found = r, true
		}
	}
	return last, found
}

// MedicalSummaries returns a copy of the summaries in append order.
func (s *Store) MedicalSummaries() []MedicalSummary {
	s.medicalMu.Lock()
	defer s.medicalMu.Unlock()
	out := make([]MedicalSummary, 0, len(s.medical))
	for _, m := range s.medical {
		out = append(out, m.clone())
	}
	return out
}

// Tenders returns a copy of the tenders in append order.
func (s *Store) Tenders() []Tender {
	s.tendersMu.Lock()
	defer s.tendersMu.Unlock()
	out := make([]Tender, 0, len(s.tenders))
	for _, t := range s.tenders {
		out = append(out, t.clone())
	}
	return out
}

// Tender returns the tender recorded for a message.
func (s *Store) Tender(id string) (Tender, bool) {
	s.tendersMu.Lock()
	defer s.tendersMu.Unlock()
	i, ok := s.tenderIndex[id]
	if !ok {
		return Tender{}, false
	}
	return s.tenders[i].clone(), true
}

// ReplaceTender overwrites an existing tender after a manual retry. The
// message stays processed; only the download outcome changes.
func (s *Store) ReplaceTender(t Tender) error {
	if !t.Status.Valid() {
		return violation(CollectionTenders, t.SourceMessageID, "unknown status %q", t.Status)
	}
	if err := validateTenderHandles(t); err != nil {
		return err
	}
	s.tendersMu.Lock()
	defer s.tendersMu.Unlock()
	i, ok := s.tenderIndex[t.SourceMessageID]
	if !ok {
		return ErrTenderNotFound
	}
	t = t.clone()
	t.UpdatedAt = t.UpdatedAt.UTC()
	s.tenders[i] = t
	return nil
}

// Draft returns the draft for a message.
func (s *Store) Draft(id string) (Draft, bool) {
	s.draftsMu.Lock()
	defer s.draftsMu.Unlock()
	d, ok := s.drafts[id]
	return d, ok
}

// Drafts returns all drafts ordered by source message id.
func (s *Store) Drafts() []Draft {
	s.draftsMu.Lock()
	defer s.draftsMu.Unlock()
	out := make([]Draft, 0, len(s.drafts))
	for _, d := range s.drafts {
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b Draft) int { return cmp.Compare(a.SourceMessageID, b.SourceMessageID) })
	return out
}

// SetDraftStatus moves a pending draft to sent or discarded. Repeating the
// same final status is a no-op; any other change of a final draft fails.
func (s *Store) SetDraftStatus(id string, status DraftStatus, at time.Time, sentID string) error {
	if status != DraftSent && status != DraftDiscarded {
		return violation(CollectionDrafts, id, "cannot set draft status to %q", status)
	}
	s.draftsMu.Lock()
	defer s.draftsMu.Unlock()
	d, ok := s.drafts[id]
	if !ok {
		return ErrDraftNotFound
	}
	if d.Status != DraftPending {
		if d.Status == status {
			return nil
		}
		return ErrDraftFinalized
	}
	d.Status = status
	d.SentID = sentID
	d.UpdatedAt = at.UTC()
	s.drafts[id] = d
	return nil
}

// Contact returns a contact by id.
func (s *Store) Contact(id string) (Contact, bool) {
	s.contactsMu.Lock()
	defer s.contactsMu.Unlock()
	c, ok := s.contacts[id]
	if !ok {
		return Contact{}, false
	}
	return c.clone(), true
}

// Contacts returns all contacts ordered by id.
func (s *Store) Contacts() []Contact {
	s.contactsMu.Lock()
	defer s.contactsMu.Unlock()
	return s.sortedContacts()
}

func (s *Store) sortedContacts() []Contact {
	out := make([]Contact, 0, len(s.contacts))
	for _, c := range s.contacts {
		out = append(out, c.clone())
	}
	slices.SortFunc(out, func(a, b Contact) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// TransitionContact moves a contact from one stage to the next. It is a
// compare-and-set: if the contact is no longer at from, ErrStaleTransition is
// returned and nothing changes. next is ignored when entering closed.
func (s *Store) TransitionContact(id string, from, to Stage, at time.Time, next time.Time, outcome Outcome) error {
	if !CanTransition(from, to) {
		return violation(CollectionContacts, id, "stage %s cannot move to %s", from, to)
	}
	at = at.UTC()
	if to != StageClosed && !next.After(at) {
		return violation(CollectionContacts, id, "next_action_at must be after the transition")
	}

	s.contactsMu.Lock()
	defer s.contactsMu.Unlock()
	c, ok := s.contacts[id]
	if !ok {
		return ErrContactNotFound
	}
	if c.Stage != from {
		return ErrStaleTransition
	}
	if to == StageClosed {
		closeContact(&c, outcome, at)
	} else {
		n := next.UTC()
		c.History = append(c.History, Transition{From: from, To: to, At: at})
		c.Stage = to
		c.LastContactedAt = at
		c.NextActionAt = &n
	}
	s.contacts[id] = c
	return nil
}

// Stats returns collection sizes.
func (s *Store) Stats() Stats {
	st := Stats{
		ContactsByStage: make(map[Stage]int),
		TendersByStatus: make(map[string]int),
	}
	s.medicalMu.Lock()
	st.MedicalSummaries = len(s.medical)
	s.medicalMu.Unlock()

	s.tendersMu.Lock()
	st.Tenders = len(s.tenders)
	for _, t := range s.tenders {
		st.TendersByStatus[string(t.Status)]++
	}
	s.tendersMu.Unlock()

	s.draftsMu.Lock()
	st.Drafts = len(s.drafts)
	for _, d := range s.drafts {
		if d.Status == DraftPending {
			st.PendingDrafts++
		}
	}
	s.draftsMu.Unlock()

	s.contactsMu.Lock()
	st.Contacts = len(s.contacts)
	for _, c := range s.contacts {
		st.ContactsByStage[c.Stage]++
	}
	s.contactsMu.Unlock()

	s.ledgerMu.Lock()
	st.Processed = len(s.processed)
	st.Checkpoint = s.checkpoint
	s.ledgerMu.Unlock()
	return st
}
