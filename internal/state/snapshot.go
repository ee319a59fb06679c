package state

import (
	"fmt"
	"maps"
	"slices"
	"time"
)

// SnapshotVersion is the current snapshot schema version.
const SnapshotVersion = 1

// Snapshot is the serializable form of a Store. Slices are never nil and
// processed ids are sorted, so encoding a snapshot, loading it and taking a
// new snapshot yields the same bytes.
type Snapshot struct {
	Version          int                `json:"version"`
	Checkpoint       time.Time          `json:"checkpoint"`
	ProcessedIDs     []string           `json:"processed_ids"`
	MedicalSummaries []MedicalSummary   `json:"medical_summaries"`
	Tenders          []Tender           `json:"tenders"`
	Drafts           map[string]Draft   `json:"draft_responses"`
	Contacts         map[string]Contact `json:"outreach_contacts"`
	Reports          []ReportRecord     `json:"reports"`
}

// Snapshot captures a consistent copy of the whole store. It takes every
// collection lock in a fixed order and the ledger lock last.
func (s *Store) Snapshot() Snapshot {
	s.medicalMu.Lock()
	defer s.medicalMu.Unlock()
	s.tendersMu.Lock()
	defer s.tendersMu.Unlock()
	s.draftsMu.Lock()
	defer s.draftsMu.Unlock()
	s.contactsMu.Lock()
	defer s.contactsMu.Unlock()
	s.ledgerMu.Lock()
	defer s.ledgerMu.Unlock()

	snap := Snapshot{
		Version:          SnapshotVersion,
		Checkpoint:       s.checkpoint,
		ProcessedIDs:     slices.Sorted(maps.Keys(s.processed)),
		MedicalSummaries: make([]MedicalSummary, 0, len(s.medical)),
		Tenders:          make([]Tender, 0, len(s.tenders)),
		Drafts:           make(map[string]Draft, len(s.drafts)),
		Contacts:         make(map[string]Contact, len(s.contacts)),
		Reports:          append([]ReportRecord{}, s.reports...),
	}
	if snap.ProcessedIDs == nil {
		snap.ProcessedIDs = []string{}
	}
	for _, m := range s.medical {
		snap.MedicalSummaries = append(snap.MedicalSummaries, m.clone())
	}
	for _, t := range s.tenders {
		snap.Tenders = append(snap.Tenders, t.clone())
	}
	maps.Copy(snap.Drafts, s.drafts)
	for id, c := range s.contacts {
		snap.Contacts[id] = c.clone()
	}
	return snap
}

// FromSnapshot rebuilds a store from a snapshot after checking every
// invariant. A zero Snapshot yields an empty store.
func FromSnapshot(snap Snapshot) (*Store, error) {
	if snap.Version > SnapshotVersion {
		return nil, fmt.Errorf("snapshot version %d is newer than supported version %d", snap.Version, SnapshotVersion)
	}
	s := New()
	for _, id := range snap.ProcessedIDs {
		if id == "" {
			return nil, violation(CollectionLedger, id, "empty processed id")
		}
		s.processed[id] = struct{}{}
	}
	if !snap.Checkpoint.IsZero() {
		s.checkpoint = snap.Checkpoint.UTC()
	}

	for _, m := range snap.MedicalSummaries {
		if err := s.checkKeyed(CollectionMedical, m.SourceMessageID, s.medicalIndex); err != nil {
			return nil, err
		}
		m = m.clone()
		m.CreatedAt = m.CreatedAt.UTC()
		s.medicalIndex[m.SourceMessageID] = len(s.medical)
		s.medical = append(s.medical, m)
	}

	for _, t := range snap.Tenders {
		if err := s.checkKeyed(CollectionTenders, t.SourceMessageID, s.tenderIndex); err != nil {
			return nil, err
		}
		if !t.Status.Valid() {
			return nil, violation(CollectionTenders, t.SourceMessageID, "unknown status %q", t.Status)
		}
		t = t.clone()
		t.UpdatedAt = t.UpdatedAt.UTC()
		s.tenderIndex[t.SourceMessageID] = len(s.tenders)
		s.tenders = append(s.tenders, t)
	}

	for key, d := range snap.Drafts {
		if key != d.SourceMessageID {
			return nil, violation(CollectionDrafts, key, "keyed under a different source id %q", d.SourceMessageID)
		}
		if _, ok := s.processed[key]; !ok {
			return nil, violation(CollectionDrafts, key, "source id is not processed")
		}
		if !d.Status.Valid() {
			return nil, violation(CollectionDrafts, key, "unknown status %q", d.Status)
		}
		d.CreatedAt = d.CreatedAt.UTC()
		d.UpdatedAt = d.UpdatedAt.UTC()
		s.drafts[key] = d
	}

	for key, c := range snap.Contacts {
		if err := validateContact(key, c); err != nil {
			return nil, err
		}
		if c.SourceMessageID != "" {
			if _, ok := s.processed[c.SourceMessageID]; !ok {
				return nil, violation(CollectionContacts, key, "source id %q is not processed", c.SourceMessageID)
			}
		}
		s.contacts[key] = normalizeContact(c)
	}

	for _, r := range snap.Reports {
		r.PeriodStart = r.PeriodStart.UTC()
		r.PeriodEnd = r.PeriodEnd.UTC()
		r.PublishedAt = r.PublishedAt.UTC()
		s.reports = append(s.reports, r)
	}
	return s, nil
}

func (s *Store) checkKeyed(c Collection, id string, index map[string]int) error {
	if id == "" {
		return violation(c, id, "entry has no source id")
	}
	if _, ok := s.processed[id]; !ok {
		return violation(c, id, "source id is not processed")
	}
	if _, dup := index[id]; dup {
		return violation(c, id, "duplicate entry")
	}
	return nil
}

func validateContact(key string, c Contact) error {
	if key != c.ID {
		return violation(CollectionContacts, key, "keyed under a different id %q", c.ID)
	}
	if !c.Stage.Valid() {
		return violation(CollectionContacts, key, "unknown stage %q", c.Stage)
	}
	if c.Stage == StageClosed && c.NextActionAt != nil {
		return violation(CollectionContacts, key, "closed contact has next_action_at")
	}
	if c.Stage != StageClosed && c.NextActionAt == nil {
		return violation(CollectionContacts, key, "open contact has no next_action_at")
	}
	if len(c.History) == 0 {
		return nil
	}
	if c.History[0].To != StageInitial || c.History[0].From != "" {
		return violation(CollectionContacts, key, "history does not start at %s", StageInitial)
	}
	for i := 1; i < len(c.History); i++ {
		tr := c.History[i]
		if tr.From != c.History[i-1].To || !CanTransition(tr.From, tr.To) {
			return violation(CollectionContacts, key, "history step %d moves %s to %s", i, tr.From, tr.To)
		}
		if tr.At.Before(c.History[i-1].At) {
			return violation(CollectionContacts, key, "history step %d goes back in time", i)
		}
	}
	if last := c.History[len(c.History)-1].To; last != c.Stage {
		return violation(CollectionContacts, key, "history ends at %s but stage is %s", last, c.Stage)
	}
	return nil
}

func normalizeContact(c Contact) Contact {
	c = c.clone()
	c.CreatedAt = c.CreatedAt.UTC()
	c.LastContactedAt = c.LastContactedAt.UTC()
	if c.NextActionAt != nil {
		n := c.NextActionAt.UTC()
		c.NextActionAt = &n
	}
	for i := range c.History {
		c.History[i].At = c.History[i].At.UTC()
	}
	return c
}
