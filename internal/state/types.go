package state

import (
	"slices"
	"strings"
	"time"
)

// Collection names a partition of the Context Store.
type Collection string

const (
	CollectionLedger   Collection = "processed_ids"
	CollectionMedical  Collection = "medical_summaries"
	CollectionTenders  Collection = "tenders"
	CollectionDrafts   Collection = "draft_responses"
	CollectionContacts Collection = "outreach_contacts"
)

// Stage is the position of an outreach contact in the follow-up sequence.
type Stage string

const (
	StageInitial     Stage = "initial"
	StageFollowedUp1 Stage = "followed_up_1"
	StageFollowedUp2 Stage = "followed_up_2"
	StageClosed      Stage = "closed"
)

// Stages lists every stage in sequence order.
var Stages = []Stage{StageInitial, StageFollowedUp1, StageFollowedUp2, StageClosed}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	return slices.Contains(Stages, s)
}

// Next returns the stage that follows s in the sequence.
func (s Stage) Next() (Stage, bool) {
	switch s {
	case StageInitial:
		return StageFollowedUp1, true
	case StageFollowedUp1:
		return StageFollowedUp2, true
	case StageFollowedUp2:
		return StageClosed, true
	default:
		return "", false
	}
}

// CanTransition reports whether a contact may move from one stage to another:
// one step forward, or straight to closed from any open stage.
func CanTransition(from, to Stage) bool {
	if from == StageClosed || !from.Valid() || !to.Valid() {
		return false
	}
	if to == StageClosed {
		return true
	}
	next, ok := from.Next()
	return ok && next == to
}

// Outcome records why a contact was closed.
type Outcome string

const (
	OutcomeNone         Outcome = ""
	OutcomeReplied      Outcome = "replied"
	OutcomeUnresponsive Outcome = "unresponsive"
)

// TenderStatus is the result of resolving a tender's attachments.
type TenderStatus string

const (
	TenderDownloaded TenderStatus = "downloaded"
	TenderPartial    TenderStatus = "partial"
	TenderFailed     TenderStatus = "failed"
)

// Valid reports whether s is a known tender status.
func (s TenderStatus) Valid() bool {
	switch s {
	case TenderDownloaded, TenderPartial, TenderFailed:
		return true
	}
	return false
}

// DraftStatus is the lifecycle state of a drafted reply.
type DraftStatus string

const (
	DraftPending   DraftStatus = "pending"
	DraftSent      DraftStatus = "sent"
	DraftDiscarded DraftStatus = "discarded"
)

// Valid reports whether s is a known draft status.
func (s DraftStatus) Valid() bool {
	switch s {
	case DraftPending, DraftSent, DraftDiscarded:
		return true
	}
	return false
}

// MedicalSummary is one summarized medical news message.
type MedicalSummary struct {
	SourceMessageID string    `json:"source_message_id"`
	Subject         string    `json:"subject"`
	Summary         string    `json:"summary"`
	TrendTags       []string  `json:"trend_tags"`
	CreatedAt       time.Time `json:"created_at"`
}

// Tender is one tender message and the attachments fetched for it.
type Tender struct {
	SourceMessageID string       `json:"source_message_id"`
	Subject         string       `json:"subject"`
	AttachmentRefs  []string     `json:"attachment_refs"`
	Handles         []string     `json:"handles"`
	Status          TenderStatus `json:"status"`
	Attempts        int          `json:"attempts"`
	LastError       string       `json:"last_error,omitempty"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// Draft is a reply prepared for human approval.
type Draft struct {
	SourceMessageID string      `json:"source_message_id"`
	To              string      `json:"to"`
	Subject         string      `json:"subject"`
	Text            string      `json:"text"`
	Status          DraftStatus `json:"status"`
	SentID          string      `json:"sent_id,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// Transition is one recorded stage change of a contact. From is empty for
// the creation of the contact.
type Transition struct {
	From Stage     `json:"from,omitempty"`
	To   Stage     `json:"to"`
	At   time.Time `json:"at"`
}

// Contact is a supplier in the outreach sequence.
type Contact struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	Email           string       `json:"email"`
	Stage           Stage        `json:"stage"`
	Outcome         Outcome      `json:"outcome,omitempty"`
	SourceMessageID string       `json:"source_message_id,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	LastContactedAt time.Time    `json:"last_contacted_at"`
	NextActionAt    *time.Time   `json:"next_action_at"`
	History         []Transition `json:"history"`
}

// ContactID derives the contact key from an email address.
func ContactID(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ReportRecord remembers a published report period.
type ReportRecord struct {
	Kind        string    `json:"kind"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	PublishedAt time.Time `json:"published_at"`
}

// Stats summarizes collection sizes.
type Stats struct {
	Processed        int            `json:"processed"`
	MedicalSummaries int            `json:"medical_summaries"`
	Tenders          int            `json:"tenders"`
	Drafts           int            `json:"drafts"`
	PendingDrafts    int            `json:"pending_drafts"`
	Contacts         int            `json:"contacts"`
	ContactsByStage  map[Stage]int  `json:"contacts_by_stage"`
	Checkpoint       time.Time      `json:"checkpoint"`
	TendersByStatus  map[string]int `json:"tenders_by_status"`
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func (c Contact) clone() Contact {
	c.NextActionAt = cloneTime(c.NextActionAt)
	c.History = append([]Transition(nil), c.History...)
	if c.History == nil {
		c.History = []Transition{}
	}
	return c
}

func (m MedicalSummary) clone() MedicalSummary {
	m.TrendTags = append([]string{}, m.TrendTags...)
	return m
}

func (t Tender) clone() Tender {
	t.AttachmentRefs = append([]string{}, t.AttachmentRefs...)
	t.Handles = append([]string{}, t.Handles...)
	return t
}

// NormalizeTags trims, lower-cases, de-duplicates and sorts trend tags so the
// stored set has one canonical order.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.Join(strings.Fields(t), " "))
		if t != "" {
			out = append(out, t)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
