package pipeline

import (
	"encoding/json"
	"time"

	"github.com/teemow/inboxagent/internal/instrumentation"
	"github.com/teemow/inboxagent/internal/outreach"
)

// Outcome is what happened to one fetched message.
type Outcome string

const (
	OutcomeProcessed          Outcome = "processed"
	OutcomeDuplicate          Outcome = "duplicate"
	OutcomeUnclassified       Outcome = "unclassified"
	OutcomeFailed             Outcome = "failed"
	OutcomeInvariantViolation Outcome = "invariant_violation"
)

// Done reports whether the message needs no further attention from the
// pipeline. Failed messages are fetched again next cycle.
func (o Outcome) Done() bool {
	return o != OutcomeFailed
}

// Result is the outcome of one message.
type Result struct {
	MessageID string  `json:"id"`
	Category  string  `json:"category,omitempty"`
	Outcome   Outcome `json:"outcome"`
	Error     string  `json:"error,omitempty"`

	receivedAt time.Time
}

// ReportResult is the outcome of one due report.
type ReportResult struct {
	Kind        string    `json:"kind"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
}

// Report publication statuses.
const (
	ReportPublished        = "published"
	ReportAlreadyPublished = "already_published"
	ReportSkipped          = "skipped"
)

// Summary is the outcome of one cycle.
type Summary struct {
	CycleID    string    `json:"cycle_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Since      time.Time `json:"since"`
	Checkpoint time.Time `json:"checkpoint"`

	Fetched      int `json:"fetched"`
	Processed    int `json:"processed"`
	Duplicates   int `json:"duplicates"`
	Unclassified int `json:"unclassified"`
	Failed       int `json:"failed"`
	Violations   int `json:"invariant_violations"`

	FetchError string          `json:"fetch_error,omitempty"`
	Results    []Result        `json:"results"`
	FollowUps  outreach.Result `json:"follow_ups"`
	Reports    []ReportResult  `json:"reports"`
}

func (s *Summary) add(r Result) {
	s.Results = append(s.Results, r)
	switch r.Outcome {
	case OutcomeProcessed:
		s.Processed++
	case OutcomeDuplicate:
		s.Duplicates++
	case OutcomeUnclassified:
		s.Unclassified++
	case OutcomeFailed:
		s.Failed++
	case OutcomeInvariantViolation:
		s.Violations++
	}
}

// Status is "success" when nothing went wrong and "partial" otherwise.
func (s *Summary) Status() string {
	if s.FetchError != "" || s.Failed > 0 || s.Violations > 0 || s.FollowUps.Failed > 0 {
		return instrumentation.StatusPartial
	}
	for _, r := range s.Reports {
		if r.Status == ReportSkipped {
			return instrumentation.StatusPartial
		}
	}
	return instrumentation.StatusSuccess
}

// Format renders the summary as indented JSON.
func (s *Summary) Format() string {
	jsonBytes, _ := json.MarshalIndent(s, "", "  ")
	return string(jsonBytes)
}
