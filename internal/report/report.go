package report

import (
	"fmt"
	"strings"
	"time"
)

// Kind selects a report.
type Kind string

const (
	WeeklyOutreach  Kind = "weekly_outreach"
	BiweeklyMedical Kind = "biweekly_medical"
)

// Kinds lists every report kind.
var Kinds = []Kind{WeeklyOutreach, BiweeklyMedical}

// ParseKind parses a report kind name.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown report kind %q (want %s or %s)", s, WeeklyOutreach, BiweeklyMedical)
}

// Title is the human heading of a report kind.
func (k Kind) Title() string {
	switch k {
	case WeeklyOutreach:
		return "Weekly Supplier Outreach Report"
	case BiweeklyMedical:
		return "Bi-Weekly Medical Trends Report"
	}
	return string(k)
}

// Windows holds the window length per kind.
type Windows map[Kind]time.Duration

// DefaultWindows is seven days for outreach and fourteen for medical trends.
func DefaultWindows() Windows {
	return Windows{
		WeeklyOutreach:  7 * 24 * time.Hour,
		BiweeklyMedical: 14 * 24 * time.Hour,
	}
}

// Validate requires a positive window for every kind.
func (w Windows) Validate() error {
	for _, k := range Kinds {
		if w[k] <= 0 {
			return fmt.Errorf("report window for %s must be positive", k)
		}
	}
	return nil
}

// Report is a rendered, immutable report.
type Report struct {
	Kind        Kind      `json:"kind"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	Content     string    `json:"content"`
}

// Window is a half-open time interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t lies in [Start, End).
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}
