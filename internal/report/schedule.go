package report

import (
	"time"

	"github.com/teemow/inboxagent/internal/state"
)

// Due decides whether a report of kind should be published at now and for
// which as_of. The first report of a kind ends at now. Later reports follow
// on from the last published period end, one window at a time, so
// consecutive reports neither overlap nor leave gaps; a long outage is
// caught up one period per call.
func (g *Generator) Due(reports []state.ReportRecord, kind Kind, now time.Time) (time.Time, bool) {
	window, ok := g.windows[kind]
	if !ok {
		return time.Time{}, false
	}
	now = now.UTC().Truncate(time.Second)

	var (
		last  time.Time
		found bool
	)
	for _, r := range reports {
		if Kind(r.Kind) == kind && (!found || r.PeriodEnd.After(last)) {
			last, found = r.PeriodEnd, true
		}
	}
	if !found {
		return now, true
	}
	next := last.Add(window)
	if now.Before(next) {
		return time.Time{}, false
	}
	return next, true
}

// Record is the report log entry for a published report.
func Record(r Report, publishedAt time.Time) state.ReportRecord {
	return state.ReportRecord{
		Kind:        string(r.Kind),
		PeriodStart: r.PeriodStart,
		PeriodEnd:   r.PeriodEnd,
		PublishedAt: publishedAt.UTC(),
	}
}
