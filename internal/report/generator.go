package report

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/teemow/inboxagent/internal/state"
)

// Generator renders reports.
type Generator struct {
	windows Windows
}

// NewGenerator creates a generator with the given windows.
func NewGenerator(windows Windows) (*Generator, error) {
	if err := windows.Validate(); err != nil {
		return nil, err
	}
	return &Generator{windows: windows}, nil
}

// Window returns the window of kind ending at asOf.
func (g *Generator) Window(kind Kind, asOf time.Time) Window {
	end := asOf.UTC()
	return Window{Start: end.Add(-g.windows[kind]), End: end}
}

// Generate renders the report of kind for [asOf - window, asOf).
func (g *Generator) Generate(snap state.Snapshot, kind Kind, asOf time.Time) (Report, error) {
	if _, ok := g.windows[kind]; !ok {
		return Report{}, fmt.Errorf("unknown report kind %q", kind)
	}
	w := g.Window(kind, asOf)

	var content string
	switch kind {
	case WeeklyOutreach:
		content = renderOutreach(snap, w)
	case BiweeklyMedical:
		content = renderMedical(snap, w, g.windows[kind])
	}
	return Report{Kind: kind, PeriodStart: w.Start, PeriodEnd: w.End, Content: content}, nil
}

func header(kind Kind, w Window) []string {
	h := fmt.Sprintf("%s (%s)", kind.Title(), w.End.Format(time.DateOnly))
	return []string{
		h,
		strings.Repeat("-", len(h)),
		fmt.Sprintf("Period: %s to %s (end exclusive)", w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339)),
	}
}

// stageTitle turns "followed_up_1" into "Followed Up 1".
func stageTitle(s state.Stage) string {
	words := strings.Split(string(s), "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

func contactLabel(c state.Contact) string {
	name := c.Name
	if name == "" {
		name = c.ID
	}
	if c.Email == "" {
		return name
	}
	return fmt.Sprintf("%s (%s)", name, c.Email)
}

// stageAt is the stage a contact had just before t, from its history.
func stageAt(c state.Contact, t time.Time) (state.Stage, bool) {
	var (
		stage state.Stage
		ok    bool
	)
	for _, tr := range c.History {
		if !tr.At.Before(t) {
			break
		}
		stage, ok = tr.To, true
	}
	if len(c.History) == 0 && c.CreatedAt.Before(t) {
		return c.Stage, true
	}
	return stage, ok
}

type transitionLine struct {
	at      time.Time
	contact state.Contact
	tr      state.Transition
}

func renderOutreach(snap state.Snapshot, w Window) string {
	contacts := make([]state.Contact, 0, len(snap.Contacts))
	for _, c := range snap.Contacts {
		contacts = append(contacts, c)
	}
	slices.SortFunc(contacts, func(a, b state.Contact) int { return cmp.Compare(a.ID, b.ID) })

	var (
		created      []state.Contact
		transitions  []transitionLine
		unresponsive []state.Contact
		replied      []state.Contact
		counts       = make(map[state.Stage]int)
	)
	for _, c := range contacts {
		if w.Contains(c.CreatedAt) {
			created = append(created, c)
		}
		for _, tr := range c.History {
			if tr.From == "" || !w.Contains(tr.At) {
				continue
			}
			transitions = append(transitions, transitionLine{at: tr.At, contact: c, tr: tr})
			if tr.To == state.StageClosed {
				switch c.Outcome {
				case state.OutcomeUnresponsive:
					unresponsive = append(unresponsive, c)
				case state.OutcomeReplied:
					replied = append(replied, c)
				}
			}
		}
		if stage, ok := stageAt(c, w.End); ok {
			counts[stage]++
		}
	}

	lines := header(WeeklyOutreach, w)
	if len(created) == 0 && len(transitions) == 0 && len(counts) == 0 {
		lines = append(lines, "", "No supplier outreach activity this week.")
		return strings.Join(lines, "\n") + "\n"
	}

	slices.SortStableFunc(created, func(a, b state.Contact) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	slices.SortStableFunc(transitions, func(a, b transitionLine) int {
		return cmp.Or(a.at.Compare(b.at), cmp.Compare(a.contact.ID, b.contact.ID))
	})

	lines = append(lines, "", fmt.Sprintf("New contacts: %d", len(created)))
	for _, c := range created {
		lines = append(lines, fmt.Sprintf("  • %s - first contacted %s", contactLabel(c), c.CreatedAt.Format(time.DateOnly)))
	}

	lines = append(lines, "", fmt.Sprintf("Stage transitions: %d", len(transitions)))
	for _, t := range transitions {
		lines = append(lines, fmt.Sprintf("  • %s: %s -> %s on %s",
			contactLabel(t.contact), stageTitle(t.tr.From), stageTitle(t.tr.To), t.at.Format(time.DateOnly)))
	}

	lines = append(lines, "", "Summary:")
	for _, s := range state.Stages {
		lines = append(lines, fmt.Sprintf("  - %s: %d", stageTitle(s), counts[s]))
	}

	if len(replied) > 0 {
		lines = append(lines, "", "Replied Suppliers:")
		for _, c := range replied {
			lines = append(lines, "  • "+contactLabel(c))
		}
	}
	if len(unresponsive) > 0 {
		lines = append(lines, "", "Unresponsive Suppliers:")
		for _, c := range unresponsive {
			lines = append(lines, "  • "+contactLabel(c))
		}
	}
	return strings.Join(lines, "\n") + "\n"
}

const untagged = "untagged"

func renderMedical(snap state.Snapshot, w Window, window time.Duration) string {
	var in []state.MedicalSummary
	for _, m := range snap.MedicalSummaries {
		if w.Contains(m.CreatedAt) {
			in = append(in, m)
		}
	}

	lines := header(BiweeklyMedical, w)
	if len(in) == 0 {
		days := int(window / (24 * time.Hour))
		lines = append(lines, "", fmt.Sprintf("No medical news summaries recorded in the last %d days.", days))
		return strings.Join(lines, "\n") + "\n"
	}

	slices.SortStableFunc(in, func(a, b state.MedicalSummary) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.SourceMessageID, b.SourceMessageID))
	})

	groups := make(map[string][]state.MedicalSummary)
	for _, m := range in {
		tags := m.TrendTags
		if len(tags) == 0 {
			tags = []string{untagged}
		}
		for _, tag := range tags {
			groups[tag] = append(groups[tag], m)
		}
	}
	tags := make([]string, 0, len(groups))
	for tag := range groups {
		tags = append(tags, tag)
	}
	slices.SortFunc(tags, func(a, b string) int {
		return cmp.Or(cmp.Compare(len(groups[b]), len(groups[a])), cmp.Compare(a, b))
	})

	lines = append(lines, "", fmt.Sprintf("Summaries: %d", len(in)), "", "Trend frequency:")
	for _, tag := range tags {
		lines = append(lines, fmt.Sprintf("  - %s: %d", tag, len(groups[tag])))
	}
	for _, tag := range tags {
		items := groups[tag]
		lines = append(lines, "", fmt.Sprintf("Trend: %s - %d article(s)", tag, len(items)))
		for _, m := range items {
			subject := m.Subject
			if subject == "" {
				subject = m.SourceMessageID
			}
			lines = append(lines, fmt.Sprintf("  • %s: %s", subject, m.Summary))
		}
	}
	return strings.Join(lines, "\n") + "\n"
}
