package llm

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Local is a rule-based Inferer. It never classifies (it answers
// "unclassified" so keyword triage stays in charge), summarizes with the
// first sentence of the body and a fixed trend vocabulary, and drafts from
// a template.
type Local struct {
	// Vocabulary maps a lower-case keyword to the trend tag it signals.
	Vocabulary map[string]string
}

// DefaultTrendVocabulary is used when Local.Vocabulary is empty.
var DefaultTrendVocabulary = map[string]string{
	"ai":             "ai in healthcare",
	"artificial":     "ai in healthcare",
	"machine":        "ai in healthcare",
	"drug discovery": "drug discovery",
	"gene":           "gene therapy",
	"crispr":         "gene therapy",
	"vaccine":        "vaccines",
	"telehealth":     "telehealth",
	"telemedicine":   "telehealth",
	"wearable":       "wearables",
	"diagnostic":     "diagnostics",
	"oncology":       "oncology",
	"cancer":         "oncology",
	"robot":          "robotic surgery",
	"device":         "medical devices",
}

var _ Inferer = Local{}

var sentenceEnd = regexp.MustCompile(`[.!?](\s|$)`)

// Infer implements Inferer.
func (l Local) Infer(_ context.Context, prompt string) (string, error) {
	task, content := splitPrompt(prompt)
	body := emailBody(content)
	switch task {
	case TaskClassify:
		return "unclassified", nil
	case TaskSummarize:
		return fmt.Sprintf("Summary: %s\nTrend: %s", firstSentence(body), strings.Join(l.trends(body), ", ")), nil
	case TaskDraft:
		return draftTemplate(body), nil
	default:
		return "", fmt.Errorf("local inferer does not handle task %q", task)
	}
}

func (l Local) trends(body string) []string {
	vocab := l.Vocabulary
	if len(vocab) == 0 {
		vocab = DefaultTrendVocabulary
	}
	lower := strings.ToLower(body)
	words := make(map[string]bool)
	for _, w := range strings.FieldsFunc(lower, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}) {
		words[w] = true
	}

	seen := make(map[string]bool)
	var out []string
	for kw, tag := range vocab {
		hit := false
		if strings.Contains(kw, " ") {
			hit = strings.Contains(lower, kw)
		} else {
			hit = words[kw] || words[kw+"s"]
		}
		if hit && !seen[tag] {
			seen[tag] = true
			out = append(out, tag)
		}
	}
	sort.Strings(out)
	if len(out) == 0 {
		return []string{"general"}
	}
	return out
}

// emailBody strips the From/Subject header block of Message.Content.
func emailBody(content string) string {
	if _, body, ok := strings.Cut(content, "\n\n"); ok && strings.HasPrefix(content, "From:") {
		return body
	}
	return content
}

func firstSentence(body string) string {
	text := strings.Join(strings.Fields(body), " ")
	if text == "" {
		return "(empty message)"
	}
	if loc := sentenceEnd.FindStringIndex(text); loc != nil {
		return strings.TrimSpace(text[:loc[0]+1])
	}
	return text
}

func draftTemplate(body string) string {
	excerpt := strings.Join(strings.Fields(body), " ")
	if r := []rune(excerpt); len(r) > 50 {
		excerpt = string(r[:50]) + "..."
	}
	return "Thank you for your email. We have received your message and will get back to you shortly.\n\n" +
		"Regarding:\n---\n" + excerpt + "\n---\n\nBest regards"
}
