package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// Inferer is the opaque capability: a prompt in, text out.
type Inferer interface {
	Infer(ctx context.Context, prompt string) (string, error)
}

// InfererFunc adapts a function to Inferer.
type InfererFunc func(ctx context.Context, prompt string) (string, error)

// Infer implements Inferer.
func (f InfererFunc) Infer(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Task identifies the kind of prompt. It is the first line of every prompt
// so that rule-based inferers can dispatch on it.
type Task string

const (
	TaskClassify  Task = "classify"
	TaskSummarize Task = "summarize"
	TaskDraft     Task = "draft"
)

const taskPrefix = "TASK: "

// ErrUnparseable is returned when a reply does not have the expected shape.
var ErrUnparseable = errors.New("unparseable inference output")

// ClassifyPrompt asks for exactly one label out of labels.
func ClassifyPrompt(content string, labels []string) string {
	var b strings.Builder
	b.WriteString(taskPrefix + string(TaskClassify) + "\n")
	b.WriteString("You are an email routing specialist. Classify the email below into exactly one category.\n")
	b.WriteString("Reply with the category name only, one of: ")
	b.WriteString(strings.Join(labels, ", "))
	b.WriteString(".\n")
	b.WriteString("- medical_news: medical journals, newsletters or health articles\n")
	b.WriteString("- koc_tender: emails specifically about KOC tenders\n")
	b.WriteString("- needs_response: general inquiries or supplier emails that need a direct response\n")
	b.WriteString("- outreach_target: suppliers we are contacting about distribution partnerships\n")
	b.WriteString("\nEMAIL:\n")
	b.WriteString(content)
	return b.String()
}

// SummarizePrompt asks for a summary and its trends.
func SummarizePrompt(content string) string {
	var b strings.Builder
	b.WriteString(taskPrefix + string(TaskSummarize) + "\n")
	b.WriteString("Summarize the medical news below in one or two sentences and identify the key trends.\n")
	b.WriteString("Reply in exactly this form:\nSummary: <summary>\nTrend: <trend>[, <trend>...]\n")
	b.WriteString("\nEMAIL:\n")
	b.WriteString(content)
	return b.String()
}

// DraftPrompt asks for a reply body to be approved by a human.
func DraftPrompt(content string) string {
	var b strings.Builder
	b.WriteString(taskPrefix + string(TaskDraft) + "\n")
	b.WriteString("Draft a short, polite reply to the email below for human approval.\n")
	b.WriteString("Reply with the body text only, no subject line.\n")
	b.WriteString("\nEMAIL:\n")
	b.WriteString(content)
	return b.String()
}

// splitPrompt returns the task and the email content of a prompt built by
// this package.
func splitPrompt(prompt string) (Task, string) {
	first, rest, _ := strings.Cut(prompt, "\n")
	task := Task(strings.TrimPrefix(first, taskPrefix))
	if _, content, ok := strings.Cut(rest, "\nEMAIL:\n"); ok {
		return task, content
	}
	return task, rest
}

// ParseLabel extracts a label from a classification reply. It accepts
// surrounding whitespace, quotes, punctuation and case differences, and
// fails unless exactly one of labels is named.
func ParseLabel(reply string, labels []string) (string, error) {
	cleaned := strings.ToLower(strings.TrimFunc(reply, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r) && r != '_'
	}))
	for _, l := range labels {
		if cleaned == l {
			return l, nil
		}
	}
	var found []string
	for _, l := range labels {
		if strings.Contains(cleaned, l) {
			found = append(found, l)
		}
	}
	if len(found) == 1 {
		return found[0], nil
	}
	return "", fmt.Errorf("%w: %q names %d categories", ErrUnparseable, truncate(reply, 80), len(found))
}

// Summary is a parsed summarization reply.
type Summary struct {
	Text   string
	Trends []string
}

// ParseSummary reads "Summary: ... Trend: ..." replies. The two fields may
// be on one line or on separate lines; "Trends:" is accepted as well.
// Multiple trends are separated by commas or semicolons.
func ParseSummary(reply string) (Summary, error) {
	si := indexFold(reply, "summary:")
	if si < 0 {
		return Summary{}, fmt.Errorf("%w: no summary field", ErrUnparseable)
	}
	text := reply[si+len("summary:"):]
	var trends string
	if label, ti := trendLabel(reply[si:]); ti >= 0 {
		ti += si
		text = reply[si+len("summary:") : ti]
		trends = reply[ti+len(label):]
	}
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return Summary{}, fmt.Errorf("%w: empty summary", ErrUnparseable)
	}

	var out []string
	for _, t := range strings.FieldsFunc(trends, func(r rune) bool { return r == ',' || r == ';' || r == '\n' }) {
		t = strings.TrimRight(strings.TrimSpace(t), ".")
		if t != "" {
			out = append(out, t)
		}
	}
	return Summary{Text: text, Trends: out}, nil
}

// ParseDraft normalizes a drafting reply, dropping a leading subject line
// the model may add despite the instructions.
func ParseDraft(reply string) (string, error) {
	text := strings.TrimSpace(reply)
	if first, rest, ok := strings.Cut(text, "\n"); ok && strings.HasPrefix(strings.ToLower(first), "subject:") {
		text = strings.TrimSpace(rest)
	}
	if text == "" {
		return "", fmt.Errorf("%w: empty draft", ErrUnparseable)
	}
	return text, nil
}

// indexFold is strings.Index ignoring ASCII case. label must be lower case.
func indexFold(s, label string) int {
	for i := 0; i+len(label) <= len(s); i++ {
		if strings.EqualFold(s[i:i+len(label)], label) {
			return i
		}
	}
	return -1
}

// trendLabel finds the first "trend:" or "trends:" label in s.
func trendLabel(s string) (string, int) {
	best, label := -1, ""
	for _, l := range []string{"trend:", "trends:"} {
		if i := indexFold(s, l); i >= 0 && (best < 0 || i < best) {
			best, label = i, l
		}
	}
	return label, best
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
