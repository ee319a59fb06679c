package triage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/teemow/inboxagent/internal/llm"
	"github.com/teemow/inboxagent/internal/mailbox"
	"github.com/teemow/inboxagent/internal/state"
)

// Classifier assigns one category to a message. Returning Unclassified with
// a nil error means "not confident"; a *ClassificationError means the
// capability produced unusable output.
type Classifier interface {
	Classify(ctx context.Context, msg mailbox.Message) (Category, error)
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(ctx context.Context, msg mailbox.Message) (Category, error)

// Classify implements Classifier.
func (f ClassifierFunc) Classify(ctx context.Context, msg mailbox.Message) (Category, error) {
	return f(ctx, msg)
}

// ClassificationError reports unusable classification output. The message
// is left unclassified for review and is not retried automatically.
type ClassificationError struct {
	MessageID string
	Err       error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("classification of message %s failed: %v", e.MessageID, e.Err)
}

func (e *ClassificationError) Unwrap() error {
	return e.Err
}

// IsClassificationError reports whether err carries a *ClassificationError.
func IsClassificationError(err error) bool {
	var ce *ClassificationError
	return errors.As(err, &ce)
}

// ContactLookup finds outreach contacts by id.
type ContactLookup interface {
	Contact(id string) (state.Contact, bool)
}

// Default keyword sets.
var (
	DefaultTenderKeywords = []string{"koc tender", "koc tenders", "kuwait oil company", "koc/tender"}

	DefaultMedicalTerms = []string{
		"medical", "clinical", "clinic", "health", "healthcare", "patient", "patients",
		"fda", "trial", "trials", "journal", "therapy", "treatment", "drug", "pharma",
		"pharmaceutical", "hospital", "disease", "vaccine", "diagnosis", "oncology",
	}

	DefaultOutreachMarkers = []string{
		"distribution partnership", "distribution opportunities", "distributor in kuwait",
		"exclusive distributor", "distribution agreement",
	}

	DefaultResponseMarkers = []string{
		"please reply", "please respond", "let me know", "could you", "can you",
		"please advise", "please confirm", "request for quotation", "rfq", "awaiting your",
	}
)

// KeywordClassifier applies fixed rules, strongest first: tender keywords,
// then outreach (a known contact writing, or partnership wording), then
// medical vocabulary (at least MinMedicalTerms distinct terms), then
// questions or response requests.
type KeywordClassifier struct {
	TenderKeywords  []string
	MedicalTerms    []string
	OutreachMarkers []string
	ResponseMarkers []string
	MinMedicalTerms int

	// Contacts, when set, routes mail from any outreach contact to the
	// outreach handler.
	Contacts ContactLookup
}

// NewKeywordClassifier returns a classifier with the default keyword sets.
func NewKeywordClassifier(contacts ContactLookup) *KeywordClassifier {
	return &KeywordClassifier{
		TenderKeywords:  DefaultTenderKeywords,
		MedicalTerms:    DefaultMedicalTerms,
		OutreachMarkers: DefaultOutreachMarkers,
		ResponseMarkers: DefaultResponseMarkers,
		MinMedicalTerms: 2,
		Contacts:        contacts,
	}
}

// Classify implements Classifier.
func (k *KeywordClassifier) Classify(_ context.Context, msg mailbox.Message) (Category, error) {
	subject := strings.ToLower(msg.Subject)
	text := subject + "\n" + strings.ToLower(msg.Body)

	if containsAny(text, k.TenderKeywords) {
		return KOCTender, nil
	}
	if k.Contacts != nil {
		if _, ok := k.Contacts.Contact(state.ContactID(msg.SenderAddress())); ok {
			return OutreachTarget, nil
		}
	}
	if containsAny(text, k.OutreachMarkers) {
		return OutreachTarget, nil
	}
	if k.medicalHits(text) >= max(k.MinMedicalTerms, 1) {
		return MedicalNews, nil
	}
	if strings.Contains(text, "?") || containsAny(text, k.ResponseMarkers) {
		return NeedsResponse, nil
	}
	return Unclassified, nil
}

func (k *KeywordClassifier) medicalHits(text string) int {
	words := make(map[string]bool)
	for _, w := range strings.FieldsFunc(text, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}) {
		words[w] = true
	}
	hits := 0
	for _, term := range k.MedicalTerms {
		if words[term] {
			hits++
		}
	}
	return hits
}

func containsAny(text string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(text, n) {
			return true
		}
	}
	return false
}

// InferenceClassifier asks the inference capability for a label.
type InferenceClassifier struct {
	inferer llm.Inferer
}

// NewInferenceClassifier creates a classifier backed by inferer.
func NewInferenceClassifier(inferer llm.Inferer) *InferenceClassifier {
	return &InferenceClassifier{inferer: inferer}
}

// Classify implements Classifier. Inference failures are returned as is so
// transient ones leave the message for the next cycle; replies that name no
// single category become a *ClassificationError.
func (c *InferenceClassifier) Classify(ctx context.Context, msg mailbox.Message) (Category, error) {
	reply, err := c.inferer.Infer(ctx, llm.ClassifyPrompt(msg.Content(), Labels()))
	if err != nil {
		return Unclassified, fmt.Errorf("classification inference failed: %w", err)
	}
	label, err := llm.ParseLabel(reply, Labels())
	if err != nil {
		return Unclassified, &ClassificationError{MessageID: msg.ID, Err: err}
	}
	cat, err := ParseCategory(label)
	if err != nil {
		return Unclassified, &ClassificationError{MessageID: msg.ID, Err: err}
	}
	return cat, nil
}

// Chain tries classifiers in order and returns the first category other
// than Unclassified. A ClassificationError from one link does not stop the
// chain; it is returned only when no later link is confident. Any other
// error stops the chain.
type Chain []Classifier

// Classify implements Classifier.
func (ch Chain) Classify(ctx context.Context, msg mailbox.Message) (Category, error) {
	var classErr error
	for _, c := range ch {
		cat, err := c.Classify(ctx, msg)
		if err != nil {
			if IsClassificationError(err) {
				classErr = err
				continue
			}
			return Unclassified, err
		}
		if cat != Unclassified {
			return cat, nil
		}
	}
	return Unclassified, classErr
}
