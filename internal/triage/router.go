package triage

import (
	"context"
	"fmt"

	"github.com/teemow/inboxagent/internal/mailbox"
	"github.com/teemow/inboxagent/internal/state"
)

// Handler turns one classified message into an update of the collection
// it owns.
type Handler interface {
	Handle(ctx context.Context, msg mailbox.Message, view state.View) (state.Update, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg mailbox.Message, view state.View) (state.Update, error)

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, msg mailbox.Message, view state.View) (state.Update, error) {
	return f(ctx, msg, view)
}

// Routes maps each routable category to its handler.
type Routes map[Category]Handler

// Router classifies messages and selects their handler.
type Router struct {
	classifier Classifier
	routes     Routes
}

// NewRouter checks that routes covers every routable category and nothing
// else, and returns a router over a private copy of it.
func NewRouter(classifier Classifier, routes Routes) (*Router, error) {
	if classifier == nil {
		return nil, fmt.Errorf("router requires a classifier")
	}
	table := make(Routes, len(Routable))
	for _, c := range Routable {
		h, ok := routes[c]
		if !ok || h == nil {
			return nil, fmt.Errorf("no handler registered for category %s", c)
		}
		table[c] = h
	}
	for c := range routes {
		if _, ok := table[c]; !ok {
			return nil, fmt.Errorf("handler registered for non-routable category %q", c)
		}
	}
	return &Router{classifier: classifier, routes: table}, nil
}

// Classify delegates to the classifier and guarantees a known category.
func (r *Router) Classify(ctx context.Context, msg mailbox.Message) (Category, error) {
	cat, err := r.classifier.Classify(ctx, msg)
	if err != nil {
		return Unclassified, err
	}
	if !cat.Valid() {
		return Unclassified, &ClassificationError{MessageID: msg.ID, Err: fmt.Errorf("classifier returned unknown category %q", cat)}
	}
	return cat, nil
}

// HandlerFor returns the handler of a category. It is a pure lookup and
// reports false only for Unclassified and unknown categories.
func (r *Router) HandlerFor(c Category) (Handler, bool) {
	h, ok := r.routes[c]
	return h, ok
}

// Route classifies msg and returns its category and handler. The handler
// is nil when the message is unclassified.
func (r *Router) Route(ctx context.Context, msg mailbox.Message) (Category, Handler, error) {
	cat, err := r.Classify(ctx, msg)
	if err != nil || cat == Unclassified {
		return Unclassified, nil, err
	}
	h, _ := r.HandlerFor(cat)
	return cat, h, nil
}
