package triage

import (
	"fmt"
	"strings"
)

// Category is the triage result for a message.
type Category string

const (
	MedicalNews    Category = "medical_news"
	KOCTender      Category = "koc_tender"
	NeedsResponse  Category = "needs_response"
	OutreachTarget Category = "outreach_target"
	// Unclassified is terminal for the message in the current cycle: it is
	// logged, not handled and not marked processed.
	Unclassified Category = "unclassified"
)

// Categories lists every category, Unclassified last.
var Categories = []Category{MedicalNews, KOCTender, NeedsResponse, OutreachTarget, Unclassified}

// Routable lists the categories that have a handler.
var Routable = Categories[:len(Categories)-1]

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, k := range Categories {
		if c == k {
			return true
		}
	}
	return false
}

func (c Category) String() string {
	return string(c)
}

// Labels returns the category names as plain strings.
func Labels() []string {
	out := make([]string, len(Categories))
	for i, c := range Categories {
		out[i] = string(c)
	}
	return out
}

// ParseCategory parses a category name, ignoring case and surrounding space.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return Unclassified, fmt.Errorf("unknown category %q", s)
	}
	return c, nil
}
