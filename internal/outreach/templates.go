package outreach

import (
	"fmt"
	"strings"

	"github.com/teemow/inboxagent/internal/mailbox"
)

// Templates renders supplier emails. Empty signature fields fall back to
// bracketed placeholders so an unconfigured deployment is obvious.
type Templates struct {
	SignerName  string `yaml:"signer_name"`
	SignerTitle string `yaml:"signer_title"`
	Company     string `yaml:"company"`
	ContactInfo string `yaml:"contact_info"`
}

func orPlaceholder(v, placeholder string) string {
	if strings.TrimSpace(v) == "" {
		return placeholder
	}
	return v
}

// Initial is the first outreach email to a supplier.
func (t Templates) Initial(supplier, to string) mailbox.Outgoing {
	name := orPlaceholder(t.SignerName, "[Your Name]")
	title := orPlaceholder(t.SignerTitle, "[Your Title]")
	company := orPlaceholder(t.Company, "[Your Company]")
	contact := orPlaceholder(t.ContactInfo, "[Your Contact Information]")

	body := fmt.Sprintf("Dear %s Team,\n\n", supplier) +
		fmt.Sprintf("My name is %s and I am the %s at %s. ", name, title, company) +
		"We are a leading distributor of medical supplies in Kuwait, and we have been following your company's impressive work and innovative products with great interest.\n\n" +
		"We believe that your products would be an excellent addition to our portfolio, and we are confident that we can establish a strong market presence for you in Kuwait. " +
		"We would be very interested in discussing the possibility of a distribution partnership.\n\n" +
		"Would you be available for a brief call next week to explore this further?\n\n" +
		"Best regards,\n" + name + "\n" + title + "\n" + company + "\n" + contact

	return mailbox.Outgoing{
		To:      []string{to},
		Subject: fmt.Sprintf("Exploring Distribution Opportunities in Kuwait with %s", supplier),
		Body:    body,
	}
}

// FollowUp is the brief check-in sent on each follow-up.
func (t Templates) FollowUp(supplier, to string) mailbox.Outgoing {
	body := fmt.Sprintf("Dear %s Team,\n\n", supplier) +
		"I hope this email finds you well. I'm writing to follow up on my previous message regarding a potential distribution partnership in Kuwait.\n\n" +
		"We are very enthusiastic about the possibility of working together and would be happy to answer any questions you might have.\n\n" +
		"Best regards,\n" + orPlaceholder(t.SignerName, "[Your Name]")

	return mailbox.Outgoing{
		To:      []string{to},
		Subject: "Checking In: Distribution Opportunities in Kuwait",
		Body:    body,
	}
}
