package crm

import (
	"fmt"
	"strings"

	"github.com/wolfman30/cashoffer-funnel/internal/leads"
)

const (
	TagPartial  = "Partial Lead"
	TagComplete = "Complete Lead"

	sourcePartial  = "Website Form - Initial Contact"
	sourceComplete = "Website Form - Complete Submission"
)

// Contact is the CRM's view of a lead.
type Contact struct {
	FirstName  string   `json:"firstName,omitempty"`
	LastName   string   `json:"lastName,omitempty"`
	Name       string   `json:"name,omitempty"`
	Email      string   `json:"email,omitempty"`
	Phone      string   `json:"phone,omitempty"`
	Address1   string   `json:"address1,omitempty"`
	City       string   `json:"city,omitempty"`
	State      string   `json:"state,omitempty"`
	PostalCode string   `json:"postalCode,omitempty"`
	Source     string   `json:"source,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Notes      string   `json:"notes,omitempty"`
	LocationID string   `json:"locationId,omitempty"`
	// ExternalID carries our lead id so CRM users can find the ledger row.
	ExternalID string `json:"externalId,omitempty"`
}

// ContactFromLead maps the accumulated lead onto CRM fields. Property answers
// have no CRM column and go into the notes.
func ContactFromLead(l *leads.Lead) Contact {
	c := Contact{
		FirstName:  l.Contact.FirstName,
		LastName:   l.Contact.LastName,
		Name:       strings.TrimSpace(l.Contact.FirstName + " " + l.Contact.LastName),
		Email:      l.Contact.Email,
		Phone:      l.Contact.Phone,
		Address1:   l.Contact.Address,
		City:       l.Contact.City,
		State:      l.Contact.State,
		PostalCode: l.Contact.PostalCode,
		Source:     sourcePartial,
		Tags:       []string{TagPartial},
		ExternalID: l.ID,
	}
	if l.IsComplete() {
		c.Source = sourceComplete
		c.Tags = []string{TagComplete}
	}
	c.Notes = propertyNotes(l)
	return c
}

func propertyNotes(l *leads.Lead) string {
	lines := []string{}
	add := func(label, value string) {
		if strings.TrimSpace(value) != "" {
			lines = append(lines, fmt.Sprintf("- %s: %s", label, value))
		}
	}
	add("Listed", l.Value(leads.FieldIsPropertyListed))
	add("Condition", l.Property.Condition)
	add("Timeframe to Sell", l.Property.Timeframe)
	add("Asking Price", l.Property.Price)
	add("Reason for Selling", l.Property.ReasonForSelling)
	if len(lines) == 0 {
		return ""
	}
	return "Property Details:\n" + strings.Join(lines, "\n")
}
