package funnel

import (
	"time"

	"github.com/wolfman30/cashoffer-funnel/internal/leads"
)

// Step is one screen of the funnel.
type Step string

const (
	StepInitial        Step = "initial"
	StepPropertyListed Step = "property-listed"
	StepTimeline       Step = "timeline"
	StepContact        Step = "contact"
	StepThankYou       Step = "thank-you"
)

var order = []Step{StepInitial, StepPropertyListed, StepTimeline, StepContact, StepThankYou}

// Next returns the following step. The terminal step returns itself.
func (s Step) Next() Step {
	for i, st := range order {
		if st == s && i+1 < len(order) {
			return order[i+1]
		}
	}
	return s
}

// Valid reports whether s is a known step.
func (s Step) Valid() bool {
	for _, st := range order {
		if st == s {
			return true
		}
	}
	return false
}

// Draft is the in-progress state kept on the client between visits.
type Draft struct {
	SessionID    string        `json:"sessionId"`
	Step         Step          `json:"step"`
	Fields       leads.Payload `json:"fields"`
	LeadID       string        `json:"leadId,omitempty"`
	CRMContactID string        `json:"crmContactId,omitempty"`
	Warning      string        `json:"warning,omitempty"`

	// CheckpointAt is when the last step was flushed to the server.
	CheckpointAt   time.Time `json:"checkpointAt,omitempty"`
	UpdatedAt      time.Time `json:"updatedAt,omitempty"`
	AbandonFlushed bool      `json:"abandonFlushed,omitempty"`
}

func (d *Draft) contactEmpty() bool {
	return d.Fields.Value(leads.FieldFirstName) == "" &&
		d.Fields.Value(leads.FieldLastName) == "" &&
		d.Fields.Value(leads.FieldEmail) == ""
}

// checkStep applies the local completion rule for step before anything is
// sent to the server.
func checkStep(step Step, p leads.Payload) error {
	switch step {
	case StepInitial:
		return leads.Validate(p, leads.KindPartial)
	case StepPropertyListed:
		if p.IsPropertyListed == nil {
			return &leads.ValidationError{Field: leads.FieldIsPropertyListed, Reason: "is required"}
		}
		if p.Value(leads.FieldPropertyCondition) == "" {
			return &leads.ValidationError{Field: leads.FieldPropertyCondition, Reason: "is required"}
		}
	case StepTimeline:
		for _, f := range []leads.Field{leads.FieldTimeframe, leads.FieldPrice} {
			if p.Value(f) == "" {
				return &leads.ValidationError{Field: f, Reason: "is required"}
			}
		}
	case StepContact:
		return leads.Validate(p, leads.KindComplete)
	}
	return nil
}
