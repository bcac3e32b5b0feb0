package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/wolfman30/cashoffer-funnel/internal/leads"
	"github.com/wolfman30/cashoffer-funnel/internal/relay"
	"github.com/wolfman30/cashoffer-funnel/pkg/logging"
)

// LeadAlertSink emails the sales inbox when a lead completes. It plugs into
// the relay so alerts never block the request.
type LeadAlertSink struct {
	email  EmailSender
	to     string
	logger *logging.Logger
}

// NewLeadAlertSink returns nil when there is no sender or recipient.
func NewLeadAlertSink(email EmailSender, to string, logger *logging.Logger) *LeadAlertSink {
	if email == nil || strings.TrimSpace(to) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &LeadAlertSink{email: email, to: strings.TrimSpace(to), logger: logger}
}

func (s *LeadAlertSink) Name() string { return "email" }

// Deliver sends an alert for complete leads and ignores partial ones.
func (s *LeadAlertSink) Deliver(ctx context.Context, evt relay.Event) error {
	if evt.Type != relay.EventLeadComplete || evt.Lead == nil {
		return nil
	}
	msg := LeadAlertMessage(evt.Lead)
	msg.To = s.to
	if err := s.email.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify: lead alert: %w", err)
	}
	s.logger.Info("lead alert sent", "lead_id", evt.Lead.ID)
	return nil
}

// LeadAlertMessage renders the alert body for a completed lead.
func LeadAlertMessage(l *leads.Lead) EmailMessage {
	name := strings.TrimSpace(l.Contact.FirstName + " " + l.Contact.LastName)
	if name == "" {
		name = "Unknown seller"
	}
	var b strings.Builder
	line := func(label, value string) {
		if strings.TrimSpace(value) != "" {
			fmt.Fprintf(&b, "%s: %s\n", label, value)
		}
	}
	line("Lead", l.ID)
	line("Name", name)
	line("Phone", l.Contact.Phone)
	line("Email", l.Contact.Email)
	line("Address", l.Contact.Address)
	line("Listed", l.Value(leads.FieldIsPropertyListed))
	line("Condition", l.Property.Condition)
	line("Timeframe", l.Property.Timeframe)
	line("Asking price", l.Property.Price)
	line("Reason for selling", l.Property.ReasonForSelling)
	line("CRM contact", l.CRMContactID)

	return EmailMessage{
		Subject:  fmt.Sprintf("New cash offer lead: %s", name),
		Text:     b.String(),
		ReplyTo:  l.Contact.Email,
		Category: "lead-alert",
	}
}
