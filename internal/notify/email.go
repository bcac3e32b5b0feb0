// Package notify delivers lead alerts to the sales inbox.
package notify

import (
	"context"
	"fmt"
	netmail "net/mail"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/wolfman30/cashoffer-funnel/pkg/logging"
)

const defaultFromName = "Cash Offer Leads"

// EmailSender delivers one message. SendGrid, SES and a logging stub
// implement it.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailMessage is a plain-text alert with an optional HTML part. ReplyTo lets
// the sales rep answer the seller directly.
type EmailMessage struct {
	To       string
	Subject  string
	Text     string
	HTML     string
	ReplyTo  string
	Category string
}

type sender struct {
	name  string
	email string
}

func newSender(name, email string) sender {
	if strings.TrimSpace(name) == "" {
		name = defaultFromName
	}
	return sender{name: name, email: strings.TrimSpace(email)}
}

func (s sender) String() string {
	return (&netmail.Address{Name: s.name, Address: s.email}).String()
}

// SendGridConfig configures SendGridSender.
type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
	// Host overrides the API host, e.g. for a local mock.
	Host string
}

// SendGridSender sends through the SendGrid v3 mail API.
type SendGridSender struct {
	client *sendgrid.Client
	from   sender
	logger *logging.Logger
}

// NewSendGridSender returns nil without an API key.
func NewSendGridSender(cfg SendGridConfig, logger *logging.Logger) *SendGridSender {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	var client *sendgrid.Client
	if cfg.Host != "" {
		client = &sendgrid.Client{Request: sendgrid.GetRequest(cfg.APIKey, "/v3/mail/send", cfg.Host)}
		client.Request.Method = "POST"
	} else {
		client = sendgrid.NewSendClient(cfg.APIKey)
	}
	return &SendGridSender{client: client, from: newSender(cfg.FromName, cfg.FromEmail), logger: logger}
}

func (s *SendGridSender) Send(ctx context.Context, msg EmailMessage) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("notify: sendgrid client not configured")
	}
	resp, err := s.client.SendWithContext(ctx, s.build(msg))
	if err != nil {
		return fmt.Errorf("notify: sendgrid send: %w", err)
	}
	if resp.StatusCode >= 400 {
		s.logger.Warn("sendgrid rejected alert", "status", resp.StatusCode, "body", resp.Body)
		return fmt.Errorf("notify: sendgrid returned status %d", resp.StatusCode)
	}
	s.logger.Debug("alert sent via sendgrid", "subject", msg.Subject, "status", resp.StatusCode)
	return nil
}

func (s *SendGridSender) build(msg EmailMessage) *mail.SGMailV3 {
	m := mail.NewV3Mail()
	m.SetFrom(mail.NewEmail(s.from.name, s.from.email))
	m.Subject = msg.Subject

	p := mail.NewPersonalization()
	p.AddTos(mail.NewEmail("", msg.To))
	m.AddPersonalizations(p)

	m.AddContent(mail.NewContent("text/plain", msg.Text))
	if msg.HTML != "" {
		m.AddContent(mail.NewContent("text/html", msg.HTML))
	}
	if msg.ReplyTo != "" {
		m.SetReplyTo(mail.NewEmail("", msg.ReplyTo))
	}
	if msg.Category != "" {
		m.AddCategories(msg.Category)
	}
	return m
}

// StubEmailSender logs alerts instead of sending them.
type StubEmailSender struct {
	logger *logging.Logger
}

func NewStubEmailSender(logger *logging.Logger) *StubEmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubEmailSender{logger: logger}
}

func (s *StubEmailSender) Send(_ context.Context, msg EmailMessage) error {
	s.logger.Info("email disabled; alert not sent", "to", msg.To, "subject", msg.Subject)
	return nil
}
