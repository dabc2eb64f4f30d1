package mail

import (
	"context"
	"errors"
	"fmt"
	"time"

	mailgun "github.com/mailgun/mailgun-go/v5"

	"github.com/thirdfuse/solarsite/internal/config"
	"github.com/thirdfuse/solarsite/internal/form"
)

// Mailgun delivers notifications through the Mailgun API. It carries the
// same message contract as the SMTP sender: notification to the configured
// recipient, Reply-To set to the submitter.
type Mailgun struct {
	cfg      config.Contact
	siteName string
	mg       mailgun.Mailgun
	now      func() time.Time
}

// NewMailgun constructs a Mailgun sender. When mg is nil a default client
// is created from the configured API key.
func NewMailgun(cfg config.Contact, siteName string, mg mailgun.Mailgun) *Mailgun {
	if mg == nil && cfg.Mailgun.APIKey != "" {
		mg = mailgun.NewMailgun(cfg.Mailgun.APIKey)
	}
	return &Mailgun{
		cfg:      cfg,
		siteName: siteName,
		mg:       mg,
		now:      time.Now,
	}
}

// Send delivers a contact notification via Mailgun.
func (m *Mailgun) Send(ctx context.Context, sub form.Submission) error {
	if m == nil {
		return errors.New("mailgun sender is nil")
	}

	if m.mg == nil || m.cfg.Mailgun.Domain == "" || m.cfg.From == "" || m.cfg.Recipient == "" {
		return errors.New("mailgun delivery is not fully configured")
	}

	submitted := m.now()

	subject := m.cfg.Subject
	if subject == "" {
		subject = Subject(sub)
	}

	html, err := BuildHTML(sub, m.siteName, submitted)
	if err != nil {
		return err
	}

	message := mailgun.NewMessage(m.cfg.Mailgun.Domain, m.cfg.From, subject, BuildText(sub, submitted))
	if err := message.AddRecipient(m.cfg.Recipient); err != nil {
		return fmt.Errorf("add recipient: %w", err)
	}
	message.SetReplyTo(sub.Email)
	message.SetHTML(string(html))
	message.AddHeader("X-Originating-Email", sub.Email)

	if _, err := m.mg.Send(ctx, message); err != nil {
		return fmt.Errorf("mailgun send: %w", err)
	}

	return nil
}
