package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/smtp"
	"os"
	"strings"
	"time"

	"github.com/jordan-wright/email"

	"github.com/thirdfuse/solarsite/internal/config"
	"github.com/thirdfuse/solarsite/internal/form"
)

// implicitTLSPort is the SMTPS port; everything else goes through STARTTLS.
const implicitTLSPort = 465

// fromDisplaySuffix follows the site name in the default From display name,
// matching the notification footer.
const fromDisplaySuffix = " Website"

// SMTP delivers notifications over SMTP. Settings are resolved from the
// environment on every send, so a credential rotation does not require a
// restart and missing configuration fails the send rather than the boot.
type SMTP struct {
	cfg      config.Contact
	siteName string
	getenv   func(string) string
	now      func() time.Time

	// transport performs the wire delivery. Overridable in tests.
	transport func(e *email.Email, s Settings) error
}

// NewSMTP constructs an SMTP sender using cfg for the fallback recipient
// and subject override. siteName appears in the From display name and the
// notification footer.
func NewSMTP(cfg config.Contact, siteName string) *SMTP {
	s := &SMTP{
		cfg:      cfg,
		siteName: siteName,
		getenv:   os.Getenv,
		now:      time.Now,
	}
	s.transport = s.deliver
	return s
}

// Send formats and transmits the notification. The submission must already
// be normalized; its email becomes the Reply-To so the recipient can answer
// the submitter directly.
func (s *SMTP) Send(_ context.Context, sub form.Submission) error {
	if s == nil {
		return errors.New("smtp sender is nil")
	}

	settings, err := ResolveSettings(s.getenv, s.cfg.Recipient)
	if err != nil {
		return err
	}

	if settings.Recipient == "" {
		return fmt.Errorf("%w: no recipient configured", ErrIncomplete)
	}

	submitted := s.now()

	html, err := BuildHTML(sub, s.siteName, submitted)
	if err != nil {
		return err
	}

	subject := s.cfg.Subject
	if subject == "" {
		subject = Subject(sub)
	}

	msg := &email.Email{
		From:    s.fromHeader(settings.User),
		To:      []string{settings.Recipient},
		ReplyTo: []string{sub.Email},
		Subject: subject,
		Text:    []byte(BuildText(sub, submitted)),
		HTML:    html,
	}

	if err := s.transport(msg, settings); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}

	return nil
}

// fromHeader prefers the configured contact.from address; without one the
// sender is the SMTP user with the site's display name.
func (s *SMTP) fromHeader(user string) string {
	if from := strings.TrimSpace(s.cfg.From); from != "" {
		return from
	}
	return fmt.Sprintf("%q <%s>", s.siteName+fromDisplaySuffix, user)
}

func (s *SMTP) deliver(e *email.Email, settings Settings) error {
	addr := fmt.Sprintf("%s:%d", settings.Host, settings.Port)
	auth := smtp.PlainAuth("", settings.User, settings.Pass, settings.Host)
	tlsCfg := &tls.Config{
		ServerName: settings.Host,
		MinVersion: tls.VersionTLS12,
	}

	if settings.Port == implicitTLSPort {
		return e.SendWithTLS(addr, auth, tlsCfg)
	}

	return e.SendWithStartTLS(addr, auth, tlsCfg)
}
