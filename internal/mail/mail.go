// Package mail formats and delivers contact-form notifications. SMTP is the
// default transport; Mailgun can be selected through the site configuration.
// Delivery settings are resolved when a send is attempted, so configuration
// problems surface as send errors rather than startup failures.
package mail

import (
	"context"

	"github.com/thirdfuse/solarsite/internal/form"
)

// Sender delivers a normalized contact submission to the configured
// recipient. Errors cover both configuration and transport failures; the
// caller decides what, if anything, to reveal to the submitter.
type Sender interface {
	Send(ctx context.Context, sub form.Submission) error
}
