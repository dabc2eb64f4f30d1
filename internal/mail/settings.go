package mail

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Settings holds resolved SMTP delivery parameters.
type Settings struct {
	Host      string
	Port      int
	User      string
	Pass      string
	Recipient string
}

// ErrIncomplete indicates SMTP settings are missing or unparseable. It is
// raised before any network connection is attempted.
var ErrIncomplete = errors.New("smtp settings incomplete")

// Each logical setting resolves from an ordered candidate list of variable
// names; the first non-empty value wins. The alternates are legacy names
// kept for existing deployments.
var settingSources = struct {
	host, port, user, pass, recipient []string
}{
	host:      []string{"EMAIL_SMTP_HOST", "SMTP_HOST"},
	port:      []string{"EMAIL_SMTP_PORT", "SMTP_PORT"},
	user:      []string{"EMAIL_SMTP_USER", "SMTP_USER"},
	pass:      []string{"EMAIL_SMTP_PASS", "SMTP_PASSWORD", "SMTP_PASS"},
	recipient: []string{"FORM_RECIPIENT_EMAIL", "CONTACT_EMAIL"},
}

const defaultPort = "587"

// ResolveSettings reads SMTP settings through the provided environment
// accessor. defaultRecipient is used when no recipient variable is set.
// Host, user and password are required; the port defaults to 587 and must
// parse as a number.
func ResolveSettings(getenv func(string) string, defaultRecipient string) (Settings, error) {
	if getenv == nil {
		return Settings{}, fmt.Errorf("%w: nil environment accessor", ErrIncomplete)
	}

	host := firstNonEmpty(getenv, settingSources.host)
	portRaw := firstNonEmpty(getenv, settingSources.port)
	user := firstNonEmpty(getenv, settingSources.user)
	pass := firstNonEmpty(getenv, settingSources.pass)

	recipient := firstNonEmpty(getenv, settingSources.recipient)
	if recipient == "" {
		recipient = strings.TrimSpace(defaultRecipient)
	}

	if portRaw == "" {
		portRaw = defaultPort
	}

	port, err := strconv.Atoi(portRaw)
	if err != nil {
		return Settings{}, fmt.Errorf("%w: port %q is not a number", ErrIncomplete, portRaw)
	}

	if host == "" || user == "" || pass == "" {
		var missing []string
		if host == "" {
			missing = append(missing, strings.Join(settingSources.host, "/"))
		}
		if user == "" {
			missing = append(missing, strings.Join(settingSources.user, "/"))
		}
		if pass == "" {
			missing = append(missing, strings.Join(settingSources.pass, "/"))
		}
		return Settings{}, fmt.Errorf("%w: set %s", ErrIncomplete, strings.Join(missing, ", "))
	}

	return Settings{
		Host:      host,
		Port:      port,
		User:      user,
		Pass:      pass,
		Recipient: recipient,
	}, nil
}

func firstNonEmpty(getenv func(string) string, keys []string) string {
	for _, key := range keys {
		if val := strings.TrimSpace(getenv(key)); val != "" {
			return val
		}
	}
	return ""
}
