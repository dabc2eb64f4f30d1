// Package form defines the contact-form submission type and the validation
// rules shared by the server and the in-page form script. The server always
// re-validates; client-reported validity is never trusted.
package form

import (
	"regexp"
	"strings"
)

// Submission is a contact-form payload. It lives for the duration of a
// single request and is never persisted.
type Submission struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone,omitempty"`
	Company     string `json:"company,omitempty"`
	ProjectType string `json:"projectType,omitempty"`
	Message     string `json:"message"`

	// BotField is a honeypot. Humans never fill it; any non-empty value
	// marks the submission as automated.
	BotField string `json:"botField,omitempty"`
}

// Validation messages keyed by rule. Field names in the error map match the
// JSON field names of Submission.
const (
	MsgNameTooShort    = "Name must be at least 2 characters"
	MsgEmailInvalid    = "Please enter a valid email address"
	MsgMessageTooShort = "Message must be at least 10 characters"
)

const (
	minNameLen    = 2
	minMessageLen = 10
)

// emailPattern accepts local@domain.tld shapes without attempting full
// RFC 5322 parsing.
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ProjectTypes enumerates the categories offered by the contact form.
// The field itself is optional and never rejected; the list exists for the
// form UI and the email formatter.
var ProjectTypes = []string{
	"residential",
	"commercial",
	"battery",
	"maintenance",
	"consulting",
	"other",
}

// Validate checks every rule and reports all failures at once rather than
// stopping at the first. An empty map means the submission is well formed.
// Phone, company and project type are deliberately unconstrained.
func Validate(s Submission) map[string]string {
	errs := make(map[string]string)

	if len(strings.TrimSpace(s.Name)) < minNameLen {
		errs["name"] = MsgNameTooShort
	}

	if !emailPattern.MatchString(strings.TrimSpace(s.Email)) {
		errs["email"] = MsgEmailInvalid
	}

	if len(strings.TrimSpace(s.Message)) < minMessageLen {
		errs["message"] = MsgMessageTooShort
	}

	return errs
}

// IsBot reports whether the honeypot field was filled in.
func (s Submission) IsBot() bool {
	return s.BotField != ""
}

// Normalize returns the canonical form of a validated submission: all
// fields trimmed and the email lowercased.
func Normalize(s Submission) Submission {
	return Submission{
		Name:        strings.TrimSpace(s.Name),
		Email:       strings.ToLower(strings.TrimSpace(s.Email)),
		Phone:       strings.TrimSpace(s.Phone),
		Company:     strings.TrimSpace(s.Company),
		ProjectType: strings.TrimSpace(s.ProjectType),
		Message:     strings.TrimSpace(s.Message),
	}
}
