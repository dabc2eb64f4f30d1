package mail

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/thirdfuse/solarsite/internal/form"
)

const border = 50

// Subject builds the notification subject line for a submission.
func Subject(sub form.Submission) string {
	return "New Contact Form Submission from " + sub.Name
}

// BuildText renders the plain-text notification body: a bordered field
// block, a delimited message section and the submission timestamp.
func BuildText(sub form.Submission, submitted time.Time) string {
	var b strings.Builder

	rule := strings.Repeat("=", border)
	sep := strings.Repeat("-", border)

	b.WriteString(rule + "\n")
	b.WriteString("NEW CONTACT FORM SUBMISSION\n")
	b.WriteString(rule + "\n\n")

	fmt.Fprintf(&b, "Name: %s\n", sub.Name)
	fmt.Fprintf(&b, "Email: %s\n", sub.Email)

	if sub.Phone != "" {
		fmt.Fprintf(&b, "Phone: %s\n", sub.Phone)
	}
	if sub.Company != "" {
		fmt.Fprintf(&b, "Company: %s\n", sub.Company)
	}
	if sub.ProjectType != "" {
		fmt.Fprintf(&b, "Project Type: %s\n", sub.ProjectType)
	}

	b.WriteString("\n" + sep + "\n")
	b.WriteString("MESSAGE:\n")
	b.WriteString(sep + "\n\n")
	b.WriteString(sub.Message + "\n\n")

	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "Submitted at: %s\n", submitted.UTC().Format(time.RFC3339))
	b.WriteString(rule + "\n")

	return b.String()
}

// htmlBody is rendered with html/template so every user-supplied value is
// escaped before it reaches the recipient's mail client.
var htmlBody = template.Must(template.New("notification").Parse(`<!DOCTYPE html>
<html>
  <head>
    <meta charset="utf-8">
    <style>
      body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
      .container { max-width: 600px; margin: 0 auto; padding: 20px; }
      .header { background: #0B63D6; color: white; padding: 20px; text-align: center; }
      .content { padding: 20px; background: #f9f9f9; }
      .field { margin-bottom: 15px; }
      .label { font-weight: bold; color: #666; }
      .value { margin-top: 5px; }
      .message-box { background: white; padding: 15px; border-left: 4px solid #0B63D6; margin-top: 20px; }
      .footer { text-align: center; padding: 20px; color: #666; font-size: 12px; }
    </style>
  </head>
  <body>
    <div class="container">
      <div class="header">
        <h1>New Contact Form Submission</h1>
      </div>
      <div class="content">
        <div class="field">
          <div class="label">Name</div>
          <div class="value">{{.Name}}</div>
        </div>
        <div class="field">
          <div class="label">Email</div>
          <div class="value"><a href="mailto:{{.Email}}">{{.Email}}</a></div>
        </div>
        {{if .Phone}}<div class="field">
          <div class="label">Phone</div>
          <div class="value">{{.Phone}}</div>
        </div>
        {{end}}{{if .Company}}<div class="field">
          <div class="label">Company</div>
          <div class="value">{{.Company}}</div>
        </div>
        {{end}}{{if .ProjectType}}<div class="field">
          <div class="label">Project Type</div>
          <div class="value">{{.ProjectType}}</div>
        </div>
        {{end}}<div class="message-box">
          <div class="label">Message</div>
          <div class="value" style="white-space: pre-wrap;">{{.Message}}</div>
        </div>
      </div>
      <div class="footer">
        <p>This message was sent from the {{.SiteName}} website contact form.</p>
        <p>Submitted at: {{.Submitted}}</p>
      </div>
    </div>
  </body>
</html>
`))

type htmlData struct {
	form.Submission
	SiteName  string
	Submitted string
}

// BuildHTML renders the HTML notification body.
func BuildHTML(sub form.Submission, siteName string, submitted time.Time) ([]byte, error) {
	var buf bytes.Buffer
	err := htmlBody.Execute(&buf, htmlData{
		Submission: sub,
		SiteName:   siteName,
		Submitted:  submitted.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("render html body: %w", err)
	}
	return buf.Bytes(), nil
}
