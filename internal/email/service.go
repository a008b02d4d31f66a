// Package email sends operator notifications via SMTP.
package email

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
)

// Config holds SMTP configuration.
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

// Service provides email sending.
type Service struct {
	config Config
	server string
	auth   smtp.Auth
}

func NewService(config Config) *Service {
	auth := smtp.PlainAuth("", config.Username, config.Password, config.Host)
	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
	}
}

// IsConfigured returns true if email is configured. Notification helpers
// are no-ops otherwise.
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

// SendEmail sends a plain text email.
func (s *Service) SendEmail(to []string, subject, body string) error {
	if !s.IsConfigured() {
		return fmt.Errorf("email not configured")
	}

	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}

	msg := []byte(fmt.Sprintf(
		"To: %s\r\n"+
			"From: %s\r\n"+
			"Subject: %s\r\n"+
			"Content-Type: text/plain; charset=UTF-8\r\n"+
			"\r\n"+
			"%s",
		strings.Join(to, ", "),
		from,
		subject,
		body,
	))

	return smtp.SendMail(s.server, s.auth, s.config.From, to, msg)
}

// SendHTMLEmail sends a multipart email with an HTML body.
func (s *Service) SendHTMLEmail(to []string, subject, htmlBody string) error {
	if !s.IsConfigured() {
		return fmt.Errorf("email not configured")
	}

	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}

	boundary := "boundary-cargoops"

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "Please view this email in an HTML-capable email client.\r\n")
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", htmlBody)
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)

	return smtp.SendMail(s.server, s.auth, s.config.From, to, msg.Bytes())
}

// ManifestStatusData feeds the manifest status template.
type ManifestStatusData struct {
	AppName        string
	OperatorName   string
	VesselName     string
	VoyageNumber   string
	ManifestNumber string
	Status         string
	Reason         string
}

// DocumentReviewData feeds the document review template.
type DocumentReviewData struct {
	AppName      string
	OperatorName string
	FileName     string
	Decision     string
	Notes        string
}

// SendManifestStatusEmail notifies an operator that a submitted manifest
// was acknowledged or rejected.
func (s *Service) SendManifestStatusEmail(to, operatorName, vesselName, voyageNumber, manifestNumber, status, reason string) error {
	data := ManifestStatusData{
		AppName:        "CargoOps",
		OperatorName:   operatorName,
		VesselName:     vesselName,
		VoyageNumber:   voyageNumber,
		ManifestNumber: manifestNumber,
		Status:         status,
		Reason:         reason,
	}

	subject := fmt.Sprintf("Manifest %s %s", manifestNumber, status)
	html, err := renderTemplate(manifestStatusEmailTemplate, data)
	if err != nil {
		return fmt.Errorf("render manifest status template: %w", err)
	}
	return s.SendHTMLEmail([]string{to}, subject, html)
}

// SendDocumentReviewEmail notifies the uploader of a review decision.
func (s *Service) SendDocumentReviewEmail(to, operatorName, fileName, decision, notes string) error {
	data := DocumentReviewData{
		AppName:      "CargoOps",
		OperatorName: operatorName,
		FileName:     fileName,
		Decision:     decision,
		Notes:        notes,
	}

	subject := fmt.Sprintf("Document %s %s", fileName, decision)
	html, err := renderTemplate(documentReviewEmailTemplate, data)
	if err != nil {
		return fmt.Errorf("render document review template: %w", err)
	}
	return s.SendHTMLEmail([]string{to}, subject, html)
}

func renderTemplate(tmpl string, data interface{}) (string, error) {
	t := template.Must(template.New("email").Parse(tmpl))
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const manifestStatusEmailTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Manifest {{.ManifestNumber}} {{.Status}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #00558c; padding-bottom: 10px; margin-bottom: 20px; }
        .detail { background: #f5f7fa; padding: 12px; border-radius: 4px; margin: 20px 0; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.AppName}}</h1>
    </div>

    <h2>Manifest {{.Status}}</h2>

    <p>Hi {{.OperatorName}},</p>

    <p>Manifest <strong>{{.ManifestNumber}}</strong> for {{.VesselName}} voyage {{.VoyageNumber}} has been <strong>{{.Status}}</strong>.</p>

    {{if .Reason}}
    <div class="detail">
        <strong>Reason:</strong> {{.Reason}}
    </div>
    {{end}}

    <div class="footer">
        <p>This is an automated notification from {{.AppName}}.</p>
    </div>
</body>
</html>`

const documentReviewEmailTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Document {{.Decision}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #00558c; padding-bottom: 10px; margin-bottom: 20px; }
        .detail { background: #f5f7fa; padding: 12px; border-radius: 4px; margin: 20px 0; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.AppName}}</h1>
    </div>

    <h2>Document {{.Decision}}</h2>

    <p>Hi {{.OperatorName}},</p>

    <p>Your document <strong>{{.FileName}}</strong> has been <strong>{{.Decision}}</strong>.</p>

    {{if .Notes}}
    <div class="detail">
        <strong>Reviewer notes:</strong> {{.Notes}}
    </div>
    {{end}}

    <div class="footer">
        <p>This is an automated notification from {{.AppName}}.</p>
    </div>
</body>
</html>`
