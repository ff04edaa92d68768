package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html/template"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/kamilpajak/smarttest/internal/config"
)

const defaultSMTPPort = 587

// Email sends summaries over SMTP, upgrading to TLS when the server offers
// STARTTLS.
type Email struct {
	settings config.EmailSettings
	dialer   net.Dialer
	tls      *tls.Config
}

// NewEmail creates an email sender.
func NewEmail(settings config.EmailSettings) *Email {
	return &Email{
		settings: settings,
		dialer:   net.Dialer{Timeout: 30 * time.Second},
		tls:      &tls.Config{ServerName: settings.SMTPHost, MinVersion: tls.VersionTLS12},
	}
}

func (e *Email) Name() string { return "email" }

// Send delivers the summary as a multipart text and HTML message.
func (e *Email) Send(ctx context.Context, sum Summary, detailed bool) error {
	s := e.settings
	if s.SMTPHost == "" || s.From == "" || len(s.To) == 0 {
		return fmt.Errorf("incomplete email settings: smtp_host, from and to are required")
	}
	msg, err := buildMessage(s.From, s.To, sum, detailed)
	if err != nil {
		return err
	}

	port := s.SMTPPort
	if port == 0 {
		port = defaultSMTPPort
	}
	addr := net.JoinHostPort(s.SMTPHost, strconv.Itoa(port))
	conn, err := e.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	c, err := smtp.NewClient(conn, s.SMTPHost)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to start SMTP session: %w", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(e.tls); err != nil {
			return fmt.Errorf("failed to start TLS: %w", err)
		}
	}
	if s.Username != "" && s.Password != "" {
		if err := c.Auth(smtp.PlainAuth("", s.Username, s.Password, s.SMTPHost)); err != nil {
			return fmt.Errorf("failed to authenticate: %w", err)
		}
	}
	if err := c.Mail(s.From); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	for _, rcpt := range s.To {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("failed to add recipient %s: %w", rcpt, err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("failed to start message: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return c.Quit()
}

var htmlBody = template.Must(template.New("email").Parse(`<html>
<body>
<h1>{{.S.Title}}</h1>
<table width="100%" cellpadding="5" cellspacing="0">
<tr><td><strong>Total Tests:</strong></td><td>{{.S.Total}}</td><td><strong>Status:</strong></td><td>{{.S.Status}}</td></tr>
<tr><td><strong>Passed:</strong></td><td>{{.S.Passed}} ({{printf "%.1f" .S.PassRate}}%)</td><td><strong>Failed:</strong></td><td>{{.S.Failed}}</td></tr>
</table>
<p>Duration: {{printf "%.2f" .S.DurationSeconds}} seconds</p>
{{- if and .Detailed .S.Failures}}
<h2>Failed Tests:</h2>
<ul>
{{- range .S.Failures}}
<li><strong>{{.Name}}</strong><br/>{{.Message}}</li>
{{- end}}
</ul>
{{- if .S.Omitted}}
<p><em>...and {{.S.Omitted}} more failures</em></p>
{{- end}}
{{- end}}
<hr>
<p><em>Generated by SmartTest</em></p>
</body>
</html>
`))

func textBody(s Summary, detailed bool) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\n\n", s.Title)
	fmt.Fprintf(&sb, "Total Tests: %d\n", s.Total)
	fmt.Fprintf(&sb, "Status: %s\n", s.Status())
	fmt.Fprintf(&sb, "Passed: %d (%.1f%%)\n", s.Passed, s.PassRate())
	fmt.Fprintf(&sb, "Failed: %d\n", s.Failed)
	fmt.Fprintf(&sb, "Duration: %.2f seconds\n", s.DurationSeconds)
	if detailed && len(s.Failures) > 0 {
		sb.WriteString("\nFailed Tests:\n")
		for _, f := range s.Failures {
			fmt.Fprintf(&sb, "- %s: %s\n", f.Name, f.Message)
		}
		if s.Omitted > 0 {
			fmt.Fprintf(&sb, "...and %d more failures\n", s.Omitted)
		}
	}
	sb.WriteString("\nGenerated by SmartTest\n")
	return sb.String()
}

func buildMessage(from string, to []string, s Summary, detailed bool) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {"text/plain; charset=utf-8"}})
	if err != nil {
		return nil, err
	}
	if _, err := part.Write([]byte(textBody(s, detailed))); err != nil {
		return nil, err
	}

	part, err = mw.CreatePart(textproto.MIMEHeader{"Content-Type": {"text/html; charset=utf-8"}})
	if err != nil {
		return nil, err
	}
	if err := htmlBody.Execute(part, struct {
		S        Summary
		Detailed bool
	}{s, detailed}); err != nil {
		return nil, fmt.Errorf("failed to render email: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "Subject: SmartTest Results: %s\r\n", s.Title)
	msg.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=%s\r\n\r\n", mw.Boundary())
	msg.Write(body.Bytes())
	return msg.Bytes(), nil
}
