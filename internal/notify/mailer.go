// Package notify delivers best-effort email notifications for match
// lifecycle events. Delivery is fire-and-forget: failures are logged and
// never surfaced to the request that triggered them.
package notify

import (
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
)

// Mailer sends a single email.
type Mailer interface {
	Send(to, subject, body string) error
}

// SMTPMailer sends plain-text email over SMTP. With no host configured it
// logs the message instead of sending, which is the dev-mode default.
type SMTPMailer struct {
	host   string
	port   int
	user   string
	pass   string
	from   string
	logger *slog.Logger
}

// SMTPConfig holds SMTP connection settings.
type SMTPConfig struct {
	Host string
	Port int
	User string
	Pass string
	From string
}

// NewSMTPMailer creates an SMTP mailer.
func NewSMTPMailer(cfg SMTPConfig, logger *slog.Logger) *SMTPMailer {
	return &SMTPMailer{
		host:   cfg.Host,
		port:   cfg.Port,
		user:   cfg.User,
		pass:   cfg.Pass,
		from:   cfg.From,
		logger: logger,
	}
}

// Send delivers one message. Body is plain text.
func (m *SMTPMailer) Send(to, subject, body string) error {
	if m.host == "" {
		m.logger.Info("notify: email (dev mode — SMTP not configured)",
			"to", to,
			"subject", subject,
		)
		return nil
	}

	msg := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s",
		m.from, to, subject, body,
	)

	addr := fmt.Sprintf("%s:%d", m.host, m.port)
	var smtpAuth smtp.Auth
	if m.user != "" {
		smtpAuth = smtp.PlainAuth("", m.user, m.pass, m.host)
	}

	return smtp.SendMail(addr, smtpAuth, m.from, []string{to}, []byte(msg))
}

// MatchFoundEmail builds the message sent to a report owner when the
// orchestrator creates a new candidate match for their report.
func MatchFoundEmail(baseURL, reportTitle string) (subject, body string) {
	subject = "A possible match for your report"
	body = fmt.Sprintf(
		"Someone's report looks like a match for %q.\r\n\r\nReview it here:\r\n\r\n%s\r\n\r\nIf it is yours, confirm the match so the other party can too.",
		reportTitle, strings.TrimRight(baseURL, "/")+"/matches",
	)
	return subject, body
}

// MatchClosedEmail builds the message sent to both owners when a match
// closes.
func MatchClosedEmail(baseURL, reportTitle string) (subject, body string) {
	subject = "Your item has been reunited"
	body = fmt.Sprintf(
		"Both parties confirmed the match for %q. The reports are now resolved.\r\n\r\nSee the details:\r\n\r\n%s",
		reportTitle, strings.TrimRight(baseURL, "/")+"/matches",
	)
	return subject, body
}
