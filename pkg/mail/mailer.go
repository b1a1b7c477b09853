package mail

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"

	"inkshelf/pkg/domain"
)

// Mailer relays reader feedback to the library staff.
type Mailer interface {
	SendFeedback(ctx context.Context, fb domain.Feedback) error
}

// SMTPConfig carries the SMTP relay settings. Leaving Host empty puts the
// mailer in mock mode: messages are logged instead of sent.
type SMTPConfig struct {
	Host      string
	Port      string
	Username  string
	Password  string
	FromName  string
	Recipient string
}

// SMTPMailer sends feedback notifications over plain SMTP.
type SMTPMailer struct {
	cfg SMTPConfig
}

func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	if cfg.Host != "" && cfg.Recipient == "" {
		return nil, fmt.Errorf("mail: recipient required when smtp host is set")
	}
	if cfg.FromName == "" {
		cfg.FromName = "Inkshelf Library"
	}
	return &SMTPMailer{cfg: cfg}, nil
}

// SendFeedback emails the feedback message to the configured recipient.
func (m *SMTPMailer) SendFeedback(_ context.Context, fb domain.Feedback) error {
	if m.cfg.Host == "" {
		slog.Info("mock feedback email", "from", fb.Email, "name", fb.Name)
		return nil
	}

	name := sanitizeHeader(fb.Name)
	replyTo := sanitizeHeader(fb.Email)
	subject := fmt.Sprintf("New feedback from %s", name)

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("From: %s <%s>\r\n", m.cfg.FromName, m.cfg.Username))
	sb.WriteString(fmt.Sprintf("To: %s\r\n", m.cfg.Recipient))
	sb.WriteString(fmt.Sprintf("Reply-To: %s\r\n", replyTo))
	sb.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	sb.WriteString(fmt.Sprintf("Name: %s\r\nEmail: %s\r\n\r\n%s\r\n", name, replyTo, fb.Message))

	auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	addr := m.cfg.Host + ":" + m.cfg.Port
	if err := smtp.SendMail(addr, auth, m.cfg.Username, []string{m.cfg.Recipient}, []byte(sb.String())); err != nil {
		return fmt.Errorf("send feedback email: %w", err)
	}
	return nil
}

func sanitizeHeader(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
