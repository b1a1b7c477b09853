package mail

import (
	"context"
	"testing"

	"inkshelf/pkg/domain"
)

func TestMockModeSendsNothing(t *testing.T) {
	m, err := NewSMTPMailer(SMTPConfig{})
	if err != nil {
		t.Fatalf("NewSMTPMailer: %v", err)
	}
	fb := domain.Feedback{Name: "Reader", Email: "reader@example.com", Message: "hello"}
	if err := m.SendFeedback(context.Background(), fb); err != nil {
		t.Fatalf("SendFeedback in mock mode: %v", err)
	}
}

func TestRecipientRequiredWithHost(t *testing.T) {
	if _, err := NewSMTPMailer(SMTPConfig{Host: "smtp.example.com"}); err == nil {
		t.Fatal("expected error when host is set without recipient")
	}
}

func TestSanitizeHeaderStripsCRLF(t *testing.T) {
	got := sanitizeHeader("evil\r\nBcc: victim@example.com")
	if got != "evil Bcc: victim@example.com" {
		t.Fatalf("sanitizeHeader = %q", got)
	}
}
