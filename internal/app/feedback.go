package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"inkshelf/pkg/domain"
)

// SubmitFeedback persists the message and then attempts the e-mail relay.
// Relay failure is logged; persistence success dominates.
func (a *App) SubmitFeedback(ctx context.Context, name, email, message string) (domain.Feedback, error) {
	name = strings.TrimSpace(name)
	message = strings.TrimSpace(message)
	normalized := normalizeEmail(email)

	fields := map[string]string{}
	if name == "" {
		fields["name"] = "Name is required"
	}
	if normalized == "" {
		fields["email"] = "Please provide a valid email address"
	}
	if message == "" {
		fields["message"] = "Message is required"
	}
	if len(fields) > 0 {
		return domain.Feedback{}, InvalidFields("Validation failed", fields)
	}

	fb := domain.Feedback{
		ID:        uuid.NewString(),
		Name:      name,
		Email:     normalized,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.store.SaveFeedback(fb); err != nil {
		return domain.Feedback{}, fmt.Errorf("save feedback: %w", err)
	}
	if err := a.mailer.SendFeedback(ctx, fb); err != nil {
		slog.Warn("feedback relay failed", "feedbackId", fb.ID, "error", err)
	}
	return fb, nil
}
