// Package notify hands "new message" events to the external push-delivery
// collaborator. Dispatch is fire-and-forget from the sender's point of view:
// a failed dispatch never fails the send that produced it.
package notify

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/hay-kot/parley/internal/core/convo"
	"github.com/hay-kot/parley/internal/core/messaging"
)

// DefaultPreviewLength is the number of runes kept in BodyPreview.
const DefaultPreviewLength = 80

// Notification announces a newly appended message to its recipient.
type Notification struct {
	ID          string              `json:"id,omitempty"`
	MessageID   string              `json:"message_id"`
	Key         convo.Key           `json:"key"`
	SenderID    convo.ParticipantID `json:"sender_id"`
	RecipientID convo.ParticipantID `json:"recipient_id"`
	BodyPreview string              `json:"body_preview"`
	SentAt      time.Time           `json:"sent_at"`
	QueuedAt    time.Time           `json:"queued_at,omitempty"`
}

// Dispatcher delivers notifications to a push collaborator.
type Dispatcher interface {
	Dispatch(ctx context.Context, n Notification) error
}

// FromMessage builds the notification for msg. ok is false when the sender is
// not part of the message's conversation.
func FromMessage(msg messaging.Message, previewLen int) (Notification, bool) {
	recipient, ok := msg.Key.Partner(msg.SenderID)
	if !ok {
		return Notification{}, false
	}

	return Notification{
		MessageID:   msg.ID,
		Key:         msg.Key,
		SenderID:    msg.SenderID,
		RecipientID: recipient,
		BodyPreview: Preview(msg.Body, previewLen),
		SentAt:      msg.SentAt,
	}, true
}

// Preview collapses whitespace and truncates body to max runes.
func Preview(body string, max int) string {
	if max <= 0 {
		max = DefaultPreviewLength
	}

	flat := strings.Join(strings.Fields(body), " ")
	if utf8.RuneCountInString(flat) <= max {
		return flat
	}

	runes := []rune(flat)
	return strings.TrimSpace(string(runes[:max-1])) + "…"
}

// Nop discards notifications.
type Nop struct{}

func (Nop) Dispatch(context.Context, Notification) error { return nil }

// LogDispatcher writes notifications to the log instead of a push service.
type LogDispatcher struct {
	log zerolog.Logger
}

// NewLogDispatcher creates a dispatcher that only logs.
func NewLogDispatcher(log zerolog.Logger) *LogDispatcher {
	return &LogDispatcher{log: log.With().Str("component", "notify").Logger()}
}

func (d *LogDispatcher) Dispatch(_ context.Context, n Notification) error {
	d.log.Info().
		Str("key", n.Key.String()).
		Str("sender", string(n.SenderID)).
		Str("recipient", string(n.RecipientID)).
		Str("preview", n.BodyPreview).
		Msg("new message notification")
	return nil
}
