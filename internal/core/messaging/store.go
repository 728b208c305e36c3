package messaging

import (
	"context"
	"time"

	"github.com/hay-kot/parley/internal/core/convo"
)

// Clock returns the current server time. Stores truncate it to millisecond
// precision before assigning SentAt.
type Clock func() time.Time

// Store defines the interface for conversation log persistence.
type Store interface {
	// Append assigns SentAt, Seq and ID and persists the message. SentAt is
	// strictly increasing and Seq increases by one per message within a key.
	Append(ctx context.Context, key convo.Key, sender convo.ParticipantID, body string) (Message, error)

	// Load returns messages with Seq greater than afterSeq in log order.
	// An unknown key yields an empty result.
	Load(ctx context.Context, key convo.Key, afterSeq uint64) ([]Message, error)

	// Keys returns every conversation key with at least one message.
	Keys(ctx context.Context) ([]convo.Key, error)
}

// NextSentAt returns the timestamp for a message appended at now after a
// message sent at last. Timestamps are millisecond aligned and never repeat.
func NextSentAt(now, last time.Time) time.Time {
	now = now.Truncate(time.Millisecond)
	if !last.IsZero() && !now.After(last) {
		return last.Add(time.Millisecond)
	}
	return now
}
