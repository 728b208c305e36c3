// Package messaging defines the append-only conversation message log.
package messaging

import (
	"time"

	"github.com/hay-kot/parley/internal/core/convo"
)

// Message is a single immutable entry in a conversation log.
type Message struct {
	ID       string              `json:"id"`
	Key      convo.Key           `json:"key"`
	SenderID convo.ParticipantID `json:"sender_id"`
	Body     string              `json:"body"`
	SentAt   time.Time           `json:"sent_at"`
	Seq      uint64              `json:"seq"`
}

// Before reports whether m sorts before other in log order.
func (m Message) Before(other Message) bool {
	if m.SentAt.Equal(other.SentAt) {
		return m.Seq < other.Seq
	}
	return m.SentAt.Before(other.SentAt)
}

// Log is the on-disk representation of one conversation.
type Log struct {
	Key        convo.Key `json:"key"`
	LastSeq    uint64    `json:"last_seq"`
	LastSentAt time.Time `json:"last_sent_at"`
	Messages   []Message `json:"messages"`
}
