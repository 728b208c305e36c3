package printer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hay-kot/parley/internal/core/messaging"
	"github.com/hay-kot/parley/internal/core/room"
	"github.com/hay-kot/parley/internal/feed/inbox"
	"github.com/hay-kot/parley/internal/feed/timeline"
)

func TestFormatItem(t *testing.T) {
	at := time.Date(2024, 3, 9, 14, 5, 0, 0, time.UTC)

	boundary := FormatItem(timeline.Item{
		Kind: timeline.KindDateBoundary,
		Day:  timeline.DayOf(at, time.UTC),
	}, time.UTC)
	assert.Contains(t, boundary, "Saturday, March 9 2024")

	line := FormatItem(timeline.Item{
		Kind:    timeline.KindMessage,
		Day:     timeline.DayOf(at, time.UTC),
		Message: &messaging.Message{SenderID: "bob", Body: "hi", SentAt: at},
		Unread:  true,
	}, time.UTC)
	assert.Contains(t, line, "14:05")
	assert.Contains(t, line, "bob")
	assert.Contains(t, line, ": hi")
	assert.Contains(t, line, Unread)
}

func TestFormatEntry(t *testing.T) {
	now := time.Date(2024, 3, 9, 14, 0, 0, 0, time.UTC)
	topic := "lunch"

	e := inbox.Entry{
		Key:       "alice:bob",
		PartnerID: "bob",
		Summary: room.Summary{
			LastMessage:    "see you there",
			LastSenderID:   "alice",
			LastActivityAt: now.Add(-5 * time.Minute),
			Topic:          &topic,
		},
	}

	got := FormatEntry(e, "alice", now)
	assert.Contains(t, got, "bob\tlunch\tyou: see you there\t5m ago")
	assert.NotContains(t, got, Unread)
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly", 7, "exactly"},
		{"a longer line", 6, "a lon…"},
		{"héllo wörld", 5, "héll…"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Truncate(tt.in, tt.n), tt.in)
	}
}

func TestRelative(t *testing.T) {
	now := time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		at   time.Time
		want string
	}{
		{time.Time{}, "-"},
		{now.Add(-10 * time.Second), "just now"},
		{now.Add(-3 * time.Minute), "3m ago"},
		{now.Add(-2 * time.Hour), "2h ago"},
		{now.Add(-50 * time.Hour), "2d ago"},
		{now.Add(-30 * 24 * time.Hour), "2024-02-08"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Relative(tt.at, now))
	}
}
