package printer

import (
	"strconv"
	"strings"
	"time"

	"github.com/hay-kot/parley/internal/core/convo"
	"github.com/hay-kot/parley/internal/feed/inbox"
	"github.com/hay-kot/parley/internal/feed/timeline"
)

// Unread marks unread messages and inbox rows.
const Unread = "●"

// FormatItem renders one conversation item as a single line. Date boundaries
// become a centered rule, messages are prefixed with their time and sender.
func FormatItem(it timeline.Item, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}

	if it.Kind == timeline.KindDateBoundary {
		label := it.Day.Time(loc).Format("Monday, January 2 2006")
		return ColorGray + "── " + label + " ──" + ColorReset
	}

	msg := it.Message
	stamp := ColorGray + msg.SentAt.In(loc).Format("15:04") + ColorReset

	sender := string(msg.SenderID)
	if it.Outgoing {
		sender = ColorGreen + sender + ColorReset
	} else {
		sender = ColorBold + sender + ColorReset
	}

	marker := " "
	if it.Unread {
		marker = ColorYellow + Unread + ColorReset
	}

	body := strings.ReplaceAll(msg.Body, "\n", "\n        ")
	return marker + " " + stamp + " " + sender + ": " + body
}

// FormatEntry renders an inbox entry as tab separated columns: unread marker,
// partner, topic, last message preview and relative activity time.
func FormatEntry(e inbox.Entry, viewer convo.ParticipantID, now time.Time) string {
	marker := " "
	if e.Unread {
		marker = ColorYellow + Unread + ColorReset
	}

	preview := e.Summary.LastMessage
	if e.Summary.LastSenderID == viewer && preview != "" {
		preview = "you: " + preview
	}
	preview = Truncate(strings.ReplaceAll(preview, "\n", " "), 48)

	topic := e.Summary.TopicValue()
	if topic == "" {
		topic = "-"
	}

	return strings.Join([]string{
		marker,
		string(e.PartnerID),
		topic,
		preview,
		Relative(e.Summary.LastActivityAt, now),
	}, "\t")
}

// Truncate shortens s to at most n runes, ending with an ellipsis when cut.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}

// Relative formats t relative to now.
func Relative(t, now time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return strconv.Itoa(int(d.Minutes())) + "m ago"
	case d < 24*time.Hour:
		return strconv.Itoa(int(d.Hours())) + "h ago"
	case d < 7*24*time.Hour:
		return strconv.Itoa(int(d.Hours()/24)) + "d ago"
	default:
		return t.In(now.Location()).Format("2006-01-02")
	}
}
