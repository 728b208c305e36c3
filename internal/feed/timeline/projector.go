package timeline

import (
	"slices"
	"time"

	"github.com/hay-kot/parley/internal/core/convo"
	"github.com/hay-kot/parley/internal/core/messaging"
)

// Project returns the full projection of msgs for viewer. marker is the
// viewer's read marker; incoming messages sent after it are unread.
func Project(msgs []messaging.Message, viewer convo.ParticipantID, marker time.Time, loc *time.Location) []Item {
	sorted := slices.Clone(msgs)
	slices.SortStableFunc(sorted, func(a, b messaging.Message) int {
		switch {
		case a.Before(b):
			return -1
		case b.Before(a):
			return 1
		default:
			return 0
		}
	})

	p := NewProjector(viewer, marker, loc)
	for _, msg := range sorted {
		p.Push(msg)
	}
	return p.Items()
}

// Projector maintains a projection incrementally as messages arrive in log
// order. It is not safe for concurrent use.
type Projector struct {
	viewer convo.ParticipantID
	loc    *time.Location
	marker time.Time
	items  []Item

	last    *messaging.Message
	lastDay Day
}

// NewProjector creates an empty projection for viewer.
func NewProjector(viewer convo.ParticipantID, marker time.Time, loc *time.Location) *Projector {
	if loc == nil {
		loc = time.Local
	}
	return &Projector{viewer: viewer, marker: marker, loc: loc}
}

// Viewer returns the participant the projection is rendered for.
func (p *Projector) Viewer() convo.ParticipantID {
	return p.viewer
}

// Marker returns the read marker currently applied.
func (p *Projector) Marker() time.Time {
	return p.marker
}

// Push appends msg to the projection and returns the items added to the tail:
// the message item, preceded by a boundary when msg starts a new day.
// Messages at or before the last pushed message are ignored.
func (p *Projector) Push(msg messaging.Message) []Item {
	if p.last != nil && !p.last.Before(msg) {
		return nil
	}

	var added []Item
	day := DayOf(msg.SentAt, p.loc)
	if p.last == nil || day != p.lastDay {
		added = append(added, boundary(day))
	}

	m := msg
	added = append(added, Item{
		Kind:     KindMessage,
		Day:      day,
		Message:  &m,
		Outgoing: msg.SenderID == p.viewer,
		Unread:   msg.SenderID != p.viewer && msg.SentAt.After(p.marker),
	})

	p.items = append(p.items, added...)
	p.last = &m
	p.lastDay = day
	return added
}

// SetReadMarker moves the viewer's read marker forward and returns the items
// whose unread flag flipped. Markers never move backward.
func (p *Projector) SetReadMarker(marker time.Time) []Item {
	if !marker.After(p.marker) {
		return nil
	}
	p.marker = marker

	var changed []Item
	for i := range p.items {
		it := &p.items[i]
		if !it.Unread || it.Message.SentAt.After(marker) {
			continue
		}
		it.Unread = false
		changed = append(changed, *it)
	}
	return changed
}

// Items returns a copy of the current projection.
func (p *Projector) Items() []Item {
	return slices.Clone(p.items)
}

// UnreadCount returns the number of unread incoming messages.
func (p *Projector) UnreadCount() int {
	n := 0
	for _, it := range p.items {
		if it.Unread {
			n++
		}
	}
	return n
}
