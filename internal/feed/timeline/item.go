// Package timeline projects a conversation's message log into the flat,
// render-ready sequence shown to one viewer: messages grouped by calendar day
// with a boundary marker before each new day, and unread flags derived from
// the viewer's read marker.
package timeline

import (
	"fmt"
	"time"

	"github.com/hay-kot/parley/internal/core/messaging"
)

// Kind distinguishes the two item variants.
type Kind string

const (
	KindMessage      Kind = "message"
	KindDateBoundary Kind = "date_boundary"
)

// Day is a calendar date in the viewer's zone.
type Day struct {
	Year  int        `json:"year"`
	Month time.Month `json:"month"`
	Day   int        `json:"day"`
}

// DayOf returns the calendar day of t in loc.
func DayOf(t time.Time, loc *time.Location) Day {
	if loc == nil {
		loc = time.Local
	}
	y, m, d := t.In(loc).Date()
	return Day{Year: y, Month: m, Day: d}
}

func (d Day) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// Time returns midnight of the day in loc.
func (d Day) Time(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// Item is one entry of the projected sequence. Message is only set for
// KindMessage items.
type Item struct {
	Kind     Kind               `json:"kind"`
	Day      Day                `json:"day"`
	Message  *messaging.Message `json:"message,omitempty"`
	Outgoing bool               `json:"outgoing,omitempty"`
	Unread   bool               `json:"unread,omitempty"`
}

// ID identifies the logical item across projections. Messages are identified
// by sender and send time, boundaries by their day.
func (it Item) ID() string {
	if it.Kind == KindDateBoundary || it.Message == nil {
		return "day/" + it.Day.String()
	}
	return fmt.Sprintf("msg/%s/%d", it.Message.SenderID, it.Message.SentAt.UnixNano())
}

func boundary(day Day) Item {
	return Item{Kind: KindDateBoundary, Day: day}
}
