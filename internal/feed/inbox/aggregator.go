package inbox

import (
	"slices"

	"github.com/hay-kot/parley/internal/core/convo"
	"github.com/hay-kot/parley/internal/core/room"
)

// Update carries the full ordered inbox and the entries that changed.
type Update struct {
	Entries []Entry `json:"entries"`
	Changed []Entry `json:"changed"`
}

// Aggregator keeps a viewer's inbox current as summaries change. It is not
// safe for concurrent use.
type Aggregator struct {
	viewer  convo.ParticipantID
	entries map[convo.Key]Entry
}

// NewAggregator creates an empty inbox for viewer.
func NewAggregator(viewer convo.ParticipantID) *Aggregator {
	return &Aggregator{
		viewer:  viewer,
		entries: make(map[convo.Key]Entry),
	}
}

// Viewer returns the inbox owner.
func (a *Aggregator) Viewer() convo.ParticipantID {
	return a.viewer
}

// Apply folds a summary version into the inbox. ok is false when nothing the
// viewer sees changed: the summary is stale, belongs to another viewer, or
// only touched fields the inbox does not render (the partner's read marker,
// for example).
func (a *Aggregator) Apply(s room.Summary) (Update, bool) {
	entry, ok := NewEntry(s, a.viewer)
	if !ok {
		return Update{}, false
	}

	prev, exists := a.entries[s.Key]
	if exists && s.Version <= prev.Summary.Version {
		return Update{}, false
	}

	a.entries[s.Key] = entry
	if exists && visible(prev.Summary, s, a.viewer) {
		return Update{}, false
	}

	return Update{Entries: a.Entries(), Changed: []Entry{entry}}, true
}

// Entries returns the inbox sorted by recency.
func (a *Aggregator) Entries() []Entry {
	entries := make([]Entry, 0, len(a.entries))
	for _, e := range a.entries {
		entries = append(entries, e)
	}
	slices.SortFunc(entries, Compare)
	return entries
}

// UnreadCount returns the number of unread rooms.
func (a *Aggregator) UnreadCount() int {
	n := 0
	for _, e := range a.entries {
		if e.Unread {
			n++
		}
	}
	return n
}
