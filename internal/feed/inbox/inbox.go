// Package inbox aggregates the room summaries a participant belongs to into a
// recency-ordered list with per-room unread flags.
package inbox

import (
	"slices"
	"strings"

	"github.com/hay-kot/parley/internal/core/convo"
	"github.com/hay-kot/parley/internal/core/room"
)

// Entry is one row of a participant's inbox.
type Entry struct {
	Key       convo.Key           `json:"key"`
	PartnerID convo.ParticipantID `json:"partner_id"`
	Summary   room.Summary        `json:"summary"`
	Unread    bool                `json:"unread"`
}

// Unread reports whether viewer has activity in s they have not read. A
// missing marker counts as never read. Rooms without any activity are never
// unread.
func Unread(s room.Summary, viewer convo.ParticipantID) bool {
	if s.LastActivityAt.IsZero() {
		return false
	}
	marker, ok := s.ReadMarkers[viewer]
	return !ok || marker.Before(s.LastActivityAt)
}

// NewEntry builds the entry of s for viewer. ok is false when viewer is not a
// participant of the room.
func NewEntry(s room.Summary, viewer convo.ParticipantID) (Entry, bool) {
	if !s.HasParticipant(viewer) {
		return Entry{}, false
	}
	partner, ok := s.Key.Partner(viewer)
	if !ok {
		return Entry{}, false
	}
	return Entry{
		Key:       s.Key,
		PartnerID: partner,
		Summary:   s,
		Unread:    Unread(s, viewer),
	}, true
}

// Compare orders entries by most recent activity first, then by key.
func Compare(a, b Entry) int {
	if c := b.Summary.LastActivityAt.Compare(a.Summary.LastActivityAt); c != 0 {
		return c
	}
	return strings.Compare(string(a.Key), string(b.Key))
}

// Build returns the sorted inbox of viewer from every summary in the store.
func Build(summaries []room.Summary, viewer convo.ParticipantID) []Entry {
	entries := make([]Entry, 0, len(summaries))
	for _, s := range summaries {
		if e, ok := NewEntry(s, viewer); ok {
			entries = append(entries, e)
		}
	}
	slices.SortFunc(entries, Compare)
	return entries
}

// visible reports whether two summaries render identically for viewer.
func visible(a, b room.Summary, viewer convo.ParticipantID) bool {
	return a.LastMessage == b.LastMessage &&
		a.LastActivityAt.Equal(b.LastActivityAt) &&
		a.TopicValue() == b.TopicValue() &&
		(a.Topic == nil) == (b.Topic == nil) &&
		a.ReadMarker(viewer).Equal(b.ReadMarker(viewer))
}
