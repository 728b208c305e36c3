// Package room defines the mutable per-conversation room summary and the
// field-level patch operations used to update it.
package room

import (
	"maps"
	"slices"
	"time"

	"github.com/hay-kot/parley/internal/core/convo"
)

// Summary is the mutable record kept for every conversation.
type Summary struct {
	Key            convo.Key                         `json:"key"`
	Participants   []convo.ParticipantID             `json:"participants"`
	LastMessage    string                            `json:"last_message"`
	LastSenderID   convo.ParticipantID               `json:"last_sender_id,omitempty"`
	LastActivityAt time.Time                         `json:"last_activity_at"`
	Topic          *string                           `json:"topic,omitempty"`
	ReadMarkers    map[convo.ParticipantID]time.Time `json:"read_markers"`
	Version        uint64                            `json:"version"`
	CreatedAt      time.Time                         `json:"created_at"`
	UpdatedAt      time.Time                         `json:"updated_at"`
}

// New returns an empty summary for key with both parties already registered.
func New(key convo.Key, now time.Time) Summary {
	p := key.Participants()
	return Summary{
		Key:          key,
		Participants: []convo.ParticipantID{p[0], p[1]},
		ReadMarkers:  make(map[convo.ParticipantID]time.Time),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// HasParticipant reports whether id is registered on the summary.
func (s Summary) HasParticipant(id convo.ParticipantID) bool {
	return slices.Contains(s.Participants, id)
}

// ReadMarker returns the marker for id, or the zero time if id has not read
// anything yet.
func (s Summary) ReadMarker(id convo.ParticipantID) time.Time {
	return s.ReadMarkers[id]
}

// TopicValue returns the topic or "" when unset.
func (s Summary) TopicValue() string {
	if s.Topic == nil {
		return ""
	}
	return *s.Topic
}

// Clone returns a deep copy safe to mutate.
func (s Summary) Clone() Summary {
	c := s
	c.Participants = slices.Clone(s.Participants)
	c.ReadMarkers = maps.Clone(s.ReadMarkers)
	if c.ReadMarkers == nil {
		c.ReadMarkers = make(map[convo.ParticipantID]time.Time)
	}
	if s.Topic != nil {
		topic := *s.Topic
		c.Topic = &topic
	}
	return c
}
