package room

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/hay-kot/parley/internal/core/convo"
)

// Field names a group of summary fields touched by a patch operation.
type Field string

const (
	FieldLastMessage  Field = "last_message" // LastMessage, LastSenderID and LastActivityAt
	FieldParticipants Field = "participants"
	FieldTopic        Field = "topic"
	FieldReadMarkers  Field = "read_markers"
)

// Op is a single named mutation. The set of operations is closed so the
// fields a writer touches are always known up front.
type Op interface {
	Field() Field
	apply(s *Summary) (changed bool, err error)
}

// Patch is an ordered list of operations applied atomically.
type Patch []Op

// Fields returns the distinct fields touched by the patch, sorted.
func (p Patch) Fields() []Field {
	fields := make([]Field, 0, len(p))
	for _, op := range p {
		if !slices.Contains(fields, op.Field()) {
			fields = append(fields, op.Field())
		}
	}
	slices.Sort(fields)
	return fields
}

// SetLastMessage records the newest message of the conversation. It is
// ignored when At is older than the activity already recorded.
type SetLastMessage struct {
	Body     string
	SenderID convo.ParticipantID
	At       time.Time
}

func (SetLastMessage) Field() Field { return FieldLastMessage }

func (op SetLastMessage) apply(s *Summary) (bool, error) {
	if strings.TrimSpace(op.Body) == "" {
		return false, fmt.Errorf("%w: last message is empty", convo.ErrValidation)
	}
	if op.At.IsZero() {
		return false, fmt.Errorf("%w: last activity time is required", convo.ErrValidation)
	}
	if !s.HasParticipant(op.SenderID) {
		return false, fmt.Errorf("%w: %s in %s", convo.ErrNotAParticipant, op.SenderID, s.Key)
	}
	if op.At.Before(s.LastActivityAt) {
		return false, nil
	}

	changed := s.LastMessage != op.Body || s.LastSenderID != op.SenderID || !s.LastActivityAt.Equal(op.At)
	s.LastMessage = op.Body
	s.LastSenderID = op.SenderID
	s.LastActivityAt = op.At
	return changed, nil
}

// AddParticipants registers parties on the summary. Only the two ids implied
// by the conversation key are accepted.
type AddParticipants struct {
	IDs []convo.ParticipantID
}

func (AddParticipants) Field() Field { return FieldParticipants }

func (op AddParticipants) apply(s *Summary) (bool, error) {
	changed := false
	for _, id := range op.IDs {
		if !s.Key.Has(id) {
			return false, fmt.Errorf("%w: %s in %s", convo.ErrNotAParticipant, id, s.Key)
		}
		if s.HasParticipant(id) {
			continue
		}
		s.Participants = append(s.Participants, id)
		slices.Sort(s.Participants)
		changed = true
	}
	return changed, nil
}

// SetTopic sets or clears the optional conversation topic.
type SetTopic struct {
	Topic *string
}

func (SetTopic) Field() Field { return FieldTopic }

func (op SetTopic) apply(s *Summary) (bool, error) {
	var next *string
	if op.Topic != nil {
		if t := strings.TrimSpace(*op.Topic); t != "" {
			next = &t
		}
	}

	switch {
	case next == nil && s.Topic == nil:
		return false, nil
	case next != nil && s.Topic != nil && *next == *s.Topic:
		return false, nil
	}
	s.Topic = next
	return true, nil
}

// AdvanceReadMarker moves a participant's read marker forward. Markers never
// move backward.
type AdvanceReadMarker struct {
	ParticipantID convo.ParticipantID
	Upto          time.Time
}

func (AdvanceReadMarker) Field() Field { return FieldReadMarkers }

func (op AdvanceReadMarker) apply(s *Summary) (bool, error) {
	if op.Upto.IsZero() {
		return false, fmt.Errorf("%w: read marker time is required", convo.ErrValidation)
	}
	if !s.HasParticipant(op.ParticipantID) {
		return false, fmt.Errorf("%w: %s in %s", convo.ErrNotAParticipant, op.ParticipantID, s.Key)
	}
	if s.ReadMarkers == nil {
		s.ReadMarkers = make(map[convo.ParticipantID]time.Time)
	}
	if current, ok := s.ReadMarkers[op.ParticipantID]; ok && !op.Upto.After(current) {
		return false, nil
	}
	s.ReadMarkers[op.ParticipantID] = op.Upto
	return true, nil
}

// Apply returns a copy of s with the patch applied. Either every operation
// is applied or none is. changed is false when the patch was a no-op, in
// which case Version and UpdatedAt are left alone.
func Apply(s Summary, p Patch, now time.Time) (Summary, bool, error) {
	next := s.Clone()
	changed := false
	for _, op := range p {
		c, err := op.apply(&next)
		if err != nil {
			return s, false, err
		}
		changed = changed || c
	}

	if !changed {
		return s, false, nil
	}
	next.Version++
	next.UpdatedAt = now
	return next, true, nil
}
