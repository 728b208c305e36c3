// Package convo defines participant identity and conversation keys.
package convo

import (
	"fmt"
	"strings"
	"unicode"
)

// Separator joins the two participant ids of a Key. It is rejected inside ids,
// which keeps keys unambiguous.
const Separator = ":"

const maxParticipantLen = 128

// ParticipantID identifies an authenticated party.
type ParticipantID string

// Key identifies the conversation between exactly two participants.
type Key string

// ValidateParticipant checks that id can take part in a conversation key.
func ValidateParticipant(id ParticipantID) error {
	s := string(id)
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: participant id is required", ErrInvalidIdentity)
	}
	if len(s) > maxParticipantLen {
		return fmt.Errorf("%w: participant id longer than %d bytes", ErrInvalidIdentity, maxParticipantLen)
	}
	if strings.Contains(s, Separator) || strings.Contains(s, "/") {
		return fmt.Errorf("%w: participant id %q contains a reserved character", ErrInvalidIdentity, s)
	}
	for _, r := range s {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return fmt.Errorf("%w: participant id %q contains whitespace", ErrInvalidIdentity, s)
		}
	}
	return nil
}

// DeriveKey returns the conversation key for a and b. The result does not
// depend on argument order.
func DeriveKey(a, b ParticipantID) (Key, error) {
	if err := ValidateParticipant(a); err != nil {
		return "", err
	}
	if err := ValidateParticipant(b); err != nil {
		return "", err
	}
	if a == b {
		return "", fmt.Errorf("%w: cannot start a conversation with yourself", ErrInvalidIdentity)
	}

	if b < a {
		a, b = b, a
	}
	return Key(string(a) + Separator + string(b)), nil
}

// ParseKey validates a key received from outside the process.
func ParseKey(s string) (Key, error) {
	a, b, ok := strings.Cut(s, Separator)
	if !ok {
		return "", fmt.Errorf("%w: malformed conversation key %q", ErrInvalidIdentity, s)
	}

	key, err := DeriveKey(ParticipantID(a), ParticipantID(b))
	if err != nil {
		return "", err
	}
	if string(key) != s {
		return "", fmt.Errorf("%w: conversation key %q is not canonical", ErrInvalidIdentity, s)
	}
	return key, nil
}

// Participants returns both ids encoded in the key, in canonical order.
func (k Key) Participants() [2]ParticipantID {
	a, b, _ := strings.Cut(string(k), Separator)
	return [2]ParticipantID{ParticipantID(a), ParticipantID(b)}
}

// Has reports whether id is one of the two parties of the key.
func (k Key) Has(id ParticipantID) bool {
	p := k.Participants()
	return id != "" && (p[0] == id || p[1] == id)
}

// Partner returns the party that is not self. ok is false when self is not
// part of the conversation.
func (k Key) Partner(self ParticipantID) (ParticipantID, bool) {
	p := k.Participants()
	switch self {
	case p[0]:
		return p[1], true
	case p[1]:
		return p[0], true
	default:
		return "", false
	}
}

func (k Key) String() string {
	return string(k)
}
