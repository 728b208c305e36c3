package convo

import "errors"

// Sentinel errors shared by every conversation component. Callers match them
// with errors.Is; implementations wrap them with detail.
var (
	ErrInvalidIdentity = errors.New("invalid identity")
	ErrNotAParticipant = errors.New("not a participant")
	ErrValidation      = errors.New("validation error")
	ErrPersistence     = errors.New("persistence failure")
	ErrNotFound        = errors.New("conversation not found")
)
