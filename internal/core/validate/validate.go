// Package validate provides shared validation functions.
package validate

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/hay-kot/parley/internal/core/convo"
)

// MaxBodyLength is the largest accepted message body in bytes.
const MaxBodyLength = 16 * 1024

// Body trims surrounding whitespace from a message body and checks that
// something is left to send.
func Body(body string) (string, error) {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return "", fmt.Errorf("%w: message body is required", convo.ErrValidation)
	}
	if len(trimmed) > MaxBodyLength {
		return "", fmt.Errorf("%w: message body exceeds %d bytes", convo.ErrValidation, MaxBodyLength)
	}
	if !utf8.ValidString(trimmed) {
		return "", fmt.Errorf("%w: message body is not valid UTF-8", convo.ErrValidation)
	}
	return trimmed, nil
}

// Topic normalizes a conversation topic. An empty result clears the topic.
func Topic(topic string) (string, error) {
	trimmed := strings.TrimSpace(topic)
	if strings.ContainsAny(trimmed, "\n\r") {
		return "", fmt.Errorf("%w: topic must be a single line", convo.ErrValidation)
	}
	if utf8.RuneCountInString(trimmed) > 200 {
		return "", fmt.Errorf("%w: topic is longer than 200 characters", convo.ErrValidation)
	}
	return trimmed, nil
}
