package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/hay-kot/parley/internal/core/convo"
	"github.com/hay-kot/parley/internal/feed/timeline"
)

// writeJSON writes v as a single JSON line.
func writeJSON(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}

// matchKey reports whether key matches the doublestar pattern. An empty
// pattern matches everything.
func matchKey(pattern string, key convo.Key) (bool, error) {
	if pattern == "" {
		return true, nil
	}
	ok, err := doublestar.Match(pattern, string(key))
	if err != nil {
		return false, fmt.Errorf("invalid --match pattern %q: %w", pattern, err)
	}
	return ok, nil
}

// parseUpto parses an RFC 3339 timestamp, defaulting to now.
func parseUpto(s string) (time.Time, error) {
	if s == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --upto %q, expected RFC 3339: %w", s, err)
	}
	return t.UTC(), nil
}

// lastMessage returns the send time of the newest message in items.
func lastMessage(items []timeline.Item) (time.Time, bool) {
	for i := len(items) - 1; i >= 0; i-- {
		if items[i].Message != nil {
			return items[i].Message.SentAt, true
		}
	}
	return time.Time{}, false
}
