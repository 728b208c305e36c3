package doctor

import (
	"context"
	"errors"
	"fmt"

	"github.com/hay-kot/parley/internal/core/convo"
	"github.com/hay-kot/parley/internal/core/messaging"
	"github.com/hay-kot/parley/internal/core/room"
)

// DriftCheck compares each conversation log with its room summary. A summary
// falls behind when the process dies, or the summary store fails, between
// appending a message and patching the summary.
type DriftCheck struct {
	messages messaging.Store
	rooms    room.Store
	fix      bool
}

// NewDriftCheck creates a new room summary drift check.
// If fix is true, stale summaries are patched from the newest message.
func NewDriftCheck(messages messaging.Store, rooms room.Store, fix bool) *DriftCheck {
	return &DriftCheck{
		messages: messages,
		rooms:    rooms,
		fix:      fix,
	}
}

func (c *DriftCheck) Name() string {
	return "Room Summaries"
}

func (c *DriftCheck) Run(ctx context.Context) Result {
	result := Result{Name: c.Name()}

	keys, err := c.messages.Keys(ctx)
	if err != nil {
		result.Items = append(result.Items, CheckItem{
			Label:  "List conversations",
			Status: StatusFail,
			Detail: err.Error(),
		})
		return result
	}

	summaries, err := c.rooms.List(ctx)
	if err != nil {
		result.Items = append(result.Items, CheckItem{
			Label:  "List rooms",
			Status: StatusFail,
			Detail: err.Error(),
		})
		return result
	}

	logged := make(map[convo.Key]bool, len(keys))
	for _, key := range keys {
		logged[key] = true
	}

	drifted := 0
	for _, key := range keys {
		last, ok, err := c.lastMessage(ctx, key)
		if err != nil {
			result.Items = append(result.Items, CheckItem{
				Label:  key.String(),
				Status: StatusFail,
				Detail: err.Error(),
			})
			continue
		}
		if !ok {
			continue
		}

		stale, reason, err := c.stale(ctx, key, last)
		if err != nil {
			result.Items = append(result.Items, CheckItem{
				Label:  key.String(),
				Status: StatusFail,
				Detail: err.Error(),
			})
			continue
		}
		if !stale {
			continue
		}

		drifted++
		result.Items = append(result.Items, c.resolve(ctx, key, last, reason))
	}

	for _, s := range summaries {
		if logged[s.Key] || s.LastActivityAt.IsZero() {
			continue
		}
		result.Items = append(result.Items, CheckItem{
			Label:  s.Key.String(),
			Status: StatusWarn,
			Detail: "summary records activity but the message log is missing",
		})
	}

	if drifted == 0 {
		result.Items = append(result.Items, CheckItem{
			Label:  "In sync",
			Status: StatusPass,
			Detail: fmt.Sprintf("%d conversations match their summaries", len(keys)),
		})
	}

	return result
}

func (c *DriftCheck) lastMessage(ctx context.Context, key convo.Key) (messaging.Message, bool, error) {
	msgs, err := c.messages.Load(ctx, key, 0)
	if err != nil {
		return messaging.Message{}, false, err
	}
	if len(msgs) == 0 {
		return messaging.Message{}, false, nil
	}
	return msgs[len(msgs)-1], true, nil
}

// stale reports whether the summary for key is missing or older than last.
func (c *DriftCheck) stale(ctx context.Context, key convo.Key, last messaging.Message) (bool, string, error) {
	summary, err := c.rooms.Get(ctx, key)
	switch {
	case errors.Is(err, convo.ErrNotFound):
		return true, "summary missing", nil
	case err != nil:
		return false, "", err
	case summary.LastActivityAt.Before(last.SentAt):
		return true, fmt.Sprintf("summary stops at %s, log continues to seq %d",
			summary.LastActivityAt.Format("2006-01-02 15:04:05"), last.Seq), nil
	}
	return false, "", nil
}

// resolve reports drift for key, or repairs it when fixing.
func (c *DriftCheck) resolve(ctx context.Context, key convo.Key, last messaging.Message, reason string) CheckItem {
	if !c.fix {
		return CheckItem{
			Label:   key.String(),
			Status:  StatusWarn,
			Detail:  reason,
			Fixable: true,
		}
	}

	pair := key.Participants()
	patch := room.Patch{
		room.AddParticipants{IDs: pair[:]},
		room.SetLastMessage{Body: last.Body, SenderID: last.SenderID, At: last.SentAt},
		room.AdvanceReadMarker{ParticipantID: last.SenderID, Upto: last.SentAt},
	}
	if _, err := c.rooms.MergePatch(ctx, key, patch); err != nil {
		return CheckItem{
			Label:  key.String(),
			Status: StatusFail,
			Detail: fmt.Sprintf("failed to repair: %v", err),
		}
	}

	return CheckItem{
		Label:  key.String(),
		Status: StatusPass,
		Detail: "summary repaired from seq " + fmt.Sprint(last.Seq),
	}
}
