package doctor

import (
	"context"
	"fmt"

	"github.com/hay-kot/parley/internal/core/messaging"
)

// LogCheck verifies that every conversation log can be read and is in
// order: Seq starts at 1 without gaps and SentAt strictly increases.
type LogCheck struct {
	messages messaging.Store
}

// NewLogCheck creates a new message log integrity check.
func NewLogCheck(messages messaging.Store) *LogCheck {
	return &LogCheck{messages: messages}
}

func (c *LogCheck) Name() string {
	return "Message Logs"
}

func (c *LogCheck) Run(ctx context.Context) Result {
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

	if len(keys) == 0 {
		result.Items = append(result.Items, CheckItem{
			Label:  "Logs",
			Status: StatusPass,
			Detail: "no conversations yet",
		})
		return result
	}

	healthy := 0
	for _, key := range keys {
		msgs, err := c.messages.Load(ctx, key, 0)
		if err != nil {
			result.Items = append(result.Items, CheckItem{
				Label:  key.String(),
				Status: StatusFail,
				Detail: err.Error(),
			})
			continue
		}

		if problem := checkOrder(msgs); problem != "" {
			result.Items = append(result.Items, CheckItem{
				Label:  key.String(),
				Status: StatusFail,
				Detail: problem,
			})
			continue
		}

		healthy++
	}

	if healthy > 0 {
		result.Items = append(result.Items, CheckItem{
			Label:  "Logs",
			Status: StatusPass,
			Detail: fmt.Sprintf("%d of %d conversations in order", healthy, len(keys)),
		})
	}

	return result
}

// checkOrder returns a description of the first ordering problem in msgs, or
// "" when the log is well formed.
func checkOrder(msgs []messaging.Message) string {
	for i, msg := range msgs {
		if msg.Seq != uint64(i+1) {
			return fmt.Sprintf("message %s has seq %d, expected %d", msg.ID, msg.Seq, i+1)
		}
		if i > 0 && !msgs[i-1].SentAt.Before(msg.SentAt) {
			return fmt.Sprintf("message %s sent at %s is not after seq %d",
				msg.ID, msg.SentAt.Format("2006-01-02T15:04:05.000Z07:00"), msgs[i-1].Seq)
		}
	}
	return ""
}
