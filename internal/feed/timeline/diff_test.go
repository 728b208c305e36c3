package timeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDiff(t *testing.T) {
	msgs := threeDays()
	prev := Project(msgs[:3], "alice", time.Time{}, time.UTC)

	t.Run("identical", func(t *testing.T) {
		assert.True(t, Diff(prev, Project(msgs[:3], "alice", time.Time{}, time.UTC)).Empty())
	})

	t.Run("append across a day", func(t *testing.T) {
		next := Project(msgs, "alice", time.Time{}, time.UTC)
		c := Diff(prev, next)

		assert.Equal(t, []Kind{KindDateBoundary, KindMessage, KindMessage}, kinds(c.Inserted))
		assert.Empty(t, c.Updated)
		assert.Empty(t, c.Removed)
	})

	t.Run("read marker flips unread", func(t *testing.T) {
		next := Project(msgs[:3], "alice", msgs[2].SentAt, time.UTC)
		c := Diff(prev, next)

		assert.Empty(t, c.Inserted)
		assert.Len(t, c.Updated, 2)
		assert.Empty(t, c.Removed)
	})

	t.Run("removed", func(t *testing.T) {
		c := Diff(prev, Project(msgs[:1], "alice", time.Time{}, time.UTC))

		assert.Equal(t, []Kind{KindMessage, KindDateBoundary, KindMessage}, kinds(c.Removed))
	})
}
