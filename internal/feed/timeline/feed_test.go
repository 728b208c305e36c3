package timeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/parley/internal/core/messaging"
	"github.com/hay-kot/parley/internal/core/room"
)

type fakeSource[T any] struct {
	ch     chan T
	err    error
	mu     sync.Mutex
	closed bool
}

func newFakeSource[T any]() *fakeSource[T] {
	return &fakeSource[T]{ch: make(chan T, 16)}
}

func (s *fakeSource[T]) Messages() <-chan T  { return s.ch }
func (s *fakeSource[T]) Summaries() <-chan T { return s.ch }
func (s *fakeSource[T]) Err() error          { return s.err }

func (s *fakeSource[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *fakeSource[T]) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func nextUpdate(t *testing.T, f *Feed) Update {
	t.Helper()
	select {
	case u, ok := <-f.Updates():
		require.True(t, ok, "updates closed early")
		return u
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for update")
		return Update{}
	}
}

func TestFeed_AppendsAndReadMarker(t *testing.T) {
	msgs := newFakeSource[messaging.Message]()
	rooms := newFakeSource[room.Summary]()

	f := NewFeed(context.Background(), NewProjector("alice", time.Time{}, time.UTC), msgs, rooms, 4)
	defer f.Close()

	day := threeDays()
	msgs.ch <- day[0]
	u := nextUpdate(t, f)
	assert.Equal(t, []Kind{KindDateBoundary, KindMessage}, kinds(u.Appended))

	msgs.ch <- day[1]
	u = nextUpdate(t, f)
	require.Len(t, u.Appended, 1)
	assert.True(t, u.Appended[0].Unread)

	summary := room.New(testKey, day[0].SentAt)
	summary.ReadMarkers["alice"] = day[1].SentAt
	rooms.ch <- summary

	u = nextUpdate(t, f)
	require.Len(t, u.Changed, 1)
	assert.False(t, u.Changed[0].Unread)
	assert.Equal(t, 0, f.UnreadCount())
	assert.Len(t, f.Snapshot(), 3)
}

func TestFeed_PartnerMarkerIsSilent(t *testing.T) {
	msgs := newFakeSource[messaging.Message]()
	rooms := newFakeSource[room.Summary]()

	f := NewFeed(context.Background(), NewProjector("alice", time.Time{}, time.UTC), msgs, rooms, 4)
	defer f.Close()

	day := threeDays()
	summary := room.New(testKey, day[0].SentAt)
	summary.ReadMarkers["bob"] = day[4].SentAt
	rooms.ch <- summary

	msgs.ch <- day[0]
	u := nextUpdate(t, f)
	assert.Len(t, u.Appended, 2, "first update is the message, not the partner's marker")
	assert.Empty(t, u.Changed)
}

func TestFeed_SourceErrorEndsFeed(t *testing.T) {
	msgs := newFakeSource[messaging.Message]()
	rooms := newFakeSource[room.Summary]()

	f := NewFeed(context.Background(), NewProjector("alice", time.Time{}, time.UTC), msgs, rooms, 4)

	boom := errors.New("disk gone")
	msgs.err = boom
	close(msgs.ch)

	select {
	case _, ok := <-f.Updates():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("feed did not stop")
	}

	assert.ErrorIs(t, f.Err(), boom)
	assert.True(t, msgs.isClosed())
	assert.True(t, rooms.isClosed())
}

func TestFeed_CloseStopsDelivery(t *testing.T) {
	msgs := newFakeSource[messaging.Message]()
	rooms := newFakeSource[room.Summary]()

	f := NewFeed(context.Background(), NewProjector("alice", time.Time{}, time.UTC), msgs, rooms, 1)
	f.Close()
	f.Close()

	select {
	case _, ok := <-f.Updates():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("feed did not stop")
	}
	assert.NoError(t, f.Err())
}
