package parley

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/parley/internal/core/config"
	"github.com/hay-kot/parley/internal/core/convo"
	"github.com/hay-kot/parley/internal/core/messaging"
	"github.com/hay-kot/parley/internal/core/room"
	"github.com/hay-kot/parley/internal/notify"
	"github.com/hay-kot/parley/internal/store/jsonfile"
)

const testKey = convo.Key("alice:bob")

// recordingDispatcher implements notify.Dispatcher for testing.
type recordingDispatcher struct {
	mu   sync.Mutex
	sent []notify.Notification
	err  error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, n notify.Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, n)
	return d.err
}

func (d *recordingDispatcher) all() []notify.Notification {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]notify.Notification(nil), d.sent...)
}

// failingMessages implements messaging.Store and fails every call.
type failingMessages struct {
	err error
}

func (f *failingMessages) Append(context.Context, convo.Key, convo.ParticipantID, string) (messaging.Message, error) {
	return messaging.Message{}, f.err
}

func (f *failingMessages) Load(context.Context, convo.Key, uint64) ([]messaging.Message, error) {
	return nil, f.err
}

func (f *failingMessages) Keys(context.Context) ([]convo.Key, error) { return nil, f.err }

// failingRooms wraps a room.Store and fails MergePatch.
type failingRooms struct {
	room.Store
	err error
}

func (f *failingRooms) MergePatch(context.Context, convo.Key, room.Patch) (room.Summary, error) {
	return room.Summary{}, f.err
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.PollInterval = 20 * time.Millisecond
	cfg.SubscriptionBuffer = 8
	cfg.Timezone = "UTC"
	return &cfg
}

// stepClock returns a clock that advances one second per call.
func stepClock() func() time.Time {
	var (
		mu  sync.Mutex
		now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

func newTestService(t *testing.T, dispatcher notify.Dispatcher) *Service {
	t.Helper()
	cfg := testConfig(t)
	svc := New(
		jsonfile.NewMsgStore(cfg.ConversationsDir()).WithClock(stepClock()),
		jsonfile.NewRoomStore(cfg.RoomsDir()),
		dispatcher,
		cfg,
		zerolog.New(io.Discard),
	)
	t.Cleanup(svc.Close)
	return svc
}

func TestService_SendCreatesRoom(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	msg, err := svc.Send(ctx, "bob", "alice", "  hello  ")
	require.NoError(t, err)

	assert.Equal(t, testKey, msg.Key)
	assert.Equal(t, "hello", msg.Body)
	assert.Equal(t, uint64(1), msg.Seq)

	summary, err := svc.Room(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, "hello", summary.LastMessage)
	assert.Equal(t, convo.ParticipantID("bob"), summary.LastSenderID)
	assert.Equal(t, msg.SentAt, summary.LastActivityAt)
	assert.Equal(t, []convo.ParticipantID{"alice", "bob"}, summary.Participants)
	assert.Equal(t, msg.SentAt, summary.ReadMarker("bob"), "sender has read their own message")
	assert.True(t, summary.ReadMarker("alice").IsZero())
}

func TestService_SendSymmetricKey(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	a, err := svc.Send(ctx, "alice", "bob", "one")
	require.NoError(t, err)
	b, err := svc.Send(ctx, "bob", "alice", "two")
	require.NoError(t, err)

	assert.Equal(t, a.Key, b.Key)
	assert.Equal(t, uint64(2), b.Seq)
	assert.True(t, a.SentAt.Before(b.SentAt))
}

func TestService_SendErrors(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		send func() error
		want error
	}{
		{
			name: "empty body",
			send: func() error { _, err := svc.Send(ctx, "alice", "bob", " \n "); return err },
			want: convo.ErrValidation,
		},
		{
			name: "self",
			send: func() error { _, err := svc.Send(ctx, "alice", "alice", "hi"); return err },
			want: convo.ErrInvalidIdentity,
		},
		{
			name: "separator in id",
			send: func() error { _, err := svc.Send(ctx, "al:ice", "bob", "hi"); return err },
			want: convo.ErrInvalidIdentity,
		},
		{
			name: "outsider",
			send: func() error { _, err := svc.SendToKey(ctx, testKey, "mallory", "hi"); return err },
			want: convo.ErrNotAParticipant,
		},
		{
			name: "non canonical key",
			send: func() error { _, err := svc.SendToKey(ctx, "bob:alice", "bob", "hi"); return err },
			want: convo.ErrInvalidIdentity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.send(), tt.want)
		})
	}

	rooms, err := svc.Rooms(ctx)
	require.NoError(t, err)
	assert.Empty(t, rooms, "rejected sends leave no trace")
}

func TestService_SendDispatchesNotification(t *testing.T) {
	d := &recordingDispatcher{}
	svc := newTestService(t, d)

	msg, err := svc.Send(context.Background(), "alice", "bob", "are we still on for friday?")
	require.NoError(t, err)

	svc.Close()

	sent := d.all()
	require.Len(t, sent, 1)
	assert.Equal(t, msg.ID, sent[0].MessageID)
	assert.Equal(t, convo.ParticipantID("bob"), sent[0].RecipientID)
	assert.Equal(t, "are we still on for friday?", sent[0].BodyPreview)
}

func TestService_NotificationFailureDoesNotFailSend(t *testing.T) {
	d := &recordingDispatcher{err: errors.New("push service down")}
	svc := newTestService(t, d)

	_, err := svc.Send(context.Background(), "alice", "bob", "hi")
	require.NoError(t, err)

	svc.Close()
	assert.Len(t, d.all(), 1)
}

func TestService_NotificationOutlivesRequestContext(t *testing.T) {
	d := &recordingDispatcher{}
	svc := newTestService(t, d)

	ctx, cancel := context.WithCancel(context.Background())
	_, err := svc.Send(ctx, "alice", "bob", "hi")
	require.NoError(t, err)
	cancel()

	svc.Close()
	assert.Len(t, d.all(), 1)
}

func TestService_PersistenceFailure(t *testing.T) {
	cfg := testConfig(t)
	storeErr := errors.Join(convo.ErrPersistence, errors.New("disk full"))
	d := &recordingDispatcher{}
	rooms := jsonfile.NewRoomStore(cfg.RoomsDir())
	svc := New(&failingMessages{err: storeErr}, rooms, d, cfg, zerolog.New(io.Discard))

	_, err := svc.Send(context.Background(), "alice", "bob", "hi")
	assert.ErrorIs(t, err, convo.ErrPersistence)

	svc.Close()
	assert.Empty(t, d.all())

	_, err = rooms.Get(context.Background(), testKey)
	assert.ErrorIs(t, err, convo.ErrNotFound, "summary untouched when append fails")
}

func TestService_SummaryFailureReturnsCommittedMessage(t *testing.T) {
	cfg := testConfig(t)
	messages := jsonfile.NewMsgStore(cfg.ConversationsDir())
	rooms := &failingRooms{
		Store: jsonfile.NewRoomStore(cfg.RoomsDir()),
		err:   errors.Join(convo.ErrPersistence, errors.New("read only")),
	}
	svc := New(messages, rooms, nil, cfg, zerolog.New(io.Discard))

	msg, err := svc.Send(context.Background(), "alice", "bob", "hi")
	assert.ErrorIs(t, err, convo.ErrPersistence)
	assert.Equal(t, uint64(1), msg.Seq)

	logged, err := messages.Load(context.Background(), testKey, 0)
	require.NoError(t, err)
	assert.Len(t, logged, 1)
}

func TestService_MarkRead(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	msg, err := svc.Send(ctx, "bob", "alice", "hi")
	require.NoError(t, err)

	summary, err := svc.MarkRead(ctx, testKey, "alice", msg.SentAt)
	require.NoError(t, err)
	assert.Equal(t, msg.SentAt, summary.ReadMarker("alice"))

	summary, err = svc.MarkRead(ctx, testKey, "alice", msg.SentAt.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, msg.SentAt, summary.ReadMarker("alice"), "marker never moves backward")

	_, err = svc.MarkRead(ctx, testKey, "mallory", msg.SentAt)
	assert.ErrorIs(t, err, convo.ErrNotAParticipant)

	_, err = svc.MarkRead(ctx, testKey, "alice", time.Time{})
	assert.ErrorIs(t, err, convo.ErrValidation)
}

func TestService_ConcurrentMarkReadAndSendKeepBothFields(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	first, err := svc.Send(ctx, "bob", "alice", "first")
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		last messaging.Message
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		var err error
		last, err = svc.Send(ctx, "bob", "alice", "second")
		assert.NoError(t, err)
	}()
	go func() {
		defer wg.Done()
		_, err := svc.MarkRead(ctx, testKey, "alice", first.SentAt)
		assert.NoError(t, err)
	}()
	wg.Wait()

	summary, err := svc.Room(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, "second", summary.LastMessage)
	assert.Equal(t, last.SentAt, summary.LastActivityAt)
	assert.Equal(t, first.SentAt, summary.ReadMarker("alice"))
}

func TestService_SetTopic(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	summary, err := svc.SetTopic(ctx, testKey, "alice", "  weekend trip ")
	require.NoError(t, err)
	assert.Equal(t, "weekend trip", summary.TopicValue())
	assert.Equal(t, uint64(1), summary.Version)

	summary, err = svc.SetTopic(ctx, testKey, "bob", "")
	require.NoError(t, err)
	assert.Nil(t, summary.Topic)
	assert.Equal(t, uint64(2), summary.Version)

	_, err = svc.SetTopic(ctx, testKey, "bob", "two\nlines")
	assert.ErrorIs(t, err, convo.ErrValidation)
}

func TestService_ConversationView(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	_, err := svc.Send(ctx, "alice", "bob", "one")
	require.NoError(t, err)
	last, err := svc.Send(ctx, "bob", "alice", "two")
	require.NoError(t, err)

	view, err := svc.Conversation(ctx, "alice", "bob", nil)
	require.NoError(t, err)

	require.NotNil(t, view.Summary)
	assert.Equal(t, testKey, view.Key)
	assert.Len(t, view.Items, 3)
	assert.Equal(t, 1, view.UnreadCount())
	assert.Equal(t, last.SentAt, view.LastSentAt())

	empty, err := svc.Conversation(ctx, "alice", "carol", nil)
	require.NoError(t, err)
	assert.Nil(t, empty.Summary)
	assert.Empty(t, empty.Items)
}

func TestService_Inbox(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	_, err := svc.Send(ctx, "bob", "alice", "from bob")
	require.NoError(t, err)
	_, err = svc.Send(ctx, "carol", "alice", "from carol")
	require.NoError(t, err)
	_, err = svc.Send(ctx, "alice", "dave", "to dave")
	require.NoError(t, err)
	_, err = svc.Send(ctx, "bob", "carol", "not alice's")
	require.NoError(t, err)

	entries, err := svc.Inbox(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, convo.ParticipantID("dave"), entries[0].PartnerID)
	assert.False(t, entries[0].Unread, "own message is read")
	assert.Equal(t, convo.ParticipantID("carol"), entries[1].PartnerID)
	assert.True(t, entries[1].Unread)
	assert.Equal(t, convo.ParticipantID("bob"), entries[2].PartnerID)

	_, err = svc.Inbox(ctx, "")
	assert.ErrorIs(t, err, convo.ErrInvalidIdentity)
}
