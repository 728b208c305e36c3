package tui

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/parley/internal/core/convo"
	"github.com/hay-kot/parley/internal/core/messaging"
	"github.com/hay-kot/parley/internal/core/room"
	"github.com/hay-kot/parley/internal/feed/timeline"
)

type fakeConversations struct {
	mu      sync.Mutex
	sendErr error
	readErr error
	sent    []string
	reads   []time.Time
}

func (f *fakeConversations) Send(_ context.Context, sender, _ convo.ParticipantID, body string) (messaging.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return messaging.Message{}, f.sendErr
	}
	f.sent = append(f.sent, body)
	return messaging.Message{SenderID: sender, Body: body}, nil
}

func (f *fakeConversations) MarkRead(_ context.Context, _ convo.Key, _ convo.ParticipantID, upto time.Time) (room.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads = append(f.reads, upto)
	return room.Summary{}, f.readErr
}

type fakeFeed struct {
	updates chan timeline.Update
	err     error
}

func (f *fakeFeed) Updates() <-chan timeline.Update { return f.updates }
func (f *fakeFeed) Err() error                      { return f.err }

var base = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func newModel(svc *fakeConversations) Model {
	m := New(svc, &fakeFeed{updates: make(chan timeline.Update, 4)}, "alice", "bob", Options{Location: time.UTC})
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return next.(Model)
}

func item(sender convo.ParticipantID, offset time.Duration, viewer convo.ParticipantID, unread bool) timeline.Item {
	at := base.Add(offset)
	return timeline.Item{
		Kind:     timeline.KindMessage,
		Day:      timeline.DayOf(at, time.UTC),
		Message:  &messaging.Message{SenderID: sender, Body: "body", SentAt: at},
		Outgoing: sender == viewer,
		Unread:   unread,
	}
}

func enter() tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyEnter}
}

func TestModel_ApplyAppendAndChange(t *testing.T) {
	m := newModel(&fakeConversations{})

	in := item("bob", time.Second, "alice", true)
	m.apply(timeline.Update{Appended: []timeline.Item{in, item("alice", 2*time.Second, "alice", false)}})
	require.Len(t, m.Items(), 2)
	assert.Equal(t, 1, m.unread)

	read := in
	read.Unread = false
	m.apply(timeline.Update{Changed: []timeline.Item{read}})
	assert.Len(t, m.Items(), 2)
	assert.Equal(t, 0, m.unread)
	assert.False(t, m.Items()[0].Unread)
}

func TestModel_SendSuccessClearsInput(t *testing.T) {
	svc := &fakeConversations{}
	m := newModel(svc)
	m.input.SetValue("hello bob")

	next, cmd := m.Update(enter())
	m = next.(Model)
	require.NotNil(t, cmd)
	assert.True(t, m.sending)

	next, _ = m.Update(cmd())
	m = next.(Model)

	assert.False(t, m.sending)
	assert.Empty(t, m.Draft())
	assert.NoError(t, m.err)
	assert.Equal(t, []string{"hello bob"}, svc.sent)
}

func TestModel_SendFailureKeepsDraft(t *testing.T) {
	svc := &fakeConversations{sendErr: errors.New("disk full")}
	m := newModel(svc)
	m.input.SetValue("try again")

	next, cmd := m.Update(enter())
	m = next.(Model)
	require.NotNil(t, cmd)

	next, _ = m.Update(cmd())
	m = next.(Model)

	assert.Equal(t, "try again", m.Draft())
	assert.EqualError(t, m.err, "disk full")
	assert.Contains(t, m.View(), "disk full")
}

func TestModel_SendIgnoresBlankInput(t *testing.T) {
	m := newModel(&fakeConversations{})
	m.input.SetValue("   ")

	_, cmd := m.Update(enter())
	assert.Nil(t, cmd)
}

func TestModel_AckReadOnlyAdvances(t *testing.T) {
	svc := &fakeConversations{}
	m := newModel(svc)

	assert.Nil(t, m.ackRead(), "nothing to acknowledge")

	m.apply(timeline.Update{Appended: []timeline.Item{
		item("bob", time.Second, "alice", true),
		item("alice", 2*time.Second, "alice", false),
	}})

	cmd := m.ackRead()
	require.NotNil(t, cmd)
	next, _ := m.Update(cmd())
	m = next.(Model)
	require.Len(t, svc.reads, 1)
	assert.True(t, svc.reads[0].Equal(base.Add(time.Second)), "acks up to the newest incoming message")

	assert.Nil(t, m.ackRead(), "already acknowledged")
}

func TestModel_FailedAckRetriesOnFocus(t *testing.T) {
	svc := &fakeConversations{readErr: errors.New("disk full")}
	m := newModel(svc)

	m.apply(timeline.Update{Appended: []timeline.Item{item("bob", time.Second, "alice", true)}})

	cmd := m.ackRead()
	require.NotNil(t, cmd)
	next, _ := m.Update(cmd())
	m = next.(Model)
	assert.NoError(t, m.err, "failure is not shown")
	assert.NotContains(t, m.View(), "disk full")

	svc.mu.Lock()
	svc.readErr = nil
	svc.mu.Unlock()

	next, cmd = m.Update(tea.FocusMsg{})
	m = next.(Model)
	require.NotNil(t, cmd, "focus retries the failed acknowledgement")
	next, _ = m.Update(cmd())
	m = next.(Model)

	require.Len(t, svc.reads, 2)
	assert.True(t, svc.reads[1].Equal(svc.reads[0]), "retry uses the same upto")
	assert.Nil(t, m.ackRead(), "acknowledged after the retry")
}

func TestModel_FailedAckKeepsNewerAdvance(t *testing.T) {
	svc := &fakeConversations{}
	m := newModel(svc)

	m.apply(timeline.Update{Appended: []timeline.Item{item("bob", time.Second, "alice", true)}})
	first := m.ackRead()
	require.NotNil(t, first)

	m.apply(timeline.Update{Appended: []timeline.Item{item("bob", 2*time.Second, "alice", true)}})
	require.NotNil(t, m.ackRead())

	// The older ack fails after the newer one was issued.
	next, _ := m.Update(readAckMsg{upto: base.Add(time.Second), err: errors.New("timeout")})
	m = next.(Model)
	assert.True(t, m.lastRead.Equal(base.Add(2*time.Second)))
}

func TestModel_FocusAcknowledges(t *testing.T) {
	svc := &fakeConversations{}
	m := newModel(svc)

	next, _ := m.Update(tea.BlurMsg{})
	m = next.(Model)
	assert.False(t, m.focused)

	m.apply(timeline.Update{Appended: []timeline.Item{item("bob", time.Second, "alice", true)}})

	next, cmd := m.Update(tea.FocusMsg{})
	m = next.(Model)
	require.NotNil(t, cmd)
	cmd()

	assert.True(t, m.focused)
	assert.Len(t, svc.reads, 1)
}

func TestModel_FeedClosed(t *testing.T) {
	feed := &fakeFeed{updates: make(chan timeline.Update), err: errors.New("log unreadable")}
	close(feed.updates)

	msg := waitForUpdate(feed)()
	closed, ok := msg.(feedClosedMsg)
	require.True(t, ok)

	m := newModel(&fakeConversations{})
	next, _ := m.Update(closed)
	m = next.(Model)

	assert.True(t, m.closed)
	assert.Contains(t, m.View(), "log unreadable")

	m.input.SetValue("hello")
	_, cmd := m.Update(enter())
	assert.Nil(t, cmd, "cannot send after the feed stopped")
}

func TestRenderItems(t *testing.T) {
	bodies := newBodyRenderer()
	bodies.SetWidth(60)

	day := timeline.DayOf(base, time.UTC)
	out := renderItems([]timeline.Item{
		{Kind: timeline.KindDateBoundary, Day: day},
		item("bob", time.Minute, "alice", true),
	}, bodies, 60, time.UTC)

	assert.Contains(t, out, "Wed, May 1 2024")
	assert.Contains(t, out, "bob")
	assert.Contains(t, out, "09:01")
	assert.Contains(t, out, iconUnread)
	assert.Contains(t, out, "body")
}
