package timeline

import (
	"context"
	"sync"

	"github.com/hay-kot/parley/internal/core/messaging"
	"github.com/hay-kot/parley/internal/core/room"
)

// MessageSource is an ordered stream of messages for one conversation.
type MessageSource interface {
	Messages() <-chan messaging.Message
	Err() error
	Close()
}

// SummarySource is a stream of room summary versions.
type SummarySource interface {
	Summaries() <-chan room.Summary
	Err() error
	Close()
}

// Update is emitted whenever the projection changes. Appended items extend the
// tail; Changed items replace the item with the same ID.
type Update struct {
	Appended []Item `json:"appended,omitempty"`
	Changed  []Item `json:"changed,omitempty"`
}

// Feed keeps a projection current from a message stream and the room summary
// stream of the same conversation.
type Feed struct {
	proj    *Projector
	msgs    MessageSource
	rooms   SummarySource
	updates chan Update
	done    chan struct{}

	mu        sync.RWMutex
	err       error
	closeOnce sync.Once
}

// NewFeed starts consuming msgs and rooms. The feed owns both sources and
// closes them when it stops.
func NewFeed(ctx context.Context, proj *Projector, msgs MessageSource, rooms SummarySource, buffer int) *Feed {
	if buffer < 1 {
		buffer = 1
	}
	f := &Feed{
		proj:    proj,
		msgs:    msgs,
		rooms:   rooms,
		updates: make(chan Update, buffer),
		done:    make(chan struct{}),
	}
	go f.run(ctx)
	return f
}

// Updates returns the channel of projection changes. It is closed when the
// feed stops.
func (f *Feed) Updates() <-chan Update {
	return f.updates
}

// Snapshot returns the projection as of the last applied update.
func (f *Feed) Snapshot() []Item {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.proj.Items()
}

// UnreadCount returns the number of unread incoming messages.
func (f *Feed) UnreadCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.proj.UnreadCount()
}

// Err returns the error that ended the feed, if any.
func (f *Feed) Err() error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.err
}

// Close stops the feed. Safe to call more than once.
func (f *Feed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}

func (f *Feed) run(ctx context.Context) {
	defer close(f.updates)
	defer f.rooms.Close()
	defer f.msgs.Close()

	msgCh := f.msgs.Messages()
	roomCh := f.rooms.Summaries()

	for msgCh != nil || roomCh != nil {
		var u Update

		select {
		case <-ctx.Done():
			return
		case <-f.done:
			return
		case msg, ok := <-msgCh:
			if !ok {
				if err := f.msgs.Err(); err != nil {
					f.fail(err)
					return
				}
				msgCh = nil
				continue
			}
			f.mu.Lock()
			u.Appended = f.proj.Push(msg)
			f.mu.Unlock()
		case s, ok := <-roomCh:
			if !ok {
				if err := f.rooms.Err(); err != nil {
					f.fail(err)
					return
				}
				roomCh = nil
				continue
			}
			f.mu.Lock()
			u.Changed = f.proj.SetReadMarker(s.ReadMarker(f.proj.Viewer()))
			f.mu.Unlock()
		}

		if len(u.Appended) == 0 && len(u.Changed) == 0 {
			continue
		}

		select {
		case f.updates <- u:
		case <-ctx.Done():
			return
		case <-f.done:
			return
		}
	}
}

func (f *Feed) fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}
