package inbox

import (
	"context"
	"sync"

	"github.com/hay-kot/parley/internal/core/room"
)

// SummarySource is a stream of room summary versions.
type SummarySource interface {
	Summaries() <-chan room.Summary
	Err() error
	Close()
}

// Feed keeps an inbox current from a summary stream.
type Feed struct {
	agg     *Aggregator
	src     SummarySource
	updates chan Update
	done    chan struct{}

	mu        sync.RWMutex
	err       error
	closeOnce sync.Once
}

// NewFeed starts consuming src. The feed owns src and closes it when it stops.
func NewFeed(ctx context.Context, agg *Aggregator, src SummarySource, buffer int) *Feed {
	if buffer < 1 {
		buffer = 1
	}
	f := &Feed{
		agg:     agg,
		src:     src,
		updates: make(chan Update, buffer),
		done:    make(chan struct{}),
	}
	go f.run(ctx)
	return f
}

// Updates returns the channel of inbox changes. It is closed when the feed
// stops.
func (f *Feed) Updates() <-chan Update {
	return f.updates
}

// Snapshot returns the inbox as of the last applied summary.
func (f *Feed) Snapshot() []Entry {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.agg.Entries()
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
	defer f.src.Close()

	ch := f.src.Summaries()
	for {
		var s room.Summary
		select {
		case <-ctx.Done():
			return
		case <-f.done:
			return
		case v, ok := <-ch:
			if !ok {
				if err := f.src.Err(); err != nil {
					f.mu.Lock()
					f.err = err
					f.mu.Unlock()
				}
				return
			}
			s = v
		}

		f.mu.Lock()
		u, changed := f.agg.Apply(s)
		f.mu.Unlock()
		if !changed {
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
