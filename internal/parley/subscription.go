package parley

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hay-kot/parley/internal/core/convo"
	"github.com/hay-kot/parley/internal/core/messaging"
	"github.com/hay-kot/parley/internal/core/room"
	"github.com/hay-kot/parley/internal/pubsub"
)

// stream is the delivery side shared by every subscription: a buffered
// channel closed when delivery ends, plus the error that ended it.
type stream[T any] struct {
	id   string
	out  chan T
	done chan struct{}

	mu        sync.Mutex
	err       error
	closeOnce sync.Once
}

func newStream[T any](buffer int) *stream[T] {
	if buffer < 1 {
		buffer = 1
	}
	return &stream[T]{
		id:   uuid.NewString()[:8],
		out:  make(chan T, buffer),
		done: make(chan struct{}),
	}
}

// ID returns a short handle used in logs.
func (s *stream[T]) ID() string {
	return s.id
}

// Err returns the error that ended delivery. It is nil while the stream is
// open and after a Close or context cancellation.
func (s *stream[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close stops delivery. Safe to call more than once.
func (s *stream[T]) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *stream[T]) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// send delivers v unless the stream or ctx is done first.
func (s *stream[T]) send(ctx context.Context, v T) bool {
	select {
	case s.out <- v:
		return true
	case <-ctx.Done():
		return false
	case <-s.done:
		return false
	}
}

// wait blocks until a change signal, the poll tick, or shutdown.
func (s *stream[T]) wait(ctx context.Context, w *pubsub.Waiter, tick <-chan time.Time) bool {
	select {
	case <-w.C:
		return true
	case <-tick:
		return true
	case <-ctx.Done():
		return false
	case <-s.done:
		return false
	}
}

// stopped reports whether err was caused by the subscription shutting down.
func stopped(ctx context.Context, err error) bool {
	return ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}

// MessageSubscription delivers a conversation's backlog followed by every
// later message, in log order, without gaps or duplicates.
type MessageSubscription struct {
	*stream[messaging.Message]
	key convo.Key
}

// Messages returns the delivery channel. It is closed when the subscription
// ends; check Err afterwards.
func (m *MessageSubscription) Messages() <-chan messaging.Message {
	return m.out
}

// Key returns the subscribed conversation.
func (m *MessageSubscription) Key() convo.Key {
	return m.key
}

// SubscribeMessages streams key's messages with Seq greater than afterSeq.
// Pass 0 to start from the beginning of the log.
func (s *Service) SubscribeMessages(ctx context.Context, key convo.Key, afterSeq uint64) (*MessageSubscription, error) {
	if _, err := convo.ParseKey(string(key)); err != nil {
		return nil, err
	}

	sub := &MessageSubscription{
		stream: newStream[messaging.Message](s.config.SubscriptionBuffer),
		key:    key,
	}

	log := s.log.With().
		Str("component", "subscription").
		Str("subscription", sub.id).
		Str("key", key.String()).
		Logger()

	// Register before the first load so an append racing the backlog read
	// still produces a wake-up.
	w := s.messageHub.Watch(string(key))
	go s.runMessages(ctx, sub, w, afterSeq, log)

	return sub, nil
}

func (s *Service) runMessages(ctx context.Context, sub *MessageSubscription, w *pubsub.Waiter, cursor uint64, log zerolog.Logger) {
	defer close(sub.out)
	defer w.Close()

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	log.Debug().Uint64("after_seq", cursor).Msg("message subscription started")

	for {
		msgs, err := s.messages.Load(ctx, sub.key, cursor)
		if err != nil {
			if !stopped(ctx, err) {
				log.Error().Err(err).Msg("message subscription failed")
				sub.fail(err)
			}
			return
		}

		for _, msg := range msgs {
			if !sub.send(ctx, msg) {
				return
			}
			cursor = msg.Seq
		}

		if !sub.wait(ctx, w, ticker.C) {
			log.Debug().Msg("message subscription stopped")
			return
		}
	}
}

// RoomSubscription delivers the current summary of each matching room and
// then the latest version after every change. Intermediate versions that
// land between two wake-ups are coalesced.
type RoomSubscription struct {
	*stream[room.Summary]
}

// Summaries returns the delivery channel. It is closed when the subscription
// ends; check Err afterwards.
func (r *RoomSubscription) Summaries() <-chan room.Summary {
	return r.out
}

// roomQuery loads the summaries a room subscription watches.
type roomQuery func(ctx context.Context) ([]room.Summary, error)

// SubscribeRooms streams the summaries of keys. Keys without a summary yet
// are delivered once they are created.
func (s *Service) SubscribeRooms(ctx context.Context, keys []convo.Key) (*RoomSubscription, error) {
	for _, key := range keys {
		if _, err := convo.ParseKey(string(key)); err != nil {
			return nil, err
		}
	}

	topic := pubsub.AnyKey
	if len(keys) == 1 {
		topic = string(keys[0])
	}

	query := func(ctx context.Context) ([]room.Summary, error) {
		summaries := make([]room.Summary, 0, len(keys))
		for _, key := range keys {
			summary, err := s.rooms.Get(ctx, key)
			if errors.Is(err, convo.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			summaries = append(summaries, summary)
		}
		return summaries, nil
	}

	return s.subscribeRooms(ctx, topic, query), nil
}

// SubscribeInboxRooms streams every room viewer participates in, including
// rooms created after the subscription starts.
func (s *Service) SubscribeInboxRooms(ctx context.Context, viewer convo.ParticipantID) (*RoomSubscription, error) {
	if err := convo.ValidateParticipant(viewer); err != nil {
		return nil, err
	}

	query := func(ctx context.Context) ([]room.Summary, error) {
		all, err := s.rooms.List(ctx)
		if err != nil {
			return nil, err
		}
		summaries := all[:0]
		for _, summary := range all {
			if summary.HasParticipant(viewer) {
				summaries = append(summaries, summary)
			}
		}
		return summaries, nil
	}

	return s.subscribeRooms(ctx, pubsub.AnyKey, query), nil
}

func (s *Service) subscribeRooms(ctx context.Context, topic string, query roomQuery) *RoomSubscription {
	sub := &RoomSubscription{stream: newStream[room.Summary](s.config.SubscriptionBuffer)}

	log := s.log.With().
		Str("component", "subscription").
		Str("subscription", sub.id).
		Str("topic", topic).
		Logger()

	w := s.roomHub.Watch(topic)
	go s.runRooms(ctx, sub, w, query, log)

	return sub
}

func (s *Service) runRooms(ctx context.Context, sub *RoomSubscription, w *pubsub.Waiter, query roomQuery, log zerolog.Logger) {
	defer close(sub.out)
	defer w.Close()

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	versions := make(map[convo.Key]uint64)

	for {
		summaries, err := query(ctx)
		if err != nil {
			if !stopped(ctx, err) {
				log.Error().Err(err).Msg("room subscription failed")
				sub.fail(err)
			}
			return
		}

		for _, summary := range summaries {
			if summary.Version <= versions[summary.Key] {
				continue
			}
			if !sub.send(ctx, summary) {
				return
			}
			versions[summary.Key] = summary.Version
		}

		if !sub.wait(ctx, w, ticker.C) {
			log.Debug().Msg("room subscription stopped")
			return
		}
	}
}
