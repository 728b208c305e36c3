// Package parley implements the conversation synchronization engine: sending
// and reading messages, room summary updates, and the live subscriptions and
// feeds built on top of them.
package parley

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hay-kot/parley/internal/core/config"
	"github.com/hay-kot/parley/internal/core/convo"
	"github.com/hay-kot/parley/internal/core/messaging"
	"github.com/hay-kot/parley/internal/core/room"
	"github.com/hay-kot/parley/internal/core/validate"
	"github.com/hay-kot/parley/internal/notify"
	"github.com/hay-kot/parley/internal/pubsub"
)

const dispatchTimeout = 10 * time.Second

// Service orchestrates parley operations.
type Service struct {
	messages   messaging.Store
	rooms      room.Store
	dispatcher notify.Dispatcher
	config     *config.Config
	log        zerolog.Logger

	messageHub *pubsub.Hub
	roomHub    *pubsub.Hub

	dispatches sync.WaitGroup
}

// New creates a new Service.
func New(
	messages messaging.Store,
	rooms room.Store,
	dispatcher notify.Dispatcher,
	cfg *config.Config,
	log zerolog.Logger,
) *Service {
	if dispatcher == nil {
		dispatcher = notify.Nop{}
	}
	if cfg == nil {
		defaults := config.DefaultConfig()
		cfg = &defaults
	}
	return &Service{
		messages:   messages,
		rooms:      rooms,
		dispatcher: dispatcher,
		config:     cfg,
		log:        log,
		messageHub: pubsub.NewHub(),
		roomHub:    pubsub.NewHub(),
	}
}

// Config returns the configuration the service was built with.
func (s *Service) Config() *config.Config {
	return s.config
}

// Close waits for in-flight notification dispatches to finish.
func (s *Service) Close() {
	s.dispatches.Wait()
}

// Send appends body to the conversation between sender and recipient.
func (s *Service) Send(ctx context.Context, sender, recipient convo.ParticipantID, body string) (messaging.Message, error) {
	key, err := convo.DeriveKey(sender, recipient)
	if err != nil {
		return messaging.Message{}, err
	}
	return s.SendToKey(ctx, key, sender, body)
}

// SendToKey appends body to the conversation identified by key.
//
// The message is committed once the log append succeeds. The room summary is
// updated afterwards; if that fails the error is returned together with the
// committed message.
func (s *Service) SendToKey(ctx context.Context, key convo.Key, sender convo.ParticipantID, body string) (messaging.Message, error) {
	body, err := validate.Body(body)
	if err != nil {
		return messaging.Message{}, err
	}

	if err := s.checkMember(ctx, key, sender); err != nil {
		return messaging.Message{}, err
	}

	msg, err := s.messages.Append(ctx, key, sender, body)
	if err != nil {
		return messaging.Message{}, fmt.Errorf("append message: %w", err)
	}
	s.messageHub.Publish(string(key))

	s.log.Debug().
		Str("key", key.String()).
		Str("sender", string(sender)).
		Uint64("seq", msg.Seq).
		Msg("message appended")

	pair := key.Participants()
	patch := room.Patch{
		room.AddParticipants{IDs: pair[:]},
		room.SetLastMessage{Body: msg.Body, SenderID: sender, At: msg.SentAt},
		room.AdvanceReadMarker{ParticipantID: sender, Upto: msg.SentAt},
	}
	if _, err := s.rooms.MergePatch(ctx, key, patch); err != nil {
		s.log.Error().Err(err).Str("key", key.String()).Str("message_id", msg.ID).Msg("room summary update failed")
		return msg, fmt.Errorf("update room summary: %w", err)
	}
	s.roomHub.Publish(string(key))

	s.dispatch(ctx, msg)

	return msg, nil
}

// checkMember verifies sender may write to key. Before the first message the
// key's own pair decides; afterwards the stored participants do.
func (s *Service) checkMember(ctx context.Context, key convo.Key, sender convo.ParticipantID) error {
	if _, err := convo.ParseKey(string(key)); err != nil {
		return err
	}
	if !key.Has(sender) {
		return fmt.Errorf("%w: %s in %s", convo.ErrNotAParticipant, sender, key)
	}

	summary, err := s.rooms.Get(ctx, key)
	switch {
	case errors.Is(err, convo.ErrNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("get room summary: %w", err)
	case !summary.HasParticipant(sender):
		return fmt.Errorf("%w: %s in %s", convo.ErrNotAParticipant, sender, key)
	}
	return nil
}

// dispatch hands msg to the notification dispatcher without waiting for it.
// Failures are logged and never reach the sender.
func (s *Service) dispatch(ctx context.Context, msg messaging.Message) {
	n, ok := notify.FromMessage(msg, s.config.Notifications.PreviewLength)
	if !ok {
		return
	}

	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dispatchTimeout)

	s.dispatches.Add(1)
	go func() {
		defer s.dispatches.Done()
		defer cancel()

		if err := s.dispatcher.Dispatch(dctx, n); err != nil {
			s.log.Warn().
				Err(err).
				Str("key", n.Key.String()).
				Str("recipient", string(n.RecipientID)).
				Msg("notification dispatch failed")
		}
	}()
}

// MarkRead advances participant's read marker on key to upto.
func (s *Service) MarkRead(ctx context.Context, key convo.Key, participant convo.ParticipantID, upto time.Time) (room.Summary, error) {
	return s.MergePatch(ctx, key, participant, room.Patch{
		room.AdvanceReadMarker{ParticipantID: participant, Upto: upto.UTC()},
	})
}

// SetTopic sets the conversation topic. An empty topic clears it.
func (s *Service) SetTopic(ctx context.Context, key convo.Key, participant convo.ParticipantID, topic string) (room.Summary, error) {
	topic, err := validate.Topic(topic)
	if err != nil {
		return room.Summary{}, err
	}

	var value *string
	if topic != "" {
		value = &topic
	}
	return s.MergePatch(ctx, key, participant, room.Patch{room.SetTopic{Topic: value}})
}

// MergePatch applies p to key's room summary on behalf of participant.
func (s *Service) MergePatch(ctx context.Context, key convo.Key, participant convo.ParticipantID, p room.Patch) (room.Summary, error) {
	if err := s.checkMember(ctx, key, participant); err != nil {
		return room.Summary{}, err
	}

	summary, err := s.rooms.MergePatch(ctx, key, p)
	if err != nil {
		return room.Summary{}, fmt.Errorf("merge room patch: %w", err)
	}
	s.roomHub.Publish(string(key))

	s.log.Debug().
		Str("key", key.String()).
		Str("participant", string(participant)).
		Interface("fields", p.Fields()).
		Uint64("version", summary.Version).
		Msg("room patched")

	return summary, nil
}

// Rooms returns every stored room summary sorted by key.
func (s *Service) Rooms(ctx context.Context) ([]room.Summary, error) {
	return s.rooms.List(ctx)
}

// Room returns the summary of one conversation.
func (s *Service) Room(ctx context.Context, key convo.Key) (room.Summary, error) {
	return s.rooms.Get(ctx, key)
}
