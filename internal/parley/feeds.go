package parley

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hay-kot/parley/internal/core/convo"
	"github.com/hay-kot/parley/internal/core/room"
	"github.com/hay-kot/parley/internal/feed/inbox"
	"github.com/hay-kot/parley/internal/feed/timeline"
)

// ConversationView is a one-shot projection of a conversation.
type ConversationView struct {
	Key     convo.Key           `json:"key"`
	Viewer  convo.ParticipantID `json:"viewer"`
	Partner convo.ParticipantID `json:"partner"`
	Summary *room.Summary       `json:"summary,omitempty"`
	Items   []timeline.Item     `json:"items"`
}

// UnreadCount returns the number of unread incoming messages in the view.
func (v ConversationView) UnreadCount() int {
	n := 0
	for _, it := range v.Items {
		if it.Unread {
			n++
		}
	}
	return n
}

// LastSentAt returns the send time of the newest message, or the zero time
// for an empty conversation.
func (v ConversationView) LastSentAt() time.Time {
	for i := len(v.Items) - 1; i >= 0; i-- {
		if v.Items[i].Message != nil {
			return v.Items[i].Message.SentAt
		}
	}
	return time.Time{}
}

// Conversation loads and projects the conversation between viewer and partner.
// Date boundaries fall on calendar days in loc; nil means the configured zone.
func (s *Service) Conversation(ctx context.Context, viewer, partner convo.ParticipantID, loc *time.Location) (ConversationView, error) {
	key, err := convo.DeriveKey(viewer, partner)
	if err != nil {
		return ConversationView{}, err
	}

	view := ConversationView{Key: key, Viewer: viewer, Partner: partner}

	var marker time.Time
	summary, err := s.rooms.Get(ctx, key)
	switch {
	case errors.Is(err, convo.ErrNotFound):
	case err != nil:
		return ConversationView{}, fmt.Errorf("get room summary: %w", err)
	default:
		view.Summary = &summary
		marker = summary.ReadMarker(viewer)
	}

	msgs, err := s.messages.Load(ctx, key, 0)
	if err != nil {
		return ConversationView{}, fmt.Errorf("load messages: %w", err)
	}

	view.Items = timeline.Project(msgs, viewer, marker, s.zone(loc))
	return view, nil
}

// ConversationFeed starts a live projection of the conversation between
// viewer and partner, split into days in loc (nil means the configured zone).
// The caller must Close the feed.
func (s *Service) ConversationFeed(ctx context.Context, viewer, partner convo.ParticipantID, loc *time.Location) (*timeline.Feed, error) {
	key, err := convo.DeriveKey(viewer, partner)
	if err != nil {
		return nil, err
	}

	var marker time.Time
	summary, err := s.rooms.Get(ctx, key)
	switch {
	case errors.Is(err, convo.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("get room summary: %w", err)
	default:
		marker = summary.ReadMarker(viewer)
	}

	msgs, err := s.SubscribeMessages(ctx, key, 0)
	if err != nil {
		return nil, err
	}

	rooms, err := s.SubscribeRooms(ctx, []convo.Key{key})
	if err != nil {
		msgs.Close()
		return nil, err
	}

	proj := timeline.NewProjector(viewer, marker, s.zone(loc))
	return timeline.NewFeed(ctx, proj, msgs, rooms, s.config.SubscriptionBuffer), nil
}

// Inbox returns viewer's rooms ordered by recency.
func (s *Service) Inbox(ctx context.Context, viewer convo.ParticipantID) ([]inbox.Entry, error) {
	if err := convo.ValidateParticipant(viewer); err != nil {
		return nil, err
	}

	summaries, err := s.rooms.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return inbox.Build(summaries, viewer), nil
}

// InboxFeed starts a live inbox for viewer. The caller must Close the feed.
func (s *Service) InboxFeed(ctx context.Context, viewer convo.ParticipantID) (*inbox.Feed, error) {
	src, err := s.SubscribeInboxRooms(ctx, viewer)
	if err != nil {
		return nil, err
	}
	return inbox.NewFeed(ctx, inbox.NewAggregator(viewer), src, s.config.SubscriptionBuffer), nil
}

func (s *Service) zone(loc *time.Location) *time.Location {
	if loc != nil {
		return loc
	}
	return s.config.Location()
}
