package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hay-kot/parley/internal/core/convo"
	"github.com/hay-kot/parley/internal/feed/inbox"
	"github.com/hay-kot/parley/internal/feed/timeline"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxClientFrame = 4 << 10
)

// Frame types sent to feed clients.
const (
	FrameUpdate = "update"
	FrameError  = "error"
)

// ConversationFrame is one message on the conversation feed.
type ConversationFrame struct {
	Type     string          `json:"type"`
	Appended []timeline.Item `json:"appended,omitempty"`
	Changed  []timeline.Item `json:"changed,omitempty"`
	Unread   int             `json:"unread"`
	Error    string          `json:"error,omitempty"`
}

// InboxFrame is one message on the inbox feed.
type InboxFrame struct {
	Type    string        `json:"type"`
	Entries []inbox.Entry `json:"entries,omitempty"`
	Changed []inbox.Entry `json:"changed,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// ClientFrame is sent by conversation feed clients. {"type":"read"} marks
// the conversation read up to Upto, or up to now when Upto is omitted.
type ClientFrame struct {
	Type string     `json:"type"`
	Upto *time.Time `json:"upto,omitempty"`
}

func (s *Server) serveConversationFeed(w http.ResponseWriter, r *http.Request, me, partner convo.ParticipantID, loc *time.Location) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	feed, err := s.svc.ConversationFeed(ctx, me, partner, loc)
	if err != nil {
		s.closeWithError(conn, ConversationFrame{Type: FrameError, Error: err.Error()})
		return
	}
	defer feed.Close()

	key, _ := convo.DeriveKey(me, partner)
	log := s.log.With().Str("key", key.String()).Str("participant", string(me)).Logger()
	log.Debug().Msg("conversation feed opened")

	go s.readFrames(conn, cancel, func(f ClientFrame) {
		if f.Type != "read" {
			return
		}
		upto := time.Now()
		if f.Upto != nil {
			upto = *f.Upto
		}
		if _, err := s.svc.MarkRead(ctx, key, me, upto); err != nil {
			log.Warn().Err(err).Msg("read acknowledgement failed")
		}
	})

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			if err := s.ping(conn); err != nil {
				return
			}
		case upd, ok := <-feed.Updates():
			if !ok {
				if err := feed.Err(); err != nil && !errors.Is(err, context.Canceled) {
					s.closeWithError(conn, ConversationFrame{Type: FrameError, Error: err.Error()})
				}
				return
			}
			frame := ConversationFrame{
				Type:     FrameUpdate,
				Appended: upd.Appended,
				Changed:  upd.Changed,
				Unread:   feed.UnreadCount(),
			}
			if err := s.write(conn, frame); err != nil {
				log.Debug().Err(err).Msg("conversation feed write failed")
				return
			}
		}
	}
}

func (s *Server) serveInboxFeed(w http.ResponseWriter, r *http.Request, me convo.ParticipantID) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	feed, err := s.svc.InboxFeed(ctx, me)
	if err != nil {
		s.closeWithError(conn, InboxFrame{Type: FrameError, Error: err.Error()})
		return
	}
	defer feed.Close()

	go s.readFrames(conn, cancel, nil)

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			if err := s.ping(conn); err != nil {
				return
			}
		case upd, ok := <-feed.Updates():
			if !ok {
				if err := feed.Err(); err != nil && !errors.Is(err, context.Canceled) {
					s.closeWithError(conn, InboxFrame{Type: FrameError, Error: err.Error()})
				}
				return
			}
			frame := InboxFrame{Type: FrameUpdate, Entries: upd.Entries, Changed: upd.Changed}
			if err := s.write(conn, frame); err != nil {
				return
			}
		}
	}
}

// readFrames reads client frames until the connection fails, then cancels
// the feed. handle may be nil for feeds that take no input.
func (s *Server) readFrames(conn *websocket.Conn, cancel context.CancelFunc, handle func(ClientFrame)) {
	defer cancel()

	conn.SetReadLimit(maxClientFrame)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var f ClientFrame
		if err := conn.ReadJSON(&f); err != nil {
			return
		}
		if handle != nil {
			handle(f)
		}
	}
}

func (s *Server) write(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

func (s *Server) ping(conn *websocket.Conn) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.PingMessage, nil)
}

func (s *Server) closeWithError(conn *websocket.Conn, frame any) {
	_ = s.write(conn, frame)
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "feed failed"),
		time.Now().Add(writeWait),
	)
}
