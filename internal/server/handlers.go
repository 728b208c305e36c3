package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/hay-kot/parley/internal/core/convo"
	"github.com/hay-kot/parley/internal/core/messaging"
)

type sendRequest struct {
	Body string `json:"body"`
}

type sendResponse struct {
	Message messaging.Message `json:"message"`
}

type readRequest struct {
	// Upto defaults to the server time when omitted.
	Upto *time.Time `json:"upto,omitempty"`
}

type topicRequest struct {
	Topic *string `json:"topic"`
}

type errorResponse struct {
	Error   string             `json:"error"`
	Message *messaging.Message `json:"message,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleInbox serves the inbox as JSON, or as a live feed when the request
// is a WebSocket handshake.
func (s *Server) handleInbox(w http.ResponseWriter, r *http.Request) {
	me, err := identity(r, websocket.IsWebSocketUpgrade(r))
	if err != nil {
		s.writeError(w, err)
		return
	}

	if websocket.IsWebSocketUpgrade(r) {
		s.serveInboxFeed(w, r, me)
		return
	}

	entries, err := s.svc.Inbox(r.Context(), me)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	me, partner, err := parties(r, false)
	if err != nil {
		s.writeError(w, err)
		return
	}

	loc, err := zone(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	view, err := s.svc.Conversation(r.Context(), me, partner, loc)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	me, partner, err := parties(r, false)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var req sendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	msg, err := s.svc.Send(r.Context(), me, partner, req.Body)
	if err != nil {
		if msg.ID != "" {
			// Stored, but the room summary was not updated.
			s.log.Error().Err(err).Str("message_id", msg.ID).Msg("send partially failed")
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error(), Message: &msg})
			return
		}
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, sendResponse{Message: msg})
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	me, partner, err := parties(r, false)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var req readRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			s.writeError(w, err)
			return
		}
	}

	upto := time.Now()
	if req.Upto != nil {
		upto = *req.Upto
	}

	key, _ := convo.DeriveKey(me, partner)
	summary, err := s.svc.MarkRead(r.Context(), key, me, upto)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleTopic(w http.ResponseWriter, r *http.Request) {
	me, partner, err := parties(r, false)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var req topicRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	topic := ""
	if req.Topic != nil {
		topic = *req.Topic
	}

	key, _ := convo.DeriveKey(me, partner)
	summary, err := s.svc.SetTopic(r.Context(), key, me, topic)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleConversationFeed(w http.ResponseWriter, r *http.Request) {
	me, partner, err := parties(r, true)
	if err != nil {
		s.writeError(w, err)
		return
	}

	loc, err := zone(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.serveConversationFeed(w, r, me, partner, loc)
}

// zone reads the viewer's IANA zone from the tz query parameter. A missing
// parameter returns nil so the service falls back to its configured zone.
func zone(r *http.Request) (*time.Location, error) {
	name := r.URL.Query().Get("tz")
	if name == "" {
		return nil, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown timezone %q", convo.ErrValidation, name)
	}
	return loc, nil
}

// identity returns the caller. allowQuery permits the participant query
// parameter for WebSocket handshakes.
func identity(r *http.Request, allowQuery bool) (convo.ParticipantID, error) {
	id := r.Header.Get(HeaderParticipant)
	if id == "" && allowQuery {
		id = r.URL.Query().Get("participant")
	}
	if id == "" {
		return "", fmt.Errorf("%w: missing %s header", convo.ErrInvalidIdentity, HeaderParticipant)
	}

	me := convo.ParticipantID(id)
	if err := convo.ValidateParticipant(me); err != nil {
		return "", err
	}
	return me, nil
}

// parties returns the caller and the {partner} path variable, rejecting
// pairs that do not form a conversation.
func parties(r *http.Request, allowQuery bool) (me, partner convo.ParticipantID, err error) {
	me, err = identity(r, allowQuery)
	if err != nil {
		return "", "", err
	}

	partner = convo.ParticipantID(mux.Vars(r)["partner"])
	if _, err := convo.DeriveKey(me, partner); err != nil {
		return "", "", err
	}
	return me, partner, nil
}

// statusFor maps conversation errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, convo.ErrValidation), errors.Is(err, convo.ErrInvalidIdentity):
		return http.StatusBadRequest
	case errors.Is(err, convo.ErrNotAParticipant):
		return http.StatusForbidden
	case errors.Is(err, convo.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log.Error().Err(err).Msg("request failed")
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body: %w", convo.ErrValidation, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
