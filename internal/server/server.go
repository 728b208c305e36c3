// Package server exposes the conversation engine over HTTP and WebSockets.
package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/hay-kot/parley/internal/core/config"
	"github.com/hay-kot/parley/internal/parley"
)

// HeaderParticipant carries the caller's participant id. Browsers cannot set
// headers on WebSocket handshakes, so the feeds also accept ?participant=.
const HeaderParticipant = "X-Participant-ID"

const (
	maxRequestBody  = 64 << 10
	shutdownTimeout = 10 * time.Second
)

// Server holds the HTTP surface of a parley service.
type Server struct {
	svc      *parley.Service
	cfg      config.ServerConfig
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// New creates a server for svc.
func New(svc *parley.Service, cfg config.ServerConfig, log zerolog.Logger) *Server {
	s := &Server{
		svc: svc,
		cfg: cfg,
		log: log.With().Str("component", "server").Logger(),
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	return s
}

// Router returns the API routes without CORS handling.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/inbox", s.handleInbox).Methods(http.MethodGet)
	v1.HandleFunc("/conversations/{partner}", s.handleConversation).Methods(http.MethodGet)
	v1.HandleFunc("/conversations/{partner}/messages", s.handleSend).Methods(http.MethodPost)
	v1.HandleFunc("/conversations/{partner}/read", s.handleRead).Methods(http.MethodPost)
	v1.HandleFunc("/conversations/{partner}/topic", s.handleTopic).Methods(http.MethodPut)
	v1.HandleFunc("/conversations/{partner}/feed", s.handleConversationFeed).Methods(http.MethodGet)

	return r
}

// Handler returns the routes wrapped with CORS for the configured origins.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", HeaderParticipant},
		MaxAge:         300,
	})
	return c.Handler(s.Router())
}

// ListenAndServe serves on the configured address until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.cfg.Addr).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	s.log.Info().Msg("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return slices.Contains(s.cfg.AllowedOrigins, "*") || slices.Contains(s.cfg.AllowedOrigins, origin)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

// statusRecorder captures the response status for logging. It forwards
// Hijack so WebSocket upgrades keep working behind the middleware.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}
