// Package server exposes the research agent over HTTP: POST /api/chat runs
// one turn and streams the answer back as server-sent events.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"scout/core/orchestrator"
	"scout/providers/ai"
	"scout/session"
	"scout/stream"
)

// Runner executes one research turn. *orchestrator.Orchestrator satisfies it.
type Runner interface {
	Run(ctx context.Context, history []ai.Message, userMessage string, sink orchestrator.Sink) (*orchestrator.Result, error)
}

// Server handles chat requests over sessions.
type Server struct {
	sessions *session.Store
	runner   Runner
	logger   *slog.Logger
	token    string
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithBearerToken enables bearer-token authentication. An empty token leaves
// the API open.
func WithBearerToken(token string) Option {
	return func(s *Server) { s.token = token }
}

// New builds a Server over a session store and a turn runner.
func New(sessions *session.Store, runner Runner, opts ...Option) *Server {
	s := &Server{
		sessions: sessions,
		runner:   runner,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed HTTP handler, with authentication applied when a
// token is configured.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", s.handleChat)

	if s.token == "" {
		return mux
	}
	return RequireBearer(s.token, mux)
}

type chatRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var request chatRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}
	if request.Message == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}

	sessionID, sess := s.sessions.LoadOrCreate(request.SessionID)
	if !s.sessions.AcquireWriter(sessionID) {
		http.Error(w, "session is busy with another message", http.StatusConflict)
		return
	}
	defer s.sessions.ReleaseWriter(sessionID)

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ctx := r.Context()
	publisher := stream.NewPublisher(0)

	go s.runTurn(ctx, publisher, sess, sessionID, request.Message)

	for {
		select {
		case event, open := <-publisher.Events():
			if !open {
				return
			}
			if err := stream.Encode(w, event); err != nil {
				s.logger.Warn("client went away mid-stream", "session", sessionID, "error", err)
				return
			}
			flusher.Flush()
		case <-ctx.Done():
			// Client disconnect; the run context is cancelled with it.
			return
		}
	}
}

// runTurn executes the research turn and feeds the publisher. The history is
// appended only on a completed run, so a cancelled or failed turn leaves the
// session untouched.
func (s *Server) runTurn(ctx context.Context, publisher *stream.Publisher, sess *session.Session, sessionID, message string) {
	sink := func(delta string) {
		// Publish errors here mean the consumer is gone; the run context is
		// cancelled with it, so the turn unwinds on its own.
		_ = publisher.Publish(ctx, stream.Text(delta))
	}

	result, err := s.runner.Run(ctx, sess.History(), message, sink)
	if result != nil {
		// Turn-budget exhaustion still returns a populated result closed by
		// a synthetic assistant turn; it belongs in the history even though
		// the stream terminates with an error event.
		sess.Append(result.Turns...)
	}

	if err != nil {
		s.logger.Error("research turn failed", "session", sessionID, "error", err)
		_ = publisher.Publish(ctx, stream.Error(err.Error()))
		return
	}
	_ = publisher.Publish(ctx, stream.Done(sessionID))
}
