// Package overlay serves the card state to overlay pages over HTTP and SSE.
package overlay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/genricoloni/glowcard/internal/domain"
	"github.com/genricoloni/glowcard/internal/theme"
	"github.com/r3labs/sse/v2"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

const (
	// DefaultAddr is where the overlay API listens
	DefaultAddr = "127.0.0.1:6535"
	// StreamCard is the SSE stream carrying card updates
	StreamCard = "card"
)

// Options configures the overlay server
type Options struct {
	Addr           string
	AllowedOrigins []string
}

// Server exposes the latest card state:
//
//	GET /api/card            current card as JSON
//	GET /theme.css           theme variables as a stylesheet
//	GET /events?stream=card  server-sent events, one per card change
type Server struct {
	logger *zap.Logger
	opts   Options
	events *sse.Server
	http   *http.Server

	mu       sync.RWMutex
	card     domain.CardState
	listener net.Listener
}

// NewServer creates an overlay server. It does not listen until Start.
func NewServer(logger *zap.Logger, opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = DefaultAddr
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}

	events := sse.New()
	events.AutoReplay = false
	events.CreateStream(StreamCard)

	s := &Server{
		logger: logger,
		opts:   opts,
		events: events,
		card:   domain.CardState{Theme: map[string]string{}},
	}
	s.http = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the routes wrapped with CORS
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/card", s.handleCard)
	mux.HandleFunc("GET /theme.css", s.handleTheme)
	mux.HandleFunc("/events", s.events.ServeHTTP)

	c := cors.New(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet},
		AllowedHeaders: []string{"Origin", "Content-Type", "Accept", "Cache-Control", "Last-Event-ID"},
	})
	return c.Handler(mux)
}

// Publish satisfies domain.Publisher: it stores state and pushes it to
// every connected event stream.
func (s *Server) Publish(state domain.CardState) {
	data, err := json.Marshal(state)
	if err != nil {
		s.logger.Error("Failed to encode card state", zap.Error(err))
		return
	}

	s.mu.Lock()
	s.card = state
	s.mu.Unlock()

	if !s.events.TryPublish(StreamCard, &sse.Event{Data: data}) {
		s.logger.Debug("Event stream buffer full, dropping card update")
	}
}

// Card returns the last published state
func (s *Server) Card() domain.CardState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.card
}

// Start binds the listener and serves in the background
func (s *Server) Start(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("overlay server listen on %s: %w", s.opts.Addr, err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("Overlay server listening", zap.String("addr", ln.Addr().String()))

	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Overlay server stopped unexpectedly", zap.Error(err))
		}
	}()
	return nil
}

// Addr returns the bound address, or the configured one before Start
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.opts.Addr
}

// Stop closes the event streams and shuts the HTTP server down
func (s *Server) Stop(ctx context.Context) error {
	// open event streams would otherwise hold Shutdown until ctx expires
	s.events.Close()
	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("overlay server shutdown: %w", err)
	}
	s.logger.Info("Overlay server stopped")
	return nil
}

func (s *Server) handleCard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(w).Encode(s.Card()); err != nil {
		s.logger.Debug("Failed to write card response", zap.Error(err))
	}
}

func (s *Server) handleTheme(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write([]byte(theme.Render(s.Card().Theme)))
}
