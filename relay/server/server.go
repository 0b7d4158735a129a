// Package server implements the relay core: the per-connection session
// state machine, the presence registry, the authoritative task store and
// the broadcast hub that keeps every client replica consistent.
package server

import (
	"context"
	"fmt"
	"net"
	"time"

	log "github.com/sirupsen/logrus"

	"taskboard/domain"
)

// Config holds the relay's tunables.
type Config struct {
	// HandshakeTimeout bounds the wait for the first CONNECT line. Zero
	// disables the deadline.
	HandshakeTimeout time.Duration
	// SessionBuffer is the per-session outbound queue capacity. A session
	// whose queue is full when the hub dispatches is disconnected.
	SessionBuffer int
}

// DefaultConfig returns the tunables used when main does not override them.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 30 * time.Second,
		SessionBuffer:    64,
	}
}

// Server accepts TCP connections and runs one session per peer.
type Server struct {
	cfg      Config
	logger   *log.Logger
	store    *TaskStore
	registry *PresenceRegistry
	hub      *Hub
	ln       net.Listener
}

func New(cfg Config, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.StandardLogger()
	}
	if cfg.SessionBuffer <= 0 {
		cfg.SessionBuffer = DefaultConfig().SessionBuffer
	}
	store := NewTaskStore()
	registry := NewPresenceRegistry()
	return &Server{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		registry: registry,
		hub:      NewHub(store, registry, logger),
	}
}

// Hub exposes the broadcast hub for wiring taps.
func (s *Server) Hub() *Hub { return s.hub }

// Tasks returns the current task collection in insertion order.
func (s *Server) Tasks() []domain.Task { return s.store.Snapshot() }

// OnlineUsers returns the online usernames in alphabetical order.
func (s *Server) OnlineUsers() []string { return s.registry.Snapshot() }

// SessionCount returns the number of active sessions.
func (s *Server) SessionCount() int { return s.hub.SessionCount() }

// Listen binds the relay listener. Use ":0" for an ephemeral port.
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.ln = ln
	return nil
}

// Addr returns the bound listener address.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Serve accepts connections until ctx is cancelled or the listener fails.
// Each connection runs its session concurrently with all others.
func (s *Server) Serve(ctx context.Context) error {
	if s.ln == nil {
		return fmt.Errorf("serve: not listening")
	}
	go func() {
		<-ctx.Done()
		s.ln.Close()
	}()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		sess := newSession(conn, s.hub, s.logger, s.cfg.SessionBuffer)
		go sess.run(s.cfg.HandshakeTimeout)
	}
}

// Close shuts the listener down. Established sessions drain on their own
// read loops.
func (s *Server) Close() error {
	if s.ln == nil {
		return nil
	}
	return s.ln.Close()
}
