// Package api provides the HTTP surface of PromptPipe Agent: the
// process-message endpoint consumed by the external delivery system plus
// health and service-info endpoints.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/PromptPipeAgent/internal/models"
)

// DefaultAddr is the default listen address for the API server.
const DefaultAddr = ":8080"

// shutdownTimeout bounds graceful shutdown on termination.
const shutdownTimeout = 10 * time.Second

// MessageProcessor routes one inbound participant message and returns the
// reply with the final conversation state. *flow.Orchestrator implements it.
type MessageProcessor interface {
	ProcessMessage(ctx context.Context, participantID, message string) (string, models.ConversationState, error)
}

// Opts holds configuration options for the API server.
type Opts struct {
	Addr string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr overrides the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// Server exposes the HTTP endpoints over an injected message processor.
type Server struct {
	addr       string
	processor  MessageProcessor
	httpServer *http.Server
}

// NewServer creates a new API server instance.
func NewServer(processor MessageProcessor, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("Server.NewServer: creating API server", "addr", cfg.Addr, "hasProcessor", processor != nil)
	return &Server{
		addr:      cfg.Addr,
		processor: processor,
	}
}

// Handler returns the route multiplexer, exported for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/process-message", s.processMessageHandler)
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/", s.rootHandler)
	return mux
}

// Run starts the HTTP server and blocks until the context is cancelled,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: API server listening", "addr", s.addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		slog.Error("Server.Run: server failed", "error", err)
		return err
	case <-ctx.Done():
		slog.Info("Server.Run: shutting down API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server.Run: graceful shutdown failed", "error", err)
			return err
		}
		slog.Info("Server.Run: API server stopped")
		return nil
	}
}
