package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Start runs the HTTP server and blocks until a shutdown signal arrives.
func (s *Server) Start() {
	go func() {
		if err := s.E.Start(s.Cfg.GetAddr()); err != nil && err != http.ErrServerClosed {
			s.E.Logger.Fatalf("shutting down the server: %v", err)
		}
	}()

	waitForShutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.Shutdown(ctx)
}

// Shutdown tears the server down: modules first (draining send queues), then
// the pubsub bridge, then the HTTP listener.
func (s *Server) Shutdown(ctx context.Context) {
	for _, m := range s.modules {
		if err := m.Shutdown(ctx); err != nil {
			slog.Error("Module shutdown failed", "module", m.Name(), "error", err)
		}
	}

	s.cancel()

	if err := s.Bridge.Close(); err != nil {
		slog.Error("Failed to close pubsub bridge", "error", err)
	}

	if err := s.E.Shutdown(ctx); err != nil {
		s.E.Logger.Fatal(err)
	}
}
