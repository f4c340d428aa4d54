package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/haasonsaas/frontdesk/internal/observability"
)

const defaultShutdownTimeout = 5 * time.Second

// HTTPServer runs an http.Handler on a TCP listener until shut down. It is
// shared by the gateway and the lookup backend.
type HTTPServer struct {
	name    string
	addr    string
	handler http.Handler
	logger  *observability.Logger

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	done     chan error
}

// NewHTTPServer prepares a server for addr. Nothing listens until Start.
func NewHTTPServer(name, addr string, handler http.Handler, logger *observability.Logger) *HTTPServer {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &HTTPServer{name: name, addr: addr, handler: handler, logger: logger}
}

// Start binds the listener and serves in the background. Serve errors are
// reported by Wait.
func (s *HTTPServer) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return fmt.Errorf("%s server already started", s.name)
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("%s listen: %w", s.name, err)
	}
	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	s.server = server
	s.listener = listener
	s.done = make(chan error, 1)

	go func(done chan<- error) {
		err := server.Serve(listener)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		if err != nil {
			s.logger.Error(ctx, "http server error", "server", s.name, "error", err)
		}
		done <- err
	}(s.done)

	s.logger.Info(ctx, "starting http server", "server", s.name, "addr", listener.Addr().String())
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *HTTPServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Wait blocks until the server stops and returns its serve error, if any.
func (s *HTTPServer) Wait() <-chan error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Shutdown stops accepting connections and waits for in-flight requests.
// A nil ctx uses a short default timeout.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()
	if server == nil {
		return nil
	}

	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
	}
	if err := server.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "http server shutdown error", "server", s.name, "error", err)
		return err
	}
	return nil
}
