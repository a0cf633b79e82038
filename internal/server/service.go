package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/YuminosukeSato/hotelres/pkg/errors"
	"github.com/YuminosukeSato/hotelres/pkg/log"
)

// HTTPService runs the server as a suture.Service. Cancelling the context
// shuts the listener down gracefully.
type HTTPService struct {
	srv             *http.Server
	listener        net.Listener
	shutdownTimeout time.Duration
	logger          log.Logger
}

// NewHTTPService wraps s. When ln is nil the service listens on the
// configured address.
func NewHTTPService(s *Server, ln net.Listener) *HTTPService {
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPService{
		srv: &http.Server{
			Addr:              s.Addr(),
			Handler:           s.Handler(),
			ReadTimeout:       s.cfg.ReadTimeout,
			ReadHeaderTimeout: s.cfg.ReadTimeout,
			WriteTimeout:      s.cfg.WriteTimeout,
		},
		listener:        ln,
		shutdownTimeout: timeout,
		logger:          log.GetLoggerWithName("server.http"),
	}
}

// Serve blocks until ctx is cancelled or the listener fails.
func (h *HTTPService) Serve(ctx context.Context) error {
	ln := h.listener
	if ln == nil {
		var err error
		if ln, err = net.Listen("tcp", h.srv.Addr); err != nil {
			return errors.Wrapf(err, "failed to listen on %s", h.srv.Addr)
		}
	}
	// suture restarts a failed service; a fresh listener is opened then.
	h.listener = nil

	errCh := make(chan error, 1)
	go func() {
		h.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := h.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return errors.Wrap(err, "http server failed")
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()
		if err := h.srv.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "http server shutdown failed")
		}
		<-errCh
		h.logger.Info("HTTP server stopped")
		return ctx.Err()
	}
}

// String names the service in supervisor logs.
func (h *HTTPService) String() string {
	return "http-server"
}
