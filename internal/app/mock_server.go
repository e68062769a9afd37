package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"omniture-reporter/internal/logging"
	"omniture-reporter/internal/mockapi"
)

const mockShutdownTimeout = 5 * time.Second

// ServeMock serves the fake API on ln until ctx ends.
func ServeMock(ctx context.Context, ln net.Listener, server *mockapi.Server, logger *logging.Logger) error {
	if logger == nil {
		logger = logging.Discard()
	}
	httpServer := &http.Server{
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.Serve(ln)
	}()
	logger.Info("mock API listening", logging.Field("addr", ln.Addr().String()))

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), mockShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("mock API stopped")
	return nil
}
