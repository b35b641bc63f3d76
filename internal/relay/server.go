// Package relay constructs and tears down the HTTP service hosting the
// chat relay.
package relay

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// CreateServer creates an HTTP server with the specified port and handler
// and production timeout values.
func CreateServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// StartServer starts the HTTP server and blocks until it exits.
func StartServer(server *http.Server) error {
	return server.ListenAndServe()
}

// ShutdownServer gracefully drains the HTTP server, waiting for active
// connections to close or until the timeout is reached.
func ShutdownServer(server *http.Server, timeout time.Duration, log *zap.SugaredLogger) error {
	log.Info("shutting down HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Warnf("HTTP server shutdown error: %v", err)
		return err
	}

	log.Info("HTTP server shutdown completed")
	return nil
}
