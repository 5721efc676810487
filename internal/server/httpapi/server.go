// Package httpapi wires the auth and vault services to their HTTP routes and
// runs the server with graceful shutdown.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"passvault/internal/logging"
	"passvault/internal/server/services"
)

type HTTPServer struct {
	address string
	logger  logging.Logger
	handler *Handler
}

func NewHTTPServer(address string, logger logging.Logger, users *services.UserService, vault *services.VaultService) *HTTPServer {
	return &HTTPServer{
		address: address,
		logger:  logger.With("module", "http_server"),
		handler: NewHandler(users, vault, logger),
	}
}

// Routes builds the full request handler: routing plus the panic-recovery
// and request-logging middleware.
func (s *HTTPServer) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /register", s.handler.Register)
	mux.HandleFunc("POST /login", s.handler.Login)
	mux.HandleFunc("GET /token", s.handler.Token)
	mux.HandleFunc("GET /validate", s.handler.Validate)
	mux.HandleFunc("POST /logout", s.handler.Logout)
	mux.HandleFunc("POST /upload", s.handler.withAccessToken(s.handler.Upload))
	mux.HandleFunc("GET /download", s.handler.withAccessToken(s.handler.Download))

	return logRequests(s.logger, recoverPanics(s.logger, mux))
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *HTTPServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "shutdown error", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
