package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"casanexus/internal/config"
)

// NewServer builds an http.Server on port with the configured timeouts.
func NewServer(port string, handler http.Handler, cfg config.Server) *http.Server {
	return &http.Server{
		Addr:         net.JoinHostPort("", port),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

// Serve runs srv until ctx is cancelled, then shuts it down gracefully,
// giving in-flight requests cfg.ShutdownTimeout to finish.
func Serve(ctx context.Context, srv *http.Server, cfg config.Server, logger *slog.Logger) error {
	shutdownErr := make(chan error, 1)

	go func() {
		<-ctx.Done()
		logger.Info("shutting down server", "address", srv.Addr)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		shutdownErr <- srv.Shutdown(shutdownCtx)
	}()

	logger.Info("starting server", "address", srv.Addr)

	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	if err := <-shutdownErr; err != nil {
		return err
	}

	logger.Info("server stopped", "address", srv.Addr)
	return nil
}
