package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/nikhilbhutani/slidecast/internal/app"
)

// Serve runs the HTTP server and the session janitor until ctx is done, then
// shuts down gracefully and removes any sessions still waiting for a video.
func Serve(ctx context.Context, a *app.App) error {
	cfg, logger := a.Config, a.Logger

	router := NewRouter(a.Service, a.Redis, cfg, logger)
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router.Setup(),
		ReadHeaderTimeout: 15 * time.Second,
		// Composition runs inside the video request, so writes get the render
		// budget plus time to stream the file.
		WriteTimeout: cfg.Render.Timeout + 2*time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	defer stopJanitor()
	go a.Store.RunJanitor(janitorCtx, cfg.Session.SweepInterval, cfg.Session.MaxAge)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting API server", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		return err
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced shutdown", "error", err)
		return err
	}
	logger.Info("server stopped", "sessions_discarded", a.Store.Len())
	return nil
}
