package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nikhilbhutani/slidecast/internal/api"
	"github.com/nikhilbhutani/slidecast/internal/app"
	"github.com/nikhilbhutani/slidecast/internal/config"
	"github.com/nikhilbhutani/slidecast/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log, closer := logger.New(cfg.Log)
	defer closer.Close()
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := api.Serve(ctx, a); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
