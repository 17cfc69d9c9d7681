package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/nikhilbhutani/slidecast/internal/config"
	"github.com/nikhilbhutani/slidecast/internal/logger"
)

// env is loaded once by the root command and shared by subcommands.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
	closer io.Closer
}

func newRootCmd() *cobra.Command {
	e := &env{}
	var logLevel string

	cmd := &cobra.Command{
		Use:   "slidecast",
		Short: "Turn PowerPoint decks into narrated videos",
		Long: `Slidecast reads a .pptx deck, has an LLM write a spoken script for every
slide, synthesizes the narration and renders a video with ffmpeg.

Configuration comes from environment variables, an optional .env file and the
YAML file named by CONFIG_FILE.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.Log.Level = logLevel
			}
			e.cfg = cfg
			e.logger, e.closer = logger.New(cfg.Log)
			slog.SetDefault(e.logger)
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if e.closer != nil {
				return e.closer.Close()
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override LOG_LEVEL (debug, info, warn, error)")

	cmd.AddCommand(newRenderCmd(e))
	cmd.AddCommand(newWatchCmd(e))
	cmd.AddCommand(newServeCmd(e))
	return cmd
}
