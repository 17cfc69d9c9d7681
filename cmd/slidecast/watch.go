package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nikhilbhutani/slidecast/internal/app"
	"github.com/nikhilbhutani/slidecast/internal/watcher"
)

func newWatchCmd(e *env) *cobra.Command {
	var (
		inDir      string
		outDir     string
		concurrent int
		existing   bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Render every deck dropped into a directory",
		Example: `  slidecast watch --in ./decks --out ./videos --concurrent 2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return fmt.Errorf("create output dir: %w", err)
			}

			a, err := app.New(cmd.Context(), e.cfg, e.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			render := func(ctx context.Context, path string) error {
				name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) + ".mp4"
				_, err := a.Service.RenderFile(ctx, path, filepath.Join(outDir, name))
				return err
			}

			w, err := watcher.New(inDir, render, watcher.Options{
				MaxConcurrent: concurrent,
				Existing:      existing,
			}, e.logger)
			if err != nil {
				return err
			}

			err = w.Run(cmd.Context())
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&inDir, "in", "./decks", "Directory to watch for .pptx files")
	cmd.Flags().StringVar(&outDir, "out", "./videos", "Directory videos are written to")
	cmd.Flags().IntVar(&concurrent, "concurrent", 2, "Decks rendered at the same time")
	cmd.Flags().BoolVar(&existing, "existing", false, "Also render decks already in the directory")
	return cmd
}
