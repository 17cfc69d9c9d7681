package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nikhilbhutani/slidecast/internal/app"
)

func newRenderCmd(e *env) *cobra.Command {
	var (
		output   string
		strategy string
	)

	cmd := &cobra.Command{
		Use:   "render <deck.pptx>",
		Short: "Render one deck to a narrated video",
		Example: `  # Writes talk.mp4 next to the deck
  slidecast render talk.pptx

  # Script each slide separately and pick the output path
  slidecast render talk.pptx --strategy per-slide -o out/talk.mp4`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deck := args[0]
			if output == "" {
				output = strings.TrimSuffix(deck, filepath.Ext(deck)) + ".mp4"
			}
			if strategy != "" {
				e.cfg.Script.Strategy = strategy
			}

			a, err := app.New(cmd.Context(), e.cfg, e.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Service.RenderFile(cmd.Context(), deck, output)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d slides, %d in video\n", res.Output, res.Slides, res.Segments)
			if len(res.Skipped) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "skipped slides: %v\n", res.Skipped)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output video path (default: deck name with .mp4)")
	cmd.Flags().StringVar(&strategy, "strategy", "", "Script strategy: batched or per-slide")
	return cmd
}
