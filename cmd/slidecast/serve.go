package main

import (
	"github.com/spf13/cobra"

	"github.com/nikhilbhutani/slidecast/internal/api"
	"github.com/nikhilbhutani/slidecast/internal/app"
)

func newServeCmd(e *env) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Example: `  slidecast serve --port 8080`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if port > 0 {
				e.cfg.Server.Port = port
			}

			a, err := app.New(cmd.Context(), e.cfg, e.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			return api.Serve(cmd.Context(), a)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on (default: SERVER_PORT)")
	return cmd
}
