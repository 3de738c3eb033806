// Package cli implements the gyre command-line interface.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gyrelabs/gyre/internal/api"
	"github.com/gyrelabs/gyre/internal/events"
)

// newServeCmd creates the serve command for the API server
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long: `Start the gyre API server for the web UI and remote control.

The server provides REST endpoints and WebSocket streaming for:
  • Loop management (create, start, stop, accept, push)
  • Plan review and feedback
  • Live iteration output and lifecycle events

Runs started over the API execute inside the server process.

Example:
  gyre serve               # Listen per config (default 127.0.0.1:8080)
  gyre serve --port 3000   # Override the port`,
		RunE: func(cmd *cobra.Command, args []string) error {
			pub := events.NewMemoryPublisher()
			svc, err := openServices(pub)
			if err != nil {
				return err
			}
			defer svc.Close()

			host, _ := cmd.Flags().GetString("host")
			port, _ := cmd.Flags().GetInt("port")
			if host == "" {
				host = svc.cfg.Server.Host
			}
			if !cmd.Flags().Changed("port") {
				port = svc.cfg.Server.Port
			}
			addr := fmt.Sprintf("%s:%d", host, port)

			serverCfg := &api.Config{
				Addr:      addr,
				WorkDir:   ".",
				Logger:    svc.logger,
				Machine:   svc.machine,
				Runner:    svc.newRunner(),
				Reviews:   svc.newReviews(),
				Store:     svc.store,
				Publisher: pub,
				Gyre:      svc.cfg,
			}
			if finalizer, ferr := svc.newFinalizer(); ferr == nil {
				serverCfg.Finalizer = finalizer
			} else {
				svc.logger.Warn("sync engine disabled", "error", ferr)
			}

			server := api.New(serverCfg)

			fmt.Printf("Starting API server on %s\n", addr)
			fmt.Println("Press Ctrl+C to stop")

			ctx, cancel := signalContext()
			defer cancel()

			return server.StartContext(ctx)
		},
	}

	cmd.Flags().IntP("port", "p", 8080, "port to listen on")
	cmd.Flags().String("host", "", "host to bind (default from config)")

	return cmd
}
