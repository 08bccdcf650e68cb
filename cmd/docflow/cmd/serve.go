package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/xear-health/docflow/internal/server"
)

// serveCmd represents the serve command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP ingest API",
	Long: `Start an HTTP server exposing the document pipeline.

The server provides the following endpoints:
  POST /api/v1/documents               - Upload and process a document
  GET  /api/v1/documents               - List archived documents
  POST /api/v1/documents/{id}/assign   - Assign a patient to a document
  GET  /health                         - Health check
  GET  /metrics                        - Prometheus metrics
  GET  /ws/progress                    - Websocket progress feed

Examples:
  docflow serve
  docflow serve --port 3000`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()

		if cmd.Flags().Changed("host") {
			cfg.Server.Host, _ = cmd.Flags().GetString("host")
		}
		if cmd.Flags().Changed("port") {
			cfg.Server.Port, _ = cmd.Flags().GetInt("port")
		}

		// The hub is both the websocket feed and the pipeline progress sink.
		hub := server.NewProgressHub(nil)
		p, documents, patients, err := buildDependencies(cfg, hub)
		if err != nil {
			return err
		}
		srv := server.New(cfg.Server, p, documents, patients, hub, nil)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return srv.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().String("host", "localhost", "host to bind the server to")
	serveCmd.Flags().Int("port", 8080, "port to bind the server to")
	rootCmd.AddCommand(serveCmd)
}
