package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/deidentify/internal/pipeline"
	"github.com/ppiankov/deidentify/internal/server"
)

var listenAddr string

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the de-identification API over HTTP",
	Long: `Serve exposes the engine as a JSON API:
  POST /v1/deidentify   {"rows": [[header...], [row...]], "columns_to_skip": [], "lower_case": false}
  GET  /v1/recognizers
  GET  /healthz

Set DEIDENTIFY_SERVER_API_KEY to require X-API-Key or a Bearer token on /v1 routes.

Example:
  deidentify serve --addr :8080 --ner`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	addEngineFlags(serveCmd, true)
	serveCmd.Flags().StringVar(&listenAddr, "addr", "", "listen address (default: config server.listen_addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyEngineFlags(cmd, cfg); err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.Server.ListenAddr = listenAddr
	}

	p, err := pipeline.New(cfg)
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}

	if cfg.Server.APIKey == "" {
		fmt.Fprintf(os.Stderr, "⚠️  No API key configured; /v1 routes are unauthenticated\n")
	}

	srv := server.NewServer(p, cfg.TargetLanguage,
		server.WithAPIKey(cfg.Server.APIKey),
		server.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
	)
	return srv.ListenAndServe(cmd.Context(), cfg.Server.ListenAddr)
}
