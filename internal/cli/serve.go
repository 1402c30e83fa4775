package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/Brownie44l1/fer-web/internal/config"
	"github.com/Brownie44l1/fer-web/internal/handlers"
	"github.com/Brownie44l1/fer-web/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var (
		port    string
		workers int
		dbURL   string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the upload web interface",
		Long: `Starts the emotion upload page on the configured port.

Uploaded photos are stored under UPLOADS_DIR, classified by the ONNX
model and every successful prediction is appended to the prediction log.
The server keeps running when the model cannot be loaded and reports
"Model not loaded" instead.`,
		Example: `  # Start server on default port 8080
  emotion serve

  # Start server on custom port with four inference workers
  emotion serve --port 3000 --workers 4`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			if cmd.Flags().Changed("workers") {
				if workers < 1 {
					return fmt.Errorf("--workers must be at least 1")
				}
				cfg.InferenceWorkers = workers
			}
			if cmd.Flags().Changed("database") {
				cfg.DatabaseURL = dbURL
			}

			setupLogging(cfg.LogLevel)
			gin.SetMode(gin.ReleaseMode)

			if err := os.MkdirAll(cfg.UploadsDir, 0755); err != nil {
				return fmt.Errorf("failed to create uploads directory: %w", err)
			}

			records, err := store.Open(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer records.Close()
			if err := records.EnsureSchema(cmd.Context()); err != nil {
				return err
			}

			p := newPipeline(cfg)
			defer p.Close()

			handler := handlers.NewHandler(p.service, records, handlers.Options{
				UploadsDir:        cfg.UploadsDir,
				AllowedExtensions: cfg.AllowedExtensions,
				MaxUploadBytes:    cfg.MaxUploadBytes,
			})

			addr := ":" + cfg.Port
			server := &http.Server{
				Addr:              addr,
				Handler:           handlers.NewRouter(handler),
				ReadHeaderTimeout: 10 * time.Second,
			}

			serverErr := make(chan error, 1)
			go func() {
				slog.Info("emotion interface available", "addr", addr, "url", "http://localhost"+addr,
					"model_loaded", p.service.ModelLoaded(), "max_upload_mb", cfg.MaxUploadMB())
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			select {
			case <-cmd.Context().Done():
				slog.Info("Shutting down server...")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					slog.Error("Server shutdown failed", "err", err)
					return err
				}
				slog.Info("Server stopped")
				return nil
			case err := <-serverErr:
				return err
			}
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "8080", "Port to listen on (overrides PORT)")
	cmd.Flags().IntVarP(&workers, "workers", "w", 2, "Number of inference sessions (overrides INFERENCE_WORKERS)")
	cmd.Flags().StringVar(&dbURL, "database", "", "Prediction log DSN: sqlite path, mysql:// or postgres:// (overrides DATABASE_URL)")

	return cmd
}
