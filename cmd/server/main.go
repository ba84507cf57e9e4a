package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"vnnews-clustering/internal/bootstrap"
	"vnnews-clustering/internal/config"
	"vnnews-clustering/internal/logging"
	httptransport "vnnews-clustering/internal/transport/http"
)

func main() {
	// .env is optional; real environment variables win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env failed: %v\n", err)
	}

	rootCmd := &cobra.Command{
		Use:          "vnnews",
		Short:        "Vietnamese news clustering service",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (toml or yaml); overrides CONFIG_FILE")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(clusterCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(importCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var configFile string

// newApp loads configuration and wires the application. Logs go to w.
func newApp(ctx context.Context, w io.Writer) (*bootstrap.App, error) {
	if configFile != "" {
		if err := os.Setenv("CONFIG_FILE", configFile); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	logger := logging.NewWithWriter(w, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap failed: %w", err)
	}
	return app, nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the clustering HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		app, err := newApp(ctx, os.Stdout)
		if err != nil {
			return err
		}
		defer func() {
			if err := app.Close(); err != nil {
				app.Logger.Error("close resources failed", "error", err)
			}
		}()

		if err := app.StartWorkers(ctx); err != nil {
			return err
		}
		if app.Config.App.WarmUp {
			go func() {
				if err := app.Clustering.WarmUp(ctx); err != nil {
					app.Logger.Error("clustering warm-up failed", "error", err)
				}
			}()
		}

		router := httptransport.NewRouter(app)
		server := &http.Server{
			Addr:              app.Config.HTTPAddr(),
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			app.Logger.Info("server starting", "addr", server.Addr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("server failed: %w", err)
			}
			return nil
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	},
}
