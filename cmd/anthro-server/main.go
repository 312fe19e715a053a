package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinic/anthropometry/internal/config"
	"github.com/clinic/anthropometry/internal/domain/anthropometry"
	"github.com/clinic/anthropometry/internal/platform/logging"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:           "anthro-server",
		Short:         "Anthropometric measurement reconciliation and index API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(evaluateCmd())
	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(catalogCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

// loadConfig loads and validates configuration and builds the logger.
// CLI subcommands log to stderr so stdout stays machine readable.
func loadConfig(out *os.File) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	if err := cfg.Validate(); err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("invalid configuration: %w", err)
	}
	logger := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: out})
	return cfg, logger, nil
}

func newService(cfg *config.Config, logger zerolog.Logger) (*anthropometry.Service, error) {
	catalog, err := anthropometry.LoadCatalog(cfg.CatalogFile)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return anthropometry.NewService(catalog, anthropometry.ServiceConfig{
		BatchWorkers: cfg.BatchWorkers,
		BatchMaxSize: cfg.BatchMaxSize,
	}, logger), nil
}

func runServer() error {
	cfg, logger, err := loadConfig(os.Stdout)
	if err != nil {
		return err
	}

	svc, err := newService(cfg, logger)
	if err != nil {
		return err
	}
	logger.Info().
		Int("fields", svc.Catalog().Len()).
		Str("catalog", catalogSource(cfg.CatalogFile)).
		Msg("catalog loaded")

	e := newServer(cfg, logger, svc)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		var err error
		if cfg.TLSEnabled {
			err = e.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = e.Start(addr)
		}
		if err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

func catalogSource(path string) string {
	if path == "" {
		return "embedded"
	}
	return path
}
